// Package convert holds the pure transformation from Redmine issues to
// GitLab issue creation plans. Nothing here touches the network; the
// orchestrator in internal/migrate realizes the plans.
package convert

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/rgsync/redmine-gitlab-sync/pkg/gitlab"
	"github.com/rgsync/redmine-gitlab-sync/pkg/redmine"
	"github.com/rgsync/redmine-gitlab-sync/pkg/textile"
)

// TitleMarkerPattern is the regexp that recovers the embedded source id from
// a marker title. It is the join key of the out-of-band iid rewrite, so the
// format must stay in sync with sqlrewrite.
const TitleMarkerPattern = `-RM-([0-9]+)-MR-(.*)`

// Attachment describes one file to migrate: where to fetch it on the source
// (URL already carries the API key) and how to present it on the target.
type Attachment struct {
	Filename    string
	Description string
	ContentURL  string
	ContentType string
}

// Meta is the side-channel of an issue plan: everything the creation call
// itself cannot carry.
type Meta struct {
	Notes          []Note
	MustClose      bool
	Attachments    []Attachment
	SudoUser       string // set only when impersonation is enabled
	EstimatedHours float64
	SpentHours     float64
}

// Plan is one converted issue: the creation payload, its side-channel, and
// the original numeric id for the reconciliation strategy.
type Plan struct {
	Fields   gitlab.IssueFields
	Meta     Meta
	SourceID int
}

// SpliceUploads appends the Uploads section once the orchestrator knows the
// upload markdown references. Upload URLs do not exist at conversion time.
func (p *Plan) SpliceUploads(markdowns []string) {
	if len(markdowns) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString("## Uploads\n")
	for _, md := range markdowns {
		b.WriteString("\n* ")
		b.WriteString(md)
	}
	p.Fields.Description = joinSections(p.Fields.Description, b.String())
}

// IssueConverter carries the per-run conversion context: the three indices,
// the text converter, and the policy flags.
type IssueConverter struct {
	RedmineAPIKey string
	Users         *UserResolver
	Milestones    map[string]gitlab.Milestone
	ClosedStates  []string // status names meaning "closed", matched case-insensitively
	CustomFields  []string // allow-list of custom field names to carry over
	Text          textile.Converter
	KeepTitle     bool
	Sudo          bool
	Log           logr.Logger
}

// ConvertIssue produces the creation plan for one issue. Resolvable data
// gaps (unknown users, missing milestones, unconvertible text) degrade with
// a warning; they never fail the conversion.
func (c *IssueConverter) ConvertIssue(issue redmine.Issue) *Plan {
	fields := gitlab.IssueFields{
		Title:     c.title(issue),
		CreatedAt: issue.CreatedOn,
		DueDate:   issue.DueDate,
	}

	closed := c.isClosed(issue)
	labels := []string{issue.Tracker.Name}
	if issue.Category != nil && issue.Category.Name != "" {
		labels = append(labels, issue.Category.Name)
	}
	labels = append(labels, issue.Status.Name, issue.Priority.Name)

	meta := Meta{
		MustClose:      closed,
		Notes:          c.ConvertNotes(issue.Journals),
		Attachments:    c.attachments(issue),
		EstimatedHours: issue.EstimatedHours,
		SpentHours:     issue.SpentHours,
	}

	if c.Sudo {
		meta.SudoUser = c.resolveAuthor(issue)
	}

	if issue.FixedVersion != nil {
		if milestone, ok := c.Milestones[issue.FixedVersion.Name]; ok {
			fields.MilestoneID = milestone.ID
		} else {
			c.Log.Info("warning: milestone not found on target, leaving unset",
				"issue", issue.ID, "version", issue.FixedVersion.Name)
		}
	}

	if issue.AssignedTo != nil {
		target, fellBack, err := c.Users.Resolve(issue.AssignedTo)
		if err != nil {
			c.Log.Info("warning: assignee not mappable", "issue", issue.ID, "assignee", userLabel(issue.AssignedTo))
			if archive, ok := c.Users.Archive(); ok {
				fields.AssigneeID = archive.ID
				labels = append(labels, issue.AssignedTo.Name)
			}
		} else {
			fields.AssigneeID = target.ID
			if fellBack {
				// Identity could not be mapped; keep the human name as a tag.
				labels = append(labels, issue.AssignedTo.Name)
			}
		}
	}

	fields.Labels = strings.Join(labels, ",")
	fields.Description = c.description(issue, closed)

	return &Plan{Fields: fields, Meta: meta, SourceID: issue.ID}
}

func (c *IssueConverter) title(issue redmine.Issue) string {
	if c.KeepTitle {
		return issue.Subject
	}
	// The marker keeps the source id recoverable until the iid rewrite runs.
	return fmt.Sprintf("-RM-%d-MR-%s", issue.ID, issue.Subject)
}

// isClosed applies the dual check: some trackers report closure only via the
// status name, others only via the timestamp.
func (c *IssueConverter) isClosed(issue redmine.Issue) bool {
	if issue.ClosedOn != "" {
		return true
	}
	for _, name := range c.ClosedStates {
		if strings.EqualFold(name, issue.Status.Name) {
			return true
		}
	}
	return false
}

func (c *IssueConverter) resolveAuthor(issue redmine.Issue) string {
	target, _, err := c.Users.Resolve(issue.Author)
	if err != nil {
		if archive, ok := c.Users.Archive(); ok {
			return archive.Username
		}
		c.Log.Info("warning: issue author unknown, attributing to current admin",
			"issue", issue.ID, "author", userLabel(issue.Author))
		return ""
	}
	return target.Username
}

// description assembles the ordered sections; empty sections are omitted
// entirely. The Uploads section is spliced in later by the orchestrator.
func (c *IssueConverter) description(issue redmine.Issue, closed bool) string {
	body, err := c.Text.Convert(issue.Description)
	if err != nil {
		var convErr *textile.ConvertError
		if !errors.As(err, &convErr) {
			convErr = &textile.ConvertError{Reason: err.Error()}
		}
		c.Log.Error(convErr, "description conversion failed, keeping raw text", "issue", issue.ID)
		body = issue.Description
	}

	sections := []string{
		body,
		c.attributionLine(issue, closed),
		section("Relations", RelationsToString(issue.Relations, issue.Children, parentID(issue), issue.ID)),
		section("Changesets", c.changesets(issue)),
		section("Custom Fields", c.customFields(issue)),
	}
	return joinSections(sections...)
}

func (c *IssueConverter) attributionLine(issue redmine.Issue, closed bool) string {
	var b strings.Builder
	b.WriteString("*(from redmine: issue id ")
	fmt.Fprintf(&b, "%d", issue.ID)
	fmt.Fprintf(&b, ", created on %s", dateOf(issue.CreatedOn))
	if !c.Sudo {
		// Authorship header unavailable; keep the author in the text.
		if name := userLabel(issue.Author); name != "" {
			fmt.Fprintf(&b, " by %s", name)
		}
	}
	if closed && issue.ClosedOn != "" {
		fmt.Fprintf(&b, ", closed on %s", dateOf(issue.ClosedOn))
	}
	b.WriteString(")*")
	return b.String()
}

// RelationsToString renders the formal relations, children and parent of an
// issue as one bullet list. Relations are symmetric; the bullet always names
// the other endpoint regardless of which side stored the record.
func RelationsToString(relations []redmine.Relation, children []redmine.ChildIssue, parent, issueID int) string {
	var bullets []string
	for _, rel := range relations {
		other := rel.IssueID
		if other == issueID {
			other = rel.IssueToID
		}
		bullets = append(bullets, fmt.Sprintf("* %s #%d", rel.RelationType, other))
	}
	for _, child := range children {
		bullets = append(bullets, fmt.Sprintf("* child #%d", child.ID))
	}
	if parent != 0 {
		bullets = append(bullets, fmt.Sprintf("* parent #%d", parent))
	}
	return strings.Join(bullets, "\n")
}

func (c *IssueConverter) changesets(issue redmine.Issue) string {
	var blocks []string
	for _, cs := range issue.Changesets {
		var b strings.Builder
		fmt.Fprintf(&b, "**Revision %s**", cs.Revision)
		if cs.User != nil && cs.User.Name != "" {
			fmt.Fprintf(&b, " by %s", cs.User.Name)
		}
		if cs.CommittedOn != "" {
			fmt.Fprintf(&b, " on %s", dateOf(cs.CommittedOn))
		}
		fmt.Fprintf(&b, "\n\n```\n%s\n```", strings.TrimRight(cs.Comments, "\n"))
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

func (c *IssueConverter) customFields(issue redmine.Issue) string {
	allowed := make(map[string]bool, len(c.CustomFields))
	for _, name := range c.CustomFields {
		allowed[name] = true
	}
	var bullets []string
	for _, cf := range issue.CustomFields {
		if !allowed[cf.Name] || cf.Value.String() == "" {
			continue
		}
		bullets = append(bullets, fmt.Sprintf("* %s: %s", cf.Name, cf.Value))
	}
	return strings.Join(bullets, "\n")
}

func (c *IssueConverter) attachments(issue redmine.Issue) []Attachment {
	attachments := make([]Attachment, 0, len(issue.Attachments))
	for _, att := range issue.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		sep := "?"
		if strings.Contains(att.ContentURL, "?") {
			sep = "&"
		}
		attachments = append(attachments, Attachment{
			Filename:    att.Filename,
			Description: att.Description,
			ContentURL:  fmt.Sprintf("%s%skey=%s", att.ContentURL, sep, c.RedmineAPIKey),
			ContentType: contentType,
		})
	}
	return attachments
}

func parentID(issue redmine.Issue) int {
	if issue.Parent == nil {
		return 0
	}
	return issue.Parent.ID
}

func section(title, content string) string {
	if content == "" {
		return ""
	}
	return fmt.Sprintf("## %s\n\n%s", title, content)
}

func joinSections(sections ...string) string {
	var nonEmpty []string
	for _, s := range sections {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

// dateOf extracts the YYYY-MM-DD prefix of a Redmine timestamp.
func dateOf(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}
