// Package migrate sequences the issue migration: precondition checks, index
// building, and the per-issue create/upload/note/time/close pipeline against
// the target API.
package migrate

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"

	"github.com/rgsync/redmine-gitlab-sync/pkg/convert"
	"github.com/rgsync/redmine-gitlab-sync/pkg/gitlab"
	"github.com/rgsync/redmine-gitlab-sync/pkg/metrics"
	"github.com/rgsync/redmine-gitlab-sync/pkg/reconcile"
	"github.com/rgsync/redmine-gitlab-sync/pkg/redmine"
	"github.com/rgsync/redmine-gitlab-sync/pkg/textile"
	"github.com/rgsync/redmine-gitlab-sync/pkg/usermap"
)

// noteRetries bounds per-note retry attempts before the note is skipped and
// reported in the summary.
const noteRetries = 3

// Downloader fetches attachment content from the source.
type Downloader interface {
	Download(ctx context.Context, url string) (io.ReadCloser, string, error)
}

// Options are the per-run migration settings, assembled by the CLI.
type Options struct {
	RedmineAPIKey string
	Overrides     usermap.Map
	ClosedStates  []string
	CustomFields  []string
	Text          textile.Converter
	KeepTitle     bool
	Sudo          bool
	ArchiveUser   string
	// InitialIID resumes a partial run: the first issue is assumed to land
	// on this iid. Zero means auto: probe the target's current max iid, or
	// start at the first source id when the project is empty.
	InitialIID int
	// CheckOnly runs the preconditions and logs the plan without writing.
	CheckOnly bool
}

// Engine drives one migration run. Processing is strictly sequential: the
// identifier cursor's correctness depends on the target assigning iids in
// exactly the order issues are submitted.
type Engine struct {
	Source     redmine.Source
	Target     gitlab.Target
	Downloader Downloader
	Opts       Options
	Log        logr.Logger
	Metrics    *metrics.Recorder
}

// Run executes the full migration and returns its bookkeeping. Any issue
// creation failure is fatal: already-created issues stay in place, and the
// operator resets with delete-issues before retrying.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	issues, err := e.Source.AllIssues(ctx)
	if err != nil {
		return result, err
	}
	result.TotalIssues = len(issues)

	users, err := e.Source.UsersIndex(ctx)
	if err != nil {
		return result, err
	}
	gitlabUsers, err := e.Target.UsersIndex(ctx)
	if err != nil {
		return result, err
	}
	existing, err := e.Target.Issues(ctx)
	if err != nil {
		return result, err
	}

	resolver := &convert.UserResolver{
		Users:       users,
		Overrides:   e.Opts.Overrides,
		GitLabUsers: gitlabUsers,
		ArchiveUser: e.Opts.ArchiveUser,
	}

	if err := e.runChecks(resolver, existing); err != nil {
		return result, err
	}
	if len(issues) == 0 {
		e.Log.Info("no issues to migrate")
		result.Duration = time.Since(start)
		return result, nil
	}

	// Milestones are migrated in a prior phase; the index is built once and
	// read-only for the rest of the run.
	milestones, err := e.Target.MilestonesIndex(ctx)
	if err != nil {
		return result, err
	}

	converter := &convert.IssueConverter{
		RedmineAPIKey: e.Opts.RedmineAPIKey,
		Users:         resolver,
		Milestones:    milestones,
		ClosedStates:  e.Opts.ClosedStates,
		CustomFields:  e.Opts.CustomFields,
		Text:          e.Opts.Text,
		KeepTitle:     e.Opts.KeepTitle,
		Sudo:          e.Opts.Sudo,
		Log:           e.Log,
	}

	cursor := reconcile.NewCursor(e.initialCursor(issues, existing))
	filler := &reconcile.GapFiller{Target: e.Target, Cursor: cursor, Log: e.Log}

	for _, issue := range issues {
		plan := converter.ConvertIssue(issue)

		if e.Opts.CheckOnly {
			e.Log.Info("would create issue",
				"source_id", plan.SourceID,
				"title", plan.Fields.Title,
				"notes", len(plan.Meta.Notes),
				"attachments", len(plan.Meta.Attachments))
			continue
		}

		if err := e.createOne(ctx, plan, filler, result); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// initialCursor picks the starting cursor value: the explicit resume point
// when given, otherwise the target's current max iid, otherwise one less
// than the first source id (fresh project, no leading gap burned).
func (e *Engine) initialCursor(issues []redmine.Issue, existing []gitlab.Issue) int {
	if e.Opts.InitialIID > 0 {
		return e.Opts.InitialIID - 1
	}
	maxIID := 0
	for _, issue := range existing {
		if issue.IID > maxIID {
			maxIID = issue.IID
		}
	}
	if maxIID > 0 {
		return maxIID
	}
	return issues[0].ID - 1
}

// createOne realizes a single plan: upload attachments, create the issue,
// post notes, set time tracking, close. Issue creation failure aborts the
// run; note and attachment failures degrade into the summary.
func (e *Engine) createOne(ctx context.Context, plan *convert.Plan, filler *reconcile.GapFiller, result *Result) error {
	burned, err := filler.Fill(ctx, plan.SourceID, plan.Meta.SudoUser)
	result.PlaceholdersCreated += burned
	e.Metrics.PlaceholdersCreated.Add(float64(burned))
	if err != nil {
		return err
	}

	// Uploads precede creation: the markdown references go into the
	// description's Uploads section.
	uploads := e.uploadAttachments(ctx, plan, result)
	plan.SpliceUploads(uploads)

	created, err := e.Target.CreateIssue(ctx, plan.Fields, plan.Meta.SudoUser)
	if err != nil {
		// Fatal by design: continuing would desynchronize the iid cursor.
		return fmt.Errorf("creating issue for source #%d: %w", plan.SourceID, err)
	}
	filler.Cursor.Advance(created.IID)
	result.IssuesCreated++
	e.Metrics.IssuesCreated.Inc()
	if e.Opts.ArchiveUser != "" && plan.Meta.SudoUser == e.Opts.ArchiveUser {
		e.Metrics.UserFallbacks.Inc()
	}
	e.Log.Info("created issue", "iid", created.IID, "source_id", plan.SourceID, "title", created.Title)

	e.postNotes(ctx, plan, created.IID, result)

	if plan.Meta.EstimatedHours > 0 {
		if err := e.Target.SetTimeEstimate(ctx, created.IID, plan.Meta.EstimatedHours); err != nil {
			return err
		}
	}
	if plan.Meta.SpentHours > 0 {
		if err := e.Target.SetTimeSpent(ctx, created.IID, plan.Meta.SpentHours); err != nil {
			return err
		}
	}

	// Close last, so note timestamps and authorship land before the state
	// transition.
	if plan.Meta.MustClose {
		if err := e.Target.CloseIssue(ctx, created.IID); err != nil {
			return err
		}
	}
	return nil
}

// uploadAttachments fetches each attachment from the source and streams it
// to the target, returning the markdown references. A rejection of a
// non-ASCII filename is retried once with a sanitized name; any other
// failure skips that attachment.
func (e *Engine) uploadAttachments(ctx context.Context, plan *convert.Plan, result *Result) []string {
	var markdowns []string
	for _, att := range plan.Meta.Attachments {
		upload, err := e.uploadOne(ctx, att)
		if err != nil {
			e.Log.Info("warning: skipping attachment", "source_id", plan.SourceID, "filename", att.Filename, "error", err.Error())
			result.SkippedAttachments = append(result.SkippedAttachments, SkippedAttachment{
				SourceIssueID: plan.SourceID,
				Filename:      att.Filename,
				Err:           err,
			})
			e.Metrics.AttachmentsSkipped.Inc()
			continue
		}
		md := upload.Markdown
		if att.Description != "" {
			md = fmt.Sprintf("%s — %s", md, att.Description)
		}
		markdowns = append(markdowns, md)
		e.Metrics.AttachmentsUploaded.Inc()
	}
	return markdowns
}

func (e *Engine) uploadOne(ctx context.Context, att convert.Attachment) (gitlab.Upload, error) {
	body, _, err := e.Downloader.Download(ctx, att.ContentURL)
	if err != nil {
		return gitlab.Upload{}, err
	}
	defer body.Close()

	upload, err := e.Target.UploadFile(ctx, att.Filename, body)
	if err == nil {
		return upload, nil
	}
	sanitized := asciiFilename(att.Filename)
	if sanitized == att.Filename {
		return gitlab.Upload{}, err
	}

	// The first attempt consumed the stream; fetch again for the retry.
	body2, _, err2 := e.Downloader.Download(ctx, att.ContentURL)
	if err2 != nil {
		return gitlab.Upload{}, err
	}
	defer body2.Close()
	e.Log.V(1).Info("retrying upload with sanitized filename", "from", att.Filename, "to", sanitized)
	return e.Target.UploadFile(ctx, sanitized, body2)
}

// postNotes posts notes strictly in source order. Each note gets a bounded
// retry; a note that still fails is skipped and reported, rather than
// aborting an issue that is already committed on the target.
func (e *Engine) postNotes(ctx context.Context, plan *convert.Plan, iid int, result *Result) {
	for i, note := range plan.Meta.Notes {
		op := func() error {
			return e.Target.CreateNote(ctx, iid, note.Body, note.Author)
		}
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), noteRetries-1), ctx)
		if err := backoff.Retry(op, policy); err != nil {
			e.Log.Info("warning: skipping note after retries", "iid", iid, "note_index", i, "error", err.Error())
			result.SkippedNotes = append(result.SkippedNotes, SkippedNote{
				SourceIssueID: plan.SourceID,
				TargetIID:     iid,
				NoteIndex:     i,
				Err:           err,
			})
			e.Metrics.NotesSkipped.Inc()
			continue
		}
		result.NotesPosted++
		e.Metrics.NotesPosted.Inc()
		if e.Opts.ArchiveUser != "" && note.Author == e.Opts.ArchiveUser {
			e.Metrics.UserFallbacks.Inc()
		}
	}
}

// asciiFilename replaces every non-ASCII byte with an underscore.
func asciiFilename(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r < 128 {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}
