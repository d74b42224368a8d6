// Package gitlab writes to a GitLab project over its REST API: issues,
// notes, uploads, time tracking and milestones.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-logr/logr"
	"github.com/rgsync/redmine-gitlab-sync/pkg/transport"
)

// GitLab caps per_page at 100.
const maxPerPage = 100

// Target is the write/read surface the migration engine consumes.
// This enables dependency injection and testing with mock implementations.
type Target interface {
	ID(ctx context.Context) (int, error)
	Issues(ctx context.Context) ([]Issue, error)
	UsersIndex(ctx context.Context) (map[string]User, error)
	MilestonesIndex(ctx context.Context) (map[string]Milestone, error)
	EnsureMilestone(ctx context.Context, payload MilestonePayload) (Milestone, error)
	CreateIssue(ctx context.Context, fields IssueFields, sudo string) (Issue, error)
	DeleteIssue(ctx context.Context, iid int) error
	CreateNote(ctx context.Context, issueIID int, body, sudo string) error
	UploadFile(ctx context.Context, filename string, r io.Reader) (Upload, error)
	SetTimeEstimate(ctx context.Context, issueIID int, hours float64) error
	SetTimeSpent(ctx context.Context, issueIID int, hours float64) error
	CloseIssue(ctx context.Context, issueIID int) error
}

var projectURLRe = regexp.MustCompile(
	`^(?P<base_url>https?://[^/]+)/(?P<path>[\w.-]+(?:/[\w.-]+)+)/?$`)

// Project implements Target for one GitLab project.
type Project struct {
	sender      transport.Sender
	apiURL      string // .../api/v4/projects/<url-encoded path>
	instanceURL string // .../api/v4
	log         logr.Logger
}

// NewProject validates the project URL and derives the API endpoints.
// Nested namespaces (group/subgroup/project) are supported.
func NewProject(rawURL string, sender transport.Sender, log logr.Logger) (*Project, error) {
	trimmed := strings.TrimRight(rawURL, "/")
	m := projectURLRe.FindStringSubmatch(trimmed)
	if m == nil {
		return nil, &ProjectURLError{URL: rawURL}
	}
	base, path := m[1], m[2]
	return &Project{
		sender:      sender,
		apiURL:      fmt.Sprintf("%s/api/v4/projects/%s", base, url.PathEscape(path)),
		instanceURL: fmt.Sprintf("%s/api/v4", base),
		log:         log,
	}, nil
}

// AuthHeader returns the transport auth hook for a GitLab token.
func AuthHeader(token string) transport.AuthFunc {
	return func(h http.Header) {
		h.Set("PRIVATE-TOKEN", token)
	}
}

func sudoHeader(sudo string) http.Header {
	if sudo == "" {
		return nil
	}
	return http.Header{"Sudo": []string{sudo}}
}

// ID fetches the numeric project id.
func (p *Project) ID(ctx context.Context) (int, error) {
	raw, err := p.sender.Do(ctx, http.MethodGet, p.apiURL, nil, nil)
	if err != nil {
		return 0, &APIError{Operation: "fetch project", Err: err}
	}
	var proj struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(raw, &proj); err != nil {
		return 0, &APIError{Operation: "decode project", Err: err}
	}
	return proj.ID, nil
}

// Issues lists every issue of the project across all pages.
func (p *Project) Issues(ctx context.Context) ([]Issue, error) {
	var issues []Issue
	err := p.paginate(ctx, p.apiURL+"/issues", func(raw json.RawMessage) (int, error) {
		var page []Issue
		if err := json.Unmarshal(raw, &page); err != nil {
			return 0, err
		}
		issues = append(issues, page...)
		return len(page), nil
	})
	if err != nil {
		return nil, &APIError{Operation: "list issues", Err: err}
	}
	return issues, nil
}

// Members lists project members.
func (p *Project) Members(ctx context.Context) ([]Member, error) {
	var members []Member
	err := p.paginate(ctx, p.apiURL+"/members", func(raw json.RawMessage) (int, error) {
		var page []Member
		if err := json.Unmarshal(raw, &page); err != nil {
			return 0, err
		}
		members = append(members, page...)
		return len(page), nil
	})
	if err != nil {
		return nil, &APIError{Operation: "list members", Err: err}
	}
	return members, nil
}

// Users lists every account on the instance (admin token required).
func (p *Project) Users(ctx context.Context) ([]User, error) {
	var users []User
	err := p.paginate(ctx, p.instanceURL+"/users", func(raw json.RawMessage) (int, error) {
		var page []User
		if err := json.Unmarshal(raw, &page); err != nil {
			return 0, err
		}
		users = append(users, page...)
		return len(page), nil
	})
	if err != nil {
		return nil, &APIError{Operation: "list users", Err: err}
	}
	return users, nil
}

// UsersIndex returns instance users keyed by username.
func (p *Project) UsersIndex(ctx context.Context) (map[string]User, error) {
	users, err := p.Users(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]User, len(users))
	for _, u := range users {
		index[u.Username] = u
	}
	return index, nil
}

// MilestonesIndex returns the project milestones keyed by title. Titles are
// unique per project, which is what makes idempotent creation possible.
func (p *Project) MilestonesIndex(ctx context.Context) (map[string]Milestone, error) {
	var milestones []Milestone
	err := p.paginate(ctx, p.apiURL+"/milestones", func(raw json.RawMessage) (int, error) {
		var page []Milestone
		if err := json.Unmarshal(raw, &page); err != nil {
			return 0, err
		}
		milestones = append(milestones, page...)
		return len(page), nil
	})
	if err != nil {
		return nil, &APIError{Operation: "list milestones", Err: err}
	}
	index := make(map[string]Milestone, len(milestones))
	for _, m := range milestones {
		index[m.Title] = m
	}
	return index, nil
}

// EnsureMilestone creates a milestone unless one with the same title already
// exists, in which case the existing one is returned without any write.
func (p *Project) EnsureMilestone(ctx context.Context, payload MilestonePayload) (Milestone, error) {
	index, err := p.MilestonesIndex(ctx)
	if err != nil {
		return Milestone{}, err
	}
	if existing, ok := index[payload.Title]; ok {
		p.log.V(1).Info("milestone already present, reusing", "title", payload.Title, "id", existing.ID)
		return existing, nil
	}
	raw, err := p.sender.Do(ctx, http.MethodPost, p.apiURL+"/milestones", payload, nil)
	if err != nil {
		return Milestone{}, &APIError{Operation: "create milestone", Context: payload.Title, Err: err}
	}
	var created Milestone
	if err := json.Unmarshal(raw, &created); err != nil {
		return Milestone{}, &APIError{Operation: "decode milestone", Context: payload.Title, Err: err}
	}
	return created, nil
}

// CreateIssue creates one issue. A non-empty sudo username attributes the
// issue to that user server-side via the elevated-privilege header.
func (p *Project) CreateIssue(ctx context.Context, fields IssueFields, sudo string) (Issue, error) {
	raw, err := p.sender.Do(ctx, http.MethodPost, p.apiURL+"/issues", fields, sudoHeader(sudo))
	if err != nil {
		return Issue{}, &APIError{Operation: "create issue", Context: fields.Title, Err: err}
	}
	var created Issue
	if err := json.Unmarshal(raw, &created); err != nil {
		return Issue{}, &APIError{Operation: "decode created issue", Context: fields.Title, Err: err}
	}
	return created, nil
}

// DeleteIssue removes an issue. Some GitLab versions answer with an empty
// body; the transport already treats that as success.
func (p *Project) DeleteIssue(ctx context.Context, iid int) error {
	url := fmt.Sprintf("%s/issues/%d", p.apiURL, iid)
	if _, err := p.sender.Do(ctx, http.MethodDelete, url, nil, nil); err != nil {
		return &APIError{Operation: "delete issue", Context: fmt.Sprintf("iid %d", iid), Err: err}
	}
	return nil
}

// CreateNote posts one comment on an issue.
func (p *Project) CreateNote(ctx context.Context, issueIID int, body, sudo string) error {
	url := fmt.Sprintf("%s/issues/%d/notes", p.apiURL, issueIID)
	payload := map[string]string{"body": body}
	if _, err := p.sender.Do(ctx, http.MethodPost, url, payload, sudoHeader(sudo)); err != nil {
		return &APIError{Operation: "create note", Context: fmt.Sprintf("issue iid %d", issueIID), Err: err}
	}
	return nil
}

// UploadFile streams a file to the project uploads endpoint and returns the
// markdown reference string for it.
func (p *Project) UploadFile(ctx context.Context, filename string, r io.Reader) (Upload, error) {
	raw, err := p.sender.Upload(ctx, p.apiURL+"/uploads", "file", filename, r, nil)
	if err != nil {
		return Upload{}, &APIError{Operation: "upload file", Context: filename, Err: err}
	}
	var upload Upload
	if err := json.Unmarshal(raw, &upload); err != nil {
		return Upload{}, &APIError{Operation: "decode upload", Context: filename, Err: err}
	}
	return upload, nil
}

// SetTimeEstimate sets the estimate. GitLab takes the duration as a query
// parameter in human units; hours map directly.
func (p *Project) SetTimeEstimate(ctx context.Context, issueIID int, hours float64) error {
	return p.setTime(ctx, issueIID, "time_estimate", hours)
}

// SetTimeSpent records spent time.
func (p *Project) SetTimeSpent(ctx context.Context, issueIID int, hours float64) error {
	return p.setTime(ctx, issueIID, "add_spent_time", hours)
}

func (p *Project) setTime(ctx context.Context, issueIID int, action string, hours float64) error {
	url := fmt.Sprintf("%s/issues/%d/%s?duration=%gh", p.apiURL, issueIID, action, hours)
	if _, err := p.sender.Do(ctx, http.MethodPost, url, nil, nil); err != nil {
		return &APIError{Operation: action, Context: fmt.Sprintf("issue iid %d", issueIID), Err: err}
	}
	return nil
}

// CloseIssue transitions an issue to closed.
func (p *Project) CloseIssue(ctx context.Context, issueIID int) error {
	url := fmt.Sprintf("%s/issues/%d", p.apiURL, issueIID)
	payload := map[string]string{"state_event": "close"}
	if _, err := p.sender.Do(ctx, http.MethodPut, url, payload, nil); err != nil {
		return &APIError{Operation: "close issue", Context: fmt.Sprintf("issue iid %d", issueIID), Err: err}
	}
	return nil
}

func (p *Project) paginate(ctx context.Context, base string, consume func(json.RawMessage) (int, error)) error {
	page := 1
	for {
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		url := fmt.Sprintf("%s%sper_page=%d&page=%d", base, sep, maxPerPage, page)
		raw, err := p.sender.Do(ctx, http.MethodGet, url, nil, nil)
		if err != nil {
			return err
		}
		n, err := consume(raw)
		if err != nil {
			return err
		}
		if n < maxPerPage {
			return nil
		}
		page++
	}
}
