// Package redmine reads a Redmine project over its REST API: issues with
// their full history, participating users, and versions.
package redmine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/rgsync/redmine-gitlab-sync/pkg/transport"
)

// The anonymous pseudo-account is not a real project member and cannot be
// fetched through the users endpoint.
const anonymousUserID = 2

// Pagination page size; Redmine caps limit at 100.
const pageSize = 100

// Source is the read surface the migration engine consumes.
// This enables dependency injection and testing with mock implementations.
type Source interface {
	AllIssues(ctx context.Context) ([]Issue, error)
	UsersIndex(ctx context.Context) (map[int]User, error)
	Versions(ctx context.Context) ([]Version, error)
}

var (
	projectURLRe = regexp.MustCompile(
		`^(?P<base_url>https?://.*)/projects/(?P<project_name>[\w_-]+)$`)
	categoryProjectURLRe = regexp.MustCompile(
		`^(?P<base_url>https?://.*)/project/(?P<category_name>[\w_-]+)/(?P<project_name>[\w_-]+)/?$`)
)

// Project implements Source for one Redmine project.
type Project struct {
	sender      transport.Sender
	publicURL   string
	instanceURL string
	log         logr.Logger
}

// NewProject validates and canonicalizes the project URL. Category-style
// URLs (/project/<category>/<name>) are rewritten to the category-less form,
// which is the only one the API serves.
func NewProject(rawURL string, sender transport.Sender, log logr.Logger) (*Project, error) {
	url := strings.TrimRight(rawURL, "/")
	if m := categoryProjectURLRe.FindStringSubmatch(url); m != nil {
		url = fmt.Sprintf("%s/projects/%s", m[1], m[3])
	}
	m := projectURLRe.FindStringSubmatch(url)
	if m == nil {
		return nil, &ProjectURLError{URL: rawURL}
	}
	return &Project{
		sender:      sender,
		publicURL:   url,
		instanceURL: m[1],
		log:         log,
	}, nil
}

// AuthHeader returns the transport auth hook for a Redmine API key.
func AuthHeader(apiKey string) transport.AuthFunc {
	return func(h http.Header) {
		h.Set("X-Redmine-API-Key", apiKey)
	}
}

type pageMeta struct {
	TotalCount int `json:"total_count"`
	Offset     int `json:"offset"`
	Limit      int `json:"limit"`
}

// AllIssues fetches every issue of the project regardless of status, then
// re-fetches each one through the detail endpoint, since journals, relations,
// children, attachments and changesets are not available from the list view.
// Issues are returned sorted by ascending id, the order the identifier
// reconciliation strategy depends on.
func (p *Project) AllIssues(ctx context.Context) ([]Issue, error) {
	ids, err := p.listIssueIDs(ctx)
	if err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(ids))
	for _, id := range ids {
		url := fmt.Sprintf(
			"%s/issues/%d.json?include=journals,watchers,relations,children,attachments,changesets",
			p.instanceURL, id)
		raw, err := p.sender.Do(ctx, http.MethodGet, url, nil, nil)
		if err != nil {
			return nil, &APIError{Operation: "fetch issue detail", Context: fmt.Sprintf("issue #%d", id), Err: err}
		}
		var envelope struct {
			Issue Issue `json:"issue"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, &APIError{Operation: "decode issue detail", Context: fmt.Sprintf("issue #%d", id), Err: err}
		}
		issues = append(issues, envelope.Issue)
	}

	sort.Slice(issues, func(i, j int) bool { return issues[i].ID < issues[j].ID })
	return issues, nil
}

func (p *Project) listIssueIDs(ctx context.Context) ([]int, error) {
	var ids []int
	offset := 0
	for {
		url := fmt.Sprintf("%s/issues.json?status_id=*&limit=%d&offset=%d",
			p.publicURL, pageSize, offset)
		raw, err := p.sender.Do(ctx, http.MethodGet, url, nil, nil)
		if err != nil {
			return nil, &APIError{Operation: "list issues", Err: err}
		}
		var page struct {
			pageMeta
			Issues []struct {
				ID int `json:"id"`
			} `json:"issues"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, &APIError{Operation: "decode issue list", Err: err}
		}
		for _, i := range page.Issues {
			ids = append(ids, i.ID)
		}
		// Redmine pagination contract: loop until offset+limit covers total_count.
		if page.Offset+page.Limit >= page.TotalCount {
			break
		}
		offset += pageSize
	}
	return ids, nil
}

// Participants fetches every user referenced by the project's issues as
// author, assignee or watcher. The anonymous pseudo-user is skipped.
func (p *Project) Participants(ctx context.Context) ([]User, error) {
	issues, err := p.AllIssues(ctx)
	if err != nil {
		return nil, err
	}
	return p.participantsOf(ctx, issues)
}

func (p *Project) participantsOf(ctx context.Context, issues []Issue) ([]User, error) {
	seen := map[int]bool{}
	var ids []int
	record := func(ref *NamedRef) {
		if ref == nil || ref.ID == anonymousUserID || seen[ref.ID] {
			return
		}
		seen[ref.ID] = true
		ids = append(ids, ref.ID)
	}
	for _, issue := range issues {
		record(issue.Author)
		record(issue.AssignedTo)
		for i := range issue.Watchers {
			record(&issue.Watchers[i])
		}
	}
	sort.Ints(ids)

	users := make([]User, 0, len(ids))
	for _, id := range ids {
		url := fmt.Sprintf("%s/users/%d.json", p.instanceURL, id)
		raw, err := p.sender.Do(ctx, http.MethodGet, url, nil, nil)
		if err != nil {
			// Locked or deleted accounts 404; their issues fall back to the
			// archive account downstream.
			if transport.IsStatus(err, http.StatusNotFound) {
				p.log.V(1).Info("user not fetchable, skipping", "user_id", id)
				continue
			}
			return nil, &APIError{Operation: "fetch user", Context: fmt.Sprintf("user %d", id), Err: err}
		}
		var envelope struct {
			User User `json:"user"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, &APIError{Operation: "decode user", Context: fmt.Sprintf("user %d", id), Err: err}
		}
		users = append(users, envelope.User)
	}
	return users, nil
}

// UsersIndex returns the participants keyed by Redmine user id.
func (p *Project) UsersIndex(ctx context.Context) (map[int]User, error) {
	users, err := p.Participants(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[int]User, len(users))
	for _, u := range users {
		index[u.ID] = u
	}
	return index, nil
}

// Versions lists the project's versions.
func (p *Project) Versions(ctx context.Context) ([]Version, error) {
	url := fmt.Sprintf("%s/versions.json", p.publicURL)
	raw, err := p.sender.Do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, &APIError{Operation: "list versions", Err: err}
	}
	var envelope struct {
		Versions []Version `json:"versions"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &APIError{Operation: "decode versions", Err: err}
	}
	return envelope.Versions, nil
}

// PublicURL returns the canonicalized project URL.
func (p *Project) PublicURL() string { return p.publicURL }
