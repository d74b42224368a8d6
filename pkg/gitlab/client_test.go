package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentRequest struct {
	Method  string
	URL     string
	Body    any
	Headers http.Header
}

type route struct {
	method string // empty matches any
	urlSub string
	body   string
}

// fakeSender records all requests and resolves responses against an ordered
// route table, first match wins.
type fakeSender struct {
	routes []route
	sent   []sentRequest
}

func (f *fakeSender) Do(_ context.Context, method, url string, body any, headers http.Header) (json.RawMessage, error) {
	f.sent = append(f.sent, sentRequest{Method: method, URL: url, Body: body, Headers: headers})
	for _, r := range f.routes {
		if (r.method == "" || r.method == method) && strings.Contains(url, r.urlSub) {
			return json.RawMessage(r.body), nil
		}
	}
	if method == http.MethodDelete {
		return nil, nil
	}
	return nil, fmt.Errorf("fakeSender: no route for %s %s", method, url)
}

func (f *fakeSender) Download(context.Context, string) (io.ReadCloser, string, error) {
	return nil, "", fmt.Errorf("fakeSender: download not supported")
}

func (f *fakeSender) Upload(_ context.Context, url, field, filename string, r io.Reader, headers http.Header) (json.RawMessage, error) {
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	f.sent = append(f.sent, sentRequest{Method: "UPLOAD", URL: url, Body: field + ":" + filename, Headers: headers})
	return json.RawMessage(fmt.Sprintf(`{"url":"/uploads/x/%s","markdown":"[%s](/uploads/x/%s)"}`, filename, filename, filename)), nil
}

func newTestProject(t *testing.T, sender *fakeSender) *Project {
	t.Helper()
	p, err := NewProject("https://git.example.com/group/myproj", sender, logr.Discard())
	require.NoError(t, err)
	return p
}

func TestNewProject_EncodesPath(t *testing.T) {
	sender := &fakeSender{routes: []route{{urlSub: "/api/v4/projects/", body: `{"id":42}`}}}

	p, err := NewProject("https://git.example.com/group/subgroup/myproj/", sender, logr.Discard())
	require.NoError(t, err)

	id, err := p.ID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, id)
	assert.Equal(t, "https://git.example.com/api/v4/projects/group%2Fsubgroup%2Fmyproj", sender.sent[0].URL)
}

func TestNewProject_RejectsBareHost(t *testing.T) {
	_, err := NewProject("https://git.example.com", &fakeSender{}, logr.Discard())
	var urlErr *ProjectURLError
	require.ErrorAs(t, err, &urlErr)
}

func TestCreateIssue_SudoHeader(t *testing.T) {
	sender := &fakeSender{routes: []route{{urlSub: "/issues", body: `{"id":10,"iid":7,"title":"-RM-7-MR-x"}`}}}
	p := newTestProject(t, sender)

	created, err := p.CreateIssue(context.Background(), IssueFields{Title: "-RM-7-MR-x"}, "jack_smith")
	require.NoError(t, err)
	assert.Equal(t, 7, created.IID)

	req := sender.sent[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "jack_smith", req.Headers.Get("Sudo"))

	fields, ok := req.Body.(IssueFields)
	require.True(t, ok)
	assert.Equal(t, "-RM-7-MR-x", fields.Title)
}

func TestCreateIssue_NoSudoHeaderWhenEmpty(t *testing.T) {
	sender := &fakeSender{routes: []route{{urlSub: "/issues", body: `{"id":10,"iid":7}`}}}
	p := newTestProject(t, sender)

	_, err := p.CreateIssue(context.Background(), IssueFields{Title: "x"}, "")
	require.NoError(t, err)
	assert.Nil(t, sender.sent[0].Headers)
}

func TestCreateNote(t *testing.T) {
	sender := &fakeSender{routes: []route{{urlSub: "/notes", body: `{"id":1}`}}}
	p := newTestProject(t, sender)

	err := p.CreateNote(context.Background(), 7, "a comment", "john_smith")
	require.NoError(t, err)

	req := sender.sent[0]
	assert.Contains(t, req.URL, "/issues/7/notes")
	assert.Equal(t, "john_smith", req.Headers.Get("Sudo"))
	assert.Equal(t, map[string]string{"body": "a comment"}, req.Body)
}

func TestDeleteIssue(t *testing.T) {
	sender := &fakeSender{}
	p := newTestProject(t, sender)

	require.NoError(t, p.DeleteIssue(context.Background(), 3))
	req := sender.sent[0]
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Contains(t, req.URL, "/issues/3")
}

func TestCloseIssue(t *testing.T) {
	sender := &fakeSender{routes: []route{{urlSub: "/issues/7", body: `{"iid":7,"state":"closed"}`}}}
	p := newTestProject(t, sender)

	require.NoError(t, p.CloseIssue(context.Background(), 7))
	req := sender.sent[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, map[string]string{"state_event": "close"}, req.Body)
}

func TestSetTime(t *testing.T) {
	sender := &fakeSender{routes: []route{
		{urlSub: "time_estimate", body: `{}`},
		{urlSub: "add_spent_time", body: `{}`},
	}}
	p := newTestProject(t, sender)

	require.NoError(t, p.SetTimeEstimate(context.Background(), 7, 3.5))
	require.NoError(t, p.SetTimeSpent(context.Background(), 7, 1.25))

	assert.Contains(t, sender.sent[0].URL, "/issues/7/time_estimate?duration=3.5h")
	assert.Contains(t, sender.sent[1].URL, "/issues/7/add_spent_time?duration=1.25h")
}

func TestUploadFile(t *testing.T) {
	sender := &fakeSender{}
	p := newTestProject(t, sender)

	upload, err := p.UploadFile(context.Background(), "report.pdf", strings.NewReader("content"))
	require.NoError(t, err)
	assert.Equal(t, "[report.pdf](/uploads/x/report.pdf)", upload.Markdown)
	assert.Contains(t, sender.sent[0].URL, "/uploads")
	assert.Equal(t, "file:report.pdf", sender.sent[0].Body)
}

func TestEnsureMilestone_ReusesExisting(t *testing.T) {
	sender := &fakeSender{routes: []route{
		{method: http.MethodGet, urlSub: "/milestones", body: `[{"id":3,"title":"v0.11"}]`},
	}}
	p := newTestProject(t, sender)

	m, err := p.EnsureMilestone(context.Background(), MilestonePayload{Title: "v0.11"})
	require.NoError(t, err)
	assert.Equal(t, 3, m.ID)

	// Only the index lookup, no create.
	for _, req := range sender.sent {
		assert.NotEqual(t, http.MethodPost, req.Method)
	}
}

func TestEnsureMilestone_CreatesMissing(t *testing.T) {
	sender := &fakeSender{routes: []route{
		{method: http.MethodGet, urlSub: "/milestones", body: `[]`},
		{method: http.MethodPost, urlSub: "/milestones", body: `{"id":9,"title":"v0.12"}`},
	}}
	p := newTestProject(t, sender)

	m, err := p.EnsureMilestone(context.Background(), MilestonePayload{Title: "v0.12", Description: "next"})
	require.NoError(t, err)
	assert.Equal(t, 9, m.ID)

	last := sender.sent[len(sender.sent)-1]
	assert.Equal(t, http.MethodPost, last.Method)
	payload, ok := last.Body.(MilestonePayload)
	require.True(t, ok)
	assert.Equal(t, "v0.12", payload.Title)
}

func TestIssues_Paginates(t *testing.T) {
	firstPage := make([]Issue, maxPerPage)
	for i := range firstPage {
		firstPage[i] = Issue{ID: i + 1, IID: i + 1}
	}
	first, err := json.Marshal(firstPage)
	require.NoError(t, err)

	sender := &fakeSender{routes: []route{
		{urlSub: "&page=1", body: string(first)},
		{urlSub: "&page=2", body: `[{"id":101,"iid":101}]`},
	}}
	p := newTestProject(t, sender)

	issues, err := p.Issues(context.Background())
	require.NoError(t, err)
	assert.Len(t, issues, maxPerPage+1)
	assert.Contains(t, sender.sent[0].URL, "per_page=100&page=1")
	assert.Contains(t, sender.sent[1].URL, "per_page=100&page=2")
}

func TestMembers(t *testing.T) {
	sender := &fakeSender{routes: []route{
		{urlSub: "/members", body: `[{"id":11,"username":"jack_smith","access_level":40}]`},
	}}
	p := newTestProject(t, sender)

	members, err := p.Members(context.Background())
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "jack_smith", members[0].Username)
	assert.Equal(t, 40, members[0].AccessLevel)
}

func TestUsersIndex(t *testing.T) {
	sender := &fakeSender{routes: []route{
		{urlSub: "/api/v4/users", body: `[{"id":11,"username":"jack_smith"},{"id":42,"username":"john_smith"}]`},
	}}
	p := newTestProject(t, sender)

	index, err := p.UsersIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, index["jack_smith"].ID)
	assert.Equal(t, 42, index["john_smith"].ID)
}
