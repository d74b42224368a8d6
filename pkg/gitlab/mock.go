package gitlab

import (
	"context"
	"fmt"
	"io"
)

// Call records one mutating API call for order assertions in tests.
type Call struct {
	Op   string // "create", "delete", "note", "upload", "estimate", "spent", "close"
	IID  int
	Arg  string // title, note body, filename or duration depending on Op
	Sudo string
}

// MockTarget implements the Target interface for testing
// This enables unit testing the migration engine without a GitLab server
type MockTarget struct {
	// ProjectID is returned by ID
	ProjectID int

	// ExistingIssues is returned by Issues (pre-existing on the target)
	ExistingIssues []Issue

	// Users is returned by UsersIndex, keyed by username
	Users map[string]User

	// Milestones is returned by MilestonesIndex, keyed by title
	Milestones map[string]Milestone

	// NextIID is the iid the next created issue receives
	NextIID int

	// Calls records every mutating call in order
	Calls []Call

	// CreateIssueErr fails CreateIssue when set
	CreateIssueErr error

	// NoteErrs fails CreateNote: body -> remaining failure count
	NoteErrs map[string]int

	// UploadErrs fails UploadFile: filename -> error
	UploadErrs map[string]error
}

// NewMockTarget creates a new mock GitLab target for testing
func NewMockTarget() *MockTarget {
	return &MockTarget{
		Users:      make(map[string]User),
		Milestones: make(map[string]Milestone),
		NoteErrs:   make(map[string]int),
		UploadErrs: make(map[string]error),
		NextIID:    1,
	}
}

func (m *MockTarget) ID(_ context.Context) (int, error) {
	return m.ProjectID, nil
}

func (m *MockTarget) Issues(_ context.Context) ([]Issue, error) {
	return m.ExistingIssues, nil
}

func (m *MockTarget) UsersIndex(_ context.Context) (map[string]User, error) {
	return m.Users, nil
}

func (m *MockTarget) MilestonesIndex(_ context.Context) (map[string]Milestone, error) {
	return m.Milestones, nil
}

func (m *MockTarget) EnsureMilestone(_ context.Context, payload MilestonePayload) (Milestone, error) {
	if existing, ok := m.Milestones[payload.Title]; ok {
		return existing, nil
	}
	created := Milestone{ID: len(m.Milestones) + 1, Title: payload.Title}
	m.Milestones[payload.Title] = created
	m.Calls = append(m.Calls, Call{Op: "milestone", Arg: payload.Title})
	return created, nil
}

func (m *MockTarget) CreateIssue(_ context.Context, fields IssueFields, sudo string) (Issue, error) {
	if m.CreateIssueErr != nil {
		return Issue{}, m.CreateIssueErr
	}
	created := Issue{ID: m.NextIID, IID: m.NextIID, Title: fields.Title}
	m.NextIID++
	m.Calls = append(m.Calls, Call{Op: "create", IID: created.IID, Arg: fields.Title, Sudo: sudo})
	return created, nil
}

func (m *MockTarget) DeleteIssue(_ context.Context, iid int) error {
	m.Calls = append(m.Calls, Call{Op: "delete", IID: iid})
	return nil
}

func (m *MockTarget) CreateNote(_ context.Context, issueIID int, body, sudo string) error {
	if remaining, ok := m.NoteErrs[body]; ok && remaining > 0 {
		m.NoteErrs[body] = remaining - 1
		return fmt.Errorf("note rejected")
	}
	m.Calls = append(m.Calls, Call{Op: "note", IID: issueIID, Arg: body, Sudo: sudo})
	return nil
}

func (m *MockTarget) UploadFile(_ context.Context, filename string, r io.Reader) (Upload, error) {
	if err, ok := m.UploadErrs[filename]; ok {
		return Upload{}, err
	}
	if _, err := io.ReadAll(r); err != nil {
		return Upload{}, err
	}
	m.Calls = append(m.Calls, Call{Op: "upload", Arg: filename})
	return Upload{
		URL:      "/uploads/mock/" + filename,
		Markdown: fmt.Sprintf("[%s](/uploads/mock/%s)", filename, filename),
	}, nil
}

func (m *MockTarget) SetTimeEstimate(_ context.Context, issueIID int, hours float64) error {
	m.Calls = append(m.Calls, Call{Op: "estimate", IID: issueIID, Arg: fmt.Sprintf("%gh", hours)})
	return nil
}

func (m *MockTarget) SetTimeSpent(_ context.Context, issueIID int, hours float64) error {
	m.Calls = append(m.Calls, Call{Op: "spent", IID: issueIID, Arg: fmt.Sprintf("%gh", hours)})
	return nil
}

func (m *MockTarget) CloseIssue(_ context.Context, issueIID int) error {
	m.Calls = append(m.Calls, Call{Op: "close", IID: issueIID})
	return nil
}
