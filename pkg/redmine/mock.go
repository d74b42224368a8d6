package redmine

import "context"

// MockSource implements the Source interface for testing
// This enables unit testing the migration engine without a Redmine server
type MockSource struct {
	// IssueList is returned by AllIssues, already sorted by id
	IssueList []Issue

	// Users is returned by UsersIndex
	Users map[int]User

	// VersionList is returned by Versions
	VersionList []Version

	// Err simulates API failures when set
	Err error

	// AllIssuesCallCount tracks how many times AllIssues was called
	AllIssuesCallCount int
}

// NewMockSource creates a new mock Redmine source for testing
func NewMockSource() *MockSource {
	return &MockSource{Users: make(map[int]User)}
}

func (m *MockSource) AllIssues(_ context.Context) ([]Issue, error) {
	m.AllIssuesCallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.IssueList, nil
}

func (m *MockSource) UsersIndex(_ context.Context) (map[int]User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Users, nil
}

func (m *MockSource) Versions(_ context.Context) ([]Version, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.VersionList, nil
}
