// Package reconcile forces the target's auto-incrementing issue counter to
// match source issue ids. GitLab offers no way to request a specific iid, so
// gaps are burned through with throwaway placeholder issues that are created
// and immediately deleted.
package reconcile

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/rgsync/redmine-gitlab-sync/pkg/gitlab"
)

// placeholderTitle is the title of issues created only to consume an iid.
const placeholderTitle = "fake"

// Cursor tracks the last iid the target assigned during this run. It is
// in-memory only; resuming a partial run goes through --initial-iid or the
// startup max-iid probe, not persistence.
type Cursor struct {
	last int
}

// NewCursor starts the cursor at the given last-assigned iid (0 for an
// empty project).
func NewCursor(last int) *Cursor {
	return &Cursor{last: last}
}

// Last returns the last assigned iid.
func (c *Cursor) Last() int { return c.last }

// Advance records an iid the target just assigned.
func (c *Cursor) Advance(iid int) { c.last = iid }

// PlaceholderCreator is the slice of the target API gap filling needs.
type PlaceholderCreator interface {
	CreateIssue(ctx context.Context, fields gitlab.IssueFields, sudo string) (gitlab.Issue, error)
	DeleteIssue(ctx context.Context, iid int) error
}

// GapFiller advances the target's iid counter up to a wanted source id.
type GapFiller struct {
	Target PlaceholderCreator
	Cursor *Cursor
	Log    logr.Logger
}

// Fill creates and deletes placeholder issues until the next iid the target
// will assign equals sourceID. Callers must present source ids in
// non-decreasing order; a backward id is a sequencing bug, not a data gap.
// sudo is the impersonated author of the issue about to be created, so the
// acting identity stays uniform.
//
// Returns the number of placeholders burned.
func (g *GapFiller) Fill(ctx context.Context, sourceID int, sudo string) (int, error) {
	if sourceID <= g.Cursor.Last() {
		return 0, &OrderError{SourceID: sourceID, CursorLast: g.Cursor.Last()}
	}

	burned := 0
	for sourceID > g.Cursor.Last()+1 {
		placeholder, err := g.Target.CreateIssue(ctx, gitlab.IssueFields{Title: placeholderTitle}, sudo)
		if err != nil {
			return burned, &FillError{SourceID: sourceID, Step: "create placeholder", Err: err}
		}
		if err := g.Target.DeleteIssue(ctx, placeholder.IID); err != nil {
			return burned, &FillError{SourceID: sourceID, Step: "delete placeholder", Err: err}
		}
		g.Cursor.Advance(placeholder.IID)
		burned++
		g.Log.V(1).Info("burned placeholder iid", "iid", placeholder.IID, "want", sourceID)
	}
	return burned, nil
}
