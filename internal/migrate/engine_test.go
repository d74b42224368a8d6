package migrate

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgsync/redmine-gitlab-sync/pkg/gitlab"
	"github.com/rgsync/redmine-gitlab-sync/pkg/metrics"
	"github.com/rgsync/redmine-gitlab-sync/pkg/redmine"
	"github.com/rgsync/redmine-gitlab-sync/pkg/textile"
)

type fakeDownloader struct {
	errs      map[string]error // URL substring -> error
	downloads int
}

func (f *fakeDownloader) Download(_ context.Context, url string) (io.ReadCloser, string, error) {
	f.downloads++
	for sub, err := range f.errs {
		if strings.Contains(url, sub) {
			return nil, "", err
		}
	}
	return io.NopCloser(strings.NewReader("filecontent")), "application/octet-stream", nil
}

func sourceIssue(id int) redmine.Issue {
	return redmine.Issue{
		ID:       id,
		Subject:  "Subject",
		Status:   redmine.NamedRef{Name: "New"},
		Tracker:  redmine.NamedRef{Name: "Bug"},
		Priority: redmine.NamedRef{Name: "Normal"},
		Author:   &redmine.NamedRef{ID: 3, Name: "Jack Smith"},
	}
}

func newEngine(source *redmine.MockSource, target *gitlab.MockTarget) *Engine {
	return &Engine{
		Source:     source,
		Target:     target,
		Downloader: &fakeDownloader{},
		Opts: Options{
			Text: textile.Passthrough{},
			Sudo: true,
		},
		Log:     logr.Discard(),
		Metrics: metrics.NewRecorder(),
	}
}

func newSource(issues ...redmine.Issue) *redmine.MockSource {
	source := redmine.NewMockSource()
	source.IssueList = issues
	source.Users = map[int]redmine.User{3: {ID: 3, Login: "jack_smith"}}
	return source
}

func newTarget() *gitlab.MockTarget {
	target := gitlab.NewMockTarget()
	target.Users["jack_smith"] = gitlab.User{ID: 11, Username: "jack_smith"}
	return target
}

func opsOf(calls []gitlab.Call) []string {
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

func TestRun_SingleIssuePipelineOrder(t *testing.T) {
	issue := sourceIssue(1)
	issue.ClosedOn = "2016-02-02T09:00:00Z"
	issue.EstimatedHours = 3
	issue.SpentHours = 1.5
	issue.Journals = []redmine.Journal{
		{ID: 1, Notes: "first", User: &redmine.NamedRef{ID: 3}, CreatedOn: "2016-01-02T09:00:00Z"},
		{ID: 2, Notes: "second", User: &redmine.NamedRef{ID: 3}, CreatedOn: "2016-01-03T09:00:00Z"},
	}
	issue.Attachments = []redmine.Attachment{
		{Filename: "report.pdf", ContentURL: "https://redmine.example.com/attachments/download/5/report.pdf"},
	}

	target := newTarget()
	engine := newEngine(newSource(issue), target)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalIssues)
	assert.Equal(t, 1, result.IssuesCreated)
	assert.Equal(t, 2, result.NotesPosted)
	assert.Zero(t, result.PlaceholdersCreated)
	assert.Empty(t, result.SkippedNotes)
	assert.Empty(t, result.SkippedAttachments)

	// Upload before creation, notes before time tracking, close last.
	assert.Equal(t,
		[]string{"upload", "create", "note", "note", "estimate", "spent", "close"},
		opsOf(target.Calls))

	create := target.Calls[1]
	assert.Equal(t, "-RM-1-MR-Subject", create.Arg)
	assert.Equal(t, "jack_smith", create.Sudo)
	assert.Contains(t, target.Calls[2].Arg, "first")
	assert.Contains(t, target.Calls[3].Arg, "second")
}

func TestRun_BurnsPlaceholdersForGaps(t *testing.T) {
	target := newTarget()
	target.NextIID = 5
	engine := newEngine(newSource(sourceIssue(5), sourceIssue(6), sourceIssue(9)), target)
	engine.Opts.InitialIID = 5

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.IssuesCreated)
	assert.Equal(t, 2, result.PlaceholdersCreated)

	// Issues 5 and 6 land directly; 7 and 8 are burned before 9.
	assert.Equal(t,
		[]string{"create", "create", "create", "delete", "create", "delete", "create"},
		opsOf(target.Calls))

	var realIIDs []int
	for _, call := range target.Calls {
		if call.Op == "create" && call.Arg != "fake" {
			realIIDs = append(realIIDs, call.IID)
		}
	}
	assert.Equal(t, []int{5, 6, 9}, realIIDs)
}

func TestRun_ResumeFromExistingIssues(t *testing.T) {
	target := newTarget()
	target.ExistingIssues = []gitlab.Issue{{IID: 3, Title: "-RM-3-MR-old"}}
	target.NextIID = 4
	engine := newEngine(newSource(sourceIssue(5)), target)
	engine.Opts.InitialIID = 4

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.IssuesCreated)
	assert.Equal(t, 1, result.PlaceholdersCreated)

	last := target.Calls[len(target.Calls)-1]
	assert.Equal(t, "create", last.Op)
	assert.Equal(t, 5, last.IID)
}

func TestRun_CreateFailureIsFatal(t *testing.T) {
	target := newTarget()
	target.CreateIssueErr = errors.New("403 forbidden")
	engine := newEngine(newSource(sourceIssue(1), sourceIssue(2)), target)

	result, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "creating issue for source #1")
	assert.Zero(t, result.IssuesCreated)
}

func TestRun_NoteRetriesThenSucceeds(t *testing.T) {
	issue := sourceIssue(1)
	issue.Journals = []redmine.Journal{
		{ID: 1, Notes: "flaky", User: &redmine.NamedRef{ID: 3}, CreatedOn: "2016-01-02T09:00:00Z"},
	}
	target := newTarget()
	// Fail the first attempt only; the bounded retry must absorb it.
	target.NoteErrs["flaky\n\n*(from redmine: written on 2016-01-02)*"] = 1

	engine := newEngine(newSource(issue), target)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.NotesPosted)
	assert.Empty(t, result.SkippedNotes)
}

func TestRun_NoteSkippedAfterRetriesExhausted(t *testing.T) {
	issue := sourceIssue(1)
	issue.Journals = []redmine.Journal{
		{ID: 1, Notes: "doomed", User: &redmine.NamedRef{ID: 3}, CreatedOn: "2016-01-02T09:00:00Z"},
		{ID: 2, Notes: "fine", User: &redmine.NamedRef{ID: 3}, CreatedOn: "2016-01-03T09:00:00Z"},
	}
	target := newTarget()
	target.NoteErrs["doomed\n\n*(from redmine: written on 2016-01-02)*"] = noteRetries

	engine := newEngine(newSource(issue), target)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	// The failed note is reported, the issue and the later note survive.
	assert.Equal(t, 1, result.IssuesCreated)
	assert.Equal(t, 1, result.NotesPosted)
	require.Len(t, result.SkippedNotes, 1)
	assert.Equal(t, 1, result.SkippedNotes[0].SourceIssueID)
	assert.Equal(t, 0, result.SkippedNotes[0].NoteIndex)
}

func TestRun_AttachmentFailureSkips(t *testing.T) {
	issue := sourceIssue(1)
	issue.Attachments = []redmine.Attachment{
		{Filename: "broken.bin", ContentURL: "https://redmine.example.com/attachments/download/5/broken.bin"},
		{Filename: "good.txt", ContentURL: "https://redmine.example.com/attachments/download/6/good.txt"},
	}
	target := newTarget()
	target.UploadErrs["broken.bin"] = errors.New("rejected")

	engine := newEngine(newSource(issue), target)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.IssuesCreated)
	require.Len(t, result.SkippedAttachments, 1)
	assert.Equal(t, "broken.bin", result.SkippedAttachments[0].Filename)

	create := target.Calls[1]
	assert.Equal(t, "create", create.Op)
}

func TestRun_NonASCIIFilenameRetriedSanitized(t *testing.T) {
	issue := sourceIssue(1)
	issue.Attachments = []redmine.Attachment{
		{Filename: "naïve.png", ContentURL: "https://redmine.example.com/attachments/download/5/na.png"},
	}
	target := newTarget()
	target.UploadErrs["naïve.png"] = errors.New("filename rejected")

	downloader := &fakeDownloader{}
	engine := newEngine(newSource(issue), target)
	engine.Downloader = downloader

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.SkippedAttachments)
	assert.Equal(t, 2, downloader.downloads)
	assert.Equal(t, "upload", target.Calls[0].Op)
	assert.Equal(t, "na_ve.png", target.Calls[0].Arg)
}

func TestRun_CheckOnlyNeverWrites(t *testing.T) {
	target := newTarget()
	engine := newEngine(newSource(sourceIssue(1), sourceIssue(2)), target)
	engine.Opts.CheckOnly = true

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalIssues)
	assert.Zero(t, result.IssuesCreated)
	assert.Empty(t, target.Calls)
}

func TestRun_PreexistingIssuesFailPrecondition(t *testing.T) {
	target := newTarget()
	target.ExistingIssues = []gitlab.Issue{{IID: 1, Title: "unrelated"}}
	engine := newEngine(newSource(sourceIssue(1)), target)

	_, err := engine.Run(context.Background())
	var precondErr *PreconditionError
	require.ErrorAs(t, err, &precondErr)
	assert.Empty(t, target.Calls)
}

func TestRun_MissingUsersFailPrecondition(t *testing.T) {
	source := newSource(sourceIssue(1))
	source.Users[7] = redmine.User{ID: 7, Login: "ghost"}
	target := newTarget()

	engine := newEngine(source, target)
	_, err := engine.Run(context.Background())
	var precondErr *PreconditionError
	require.ErrorAs(t, err, &precondErr)
}

func TestRun_MissingUsersPassWithArchiveUser(t *testing.T) {
	source := newSource(sourceIssue(1))
	source.Users[7] = redmine.User{ID: 7, Login: "ghost"}
	target := newTarget()
	target.Users["archive"] = gitlab.User{ID: 99, Username: "archive"}

	engine := newEngine(source, target)
	engine.Opts.ArchiveUser = "archive"

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.IssuesCreated)
}

func TestRun_NoIssues(t *testing.T) {
	target := newTarget()
	engine := newEngine(newSource(), target)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.TotalIssues)
	assert.Empty(t, target.Calls)
}

func TestAsciiFilename(t *testing.T) {
	assert.Equal(t, "plain.txt", asciiFilename("plain.txt"))
	assert.Equal(t, "na_ve.png", asciiFilename("naïve.png"))
	assert.Equal(t, "r_sum_.doc", asciiFilename("résumé.doc"))
}
