package migrate

import "time"

// Result is the bookkeeping of one migration run, printed as the final
// summary and returned to the CLI.
type Result struct {
	TotalIssues         int
	IssuesCreated       int
	PlaceholdersCreated int
	NotesPosted         int
	SkippedNotes        []SkippedNote
	SkippedAttachments  []SkippedAttachment
	Duration            time.Duration
}

// SkippedNote records a note dropped after exhausting its retries. The
// issue itself and all prior notes are already committed on the target.
type SkippedNote struct {
	SourceIssueID int
	TargetIID     int
	NoteIndex     int
	Err           error
}

// SkippedAttachment records an attachment left behind after an upload
// failure. Never fatal: the rest of the issue still migrates.
type SkippedAttachment struct {
	SourceIssueID int
	Filename      string
	Err           error
}
