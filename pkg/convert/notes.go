package convert

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rgsync/redmine-gitlab-sync/pkg/redmine"
	"github.com/rgsync/redmine-gitlab-sync/pkg/textile"
)

// Note is one comment to post on the created issue, in source order.
// Author is the username used for impersonation; empty means the note is
// attributed to the acting admin.
type Note struct {
	Body   string
	Author string
}

// ConvertNotes turns an issue's journal entries into note payloads.
//
// Entries whose note body is empty after trimming are dropped: they are pure
// field-change events with no user-visible content. The result is consumed
// exactly once per issue, in order.
func (c *IssueConverter) ConvertNotes(journals []redmine.Journal) []Note {
	notes := make([]Note, 0, len(journals))
	for _, entry := range journals {
		if strings.TrimSpace(entry.Notes) == "" {
			continue
		}

		text, err := c.Text.Convert(entry.Notes)
		if err != nil {
			var convErr *textile.ConvertError
			if !errors.As(err, &convErr) {
				convErr = &textile.ConvertError{Reason: err.Error()}
			}
			c.Log.Error(convErr, "note conversion failed, keeping raw text", "journal_id", entry.ID)
			text = entry.Notes
		}

		body := fmt.Sprintf("%s\n\n*(from redmine: written on %s)*", text, dateOf(entry.CreatedOn))

		author := ""
		target, fellBack, err := c.Users.Resolve(entry.User)
		switch {
		case err != nil:
			if archive, ok := c.Users.Archive(); ok {
				body = fmt.Sprintf("*(archived from redmine user %s)*\n\n%s", userLabel(entry.User), body)
				author = archive.Username
			} else {
				c.Log.Info("warning: note author unknown, attributing to current admin",
					"journal_id", entry.ID, "user", userLabel(entry.User))
			}
		case fellBack:
			body = fmt.Sprintf("*(archived from redmine user %s)*\n\n%s", userLabel(entry.User), body)
			author = target.Username
		default:
			author = target.Username
		}

		if !c.Sudo {
			// Without the impersonation header there is no authorship channel,
			// so the author goes into the body itself.
			if name := userLabel(entry.User); name != "" {
				body = fmt.Sprintf("%s\n\n*(originally written by %s)*", body, name)
			}
			author = ""
		}

		notes = append(notes, Note{Body: body, Author: author})
	}
	return notes
}

func userLabel(ref *redmine.NamedRef) string {
	if ref == nil {
		return ""
	}
	if ref.Name != "" {
		return ref.Name
	}
	return fmt.Sprintf("#%d", ref.ID)
}
