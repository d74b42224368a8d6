package convert

import "fmt"

// UnknownUserError reports a source user reference that could not be mapped
// to any target account. Consumers treat this as a data gap with a defined
// fallback, not a defect.
type UnknownUserError struct {
	SourceID int
	Name     string
	Login    string
}

func (e *UnknownUserError) Error() string {
	switch {
	case e.SourceID == 0:
		return "anonymous source user"
	case e.Login != "":
		return fmt.Sprintf("source user %d (%s, login %q) has no target account", e.SourceID, e.Name, e.Login)
	default:
		return fmt.Sprintf("source user %d (%s) is unknown", e.SourceID, e.Name)
	}
}

// ArchiveUserError reports a configured archive account absent from the
// target instance. Fatal at startup.
type ArchiveUserError struct {
	Username string
}

func (e *ArchiveUserError) Error() string {
	return fmt.Sprintf("archive user %q does not exist on the GitLab instance", e.Username)
}
