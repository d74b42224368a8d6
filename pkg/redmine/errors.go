package redmine

import "fmt"

// ProjectURLError reports a project URL that does not look like a Redmine
// project page.
type ProjectURLError struct {
	URL string
}

func (e *ProjectURLError) Error() string {
	return fmt.Sprintf("%q is not a valid Redmine project URL (expected .../projects/<name>)", e.URL)
}

// APIError represents a failed Redmine API operation.
type APIError struct {
	Operation string // what was being done (list issues, fetch user, ...)
	Context   string // which resource, when relevant
	Err       error
}

func (e *APIError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("redmine: %s (%s): %v", e.Operation, e.Context, e.Err)
	}
	return fmt.Sprintf("redmine: %s: %v", e.Operation, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}
