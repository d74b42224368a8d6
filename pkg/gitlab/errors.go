package gitlab

import "fmt"

// ProjectURLError reports a project URL that does not name a GitLab project.
type ProjectURLError struct {
	URL string
}

func (e *ProjectURLError) Error() string {
	return fmt.Sprintf("%q is not a valid GitLab project URL (expected https://host/namespace/project)", e.URL)
}

// APIError represents a failed GitLab API operation.
type APIError struct {
	Operation string
	Context   string
	Err       error
}

func (e *APIError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("gitlab: %s (%s): %v", e.Operation, e.Context, e.Err)
	}
	return fmt.Sprintf("gitlab: %s: %v", e.Operation, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}
