package transport

import "fmt"

// RequestError represents a failed HTTP exchange with either remote system.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int // zero when the request never got a response
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, truncate(e.Body, 200))
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsStatus reports whether err is a RequestError with the given status code.
func IsStatus(err error, code int) bool {
	if reqErr, ok := err.(*RequestError); ok {
		return reqErr.StatusCode == code
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
