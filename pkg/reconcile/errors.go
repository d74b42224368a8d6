package reconcile

import "fmt"

// OrderError reports a source id at or behind the cursor. The migration
// must present issues in non-decreasing source-id order.
type OrderError struct {
	SourceID   int
	CursorLast int
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("source issue id %d is not ahead of cursor %d; issues must be processed in ascending id order",
		e.SourceID, e.CursorLast)
}

// FillError reports a failed placeholder operation. Fatal: the counter state
// on the target is now unknown relative to the plan.
type FillError struct {
	SourceID int
	Step     string
	Err      error
}

func (e *FillError) Error() string {
	return fmt.Sprintf("filling iid gap before source issue %d: %s: %v", e.SourceID, e.Step, e.Err)
}

func (e *FillError) Unwrap() error {
	return e.Err
}
