package pipeline

import "errors"

// ErrAccessDenied is returned when the calendar store cannot be opened for
// writing.
var ErrAccessDenied = errors.New("calendar access denied")

// FatalError aborts a run before any mutation reaches the calendar store.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatal(stage string, err error) error {
	return &FatalError{Stage: stage, Err: err}
}
