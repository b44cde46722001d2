package bundler

import (
	"errors"
	"fmt"
)

var (
	// ErrTemplate is returned when a variables or inputs template fails to render, or the
	// rendered inputs are not valid JSON.
	ErrTemplate = errors.New("template error")

	// ErrMissingInputs is returned for tasks without an inputs template.
	ErrMissingInputs = errors.New("no inputs found in task config")

	// ErrContextSource is returned when a context source cannot be loaded.
	ErrContextSource = errors.New("context source failed")
)

// BundleError wraps bundling failures with the task they belong to.
type BundleError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *BundleError) Error() string {
	return fmt.Sprintf("%s failed for task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *BundleError) Unwrap() error {
	return e.Err
}

func (e *BundleError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newBundleError(op, taskID string, err error) *BundleError {
	return &BundleError{Op: op, TaskID: taskID, Err: err}
}
