// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTaskNotFound indicates no task matched the lookup.
	ErrTaskNotFound = errors.New("task not found")

	// ErrFlowVersionNotFound indicates a flow version was not found by the given identifier.
	ErrFlowVersionNotFound = errors.New("flow version not found")

	// ErrFlowVersionExists indicates a flow version id is already taken. Flow versions are
	// immutable once saved.
	ErrFlowVersionExists = errors.New("flow version already exists")

	// ErrAuthProviderNotFound indicates an auth provider was not found by the given identifier.
	ErrAuthProviderNotFound = errors.New("auth provider not found")

	// ErrInvalidTransition indicates a status write that would move a task backwards
	// or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// TaskError wraps task-related errors with additional context.
type TaskError struct {
	Op     string // Operation being performed (e.g., "Claim", "Finish")
	TaskID string // Task ID if applicable
	Err    error  // Underlying error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s operation failed for task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for task errors.
func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTaskError creates a new task error with context.
func NewTaskError(op, taskID string, err error) *TaskError {
	return &TaskError{
		Op:     op,
		TaskID: taskID,
		Err:    err,
	}
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsFlowVersionNotFound checks if an error indicates a flow version was not found.
func IsFlowVersionNotFound(err error) bool {
	return errors.Is(err, ErrFlowVersionNotFound)
}

// IsFlowVersionExists checks if an error indicates a rejected flow version overwrite.
func IsFlowVersionExists(err error) bool {
	return errors.Is(err, ErrFlowVersionExists)
}

// IsInvalidTransition checks if an error indicates a rejected status write.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
