package planner

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedWorkflow is returned when a flow definition cannot be decoded or validated.
	ErrMalformedWorkflow = errors.New("malformed workflow definition")

	// ErrTriggerNotFound is returned when a workflow has no trigger node.
	ErrTriggerNotFound = errors.New("trigger not found in workflow")

	// ErrCycleDetected is returned when nodes reachable from the trigger form a cycle.
	ErrCycleDetected = errors.New("cycle detected in workflow")

	// ErrNotTrigger is returned when ProcessTrigger receives an ordinary task.
	ErrNotTrigger = errors.New("task is not a trigger")
)

// PlanError carries the flow version a planning failure belongs to.
type PlanError struct {
	Op            string
	FlowVersionID string
	Err           error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("%s failed for flow version %s: %v", e.Op, e.FlowVersionID, e.Err)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

func (e *PlanError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newPlanError(op, flowVersionID string, err error) *PlanError {
	return &PlanError{Op: op, FlowVersionID: flowVersionID, Err: err}
}
