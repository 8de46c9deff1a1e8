package engine

import (
	"errors"
	"fmt"

	"github.com/rahul/autopilot/internal/catalog"
)

// ErrElementNotFound is returned by surfaces when a selector matches nothing.
var ErrElementNotFound = errors.New("element not found")

// InvalidPlanError is reported for empty, malformed or already executed plans.
type InvalidPlanError struct {
	Reason string
}

func (e *InvalidPlanError) Error() string { return "invalid plan: " + e.Reason }

// DriverError means the automation surface could not be acquired.
type DriverError struct {
	Err error
}

func (e *DriverError) Error() string { return fmt.Sprintf("automation surface unavailable: %v", e.Err) }
func (e *DriverError) Unwrap() error { return e.Err }

// StepExecutionError is a failure of one step. Later steps are not run.
type StepExecutionError struct {
	StepIndex int
	Action    catalog.ActionKind
	Cause     error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.StepIndex, e.Action, e.Cause)
}

func (e *StepExecutionError) Unwrap() error { return e.Cause }

// CancelledError is reported when a cancellation was observed before
// BeforeStep was dispatched.
type CancelledError struct {
	BeforeStep int
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled before step %d", e.BeforeStep)
}
