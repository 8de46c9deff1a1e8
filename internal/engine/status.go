package engine

import (
	"time"

	"github.com/rahul/autopilot/internal/catalog"
)

// State of a run.
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StateDriverReady State = "driver_ready"
	StateRunning     State = "running"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// StepState is the outcome of one step.
type StepState string

const (
	StepPending   StepState = "pending"
	StepRunning   StepState = "running"
	StepSucceeded StepState = "succeeded"
	StepFailed    StepState = "failed"
)

type StepOutcome struct {
	Index     int                `json:"index"`
	Action    catalog.ActionKind `json:"action"`
	Target    string             `json:"target,omitempty"`
	State     StepState          `json:"state"`
	Artifact  string             `json:"artifact,omitempty"` // screenshot path
	Note      string             `json:"note,omitempty"`
	Error     string             `json:"error,omitempty"`
	StartedAt time.Time          `json:"started_at,omitzero"`
	EndedAt   time.Time          `json:"ended_at,omitzero"`
}

// Duration of the step, zero until it has ended.
func (o StepOutcome) Duration() time.Duration {
	if o.EndedAt.IsZero() {
		return 0
	}
	return o.EndedAt.Sub(o.StartedAt)
}

// Status is a point-in-time copy of a run's progress.
type Status struct {
	RunID       string        `json:"run_id"`
	PlanID      string        `json:"plan_id"`
	TemplateID  string        `json:"template_id"`
	Input       string        `json:"input"`
	State       State         `json:"state"`
	CurrentStep int           `json:"current_step"` // -1 until the first step is dispatched
	Steps       []StepOutcome `json:"steps"`
	Err         error         `json:"-"`
	// FailureScreenshot is set when a capture was taken after a failed step.
	FailureScreenshot string    `json:"failure_screenshot,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at,omitzero"`
}

func (s Status) clone() Status {
	s.Steps = append([]StepOutcome(nil), s.Steps...)
	return s
}

// Succeeded counts the steps that completed.
func (s Status) Succeeded() int {
	n := 0
	for _, o := range s.Steps {
		if o.State == StepSucceeded {
			n++
		}
	}
	return n
}
