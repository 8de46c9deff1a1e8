package store

import "time"

// Command is one received command and what became of it.
type Command struct {
	ID         int64     `json:"id"`
	ChatID     string    `json:"chat_id"`
	Text       string    `json:"text"`
	Modality   string    `json:"modality"`
	TemplateID string    `json:"template_id,omitempty"`
	Score      float64   `json:"score"`
	RunID      string    `json:"run_id,omitempty"`
	Outcome    string    `json:"outcome"` // matched, no_match, extraction_failed
	CreatedAt  time.Time `json:"created_at"`
}

// Step is the persisted outcome of one plan step.
type Step struct {
	Index      int    `json:"index"`
	Action     string `json:"action"`
	Target     string `json:"target,omitempty"`
	State      string `json:"state"`
	Artifact   string `json:"artifact,omitempty"`
	Note       string `json:"note,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Run is a finished execution.
type Run struct {
	RunID             string    `json:"run_id"`
	PlanID            string    `json:"plan_id"`
	TemplateID        string    `json:"template_id"`
	Input             string    `json:"input"`
	State             string    `json:"state"`
	Error             string    `json:"error,omitempty"`
	FailureScreenshot string    `json:"failure_screenshot,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at"`
	Steps             []Step    `json:"steps"`
}

// Schedule is a command re-dispatched every Interval. An interval of zero
// runs once and is then removed.
type Schedule struct {
	ID       int64         `json:"id"`
	ChatID   string        `json:"chat_id"`
	Command  string        `json:"command"`
	Interval time.Duration `json:"interval"`
	LastRun  time.Time     `json:"last_run,omitzero"`
	Status   string        `json:"status"`
}

// OneShot reports whether the schedule runs only once.
func (s Schedule) OneShot() bool { return s.Interval == 0 }
