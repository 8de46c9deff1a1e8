package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/rahul/autopilot/internal/engine"
)

type Role string

const (
	RoleIdle    Role = "IDLE"
	RoleRunning Role = "RUNNING"
	RoleDone    Role = "DONE"
	RoleFailed  Role = "FAILED"
)

type SystemStatus struct {
	mu            sync.RWMutex
	CurrentRole   Role
	ActiveTask    string
	Progress      string
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	CurrentRole:   RoleIdle,
	LastHeartbeat: time.Now(),
}

// SetStatus updates the global system status.
func SetStatus(role Role, task, progress string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentRole = role
	globalStatus.ActiveTask = task
	globalStatus.Progress = progress
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Role, string, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentRole, globalStatus.ActiveTask, globalStatus.Progress, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}

// StatusObserver mirrors engine runs into the global status shown on the
// dashboard.
type StatusObserver struct{}

func (StatusObserver) OnStatus(s engine.Status) {
	role := RoleRunning
	switch s.State {
	case engine.StateSucceeded:
		role = RoleDone
	case engine.StateFailed:
		role = RoleFailed
	}
	SetStatus(role, s.TemplateID, Progress(s))
	Heartbeat()
}

// Progress renders a run as "2/3 click compose_button".
func Progress(s engine.Status) string {
	switch {
	case s.State == engine.StateFailed && s.Err != nil:
		return s.Err.Error()
	case s.CurrentStep < 0 || s.CurrentStep >= len(s.Steps):
		return string(s.State)
	}
	step := s.Steps[s.CurrentStep]
	return fmt.Sprintf("%d/%d %s %s", s.CurrentStep+1, len(s.Steps), step.Action, step.Target)
}
