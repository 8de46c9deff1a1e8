package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// Run is the handle of one execution. Status may be polled from any goroutine;
// only the run's own goroutine changes it.
type Run struct {
	mu        sync.RWMutex
	status    Status
	cancelled atomic.Bool
	done      chan struct{}
}

// Status returns a snapshot.
func (r *Run) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.clone()
}

// ID is the run id.
func (r *Run) ID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.RunID
}

// Cancel asks the run to stop. The step in flight finishes first; the run then
// fails with a CancelledError before the next step.
func (r *Run) Cancel() {
	r.cancelled.Store(true)
}

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run ends or ctx is done, and returns the latest status.
func (r *Run) Wait(ctx context.Context) (Status, error) {
	select {
	case <-r.done:
		return r.Status(), nil
	case <-ctx.Done():
		return r.Status(), ctx.Err()
	}
}

// Err is the terminal error, nil while running or after success.
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.Err
}

func (r *Run) update(fn func(*Status)) Status {
	r.mu.Lock()
	fn(&r.status)
	snap := r.status.clone()
	r.mu.Unlock()
	return snap
}
