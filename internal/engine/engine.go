// Package engine executes plans step by step against an automation surface.
//
// A run moves through idle, validating, driver_ready and running to either
// succeeded or failed. Runs on one engine are serialised because they share a
// single surface. The surface stays open after a run ends; Cleanup releases it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rahul/autopilot/internal/catalog"
	"github.com/rahul/autopilot/internal/planner"
)

const (
	DefaultStepTimeout = 60 * time.Second
	DefaultWait        = 2 * time.Second
	DefaultMaxWait     = 30 * time.Second
)

// Options configure an Engine. Zero durations use the defaults.
type Options struct {
	StepTimeout         time.Duration
	DefaultWait         time.Duration
	MaxWait             time.Duration
	ScreenshotDir       string
	ScreenshotOnFailure bool
}

// Engine runs execution plans.
type Engine struct {
	provider  Provider
	resolver  Resolver
	desktop   Desktop
	observers []Observer
	opts      Options
	logger    *zap.Logger

	sem *semaphore.Weighted

	mu       sync.Mutex
	acquired bool
	wg       sync.WaitGroup
}

// Option customises an Engine.
type Option func(*Engine)

// WithDesktop enables coordinate targets and the desktop screenshot fallback.
func WithDesktop(d Desktop) Option { return func(e *Engine) { e.desktop = d } }

// WithObserver registers an observer for every run.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// New returns an engine driving surfaces from provider, looking selectors up
// through resolver.
func New(provider Provider, resolver Resolver, opts Options, options ...Option) *Engine {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = DefaultStepTimeout
	}
	if opts.DefaultWait <= 0 {
		opts.DefaultWait = DefaultWait
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.ScreenshotDir == "" {
		opts.ScreenshotDir = "screenshots"
	}
	e := &Engine{
		provider: provider,
		resolver: resolver,
		opts:     opts,
		logger:   zap.NewNop(),
		sem:      semaphore.NewWeighted(1),
	}
	for _, o := range options {
		o(e)
	}
	e.logger = e.logger.Named("engine")
	return e
}

// Execute starts plan on a new goroutine and returns its handle at once.
// Failures never surface here; they end the run in StateFailed with Status.Err
// set. Cancelling ctx has the same effect as Run.Cancel.
func (e *Engine) Execute(ctx context.Context, plan *planner.ExecutionPlan) *Run {
	r := &Run{done: make(chan struct{})}
	r.status = Status{
		RunID:       uuid.NewString(),
		State:       StateIdle,
		CurrentStep: -1,
		StartedAt:   time.Now(),
	}
	if plan != nil {
		r.status.PlanID = plan.ID()
		r.status.TemplateID = plan.TemplateID()
		r.status.Input = plan.Input()
		for _, s := range plan.Steps() {
			r.status.Steps = append(r.status.Steps, StepOutcome{
				Index:  s.Index,
				Action: s.Action,
				Target: s.Target,
				State:  StepPending,
			})
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(r.done)
		e.run(ctx, r, plan)
	}()
	return r
}

func (e *Engine) run(ctx context.Context, r *Run, plan *planner.ExecutionPlan) {
	log := e.logger.With(zap.String("run_id", r.ID()))
	e.notify(r.Status())

	// invalid plans fail without waiting behind an active run
	e.transition(r, StateValidating)
	if err := validate(plan); err != nil {
		e.fail(r, log, err)
		return
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.fail(r, log, &CancelledError{BeforeStep: 0})
		return
	}
	defer e.sem.Release(1)

	surface, err := e.provider.Acquire(ctx)
	if err != nil {
		e.fail(r, log, &DriverError{Err: err})
		return
	}
	e.mu.Lock()
	e.acquired = true
	e.mu.Unlock()
	e.transition(r, StateDriverReady)

	// steps are never interrupted by the caller, only bounded by their own timeout
	stepCtx := context.WithoutCancel(ctx)

	steps := plan.Steps()
	for i, step := range steps {
		if r.cancelled.Load() || ctx.Err() != nil {
			e.fail(r, log, &CancelledError{BeforeStep: i})
			return
		}

		e.notify(r.update(func(s *Status) {
			s.State = StateRunning
			s.CurrentStep = i
			s.Steps[i].State = StepRunning
			s.Steps[i].StartedAt = time.Now()
		}))
		log.Debug("Dispatching step.",
			zap.String("event", "step"),
			zap.Int("index", i),
			zap.String("action", string(step.Action)),
			zap.String("target", step.Target))

		res, err := e.dispatch(stepCtx, surface, r, step)
		if err != nil {
			r.update(func(s *Status) {
				s.Steps[i].State = StepFailed
				s.Steps[i].Error = err.Error()
				s.Steps[i].EndedAt = time.Now()
			})
			if e.opts.ScreenshotOnFailure {
				e.captureFailure(stepCtx, surface, r, i, log)
			}
			e.fail(r, log, &StepExecutionError{StepIndex: i, Action: step.Action, Cause: err})
			return
		}
		e.notify(r.update(func(s *Status) {
			s.Steps[i].State = StepSucceeded
			s.Steps[i].Artifact = res.artifact
			s.Steps[i].Note = res.note
			s.Steps[i].EndedAt = time.Now()
		}))
	}

	final := r.update(func(s *Status) {
		s.State = StateSucceeded
		s.EndedAt = time.Now()
	})
	log.Info("Run succeeded.",
		zap.String("event", "run"),
		zap.String("template", final.TemplateID),
		zap.Int("steps", len(final.Steps)),
		zap.Duration("elapsed", final.EndedAt.Sub(final.StartedAt)))
	e.notify(final)
}

func validate(plan *planner.ExecutionPlan) error {
	if plan == nil || plan.Len() == 0 {
		return &InvalidPlanError{Reason: "plan has no steps"}
	}
	for _, s := range plan.Steps() {
		if !s.Action.Valid() {
			return &InvalidPlanError{Reason: fmt.Sprintf("step %d has unknown action %q", s.Index, s.Action)}
		}
	}
	if !plan.Claim() {
		return &InvalidPlanError{Reason: "plan was already executed"}
	}
	return nil
}

func (e *Engine) transition(r *Run, to State) {
	e.notify(r.update(func(s *Status) { s.State = to }))
}

func (e *Engine) fail(r *Run, log *zap.Logger, err error) {
	final := r.update(func(s *Status) {
		s.State = StateFailed
		s.Err = err
		s.EndedAt = time.Now()
	})
	var cancelled *CancelledError
	if errors.As(err, &cancelled) {
		log.Info("Run cancelled.", zap.String("event", "run"), zap.Int("before_step", cancelled.BeforeStep))
	} else {
		log.Warn("Run failed.", zap.String("event", "run"), zap.Error(err))
	}
	e.notify(final)
}

func (e *Engine) notify(s Status) {
	for _, o := range e.observers {
		o.OnStatus(s)
	}
}

func (e *Engine) captureFailure(ctx context.Context, surface Surface, r *Run, i int, log *zap.Logger) {
	path := filepath.Join(e.opts.ScreenshotDir, fmt.Sprintf("failure_%s_%d.png", r.ID(), i))
	ctx, cancel := context.WithTimeout(ctx, e.opts.StepTimeout)
	defer cancel()
	if err := e.screenshot(ctx, surface, path); err != nil {
		log.Warn("Failure screenshot not taken.", zap.Error(err))
		return
	}
	r.update(func(s *Status) { s.FailureScreenshot = path })
}

// Cleanup releases the automation surface. It waits for an active run to
// finish, and is a no-op when nothing is held.
func (e *Engine) Cleanup() error {
	if err := e.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer e.sem.Release(1)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.acquired {
		return nil
	}
	e.acquired = false
	e.logger.Info("Releasing automation surface.")
	return e.provider.Release()
}

// Close waits for outstanding runs and then calls Cleanup.
func (e *Engine) Close() error {
	e.wg.Wait()
	return e.Cleanup()
}

// Selector resolution is lazy: the resolver is consulted when the step runs.
var _ Resolver = (*catalog.Store)(nil)
