package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/rahul/autopilot/internal/catalog"
	"github.com/rahul/autopilot/internal/planner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeElement struct{ sel catalog.ElementSelector }

func (f fakeElement) Selector() catalog.ElementSelector { return f.sel }

type fakeSurface struct {
	mu    sync.Mutex
	calls []string

	missing       map[string]bool
	screenshotErr error

	// when set, the first Click signals clickEntered and blocks on clickRelease
	clickEntered chan struct{}
	clickRelease chan struct{}
}

func (f *fakeSurface) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeSurface) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSurface) Open(_ context.Context, url string) error {
	f.record("open %s", url)
	return nil
}

func (f *fakeSurface) Find(_ context.Context, sel catalog.ElementSelector) (Element, error) {
	if f.missing[sel.ElementID] {
		return nil, ErrElementNotFound
	}
	return fakeElement{sel: sel}, nil
}

func (f *fakeSurface) Click(_ context.Context, el Element) error {
	f.record("click %s", el.Selector().ElementID)
	if f.clickEntered != nil {
		close(f.clickEntered)
		f.clickEntered = nil
		<-f.clickRelease
	}
	return nil
}

func (f *fakeSurface) Type(_ context.Context, el Element, text string) error {
	f.record("type %s %s", el.Selector().ElementID, text)
	return nil
}

func (f *fakeSurface) Wait(_ context.Context, cond WaitCondition) error {
	if cond.Selector != nil {
		f.record("wait %s", cond.Selector.ElementID)
		return nil
	}
	f.record("wait %s", cond.Duration)
	return nil
}

func (f *fakeSurface) Screenshot(_ context.Context, path string) error {
	if f.screenshotErr != nil {
		return f.screenshotErr
	}
	f.record("screenshot %s", path)
	return nil
}

type fakeProvider struct {
	surface    *fakeSurface
	acquireErr error

	mu       sync.Mutex
	acquires int
	releases int
}

func (p *fakeProvider) Acquire(context.Context) (Surface, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.acquires++
	return p.surface, nil
}

func (p *fakeProvider) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases++
	return nil
}

func (p *fakeProvider) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquires, p.releases
}

type fakeDesktop struct {
	mu            sync.Mutex
	calls         []string
	screenshotErr error
}

func (d *fakeDesktop) record(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, s)
}

func (d *fakeDesktop) Click(_ context.Context, x, y int) error {
	d.record(fmt.Sprintf("click %d,%d", x, y))
	return nil
}
func (d *fakeDesktop) TypeText(_ context.Context, text string) error {
	d.record("type " + text)
	return nil
}
func (d *fakeDesktop) Key(_ context.Context, key string) error {
	d.record("key " + key)
	return nil
}
func (d *fakeDesktop) Screenshot(_ context.Context, path string) error {
	if d.screenshotErr != nil {
		return d.screenshotErr
	}
	d.record("screenshot")
	return nil
}

func composePlan() *planner.ExecutionPlan {
	return planner.NewPlan("email_compose", "send an email to bob@example.com",
		planner.DynamicValues{"email": "bob@example.com"},
		[]planner.ResolvedStep{
			{Order: 1, Action: catalog.ActionNavigate, Target: "https://mail.google.com"},
			{Order: 2, Action: catalog.ActionClick, Target: "compose_button"},
			{Order: 3, Action: catalog.ActionType, Target: "recipient_field", Value: "bob@example.com"},
		})
}

func newEngine(t *testing.T, p Provider, options ...Option) *Engine {
	t.Helper()
	options = append(options, WithLogger(zaptest.NewLogger(t)))
	return New(p, catalog.Default(), Options{ScreenshotDir: t.TempDir(), StepTimeout: 5 * time.Second}, options...)
}

func waitRun(t *testing.T, r *Run) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := r.Wait(ctx)
	require.NoError(t, err)
	return st
}

func TestExecute_Succeeds(t *testing.T) {
	surface := &fakeSurface{}
	p := &fakeProvider{surface: surface}
	e := newEngine(t, p)

	st := waitRun(t, e.Execute(context.Background(), composePlan()))

	assert.Equal(t, StateSucceeded, st.State)
	assert.NoError(t, st.Err)
	assert.Equal(t, 2, st.CurrentStep)
	assert.Equal(t, 3, st.Succeeded())
	assert.Equal(t, []string{
		"open https://mail.google.com",
		"click compose_button",
		"type recipient_field bob@example.com",
	}, surface.Calls())

	// the surface stays open after a terminal state
	_, releases := p.counts()
	assert.Zero(t, releases)
}

func TestExecute_TypeTargetNotFound(t *testing.T) {
	surface := &fakeSurface{missing: map[string]bool{"recipient_field": true}}
	e := newEngine(t, &fakeProvider{surface: surface})

	st := waitRun(t, e.Execute(context.Background(), composePlan()))

	require.Equal(t, StateFailed, st.State)
	var se *StepExecutionError
	require.True(t, errors.As(st.Err, &se))
	assert.Equal(t, 2, se.StepIndex)
	assert.Equal(t, catalog.ActionType, se.Action)
	assert.ErrorIs(t, st.Err, ErrElementNotFound)

	assert.Equal(t, StepSucceeded, st.Steps[0].State)
	assert.Equal(t, StepSucceeded, st.Steps[1].State)
	assert.Equal(t, StepFailed, st.Steps[2].State)
	assert.NotEmpty(t, st.Steps[2].Error)
}

func TestExecute_CancelBetweenSteps(t *testing.T) {
	surface := &fakeSurface{clickEntered: make(chan struct{}), clickRelease: make(chan struct{})}
	entered := surface.clickEntered
	e := newEngine(t, &fakeProvider{surface: surface})

	r := e.Execute(context.Background(), composePlan())
	<-entered
	assert.Equal(t, 1, r.Status().CurrentStep)
	assert.Equal(t, StateRunning, r.Status().State)

	r.Cancel()
	close(surface.clickRelease)
	st := waitRun(t, r)

	require.Equal(t, StateFailed, st.State)
	var ce *CancelledError
	require.True(t, errors.As(st.Err, &ce))
	assert.Equal(t, 2, ce.BeforeStep)
	assert.Equal(t, StepSucceeded, st.Steps[1].State)
	assert.Equal(t, StepPending, st.Steps[2].State)
	assert.NotContains(t, surface.Calls(), "type recipient_field bob@example.com")
}

func TestExecute_ContextCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newEngine(t, &fakeProvider{surface: &fakeSurface{}})

	st := waitRun(t, e.Execute(ctx, composePlan()))
	var ce *CancelledError
	require.True(t, errors.As(st.Err, &ce))
	assert.Equal(t, 0, ce.BeforeStep)
}

func TestExecute_InvalidPlan(t *testing.T) {
	e := newEngine(t, &fakeProvider{surface: &fakeSurface{}})

	tests := map[string]*planner.ExecutionPlan{
		"nil":   nil,
		"empty": planner.NewPlan("x", "", nil, nil),
		"unknown action": planner.NewPlan("x", "", nil, []planner.ResolvedStep{
			{Order: 1, Action: catalog.ActionKind("drag")},
		}),
	}
	for name, plan := range tests {
		t.Run(name, func(t *testing.T) {
			st := waitRun(t, e.Execute(context.Background(), plan))
			assert.Equal(t, StateFailed, st.State)
			var ip *InvalidPlanError
			assert.True(t, errors.As(st.Err, &ip))
		})
	}
}

func TestExecute_PlanRunsOnce(t *testing.T) {
	e := newEngine(t, &fakeProvider{surface: &fakeSurface{}})
	plan := composePlan()

	first := waitRun(t, e.Execute(context.Background(), plan))
	assert.Equal(t, StateSucceeded, first.State)

	second := waitRun(t, e.Execute(context.Background(), plan))
	var ip *InvalidPlanError
	assert.True(t, errors.As(second.Err, &ip))
}

func TestExecute_DriverError(t *testing.T) {
	boom := errors.New("chrome not installed")
	e := newEngine(t, &fakeProvider{acquireErr: boom})

	st := waitRun(t, e.Execute(context.Background(), composePlan()))
	assert.Equal(t, StateFailed, st.State)
	var de *DriverError
	require.True(t, errors.As(st.Err, &de))
	assert.ErrorIs(t, st.Err, boom)
	assert.Equal(t, -1, st.CurrentStep)
}

func TestCleanup_Idempotent(t *testing.T) {
	p := &fakeProvider{surface: &fakeSurface{}}
	e := newEngine(t, p)

	// never acquired
	require.NoError(t, e.Cleanup())
	_, releases := p.counts()
	assert.Zero(t, releases)

	waitRun(t, e.Execute(context.Background(), composePlan()))
	require.NoError(t, e.Cleanup())
	require.NoError(t, e.Cleanup())
	_, releases = p.counts()
	assert.Equal(t, 1, releases)
}

func TestExecute_Serialised(t *testing.T) {
	surface := &fakeSurface{clickEntered: make(chan struct{}), clickRelease: make(chan struct{})}
	entered := surface.clickEntered
	e := newEngine(t, &fakeProvider{surface: surface})

	first := e.Execute(context.Background(), composePlan())
	<-entered
	second := e.Execute(context.Background(), planner.NewPlan("wait", "", nil, []planner.ResolvedStep{
		{Order: 1, Action: catalog.ActionWait, Value: "1ms"},
	}))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateValidating, second.Status().State, "validated, waiting for the surface")

	close(surface.clickRelease)
	assert.Equal(t, StateSucceeded, waitRun(t, first).State)
	assert.Equal(t, StateSucceeded, waitRun(t, second).State)
}

func TestExecute_InvalidPlanDoesNotQueue(t *testing.T) {
	surface := &fakeSurface{clickEntered: make(chan struct{}), clickRelease: make(chan struct{})}
	entered := surface.clickEntered
	e := newEngine(t, &fakeProvider{surface: surface})

	first := e.Execute(context.Background(), composePlan())
	<-entered

	st := waitRun(t, e.Execute(context.Background(), planner.NewPlan("x", "", nil, nil)))
	assert.Equal(t, StateFailed, st.State)
	var ip *InvalidPlanError
	assert.True(t, errors.As(st.Err, &ip))
	assert.Equal(t, StateRunning, first.Status().State)

	close(surface.clickRelease)
	assert.Equal(t, StateSucceeded, waitRun(t, first).State)
}

func TestExecute_ScreenshotFallback(t *testing.T) {
	shotPlan := func() *planner.ExecutionPlan {
		return planner.NewPlan("shot", "", nil, []planner.ResolvedStep{
			{Order: 1, Action: catalog.ActionScreenshot, Target: "page.png"},
			{Order: 2, Action: catalog.ActionWait, Value: "1ms"},
		})
	}

	t.Run("desktop capture", func(t *testing.T) {
		desktop := &fakeDesktop{}
		e := newEngine(t, &fakeProvider{surface: &fakeSurface{screenshotErr: errors.New("no page")}}, WithDesktop(desktop))
		st := waitRun(t, e.Execute(context.Background(), shotPlan()))
		assert.Equal(t, StateSucceeded, st.State)
		assert.Contains(t, st.Steps[0].Artifact, "page.png")
		assert.Equal(t, []string{"screenshot"}, desktop.calls)
	})

	t.Run("both fail", func(t *testing.T) {
		desktop := &fakeDesktop{screenshotErr: errors.New("no display")}
		e := newEngine(t, &fakeProvider{surface: &fakeSurface{screenshotErr: errors.New("no page")}}, WithDesktop(desktop))
		st := waitRun(t, e.Execute(context.Background(), shotPlan()))
		assert.Equal(t, StateSucceeded, st.State)
		assert.Empty(t, st.Steps[0].Artifact)
		assert.Contains(t, st.Steps[0].Note, "screenshot failed")
	})
}

func TestExecute_CoordinateTargets(t *testing.T) {
	desktop := &fakeDesktop{}
	e := newEngine(t, &fakeProvider{surface: &fakeSurface{}}, WithDesktop(desktop))
	plan := planner.NewPlan("desk", "", nil, []planner.ResolvedStep{
		{Order: 1, Action: catalog.ActionClick, Target: "100,200"},
		{Order: 2, Action: catalog.ActionType, Target: "10, 20", Value: "hello"},
	})

	st := waitRun(t, e.Execute(context.Background(), plan))
	require.Equal(t, StateSucceeded, st.State)
	assert.Equal(t, []string{
		"click 100,200",
		"click 10,20", "key ctrl+a", "type hello", "key Return",
	}, desktop.calls)
}

func TestExecute_CoordinatesWithoutDesktop(t *testing.T) {
	e := newEngine(t, &fakeProvider{surface: &fakeSurface{}})
	plan := planner.NewPlan("desk", "", nil, []planner.ResolvedStep{
		{Order: 1, Action: catalog.ActionClick, Target: "100,200"},
	})
	st := waitRun(t, e.Execute(context.Background(), plan))
	var se *StepExecutionError
	require.True(t, errors.As(st.Err, &se))
	assert.Equal(t, catalog.ActionClick, se.Action)
}

func TestExecute_LiteralSelectors(t *testing.T) {
	surface := &fakeSurface{}
	e := newEngine(t, &fakeProvider{surface: surface})
	plan := planner.NewPlan("lit", "", nil, []planner.ResolvedStep{
		{Order: 1, Action: catalog.ActionClick, Target: "//button[@id='go']"},
		{Order: 2, Action: catalog.ActionWait, Target: "#result", Value: "1s"},
		{Order: 3, Action: catalog.ActionWait},
	})
	st := waitRun(t, e.Execute(context.Background(), plan))
	require.Equal(t, StateSucceeded, st.State)
	assert.Equal(t, []string{
		"click //button[@id='go']",
		"wait #result",
		"wait 2s",
	}, surface.Calls())
}

func TestExecute_ObserverSeesTransitions(t *testing.T) {
	var mu sync.Mutex
	var states []State
	obs := ObserverFunc(func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		if len(states) == 0 || states[len(states)-1] != s.State {
			states = append(states, s.State)
		}
	})
	e := newEngine(t, &fakeProvider{surface: &fakeSurface{}}, WithObserver(obs))

	waitRun(t, e.Execute(context.Background(), composePlan()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateIdle, StateValidating, StateDriverReady, StateRunning, StateSucceeded}, states)
}

func TestExecute_FailureScreenshot(t *testing.T) {
	surface := &fakeSurface{missing: map[string]bool{"compose_button": true}}
	p := &fakeProvider{surface: surface}
	e := New(p, catalog.Default(), Options{ScreenshotDir: t.TempDir(), ScreenshotOnFailure: true},
		WithLogger(zaptest.NewLogger(t)))

	st := waitRun(t, e.Execute(context.Background(), composePlan()))
	assert.Equal(t, StateFailed, st.State)
	assert.Contains(t, st.FailureScreenshot, "failure_")
}

func TestParseWait(t *testing.T) {
	d, err := parseWait("2")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)

	d, err = parseWait("1500ms")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	_, err = parseWait("soon")
	assert.Error(t, err)
}
