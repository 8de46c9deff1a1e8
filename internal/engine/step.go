package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/autopilot/internal/catalog"
	"github.com/rahul/autopilot/internal/planner"
)

type stepResult struct {
	artifact string
	note     string
}

// dispatch runs one step with its own timeout. Each action kind has exactly
// one handler.
func (e *Engine) dispatch(ctx context.Context, surface Surface, r *Run, step planner.ResolvedStep) (stepResult, error) {
	timeout := e.opts.StepTimeout
	if step.Action == catalog.ActionWait {
		timeout += e.opts.MaxWait
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch step.Action {
	case catalog.ActionNavigate:
		return stepResult{}, e.navigate(ctx, surface, step)
	case catalog.ActionClick:
		return stepResult{}, e.click(ctx, surface, step)
	case catalog.ActionType:
		return stepResult{}, e.typeText(ctx, surface, step)
	case catalog.ActionWait:
		return stepResult{}, e.wait(ctx, surface, step)
	case catalog.ActionScreenshot:
		return e.capture(ctx, surface, r, step), nil
	}
	return stepResult{}, fmt.Errorf("unhandled action %q", step.Action)
}

func (e *Engine) navigate(ctx context.Context, surface Surface, step planner.ResolvedStep) error {
	url := step.Target
	if url == "" {
		url = step.Value
	}
	if url == "" {
		return errors.New("navigate needs a url")
	}
	return surface.Open(ctx, url)
}

func (e *Engine) click(ctx context.Context, surface Surface, step planner.ResolvedStep) error {
	t, err := e.resolve(step.Target)
	if err != nil {
		return err
	}
	if t.coords {
		d, err := e.requireDesktop()
		if err != nil {
			return err
		}
		return d.Click(ctx, t.x, t.y)
	}
	el, err := surface.Find(ctx, t.sel)
	if err != nil {
		return fmt.Errorf("find %s: %w", t.sel.ElementID, err)
	}
	return surface.Click(ctx, el)
}

func (e *Engine) typeText(ctx context.Context, surface Surface, step planner.ResolvedStep) error {
	t, err := e.resolve(step.Target)
	if err != nil {
		return err
	}
	if t.coords {
		d, err := e.requireDesktop()
		if err != nil {
			return err
		}
		if err := d.Click(ctx, t.x, t.y); err != nil {
			return err
		}
		if err := d.Key(ctx, "ctrl+a"); err != nil {
			return err
		}
		if err := d.TypeText(ctx, step.Value); err != nil {
			return err
		}
		return d.Key(ctx, "Return")
	}
	el, err := surface.Find(ctx, t.sel)
	if err != nil {
		return fmt.Errorf("find %s: %w", t.sel.ElementID, err)
	}
	return surface.Type(ctx, el, step.Value)
}

func (e *Engine) wait(ctx context.Context, surface Surface, step planner.ResolvedStep) error {
	cond := WaitCondition{Timeout: e.opts.MaxWait}
	if step.Value != "" {
		d, err := parseWait(step.Value)
		if err != nil {
			return err
		}
		cond.Duration = min(d, e.opts.MaxWait)
	}
	if step.Target != "" {
		t, err := e.resolve(step.Target)
		if err != nil {
			return err
		}
		if t.coords {
			return errors.New("cannot wait for a screen coordinate")
		}
		cond.Selector = &t.sel
		if cond.Duration > 0 {
			cond.Timeout = cond.Duration
			cond.Duration = 0
		}
	}
	if cond.Selector == nil && cond.Duration == 0 {
		cond.Duration = e.opts.DefaultWait
	}
	return surface.Wait(ctx, cond)
}

// parseWait accepts Go durations ("1.5s") and bare seconds ("2").
func parseWait(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid wait duration %q", v)
	}
	return d, nil
}

// capture never fails the step. A capture that cannot be taken by either the
// surface or the desktop is recorded as a note.
func (e *Engine) capture(ctx context.Context, surface Surface, r *Run, step planner.ResolvedStep) stepResult {
	name := step.Target
	if name == "" {
		name = step.Value
	}
	if name == "" {
		name = fmt.Sprintf("screenshot_%s_%d.png", r.ID(), step.Index)
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.opts.ScreenshotDir, path)
	}
	if err := e.screenshot(ctx, surface, path); err != nil {
		e.logger.Warn("Screenshot failed.", zap.String("path", path), zap.Error(err))
		return stepResult{note: "screenshot failed: " + err.Error()}
	}
	return stepResult{artifact: path}
}

func (e *Engine) screenshot(ctx context.Context, surface Surface, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	err := surface.Screenshot(ctx, path)
	if err == nil || e.desktop == nil {
		return err
	}
	if derr := e.desktop.Screenshot(ctx, path); derr != nil {
		return errors.Join(err, derr)
	}
	return nil
}

func (e *Engine) requireDesktop() (Desktop, error) {
	if e.desktop == nil {
		return nil, errors.New("coordinate target needs desktop input, which is disabled")
	}
	return e.desktop, nil
}

var coordsRe = regexp.MustCompile(`^\s*(\d+)\s*,\s*(\d+)\s*$`)

type target struct {
	sel    catalog.ElementSelector
	coords bool
	x, y   int
}

// resolve maps a step target onto a selector. Catalog element ids win;
// otherwise "x,y" is a screen coordinate, a leading "/" or "(" marks an
// XPath literal and anything else is CSS.
func (e *Engine) resolve(ref string) (target, error) {
	if ref == "" {
		return target{}, errors.New("step has no target")
	}
	if e.resolver != nil {
		sel, err := e.resolver.Selector(ref)
		if err == nil {
			return target{sel: sel}, nil
		}
		if !catalog.IsNotFound(err) {
			return target{}, err
		}
	}
	if m := coordsRe.FindStringSubmatch(ref); m != nil {
		x, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[2])
		return target{coords: true, x: x, y: y}, nil
	}
	strategy := catalog.StrategyCSS
	if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "(") {
		strategy = catalog.StrategyXPath
	}
	return target{sel: catalog.ElementSelector{ElementID: ref, Strategy: strategy, Value: ref}}, nil
}
