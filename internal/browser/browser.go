// Package browser drives Chrome through chromedp as an engine surface.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/rahul/autopilot/internal/catalog"
	"github.com/rahul/autopilot/internal/engine"
)

type Options struct {
	Headless          bool
	ExecPath          string
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
	FindTimeout       time.Duration
}

func (o *Options) defaults() {
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 60 * time.Second
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 60 * time.Second
	}
	if o.FindTimeout <= 0 {
		o.FindTimeout = 10 * time.Second
	}
}

// Browser owns one Chrome instance. It is started lazily by Acquire and stays
// open until Release, so a finished run can still be inspected.
type Browser struct {
	opts   Options
	logger *zap.Logger

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

var (
	_ engine.Provider = (*Browser)(nil)
	_ engine.Surface  = (*Browser)(nil)
)

func New(opts Options, logger *zap.Logger) *Browser {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{opts: opts, logger: logger.Named("browser")}
}

// Acquire starts Chrome if it is not running. A window the user closed is
// detected and replaced.
func (b *Browser) Acquire(ctx context.Context) (engine.Surface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return b, nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if b.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.opts.ExecPath))
	}

	// The browser outlives the acquiring run, so it hangs off Background.
	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	// The first Run allocates Chrome and ties the process to the context it
	// is given. Only browserCtx may be used here; start-up is bounded by a
	// watchdog instead.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(b.browserCtx) }()

	timer := time.NewTimer(b.opts.ActionTimeout)
	defer timer.Stop()
	select {
	case err := <-started:
		if err != nil {
			b.cleanup()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-timer.C:
		b.cleanup()
		<-started
		return nil, fmt.Errorf("start browser: timed out after %s", b.opts.ActionTimeout)
	case <-ctx.Done():
		b.cleanup()
		<-started
		return nil, fmt.Errorf("start browser: %w", ctx.Err())
	}
	b.logger.Info("Browser started.", zap.Bool("headless", b.opts.Headless))
	return b, nil
}

// Release closes Chrome. Calling it again, or before Acquire, does nothing.
func (b *Browser) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx != nil {
		b.logger.Info("Closing browser.")
	}
	b.cleanup()
	return nil
}

func (b *Browser) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
	b.browserCancel = nil
	b.allocCancel = nil
}

var errNotStarted = errors.New("browser not started")

// actionContext derives a chromedp context from the browser, bounded by limit
// and by ctx's own deadline or cancellation.
func (b *Browser) actionContext(ctx context.Context, limit time.Duration) (context.Context, context.CancelFunc, error) {
	b.mu.Lock()
	base := b.browserCtx
	b.mu.Unlock()
	if base == nil {
		return nil, nil, errNotStarted
	}
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < limit {
			limit = remaining
		}
	}
	actx, cancel := context.WithTimeout(base, limit)
	stop := context.AfterFunc(ctx, cancel)
	return actx, func() { stop(); cancel() }, nil
}

// Open navigates and waits until document.readyState is "complete".
func (b *Browser) Open(ctx context.Context, url string) error {
	actx, cancel, err := b.actionContext(ctx, b.opts.NavigationTimeout)
	if err != nil {
		return err
	}
	defer cancel()
	if err := chromedp.Run(actx, chromedp.Navigate(url), waitReadyState()); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func waitReadyState() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var state string
			if err := chromedp.Evaluate(`document.readyState`, &state).Do(ctx); err != nil {
				return err
			}
			if state == "complete" {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
}

// element is a located DOM node.
type element struct {
	sel  catalog.ElementSelector
	node *cdp.Node
}

func (e element) Selector() catalog.ElementSelector { return e.sel }

func (e element) ids() []cdp.NodeID { return []cdp.NodeID{e.node.NodeID} }

func queryOption(s catalog.Strategy) chromedp.QueryOption {
	if s == catalog.StrategyXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// Find waits up to the find timeout for the selector to match a node.
func (b *Browser) Find(ctx context.Context, sel catalog.ElementSelector) (engine.Element, error) {
	actx, cancel, err := b.actionContext(ctx, b.opts.FindTimeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var nodes []*cdp.Node
	err = chromedp.Run(actx, chromedp.Nodes(sel.Value, &nodes, queryOption(sel.Strategy)))
	if errors.Is(err, context.DeadlineExceeded) || (err == nil && len(nodes) == 0) {
		return nil, fmt.Errorf("%s %q: %w", sel.Strategy, sel.Value, engine.ErrElementNotFound)
	}
	if err != nil {
		return nil, err
	}
	return element{sel: sel, node: nodes[0]}, nil
}

func asElement(el engine.Element) (element, error) {
	e, ok := el.(element)
	if !ok {
		return element{}, fmt.Errorf("element %T does not belong to this browser", el)
	}
	return e, nil
}

// Click scrolls the node into view and clicks it.
func (b *Browser) Click(ctx context.Context, el engine.Element) error {
	e, err := asElement(el)
	if err != nil {
		return err
	}
	actx, cancel, err := b.actionContext(ctx, b.opts.ActionTimeout)
	if err != nil {
		return err
	}
	defer cancel()
	return chromedp.Run(actx,
		chromedp.ScrollIntoView(e.ids(), chromedp.ByNodeID),
		chromedp.Click(e.ids(), chromedp.ByNodeID),
	)
}

// Type clears the field, types text and presses Enter.
func (b *Browser) Type(ctx context.Context, el engine.Element, text string) error {
	e, err := asElement(el)
	if err != nil {
		return err
	}
	actx, cancel, err := b.actionContext(ctx, b.opts.ActionTimeout)
	if err != nil {
		return err
	}
	defer cancel()
	return chromedp.Run(actx,
		chromedp.Clear(e.ids(), chromedp.ByNodeID),
		chromedp.SendKeys(e.ids(), text+kb.Enter, chromedp.ByNodeID),
	)
}

func (b *Browser) Wait(ctx context.Context, cond engine.WaitCondition) error {
	if cond.Selector == nil {
		t := time.NewTimer(cond.Duration)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	actx, cancel, err := b.actionContext(ctx, cond.Timeout)
	if err != nil {
		return err
	}
	defer cancel()
	if err := chromedp.Run(actx, chromedp.WaitVisible(cond.Selector.Value, queryOption(cond.Selector.Strategy))); err != nil {
		return fmt.Errorf("wait for %s: %w", cond.Selector.ElementID, err)
	}
	return nil
}

// Screenshot writes a PNG of the viewport to path.
func (b *Browser) Screenshot(ctx context.Context, path string) error {
	actx, cancel, err := b.actionContext(ctx, b.opts.ActionTimeout)
	if err != nil {
		return err
	}
	defer cancel()
	var buf []byte
	if err := chromedp.Run(actx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}
