package engine

import (
	"context"
	"time"

	"github.com/rahul/autopilot/internal/catalog"
)

// Element is a handle to a located UI element, valid until the next navigation.
type Element interface {
	Selector() catalog.ElementSelector
}

// WaitCondition is either a fixed pause or a wait for a selector to become
// visible, bounded by Timeout.
type WaitCondition struct {
	Duration time.Duration
	Selector *catalog.ElementSelector
	Timeout  time.Duration
}

// Surface is the set of UI actions the engine drives.
type Surface interface {
	// Open navigates to url and returns once the page has finished loading.
	Open(ctx context.Context, url string) error
	Find(ctx context.Context, sel catalog.ElementSelector) (Element, error)
	Click(ctx context.Context, el Element) error
	// Type clears the element, enters text and submits.
	Type(ctx context.Context, el Element, text string) error
	Wait(ctx context.Context, cond WaitCondition) error
	Screenshot(ctx context.Context, path string) error
}

// Provider hands out the surface. Acquire may return the same surface across
// runs while it is alive. Release must be safe to call repeatedly.
type Provider interface {
	Acquire(ctx context.Context) (Surface, error)
	Release() error
}

// Resolver looks element selectors up at execution time.
type Resolver interface {
	Selector(elementID string) (catalog.ElementSelector, error)
}

// Desktop is OS-level input used for coordinate targets and as a screenshot
// fallback.
type Desktop interface {
	Click(ctx context.Context, x, y int) error
	TypeText(ctx context.Context, text string) error
	Key(ctx context.Context, key string) error
	Screenshot(ctx context.Context, path string) error
}

// Observer receives a snapshot after every status change. It is called on
// the run's goroutine and must not block.
type Observer interface {
	OnStatus(Status)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Status)

func (f ObserverFunc) OnStatus(s Status) { f(s) }
