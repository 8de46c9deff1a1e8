package browser

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rahul/autopilot/internal/catalog"
	"github.com/rahul/autopilot/internal/engine"
)

func TestRelease_BeforeAcquire(t *testing.T) {
	b := New(Options{}, zaptest.NewLogger(t))
	require.NoError(t, b.Release())
	require.NoError(t, b.Release())
}

func TestActions_RequireStartedBrowser(t *testing.T) {
	b := New(Options{}, nil)
	ctx := context.Background()

	assert.ErrorIs(t, b.Open(ctx, "https://example.com"), errNotStarted)
	_, err := b.Find(ctx, catalog.ElementSelector{ElementID: "x", Strategy: catalog.StrategyCSS, Value: "#x"})
	assert.ErrorIs(t, err, errNotStarted)
	assert.ErrorIs(t, b.Screenshot(ctx, "x.png"), errNotStarted)
}

func TestWait_Duration(t *testing.T) {
	b := New(Options{}, nil)
	start := time.Now()
	require.NoError(t, b.Wait(context.Background(), engine.WaitCondition{Duration: 20 * time.Millisecond}))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Wait(ctx, engine.WaitCondition{Duration: time.Hour})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestQueryOption(t *testing.T) {
	assert.NotNil(t, queryOption(catalog.StrategyXPath))
	assert.NotNil(t, queryOption(catalog.StrategyCSS))
	var _ chromedp.QueryOption = queryOption(catalog.StrategyCSS)
}

func TestDefaults(t *testing.T) {
	b := New(Options{FindTimeout: time.Second}, nil)
	assert.Equal(t, time.Second, b.opts.FindTimeout)
	assert.Equal(t, 60*time.Second, b.opts.ActionTimeout)
	assert.Equal(t, 60*time.Second, b.opts.NavigationTimeout)
}

func chromePath(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome binary on PATH")
	return ""
}

func TestAcquire_BrowserOutlivesAcquireContext(t *testing.T) {
	b := New(Options{Headless: true, ExecPath: chromePath(t)}, zaptest.NewLogger(t))
	t.Cleanup(func() { require.NoError(t, b.Release()) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	s, err := b.Acquire(ctx)
	cancel()
	require.NoError(t, err)

	require.NoError(t, s.Open(context.Background(), "about:blank"))
	require.NoError(t, s.Screenshot(context.Background(), filepath.Join(t.TempDir(), "blank.png")))

	again, err := b.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, s, again)
}

func TestAcquire_StartFailureLeavesBrowserStopped(t *testing.T) {
	b := New(Options{Headless: true, ExecPath: filepath.Join(t.TempDir(), "no-such-chrome")}, zaptest.NewLogger(t))

	_, err := b.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start browser")
	assert.Nil(t, b.browserCtx)
	assert.ErrorIs(t, b.Open(context.Background(), "about:blank"), errNotStarted)
}
