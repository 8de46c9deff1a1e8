package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStore_EmptyLookups(t *testing.T) {
	s := NewStore(nil)
	assert.Nil(t, s.Current())
	assert.Zero(t, s.Version())

	_, err := s.Template("email_compose")
	assert.True(t, IsNotFound(err))
	_, err = s.Selector("compose_button")
	assert.True(t, IsNotFound(err))
}

func TestStore_ReplaceNotifiesSubscribers(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))

	var got []*Catalog
	s.Subscribe(func(c *Catalog) { got = append(got, c) })
	assert.Empty(t, got, "nothing loaded yet")

	def := Default()
	s.Replace(def)
	require.Len(t, got, 1)
	assert.Same(t, def, got[0])
	assert.Equal(t, uint64(1), s.Version())

	// late subscribers see the current catalog at once
	var late *Catalog
	s.Subscribe(func(c *Catalog) { late = c })
	assert.Same(t, def, late)

	tpl, err := s.Template("web_search")
	require.NoError(t, err)
	assert.Equal(t, "Search Web", tpl.Name)
	sel, err := s.Selector("search_box")
	require.NoError(t, err)
	assert.Equal(t, StrategyCSS, sel.Strategy)
}

func TestStore_FailedLoadKeepsPrevious(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	s.Replace(Default())

	err := s.Load(YAMLBytes("templates: []\n"))
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Equal(t, "builtin", s.Current().Source())
	assert.Equal(t, uint64(1), s.Version())
}

func TestStore_ReplaceNilKeepsCurrent(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	calls := 0
	s.Subscribe(func(*Catalog) { calls++ })

	s.Replace(nil)
	assert.Nil(t, s.Current())
	assert.Zero(t, s.Version())

	s.Replace(Default())
	s.Replace(nil)
	assert.Equal(t, "builtin", s.Current().Source())
	assert.Equal(t, uint64(1), s.Version())
	assert.Equal(t, 1, calls)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore(nil)
	s.Replace(Default())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, err := s.Selector("compose_button")
				assert.NoError(t, err)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		s.Replace(Default())
	}
	wg.Wait()
	assert.Equal(t, uint64(11), s.Version())
}

const watchedYAML = `templates:
  - id: web_search
    name: Search Web
    keywords: [search, google]
    description: Search the web
steps: []
selectors: []
`

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watchedYAML), 0o644))

	s := NewStore(zaptest.NewLogger(t))
	require.NoError(t, s.Load(YAMLFile{Path: path}))
	require.Equal(t, 1, s.Current().Len())

	w, err := NewWatcher(path, s, 20*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	// give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)

	updated := watchedYAML[:len("templates:\n")] +
		"  - id: web_navigate\n    name: Navigate\n    keywords: [open]\n    description: Open a site\n" +
		watchedYAML[len("templates:\n"):]
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool { return s.Current().Len() == 2 }, 2*time.Second, 10*time.Millisecond)
	version := s.Version()

	// a broken file is reported and the last good catalog stays
	require.NoError(t, os.WriteFile(path, []byte("templates: [\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, s.Current().Len())
	assert.Equal(t, version, s.Version())
}
