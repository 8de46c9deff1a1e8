package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a Store when the catalog file (or directory) at Path changes.
// Changes are debounced; a reload that fails keeps the previous catalog.
type Watcher struct {
	path     string
	store    *Store
	debounce time.Duration
	fsw      *fsnotify.Watcher
	logger   *zap.Logger

	mu    sync.Mutex
	dirty bool
}

// NewWatcher prepares a watcher for path. Call Run to start it.
func NewWatcher(path string, store *Store, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		store:    store,
		debounce: debounce,
		fsw:      fsw,
		logger:   logger.Named("catalog-watcher"),
	}, nil
}

// Run blocks until ctx is done. Editors usually replace files rather than
// write them in place, so for a single file the parent directory is watched.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	dir := w.path
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		dir = filepath.Dir(w.path)
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.logger.Info("Watching catalog.", zap.String("path", w.path), zap.Duration("debounce", w.debounce))

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error.", zap.Error(err))

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	name, _ := filepath.Abs(event.Name)
	if name != w.path && filepath.Dir(name) != w.path {
		return
	}
	w.mu.Lock()
	w.dirty = true
	w.mu.Unlock()
	w.logger.Debug("Catalog change detected.", zap.String("file", name), zap.String("op", event.Op.String()))
}

func (w *Watcher) flush() {
	w.mu.Lock()
	dirty := w.dirty
	w.dirty = false
	w.mu.Unlock()
	if !dirty {
		return
	}

	src, err := FileSource(w.path)
	if err == nil {
		err = w.store.Load(src)
	}
	if err != nil {
		w.logger.Error("Catalog reload failed; keeping previous catalog.", zap.Error(err))
	}
}
