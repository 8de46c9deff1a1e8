package catalog

import (
	"sync"

	"go.uber.org/zap"
)

// Store holds the process-wide current catalog. Readers take a snapshot with
// Current; Load and Replace swap the whole catalog and then notify subscribers
// so derived caches can rebuild.
type Store struct {
	mu      sync.RWMutex
	current *Catalog
	version uint64
	subs    []func(*Catalog)
	logger  *zap.Logger
}

// NewStore returns an empty store. Passing a nil logger disables logging.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger.Named("catalog")}
}

// Load reads src and, on success, replaces the current catalog. On failure the
// previous catalog stays in place.
func (s *Store) Load(src Source) error {
	c, err := Load(src)
	if err != nil {
		return err
	}
	s.Replace(c)
	return nil
}

// Replace installs c as the current catalog. A nil catalog is ignored and
// the current one stays.
func (s *Store) Replace(c *Catalog) {
	if c == nil {
		s.logger.Warn("Ignoring nil catalog.")
		return
	}
	s.mu.Lock()
	s.current = c
	s.version++
	version := s.version
	subs := append([]func(*Catalog){}, s.subs...)
	s.mu.Unlock()

	s.logger.Info("Catalog loaded.",
		zap.String("source", c.Source()),
		zap.Int("templates", c.Len()),
		zap.Uint64("version", version))
	for _, fn := range subs {
		fn(c)
	}
}

// Subscribe registers fn to run after every Replace. If a catalog is already
// loaded fn is called with it immediately.
func (s *Store) Subscribe(fn func(*Catalog)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	current := s.current
	s.mu.Unlock()
	if current != nil {
		fn(current)
	}
}

// Current returns the loaded catalog, or nil before the first load.
func (s *Store) Current() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Version increments on every Replace.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Selector looks elementID up in the current catalog.
func (s *Store) Selector(elementID string) (ElementSelector, error) {
	c := s.Current()
	if c == nil {
		return ElementSelector{}, &NotFoundError{Kind: "selector", ID: elementID}
	}
	return c.Selector(elementID)
}

// Template looks id up in the current catalog.
func (s *Store) Template(id string) (TaskTemplate, error) {
	c := s.Current()
	if c == nil {
		return TaskTemplate{}, &NotFoundError{Kind: "template", ID: id}
	}
	return c.Template(id)
}
