package matcher

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/rahul/autopilot/internal/catalog"
)

const (
	DefaultThreshold        = 0.2
	DefaultSuggestThreshold = 0.05
	DefaultTopK             = 3
)

// Options tune the matcher. Zero values fall back to the defaults above,
// except NGramMax where 0 means unigrams only.
type Options struct {
	Threshold        float64
	SuggestThreshold float64
	TopK             int
	NGramMax         int
	ExpandSynonyms   bool
}

// DefaultOptions mirrors the config defaults: unigrams and bigrams, no synonyms.
func DefaultOptions() Options {
	return Options{
		Threshold:        DefaultThreshold,
		SuggestThreshold: DefaultSuggestThreshold,
		TopK:             DefaultTopK,
		NGramMax:         2,
	}
}

// Match is a template with its similarity to the query.
type Match struct {
	Template  catalog.TaskTemplate
	Score     float64
	LoadOrder int
}

// Matcher answers queries against the most recently built index. Rebuild
// swaps the index under an exclusive lock, so a query never sees a half-built one.
type Matcher struct {
	opts   Options
	logger *zap.Logger

	mu  sync.RWMutex
	idx *Index
}

func New(opts Options, logger *zap.Logger) *Matcher {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.SuggestThreshold <= 0 {
		opts.SuggestThreshold = DefaultSuggestThreshold
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{opts: opts, logger: logger.Named("matcher")}
}

// Attach rebuilds the index now and after every catalog replacement in s.
func (m *Matcher) Attach(s *catalog.Store) {
	s.Subscribe(m.Rebuild)
}

// Rebuild indexes c. A nil catalog clears the index.
func (m *Matcher) Rebuild(c *catalog.Catalog) {
	var idx *Index
	if c != nil {
		idx = BuildIndex(c.Templates(), Tokenizer{NGramMax: m.opts.NGramMax, ExpandSynonyms: m.opts.ExpandSynonyms})
	}
	m.mu.Lock()
	m.idx = idx
	m.mu.Unlock()

	if idx != nil {
		m.logger.Debug("Index rebuilt.",
			zap.Int("templates", idx.Len()),
			zap.Int("vocabulary", idx.VocabularySize()))
	}
}

func (m *Matcher) index() *Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx
}

// Threshold is the minimum score FindBest accepts.
func (m *Matcher) Threshold() float64 { return m.opts.Threshold }

// FindBest returns the highest scoring template. Ties go to the template
// loaded first. ok is false when the catalog is empty, nothing shares any
// vocabulary with the query, or the best score is below the threshold.
func (m *Matcher) FindBest(query string) (best Match, ok bool) {
	idx := m.index()
	if idx == nil || idx.Len() == 0 {
		return Match{}, false
	}
	scores := idx.Scores(query)
	top := 0
	for i, s := range scores {
		// strict comparison keeps the earlier template on ties
		if s > scores[top] {
			top = i
		}
	}
	best = Match{Template: idx.templates[top], Score: scores[top], LoadOrder: top}
	if best.Score == 0 || best.Score < m.opts.Threshold {
		m.logger.Debug("No template above threshold.",
			zap.String("event", "match"),
			zap.String("best", best.Template.ID),
			zap.Float64("score", best.Score))
		return best, false
	}
	m.logger.Debug("Template matched.",
		zap.String("event", "match"),
		zap.String("template", best.Template.ID),
		zap.Float64("score", best.Score))
	return best, true
}

// Rank returns up to k templates scoring at least the suggestion threshold,
// best first. k <= 0 uses the configured TopK.
func (m *Matcher) Rank(query string, k int) []Match {
	idx := m.index()
	if idx == nil {
		return nil
	}
	if k <= 0 {
		k = m.opts.TopK
	}
	var out []Match
	for i, s := range idx.Scores(query) {
		if s > 0 && s >= m.opts.SuggestThreshold {
			out = append(out, Match{Template: idx.templates[i], Score: s, LoadOrder: i})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Score is the similarity of query to one template, 0 if the id is unknown.
func (m *Matcher) Score(query, templateID string) float64 {
	idx := m.index()
	if idx == nil {
		return 0
	}
	for i, t := range idx.templates {
		if t.ID == templateID {
			return Cosine(idx.Vectorize(query), idx.vectors[i])
		}
	}
	return 0
}
