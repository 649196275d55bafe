// Package reference indexes canonical vocabularies for exact and fuzzy lookup.
package reference

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/helixir/record-cleaner-service/internal/observability"
	"github.com/helixir/record-cleaner-service/internal/similarity"
)

// DefaultCacheSize is the number of memoized fuzzy lookups kept per index.
const DefaultCacheSize = 4096

// Match is a fuzzy lookup result.
type Match struct {
	Value    string  `json:"value"`
	Score    float64 `json:"score"`
	Position int     `json:"position"`
}

type candidate struct {
	match Match
	found bool
}

// Index is an immutable reference vocabulary. It is safe for concurrent use.
type Index struct {
	name      string
	values    []string
	processed []string
	lower     map[string]int
	scorer    similarity.Scorer
	cache     *lru.Cache[string, candidate]
	metrics   *observability.Metrics
}

// Option configures an Index.
type Option func(*Index)

// WithScorer replaces the fuzzy scorer. The scorer receives strings already
// passed through similarity.Process.
func WithScorer(s similarity.Scorer) Option {
	return func(ix *Index) {
		ix.scorer = s
	}
}

// WithCacheSize sets the memoization cache size. Zero disables caching.
func WithCacheSize(size int) Option {
	return func(ix *Index) {
		ix.cache = nil
		if size > 0 {
			ix.cache, _ = lru.New[string, candidate](size)
		}
	}
}

// WithMetrics records cache hits.
func WithMetrics(m *observability.Metrics) Option {
	return func(ix *Index) {
		ix.metrics = m
	}
}

// Build indexes values in source order. Blank values are dropped and
// duplicates are collapsed case-insensitively, keeping the first spelling.
func Build(name string, values []string, opts ...Option) *Index {
	ix := &Index{
		name:   name,
		lower:  make(map[string]int, len(values)),
		scorer: similarity.WRatioProcessed,
	}
	WithCacheSize(DefaultCacheSize)(ix)
	for _, opt := range opts {
		opt(ix)
	}

	for _, v := range values {
		v = strings.Join(strings.Fields(v), " ")
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := ix.lower[key]; ok {
			continue
		}
		ix.lower[key] = len(ix.values)
		ix.values = append(ix.values, v)
		ix.processed = append(ix.processed, similarity.Process(v))
	}
	return ix
}

// Empty returns an index with no entries.
func Empty(name string) *Index {
	return Build(name, nil, WithCacheSize(0))
}

// Name returns the reference set name.
func (ix *Index) Name() string {
	return ix.name
}

// Len returns the number of distinct entries.
func (ix *Index) Len() int {
	return len(ix.values)
}

// Values returns a copy of the entries in source order.
func (ix *Index) Values() []string {
	return append([]string(nil), ix.values...)
}

// Contains reports whether value is an entry, ignoring case and
// surrounding whitespace.
func (ix *Index) Contains(value string) bool {
	_, ok := ix.Lookup(value)
	return ok
}

// Lookup returns the entry spelling for an exact case-insensitive match.
func (ix *Index) Lookup(value string) (string, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(value), " "))
	if key == "" {
		return "", false
	}
	pos, ok := ix.lower[key]
	if !ok {
		return "", false
	}
	return ix.values[pos], true
}

// BestMatch returns the highest scoring entry if its score reaches cutoff.
// Ties go to the entry that appears first in the source.
func (ix *Index) BestMatch(value string, cutoff float64) (Match, bool) {
	if len(ix.values) == 0 {
		return Match{}, false
	}
	query := similarity.Process(value)
	if query == "" {
		return Match{}, false
	}

	best := ix.best(query)
	if !best.found || best.match.Score < cutoff {
		return Match{}, false
	}
	return best.match, true
}

func (ix *Index) best(query string) candidate {
	if ix.cache != nil {
		if c, ok := ix.cache.Get(query); ok {
			ix.metrics.RecordFuzzyCacheHit()
			return c
		}
	}

	var best candidate
	for i, entry := range ix.processed {
		score := ix.scorer(query, entry)
		if score <= 0 || (best.found && score <= best.match.Score) {
			continue
		}
		best = candidate{match: Match{Value: ix.values[i], Score: score, Position: i}, found: true}
		if score >= 100 {
			break
		}
	}

	if ix.cache != nil {
		ix.cache.Add(query, best)
	}
	return best
}
