package reference

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/observability"
	"github.com/helixir/record-cleaner-service/internal/tableio"
)

// Source describes where a reference vocabulary comes from. Values from
// the file come first, followed by inline values.
type Source struct {
	// Path is a .csv, .xlsx or .txt file. Empty means inline values only.
	Path string
	// Column selects the vocabulary column in tabular files. Empty selects the first column.
	Column string
	// Values are additional inline entries.
	Values []string
}

// Config configures a Catalog.
type Config struct {
	Sources   map[domain.FieldType]Source
	CacheSize int
}

// LoadSummary reports the outcome of loading a catalog.
type LoadSummary struct {
	Sets     map[domain.FieldType]int `json:"sets"`
	Failures []string                 `json:"failures,omitempty"`
	LoadedAt time.Time                `json:"loaded_at"`
}

type snapshot struct {
	indexes  map[domain.FieldType]*Index
	loadedAt time.Time
}

// Catalog is the process-wide handle on the reference indexes, one per
// reference field type. Reload swaps the whole set atomically, so a reader
// sees either the old or the new snapshot.
type Catalog struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *observability.Metrics

	reloadMu sync.Mutex
	current  atomic.Pointer[snapshot]
}

// Init builds a catalog and loads every configured source. Sources that
// fail to load degrade to empty indexes and are logged as warnings.
func Init(ctx context.Context, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Catalog {
	c := &Catalog{
		cfg:     cfg,
		logger:  logger.With().Str("component", "reference").Logger(),
		metrics: metrics,
	}
	c.Reload(ctx)
	return c
}

// Static returns a catalog over fixed in-memory vocabularies.
func Static(vocabularies map[domain.FieldType][]string) *Catalog {
	sources := make(map[domain.FieldType]Source, len(vocabularies))
	for ft, values := range vocabularies {
		sources[ft] = Source{Values: values}
	}
	return Init(context.Background(), Config{Sources: sources, CacheSize: DefaultCacheSize}, zerolog.Nop(), nil)
}

// Reload rebuilds every index from its source and publishes the result.
func (c *Catalog) Reload(ctx context.Context) LoadSummary {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	summary := LoadSummary{Sets: make(map[domain.FieldType]int, len(c.cfg.Sources))}
	indexes := make(map[domain.FieldType]*Index, len(c.cfg.Sources))

	fieldTypes := make([]domain.FieldType, 0, len(c.cfg.Sources))
	for ft := range c.cfg.Sources {
		fieldTypes = append(fieldTypes, ft)
	}
	sort.Slice(fieldTypes, func(i, j int) bool { return fieldTypes[i] < fieldTypes[j] })

	for _, ft := range fieldTypes {
		src := c.cfg.Sources[ft]
		values, err := LoadValues(ctx, string(ft), src)
		if err != nil {
			c.logger.Warn().Err(err).
				Str("set", string(ft)).
				Str("path", src.Path).
				Msg("reference set unavailable, continuing with inline values only")
			c.metrics.RecordReferenceLoadFailed(string(ft))
			summary.Failures = append(summary.Failures, err.Error())
		}

		ix := Build(string(ft), values, WithCacheSize(c.cfg.CacheSize), WithMetrics(c.metrics))
		indexes[ft] = ix
		summary.Sets[ft] = ix.Len()
		c.metrics.RecordReferenceLoaded(string(ft), ix.Len())
		c.logger.Info().Str("set", string(ft)).Int("entries", ix.Len()).Msg("reference set loaded")
	}

	summary.LoadedAt = time.Now().UTC()
	c.current.Store(&snapshot{indexes: indexes, loadedAt: summary.LoadedAt})
	return summary
}

// For returns the index for a field type. Field types without a configured
// or loadable vocabulary get an empty index.
func (c *Catalog) For(ft domain.FieldType) *Index {
	if c == nil {
		return Empty(string(ft))
	}
	snap := c.current.Load()
	if snap == nil {
		return Empty(string(ft))
	}
	if ix, ok := snap.indexes[ft]; ok {
		return ix
	}
	return Empty(string(ft))
}

// LoadedAt returns when the current snapshot was published.
func (c *Catalog) LoadedAt() time.Time {
	if snap := c.current.Load(); snap != nil {
		return snap.loadedAt
	}
	return time.Time{}
}

// LoadValues reads a source. On error the inline values are still returned
// alongside a *domain.ReferenceError.
func LoadValues(ctx context.Context, set string, src Source) ([]string, error) {
	if src.Path == "" {
		return src.Values, nil
	}
	if err := ctx.Err(); err != nil {
		return src.Values, domain.NewReferenceError(set, src.Path, err)
	}

	fileValues, err := loadFile(src.Path, src.Column)
	if err != nil {
		return src.Values, domain.NewReferenceError(set, src.Path, err)
	}
	return append(fileValues, src.Values...), nil
}

func loadFile(path, column string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return tableio.ReadLines(f)
	}

	tbl, err := tableio.ReadFile(path)
	if err != nil {
		return nil, err
	}

	col := 0
	if column != "" {
		var ok bool
		col, ok = tbl.ColumnIndex(column)
		if !ok {
			return nil, fmt.Errorf("column %q not found", column)
		}
	}

	values := make([]string, 0, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		cell := tbl.At(i, col)
		if cell.IsBlank() {
			continue
		}
		values = append(values, strings.TrimSpace(cell.String()))
	}
	return values, nil
}
