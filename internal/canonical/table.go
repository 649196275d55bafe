package canonical

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/record-cleaner-service/internal/changelog"
	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/observability"
)

// ColumnReport summarizes the pass over one input column.
type ColumnReport struct {
	Column     string                `json:"column"`
	FieldType  domain.FieldType      `json:"field_type"`
	Identifier bool                  `json:"identifier"`
	Derived    bool                  `json:"derived,omitempty"`
	Output     string                `json:"output,omitempty"`
	Methods    map[domain.Method]int `json:"methods,omitempty"`
	Changed    int                   `json:"changed"`
}

// TableResult is the outcome of a table pass.
type TableResult struct {
	RunID   string         `json:"run_id"`
	Table   *domain.Table  `json:"-"`
	Columns []ColumnReport `json:"columns"`
	Changed int            `json:"changed"`
}

// TableCanonicalizer runs the canonicalization policy over every cell of a
// table. Reference-typed columns keep their trimmed raw value and gain a
// "<col>_canonical" column; other columns are normalized in place.
// Identifier columns pass through untouched.
type TableCanonicalizer struct {
	canon      *Canonicalizer
	classifier *ColumnClassifier
	sink       changelog.Sink
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewTableCanonicalizer creates a TableCanonicalizer. A nil sink discards
// change-log entries.
func NewTableCanonicalizer(canon *Canonicalizer, classifier *ColumnClassifier, sink changelog.Sink, logger zerolog.Logger, metrics *observability.Metrics) *TableCanonicalizer {
	if sink == nil {
		sink = changelog.Discard
	}
	if classifier == nil {
		classifier = NewColumnClassifier(DefaultClassifierConfig())
	}
	return &TableCanonicalizer{
		canon:      canon,
		classifier: classifier,
		sink:       sink,
		logger:     logger.With().Str("component", "table_canonicalizer").Logger(),
		metrics:    metrics,
	}
}

// Classifier returns the column classifier in use.
func (tc *TableCanonicalizer) Classifier() *ColumnClassifier {
	return tc.classifier
}

// outputColumn describes how one output column is produced.
type outputColumn struct {
	name      string
	source    int
	profile   ColumnProfile
	canonical bool
}

// Canonicalize produces a new table; the input is never modified. The run
// ID is taken from the context, or generated. Change-log sink failures are
// logged and counted but never abort the pass.
func (tc *TableCanonicalizer) Canonicalize(ctx context.Context, t *domain.Table) (*TableResult, error) {
	if t == nil {
		return nil, domain.NewInputError("table is nil")
	}
	start := time.Now()

	runID := observability.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.New().String()
		ctx = observability.WithRunID(ctx, runID)
	}
	logger := observability.WithRunContext(tc.logger, runID, "table")

	profiles := tc.classifier.Classify(t)
	for _, p := range profiles {
		cl := observability.WithColumnContext(logger, p.Column, string(p.FieldType))
		cl.Debug().
			Bool("identifier", p.Identifier).
			Bool("derived", p.Derived).
			Msg("column classified")
	}
	layout, reports := planColumns(profiles)

	names := make([]string, len(layout))
	for i, oc := range layout {
		names[i] = oc.name
	}

	rows := make([]domain.Row, t.Len())
	result := &TableResult{RunID: runID}

	for r := 0; r < t.Len(); r++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("table canonicalization interrupted at row %d: %w", r, err)
		}

		out := make(domain.Row, len(layout))
		resolved := make(map[int]domain.FieldCorrection, len(profiles))
		for i, oc := range layout {
			cell := t.At(r, oc.source)
			p := oc.profile

			if !p.Canonicalizable() || cell.Kind != domain.CellString {
				out[i] = cell
				continue
			}

			c, ok := resolved[oc.source]
			if !ok {
				var err error
				c, err = tc.canon.Canonicalize(ctx, cell.Str, p.FieldType, 0)
				if err != nil {
					return nil, fmt.Errorf("canonicalize column %q row %d: %w", p.Column, r, err)
				}
				resolved[oc.source] = c
				rep := &reports[p.Index]
				rep.Methods[c.Method]++
				if isCorrection(c) {
					rep.Changed++
					result.Changed++
					tc.emit(ctx, logger, domain.NewChangeLogEntry(runID, p.Column, r, c))
				}
			}

			switch {
			case p.FieldType.IsReference() && !oc.canonical:
				out[i] = stringOrMissing(CollapseSpace(cell.Str))
			default:
				out[i] = stringOrMissing(c.Corrected)
			}
		}
		rows[r] = out
	}

	table, err := domain.NewTable(names, rows)
	if err != nil {
		return nil, fmt.Errorf("build canonicalized table: %w", err)
	}
	result.Table = table
	result.Columns = reports

	elapsed := time.Since(start)
	tc.metrics.RecordTableProcessed(elapsed.Seconds())
	logger.Info().
		Int("rows", t.Len()).
		Int("columns", t.Width()).
		Int("changed", result.Changed).
		Dur("duration", elapsed).
		Msg("table canonicalized")

	return result, nil
}

func (tc *TableCanonicalizer) emit(ctx context.Context, logger zerolog.Logger, entry domain.ChangeLogEntry) {
	if err := tc.sink.Emit(ctx, entry); err != nil {
		tc.metrics.RecordChangeLogFailed()
		logger.Warn().Err(err).
			Str("column", entry.Column).
			Int("row", entry.Row).
			Msg("failed to emit change-log entry")
		return
	}
	tc.metrics.RecordChangeLogEmitted()
}

// planColumns lays out the output table. Derived columns of earlier passes
// are dropped and regenerated next to their source column.
func planColumns(profiles []ColumnProfile) ([]outputColumn, []ColumnReport) {
	layout := make([]outputColumn, 0, len(profiles))
	reports := make([]ColumnReport, len(profiles))
	for i, p := range profiles {
		reports[i] = ColumnReport{
			Column:     p.Column,
			FieldType:  p.FieldType,
			Identifier: p.Identifier,
			Derived:    p.Derived,
			Methods:    make(map[domain.Method]int),
		}
		if p.Derived {
			continue
		}
		layout = append(layout, outputColumn{name: p.Column, source: i, profile: p})
		if p.FieldType.IsReference() && !p.Identifier {
			name := p.Column + CanonicalSuffix
			reports[i].Output = name
			layout = append(layout, outputColumn{name: name, source: i, profile: p, canonical: true})
		}
	}
	return layout, reports
}

// isCorrection reports whether c is worth a change-log entry.
func isCorrection(c domain.FieldCorrection) bool {
	if c.Method == domain.MethodNone {
		return false
	}
	return strings.TrimSpace(c.Original) != c.Corrected
}

func stringOrMissing(s string) domain.Cell {
	if s == "" {
		return domain.MissingCell()
	}
	return domain.StringCell(s)
}
