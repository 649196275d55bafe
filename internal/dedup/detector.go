package dedup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/observability"
)

// DefaultMaxBucketSize is the bucket size above which detection skips (or
// samples) a bucket. A bucket of n rows costs n*(n-1)/2 comparisons.
const DefaultMaxBucketSize = 200

// DefaultThreshold is the default minimum pair score.
const DefaultThreshold = 85.0

// DetectorOptions tunes the duplicate detector.
type DetectorOptions struct {
	// MaxBucketSize caps the rows of a scored bucket. Zero disables the cap.
	MaxBucketSize int
	// Workers is the number of buckets scored concurrently. Zero uses GOMAXPROCS.
	Workers int
	// SampleLimit, when positive, scores the first SampleLimit rows of an
	// oversize bucket instead of skipping it.
	SampleLimit int
}

// DefaultDetectorOptions returns the default detector options.
func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{MaxBucketSize: DefaultMaxBucketSize}
}

// Report is the outcome of a detection run.
type Report struct {
	Pairs          []domain.DuplicatePair `json:"pairs"`
	Threshold      float64                `json:"threshold"`
	Buckets        int                    `json:"buckets"`
	BucketsScored  int                    `json:"buckets_scored"`
	BucketsSkipped int                    `json:"buckets_skipped"`
	BucketsSampled int                    `json:"buckets_sampled"`
	ComparedPairs  int                    `json:"compared_pairs"`
	ScoringErrors  int                    `json:"scoring_errors"`
	// Partial is set when the run was cancelled before every bucket was scheduled.
	Partial bool `json:"partial"`
}

// Detector finds candidate duplicate pairs with blocking and pair scoring.
// It is safe for concurrent use.
type Detector struct {
	opts    DetectorOptions
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewDetector creates a Detector.
func NewDetector(opts DetectorOptions, logger zerolog.Logger, metrics *observability.Metrics) *Detector {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Detector{
		opts:    opts,
		logger:  logger.With().Str("component", "duplicate_detector").Logger(),
		metrics: metrics,
	}
}

type bucketResult struct {
	pairs    []domain.DuplicatePair
	compared int
	errors   int
}

// Detect returns every pair of rows sharing a bucket whose score reaches
// threshold, sorted by (RowI, RowJ). Buckets are scored concurrently.
//
// Cancelling ctx stops the scheduling of further buckets; buckets already
// running finish and the pairs found so far are returned with
// Report.Partial set. Pairs whose values cannot be scored are skipped and
// counted in Report.ScoringErrors.
func (d *Detector) Detect(ctx context.Context, t *domain.Table, cfg FieldConfig, threshold float64) (*Report, error) {
	if t == nil {
		return nil, domain.NewInputError("table is nil")
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 100 {
		return nil, domain.NewValidationError("threshold", fmt.Sprintf("must be in [0, 100], got %v", threshold))
	}
	start := time.Now()

	resolved, err := cfg.resolve(t)
	if err != nil {
		return nil, err
	}
	index, err := BuildBlockingIndex(t, resolved.Recipe)
	if err != nil {
		return nil, err
	}
	scorer, err := NewPairScorer(t, resolved)
	if err != nil {
		return nil, err
	}

	logger := d.logger.With().
		Str("primary", resolved.Primary).
		Str("secondary", resolved.Secondary).
		Str("recipe", resolved.Recipe.String()).
		Logger()
	if runID := observability.RunIDFromContext(ctx); runID != "" {
		logger = observability.WithRunContext(logger, runID, "duplicates")
	}

	buckets := index.Buckets()
	results := make([]bucketResult, len(buckets))
	report := &Report{Threshold: threshold, Buckets: len(buckets)}

	var g errgroup.Group
	g.SetLimit(d.opts.Workers)

	for bi, b := range buckets {
		if ctx.Err() != nil {
			report.Partial = true
			break
		}
		if len(b.Rows) < 2 {
			continue
		}

		rows := b.Rows
		if d.opts.MaxBucketSize > 0 && len(rows) > d.opts.MaxBucketSize {
			if d.opts.SampleLimit < 2 {
				report.BucketsSkipped++
				d.metrics.RecordBucketSkipped(len(rows))
				logger.Warn().
					Str("key", b.Key).
					Int("size", len(rows)).
					Int("max_bucket_size", d.opts.MaxBucketSize).
					Msg("skipping oversize bucket; use a more selective blocking recipe")
				continue
			}
			report.BucketsSampled++
			logger.Warn().
				Str("key", b.Key).
				Int("size", len(rows)).
				Int("sample", d.opts.SampleLimit).
				Msg("sampling oversize bucket")
			rows = rows[:min(d.opts.SampleLimit, len(rows))]
		}

		report.BucketsScored++
		d.metrics.RecordBucketScored(len(rows))

		g.Go(func() error {
			results[bi] = d.scoreBucket(scorer, rows, threshold, logger)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		report.Pairs = append(report.Pairs, r.pairs...)
		report.ComparedPairs += r.compared
		report.ScoringErrors += r.errors
	}
	sort.Slice(report.Pairs, func(a, b int) bool {
		pa, pb := report.Pairs[a], report.Pairs[b]
		if pa.RowI != pb.RowI {
			return pa.RowI < pb.RowI
		}
		return pa.RowJ < pb.RowJ
	})
	if report.Pairs == nil {
		report.Pairs = []domain.DuplicatePair{}
	}

	elapsed := time.Since(start)
	d.metrics.RecordDetection(report.Partial, len(report.Pairs), elapsed.Seconds())

	event := logger.Info()
	if report.Partial {
		event = logger.Warn()
	}
	event.
		Int("rows", t.Len()).
		Int("buckets", report.Buckets).
		Int("buckets_scored", report.BucketsScored).
		Int("buckets_skipped", report.BucketsSkipped).
		Int("compared_pairs", report.ComparedPairs).
		Int("pairs", len(report.Pairs)).
		Int("scoring_errors", report.ScoringErrors).
		Bool("partial", report.Partial).
		Dur("duration", elapsed).
		Msg("duplicate detection finished")

	return report, nil
}

// scoreBucket compares every pair of rows of one bucket. rows is ascending,
// so every emitted pair has RowI < RowJ.
func (d *Detector) scoreBucket(scorer *PairScorer, rows []int, threshold float64, logger zerolog.Logger) bucketResult {
	var res bucketResult
	for a := 0; a < len(rows); a++ {
		for b := a + 1; b < len(rows); b++ {
			i, j := rows[a], rows[b]
			res.compared++
			score, err := scorer.Score(i, j)
			if err != nil {
				res.errors++
				d.metrics.RecordScoringError()
				var se *domain.ScoringError
				if errors.As(err, &se) {
					logger.Debug().Err(err).Int("row_i", i).Int("row_j", j).Msg("skipping unscorable pair")
				}
				continue
			}
			if score >= threshold {
				res.pairs = append(res.pairs, domain.DuplicatePair{RowI: i, RowJ: j, Score: score})
			}
		}
	}
	return res
}

// FindExactDuplicates groups rows whose cells are all identical. Groups
// hold at least two ascending row indexes and are ordered by first row.
func FindExactDuplicates(t *domain.Table) [][]int {
	if t == nil {
		return nil
	}
	groups := make(map[string][]int)
	var order []string
	var sb strings.Builder
	for r := 0; r < t.Len(); r++ {
		sb.Reset()
		for _, c := range t.Row(r) {
			sb.WriteString(c.Kind.String())
			sb.WriteByte(':')
			sb.WriteString(c.String())
			sb.WriteByte(0x1f)
		}
		key := sb.String()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	var out [][]int
	for _, k := range order {
		if len(groups[k]) > 1 {
			out = append(out, groups[k])
		}
	}
	return out
}
