package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the record cleaner service.
// Metrics are organized by subsystem: canonicalization, references, the
// external normalizer, the change log, overrides and duplicate detection.
// All counters and histograms are registered via promauto with the default
// Prometheus registry.
//
// Record methods are safe to call on a nil *Metrics, which lets the engine
// run without instrumentation in tests and in the CLI.
type Metrics struct {
	// Canonicalizations counts resolved values, labeled by field type and method.
	Canonicalizations *prometheus.CounterVec

	// TablesProcessed counts completed table canonicalization passes.
	TablesProcessed prometheus.Counter

	// TableDuration observes the duration of table passes in seconds.
	TableDuration prometheus.Histogram

	// ReferenceEntries reports the number of entries in each loaded reference set.
	ReferenceEntries *prometheus.GaugeVec

	// ReferenceLoadFailures counts reference sets that failed to load, labeled by set.
	ReferenceLoadFailures *prometheus.CounterVec

	// FuzzyCacheHits counts fuzzy lookups served from the memoization cache.
	FuzzyCacheHits prometheus.Counter

	// NormalizerRequests counts calls to the external normalization service, labeled by outcome.
	NormalizerRequests *prometheus.CounterVec

	// NormalizerDuration observes external normalization latency in seconds.
	NormalizerDuration prometheus.Histogram

	// ChangeLogEntries counts change-log entries emitted.
	ChangeLogEntries prometheus.Counter

	// ChangeLogFailures counts change-log entries the sink rejected.
	ChangeLogFailures prometheus.Counter

	// OverridesRecorded counts override and whitelist writes, labeled by kind.
	OverridesRecorded *prometheus.CounterVec

	// Detections counts duplicate detection runs, labeled by completion state.
	Detections *prometheus.CounterVec

	// DetectionDuration observes duplicate detection duration in seconds.
	DetectionDuration prometheus.Histogram

	// DuplicatePairs counts candidate pairs at or above threshold.
	DuplicatePairs prometheus.Counter

	// BucketsScored counts blocking buckets whose pairs were scored.
	BucketsScored prometheus.Counter

	// BucketsSkipped counts blocking buckets skipped for exceeding the size cap.
	BucketsSkipped prometheus.Counter

	// BucketSize observes the size of every blocking bucket with at least two rows.
	BucketSize prometheus.Histogram

	// ScoringErrors counts pairs skipped because a field could not be scored.
	ScoringErrors prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Canonicalization
		Canonicalizations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "canonicalizations_total",
			Help:      "Total number of canonicalized values by field type and method",
		}, []string{"field_type", "method"}),
		TablesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tables_processed_total",
			Help:      "Total number of table canonicalization passes",
		}),
		TableDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "table_duration_seconds",
			Help:      "Duration of table canonicalization passes in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),

		// References
		ReferenceEntries: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reference_entries",
			Help:      "Number of entries in each loaded reference set",
		}, []string{"set"}),
		ReferenceLoadFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reference_load_failures_total",
			Help:      "Total number of reference set load failures",
		}, []string{"set"}),
		FuzzyCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fuzzy_cache_hits_total",
			Help:      "Total number of fuzzy lookups served from cache",
		}),

		// External normalizer
		NormalizerRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalizer_requests_total",
			Help:      "Total number of external normalization requests by outcome",
		}, []string{"outcome"}),
		NormalizerDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "normalizer_request_duration_seconds",
			Help:      "Duration of external normalization requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 6, 10},
		}),

		// Change log
		ChangeLogEntries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changelog_entries_total",
			Help:      "Total number of change-log entries emitted",
		}),
		ChangeLogFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changelog_failures_total",
			Help:      "Total number of change-log entries that failed to emit",
		}),

		// Overrides
		OverridesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overrides_recorded_total",
			Help:      "Total number of override store writes by kind",
		}, []string{"kind"}),

		// Duplicate detection
		Detections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Total number of duplicate detection runs by completion state",
		}, []string{"state"}),
		DetectionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_duration_seconds",
			Help:      "Duration of duplicate detection runs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		DuplicatePairs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_pairs_total",
			Help:      "Total number of duplicate pairs found",
		}),
		BucketsScored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buckets_scored_total",
			Help:      "Total number of blocking buckets scored",
		}),
		BucketsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buckets_skipped_total",
			Help:      "Total number of blocking buckets skipped for size",
		}),
		BucketSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bucket_size",
			Help:      "Distribution of blocking bucket sizes",
			Buckets:   []float64{2, 5, 10, 25, 50, 100, 200, 500, 1000},
		}),
		ScoringErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_errors_total",
			Help:      "Total number of pairs skipped due to scoring errors",
		}),
	}
}

// RecordCanonicalization records one resolved value.
func (m *Metrics) RecordCanonicalization(fieldType, method string) {
	if m == nil {
		return
	}
	m.Canonicalizations.WithLabelValues(fieldType, method).Inc()
}

// RecordTableProcessed records a completed table pass.
func (m *Metrics) RecordTableProcessed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TablesProcessed.Inc()
	m.TableDuration.Observe(durationSeconds)
}

// RecordReferenceLoaded records the size of a freshly loaded reference set.
func (m *Metrics) RecordReferenceLoaded(set string, entries int) {
	if m == nil {
		return
	}
	m.ReferenceEntries.WithLabelValues(set).Set(float64(entries))
}

// RecordReferenceLoadFailed records a reference set that degraded to empty.
func (m *Metrics) RecordReferenceLoadFailed(set string) {
	if m == nil {
		return
	}
	m.ReferenceLoadFailures.WithLabelValues(set).Inc()
	m.ReferenceEntries.WithLabelValues(set).Set(0)
}

// RecordFuzzyCacheHit records a memoized fuzzy lookup.
func (m *Metrics) RecordFuzzyCacheHit() {
	if m == nil {
		return
	}
	m.FuzzyCacheHits.Inc()
}

// RecordNormalizerRequest records an external normalization call.
// Outcome is one of "hit", "miss" or "error".
func (m *Metrics) RecordNormalizerRequest(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.NormalizerRequests.WithLabelValues(outcome).Inc()
	m.NormalizerDuration.Observe(durationSeconds)
}

// RecordChangeLogEmitted records a change-log entry handed to the sink.
func (m *Metrics) RecordChangeLogEmitted() {
	if m == nil {
		return
	}
	m.ChangeLogEntries.Inc()
}

// RecordChangeLogFailed records a change-log entry the sink rejected.
func (m *Metrics) RecordChangeLogFailed() {
	if m == nil {
		return
	}
	m.ChangeLogFailures.Inc()
}

// RecordOverrideWrite records an override store write. Kind is "override",
// "override_delete", "whitelist" or "whitelist_delete".
func (m *Metrics) RecordOverrideWrite(kind string) {
	if m == nil {
		return
	}
	m.OverridesRecorded.WithLabelValues(kind).Inc()
}

// RecordDetection records a finished detection run.
func (m *Metrics) RecordDetection(partial bool, pairs int, durationSeconds float64) {
	if m == nil {
		return
	}
	state := "complete"
	if partial {
		state = "partial"
	}
	m.Detections.WithLabelValues(state).Inc()
	m.DetectionDuration.Observe(durationSeconds)
	m.DuplicatePairs.Add(float64(pairs))
}

// RecordBucketScored records a bucket whose pairs were scored.
func (m *Metrics) RecordBucketScored(size int) {
	if m == nil {
		return
	}
	m.BucketsScored.Inc()
	m.BucketSize.Observe(float64(size))
}

// RecordBucketSkipped records a bucket skipped for exceeding the size cap.
func (m *Metrics) RecordBucketSkipped(size int) {
	if m == nil {
		return
	}
	m.BucketsSkipped.Inc()
	m.BucketSize.Observe(float64(size))
}

// RecordScoringError records a pair skipped due to a scoring error.
func (m *Metrics) RecordScoringError() {
	if m == nil {
		return
	}
	m.ScoringErrors.Inc()
}
