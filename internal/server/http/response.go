package httpserver

import (
	"time"

	"github.com/helixir/record-cleaner-service/internal/canonical"
	"github.com/helixir/record-cleaner-service/internal/dedup"
	"github.com/helixir/record-cleaner-service/internal/domain"
)

// Request types. Tables are posted inline as a header and positional rows;
// cells are JSON strings, numbers or null.

type tableRequest struct {
	Columns []string     `json:"columns" validate:"required,min=1,dive,required"`
	Rows    []domain.Row `json:"rows"`
}

type canonicalizeRequest struct {
	Value     string   `json:"value"`
	FieldType string   `json:"field_type" validate:"required,oneof=name city country email generic"`
	Cutoff    *float64 `json:"cutoff,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type canonicalizeTableRequest struct {
	tableRequest
	RunID string `json:"run_id,omitempty" validate:"omitempty,max=128"`
	// ContextCorrections applies the gender, age and date fixes first.
	ContextCorrections bool `json:"context_corrections,omitempty"`
}

type duplicatesRequest struct {
	tableRequest
	Primary         string   `json:"primary" validate:"required"`
	Secondary       string   `json:"secondary,omitempty"`
	Blocking        string   `json:"blocking,omitempty"`
	Threshold       *float64 `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
	PreferCanonical *bool    `json:"prefer_canonical,omitempty"`
	NameMatching    *bool    `json:"name_matching,omitempty"`
	// Canonicalize runs a table pass first so "<col>_canonical" columns exist.
	Canonicalize bool `json:"canonicalize,omitempty"`
}

type overrideRequest struct {
	Raw       string `json:"raw" validate:"required,max=1024"`
	Canonical string `json:"canonical" validate:"required,max=1024"`
}

type whitelistRequest struct {
	Value string `json:"value" validate:"required,max=1024"`
}

// Response types for JSON serialization.

type tableResponse struct {
	RunID          string                   `json:"run_id"`
	Columns        []string                 `json:"columns"`
	Rows           []domain.Row             `json:"rows"`
	Reports        []canonical.ColumnReport `json:"column_reports"`
	Changed        int                      `json:"changed"`
	ContextChanges map[string]int           `json:"context_changes,omitempty"`
}

type duplicateStats struct {
	Threshold      float64 `json:"threshold"`
	Buckets        int     `json:"buckets"`
	BucketsScored  int     `json:"buckets_scored"`
	BucketsSkipped int     `json:"buckets_skipped"`
	BucketsSampled int     `json:"buckets_sampled"`
	ComparedPairs  int     `json:"compared_pairs"`
	ScoringErrors  int     `json:"scoring_errors"`
	Partial        bool    `json:"partial"`
}

type duplicatesResponse struct {
	Pairs []domain.DuplicatePair `json:"pairs"`
	Stats duplicateStats         `json:"stats"`
	RunID string                 `json:"run_id,omitempty"`
}

type overridesResponse struct {
	Overrides []domain.OverrideEntry `json:"overrides"`
	Total     int                    `json:"total"`
}

type whitelistResponse struct {
	Values []string `json:"values"`
	Total  int      `json:"total"`
}

type changeLogResponse struct {
	Entries []domain.ChangeLogEntry `json:"entries"`
	Total   int64                   `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

type overrideResponse struct {
	Raw       string    `json:"raw"`
	Canonical string    `json:"canonical"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Conversion helpers.

func tableRows(t *domain.Table) []domain.Row {
	rows := make([]domain.Row, t.Len())
	for i := range rows {
		rows[i] = t.Row(i)
	}
	return rows
}

func toDuplicatesResponse(report *dedup.Report, runID string) duplicatesResponse {
	pairs := report.Pairs
	if pairs == nil {
		pairs = []domain.DuplicatePair{}
	}
	return duplicatesResponse{
		Pairs: pairs,
		Stats: duplicateStats{
			Threshold:      report.Threshold,
			Buckets:        report.Buckets,
			BucketsScored:  report.BucketsScored,
			BucketsSkipped: report.BucketsSkipped,
			BucketsSampled: report.BucketsSampled,
			ComparedPairs:  report.ComparedPairs,
			ScoringErrors:  report.ScoringErrors,
			Partial:        report.Partial,
		},
		RunID: runID,
	}
}

func toOverrideResponse(e domain.OverrideEntry) overrideResponse {
	return overrideResponse{Raw: e.Raw, Canonical: e.Canonical, UpdatedAt: e.UpdatedAt}
}
