// Package canonical resolves raw field values to canonical forms.
//
// A value goes through a fixed policy, first hit wins:
//
//  1. blank input yields an empty value (method none)
//  2. whitelisted values are returned unchanged (method none)
//  3. user overrides (method user)
//  4. exact case-insensitive reference membership (method exact)
//  5. fuzzy reference match at or above the cutoff (method fuzzy)
//  6. optional external normalization service (method service)
//  7. the field type's fallback formatting (method fallback)
//
// Email fields skip steps 3 to 7 and are only trimmed and lower-cased.
// A value produced by steps 4 to 7 that is itself an override key is
// replaced by the override, which keeps the policy idempotent.
package canonical

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/observability"
	"github.com/helixir/record-cleaner-service/internal/overrides"
	"github.com/helixir/record-cleaner-service/internal/reference"
)

const (
	// ServiceConfidence is reported for suggestions of the external service.
	ServiceConfidence = 0.75

	// FallbackConfidence is reported for fallback formatting.
	FallbackConfidence = 0.5
)

// Normalizer is an external best-effort normalization service. It returns
// false when it has no suggestion, including on timeout or failure.
type Normalizer interface {
	Normalize(ctx context.Context, value string, fieldType domain.FieldType) (string, bool)
}

// Options configures a Canonicalizer.
type Options struct {
	// Cutoffs holds the default fuzzy cutoff per field type, in [0, 100].
	Cutoffs map[domain.FieldType]float64

	// Normalizer is consulted for ServiceFieldTypes after the fuzzy step.
	Normalizer        Normalizer
	ServiceFieldTypes []domain.FieldType
}

// DefaultCutoffs returns the default fuzzy cutoffs. Names use a stricter
// bar because a wrong name merge is more harmful than a wrong city.
func DefaultCutoffs() map[domain.FieldType]float64 {
	return map[domain.FieldType]float64{
		domain.FieldTypeName:    92,
		domain.FieldTypeCity:    88,
		domain.FieldTypeCountry: 88,
		domain.FieldTypeGeneric: 88,
	}
}

// Canonicalizer applies the correction policy to single values. It is
// safe for concurrent use.
type Canonicalizer struct {
	catalog   *reference.Catalog
	overrides *overrides.Store
	cutoffs   map[domain.FieldType]float64
	service   Normalizer
	serviceFT map[domain.FieldType]struct{}
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// New creates a Canonicalizer. A nil catalog or store behaves as empty.
func New(catalog *reference.Catalog, store *overrides.Store, opts Options, logger zerolog.Logger, metrics *observability.Metrics) *Canonicalizer {
	cutoffs := DefaultCutoffs()
	for ft, v := range opts.Cutoffs {
		cutoffs[ft] = v
	}
	serviceFT := make(map[domain.FieldType]struct{}, len(opts.ServiceFieldTypes))
	for _, ft := range opts.ServiceFieldTypes {
		serviceFT[ft] = struct{}{}
	}
	return &Canonicalizer{
		catalog:   catalog,
		overrides: store,
		cutoffs:   cutoffs,
		service:   opts.Normalizer,
		serviceFT: serviceFT,
		logger:    logger.With().Str("component", "canonicalizer").Logger(),
		metrics:   metrics,
	}
}

// Cutoff returns the default fuzzy cutoff of a field type.
func (c *Canonicalizer) Cutoff(ft domain.FieldType) float64 {
	return c.cutoffs[ft]
}

// Canonicalize resolves one value. A cutoff of zero or less selects the
// field type's default. Errors are returned only for invalid arguments;
// a value that matches nothing is a fallback correction, not an error.
func (c *Canonicalizer) Canonicalize(ctx context.Context, value string, ft domain.FieldType, cutoff float64) (domain.FieldCorrection, error) {
	if _, err := domain.ParseFieldType(string(ft)); err != nil {
		return domain.FieldCorrection{}, err
	}
	if math.IsNaN(cutoff) || cutoff > 100 {
		return domain.FieldCorrection{}, domain.NewValidationError("cutoff", fmt.Sprintf("must be in [0, 100], got %v", cutoff))
	}
	if cutoff <= 0 {
		cutoff = c.cutoffs[ft]
	}

	result := c.resolve(ctx, value, ft, cutoff)
	c.metrics.RecordCanonicalization(string(ft), string(result.Method))
	return result, nil
}

func (c *Canonicalizer) resolve(ctx context.Context, value string, ft domain.FieldType, cutoff float64) domain.FieldCorrection {
	out := domain.FieldCorrection{Original: value}

	cleaned := CollapseSpace(value)
	if cleaned == "" {
		out.Method = domain.MethodNone
		return out
	}

	if c.overrides.IsWhitelisted(cleaned) {
		out.Corrected = value
		out.Method = domain.MethodNone
		out.Confidence = 1
		return out
	}

	if ft == domain.FieldTypeEmail {
		out.Corrected = NormalizeEmail(value)
		out.Confidence = 1
		out.Method = domain.MethodFallback
		if out.Corrected == value {
			out.Method = domain.MethodNone
		}
		return out
	}

	if target, ok := c.overrides.Lookup(cleaned); ok {
		return userCorrection(value, target)
	}

	out = c.automatic(ctx, value, cleaned, ft, cutoff)
	if target, ok := c.overrides.Lookup(out.Corrected); ok {
		return userCorrection(value, target)
	}
	return out
}

func (c *Canonicalizer) automatic(ctx context.Context, value, cleaned string, ft domain.FieldType, cutoff float64) domain.FieldCorrection {
	out := domain.FieldCorrection{Original: value}

	if ft.IsReference() {
		ix := c.catalog.For(ft)
		if entry, ok := ix.Lookup(cleaned); ok {
			out.Corrected = DisplayForm(ft, entry)
			out.Method = domain.MethodExact
			out.Confidence = 1
			return out
		}
		if m, ok := ix.BestMatch(cleaned, cutoff); ok {
			out.Corrected = DisplayForm(ft, m.Value)
			out.Method = domain.MethodFuzzy
			out.Confidence = m.Score / 100
			return out
		}
	}

	if suggestion, ok := c.suggest(ctx, cleaned, ft); ok {
		out.Corrected = suggestion
		out.Method = domain.MethodService
		out.Confidence = ServiceConfidence
		return out
	}

	out.Corrected = Format(ft, cleaned)
	out.Method = domain.MethodFallback
	out.Confidence = FallbackConfidence
	return out
}

func (c *Canonicalizer) suggest(ctx context.Context, cleaned string, ft domain.FieldType) (string, bool) {
	if c.service == nil {
		return "", false
	}
	if _, ok := c.serviceFT[ft]; !ok {
		return "", false
	}
	if ctx.Err() != nil {
		return "", false
	}
	suggestion, ok := c.service.Normalize(ctx, cleaned, ft)
	suggestion = CollapseSpace(suggestion)
	if !ok || suggestion == "" || strings.EqualFold(suggestion, cleaned) {
		return "", false
	}
	c.logger.Debug().
		Str("field_type", string(ft)).
		Str("value", cleaned).
		Str("suggestion", suggestion).
		Msg("normalization service suggestion")
	return suggestion, true
}

func userCorrection(original, target string) domain.FieldCorrection {
	return domain.FieldCorrection{
		Original:   original,
		Corrected:  target,
		Method:     domain.MethodUser,
		Confidence: 1,
	}
}
