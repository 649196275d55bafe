package dedup

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/similarity"
)

// canonicalSuffix matches the derived columns written by a canonicalization pass.
const canonicalSuffix = "_canonical"

// weightTolerance absorbs float noise when checking that weights sum to one.
const weightTolerance = 1e-6

// Weights combines per-field similarities into one pair score.
type Weights struct {
	Primary   float64 `json:"primary"`
	Secondary float64 `json:"secondary"`
}

// DefaultWeights favors the identity field over the location field.
func DefaultWeights() Weights {
	return Weights{Primary: 0.75, Secondary: 0.25}
}

// Validate checks that both weights are in [0, 1] and sum to one.
func (w Weights) Validate() error {
	if w.Primary < 0 || w.Primary > 1 || w.Secondary < 0 || w.Secondary > 1 {
		return domain.NewValidationError("weights", "each weight must be in [0, 1]")
	}
	if math.Abs(w.Primary+w.Secondary-1) > weightTolerance {
		return domain.NewValidationError("weights", fmt.Sprintf("weights must sum to 1, got %v", w.Primary+w.Secondary))
	}
	return nil
}

// FieldConfig selects the fields compared by the PairScorer and the
// columns used for blocking.
type FieldConfig struct {
	// Primary is the identity field, usually a name. Required.
	Primary string `json:"primary"`
	// Secondary is an optional location field such as a city.
	Secondary string `json:"secondary,omitempty"`
	// Weights applies when both fields are present on both rows.
	Weights Weights `json:"weights"`
	// Recipe defaults to DefaultRecipe(Primary, Secondary).
	Recipe BlockingRecipe `json:"recipe"`
	// PreferCanonical reads "<col>_canonical" instead of col when the table has it.
	PreferCanonical bool `json:"prefer_canonical"`
	// NameMatching reorders "Last, First" and expands initials on the
	// primary field before scoring.
	NameMatching bool `json:"name_matching"`
}

// DefaultFieldConfig returns a configuration with default weights and recipe.
func DefaultFieldConfig(primary, secondary string) FieldConfig {
	return FieldConfig{
		Primary:         primary,
		Secondary:       secondary,
		Weights:         DefaultWeights(),
		Recipe:          DefaultRecipe(primary, secondary),
		PreferCanonical: true,
		NameMatching:    true,
	}
}

// resolve fills defaults and maps configured columns onto t.
func (c FieldConfig) resolve(t *domain.Table) (FieldConfig, error) {
	if strings.TrimSpace(c.Primary) == "" {
		return FieldConfig{}, domain.NewValidationError("primary", "must not be empty")
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.Secondary != "" {
		if err := c.Weights.Validate(); err != nil {
			return FieldConfig{}, err
		}
	}
	if len(c.Recipe.Parts) == 0 {
		c.Recipe = DefaultRecipe(c.Primary, c.Secondary)
	}

	lookup := func(col string) (string, error) {
		if c.PreferCanonical && t.HasColumn(col+canonicalSuffix) {
			return col + canonicalSuffix, nil
		}
		if !t.HasColumn(col) {
			return "", domain.NewInputError("column %q not found", col)
		}
		return col, nil
	}

	out := c
	var err error
	if out.Primary, err = lookup(c.Primary); err != nil {
		return FieldConfig{}, err
	}
	if c.Secondary != "" {
		if out.Secondary, err = lookup(c.Secondary); err != nil {
			return FieldConfig{}, err
		}
	}
	out.Recipe = BlockingRecipe{Parts: make([]BlockPart, len(c.Recipe.Parts))}
	for i, p := range c.Recipe.Parts {
		col, err := lookup(p.Column)
		if err != nil {
			return FieldConfig{}, err
		}
		out.Recipe.Parts[i] = BlockPart{Column: col, Prefix: p.Prefix}
	}
	return out, nil
}

// PairScorer computes the weighted similarity of two rows of one table.
// It is safe for concurrent use.
type PairScorer struct {
	table     *domain.Table
	primary   int
	secondary int
	weights   Weights
	names     bool
	scorer    similarity.Scorer
}

// NewPairScorer binds a scorer to t. Column names in cfg are used as given;
// canonical column preference and defaults are applied by the Detector.
func NewPairScorer(t *domain.Table, cfg FieldConfig) (*PairScorer, error) {
	if t == nil {
		return nil, domain.NewInputError("table is nil")
	}
	primary, ok := t.ColumnIndex(cfg.Primary)
	if !ok {
		return nil, domain.NewInputError("column %q not found", cfg.Primary)
	}
	secondary := -1
	if cfg.Secondary != "" {
		if secondary, ok = t.ColumnIndex(cfg.Secondary); !ok {
			return nil, domain.NewInputError("column %q not found", cfg.Secondary)
		}
		if err := cfg.Weights.Validate(); err != nil {
			return nil, err
		}
	}
	return &PairScorer{
		table:     t,
		primary:   primary,
		secondary: secondary,
		weights:   cfg.Weights,
		names:     cfg.NameMatching,
		scorer:    similarity.WRatio,
	}, nil
}

// Score returns the similarity of rows i and j in [0, 100].
//
// An empty primary value on either row contributes 0. When the secondary
// field is not configured, or empty on either row, the primary similarity
// alone is the score, so a pair missing its secondary value can never
// outscore its primary similarity. A value that cannot be compared yields
// a ScoringError.
func (s *PairScorer) Score(i, j int) (float64, error) {
	n := s.table.Len()
	if i < 0 || j < 0 || i >= n || j >= n {
		return 0, &domain.ScoringError{RowI: i, RowJ: j, Reason: "row index out of range"}
	}

	if err := s.check(i, j, s.primary); err != nil {
		return 0, err
	}
	pi, pj := s.text(i, s.primary), s.text(j, s.primary)

	var primary float64
	if pi != "" && pj != "" {
		if s.names {
			pi, pj = NormalizeName(pi), NormalizeName(pj)
			pi, pj = expandInitials(pi, pj), expandInitials(pj, pi)
		}
		primary = s.scorer(pi, pj)
	}

	if s.secondary < 0 {
		return clampScore(primary), nil
	}
	if err := s.check(i, j, s.secondary); err != nil {
		return 0, err
	}
	si, sj := s.text(i, s.secondary), s.text(j, s.secondary)
	if si == "" || sj == "" {
		return clampScore(primary), nil
	}
	secondary := s.scorer(si, sj)
	return clampScore(s.weights.Primary*primary + s.weights.Secondary*secondary), nil
}

// check reports a ScoringError when a cell of col cannot be compared.
func (s *PairScorer) check(i, j, col int) error {
	for _, r := range []int{i, j} {
		c := s.table.At(r, col)
		if c.Kind == domain.CellNumber && (math.IsNaN(c.Num) || math.IsInf(c.Num, 0)) {
			return &domain.ScoringError{
				RowI:   i,
				RowJ:   j,
				Field:  s.table.Columns()[col],
				Reason: "non-finite number " + strconv.FormatFloat(c.Num, 'g', -1, 64),
			}
		}
	}
	return nil
}

func (s *PairScorer) text(row, col int) string {
	return strings.TrimSpace(s.table.At(row, col).String())
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
