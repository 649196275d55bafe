package canonical

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/helixir/record-cleaner-service/internal/domain"
)

// CanonicalSuffix names the derived column holding resolved values.
const CanonicalSuffix = "_canonical"

// ClassifierConfig is the keyword table used to guess column roles from
// header names. Keywords of one or two characters must match a whole
// header token ("student_id"); longer keywords match anywhere in the
// lower-cased header ("roll_no").
type ClassifierConfig struct {
	NameKeywords       []string `mapstructure:"name_keywords"`
	CountryKeywords    []string `mapstructure:"country_keywords"`
	CityKeywords       []string `mapstructure:"city_keywords"`
	EmailKeywords      []string `mapstructure:"email_keywords"`
	IdentifierKeywords []string `mapstructure:"identifier_keywords"`

	// NumericRatio is the share of digit-only values from which a column
	// is treated as an identifier.
	NumericRatio float64 `mapstructure:"numeric_ratio"`

	// MaxAvgIdentifierLength bounds the average value length of a
	// numeric identifier column (exclusive).
	MaxAvgIdentifierLength float64 `mapstructure:"max_avg_identifier_length"`
}

// DefaultClassifierConfig returns the standard keyword table.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		NameKeywords:           []string{"name", "person", "full_name"},
		CountryKeywords:        []string{"country", "nation"},
		CityKeywords:           []string{"city", "town"},
		EmailKeywords:          []string{"email", "e-mail"},
		IdentifierKeywords:     []string{"id", "roll", "emp", "phone", "mobile", "ssn", "adhar", "aadhar"},
		NumericRatio:           0.8,
		MaxAvgIdentifierLength: 12,
	}
}

// Validate checks the classifier configuration.
func (c ClassifierConfig) Validate() error {
	if c.NumericRatio <= 0 || c.NumericRatio > 1 {
		return fmt.Errorf("numeric_ratio must be in (0, 1], got %v", c.NumericRatio)
	}
	if c.MaxAvgIdentifierLength <= 0 {
		return fmt.Errorf("max_avg_identifier_length must be positive, got %v", c.MaxAvgIdentifierLength)
	}
	return nil
}

// ColumnProfile is the classification of one table column.
type ColumnProfile struct {
	Column    string           `json:"column"`
	Index     int              `json:"index"`
	FieldType domain.FieldType `json:"field_type"`

	// Identifier columns are passed through untouched.
	Identifier bool `json:"identifier"`

	// Derived marks a "<col>_canonical" column produced by an earlier pass.
	Derived bool `json:"derived,omitempty"`
}

// Canonicalizable reports whether values of the column go through the
// canonicalization policy.
func (p ColumnProfile) Canonicalizable() bool {
	return !p.Identifier && !p.Derived
}

// ColumnClassifier guesses the role of each column of a table.
type ColumnClassifier struct {
	cfg ClassifierConfig
}

// NewColumnClassifier creates a classifier. Empty keyword lists and zero
// thresholds fall back to the defaults.
func NewColumnClassifier(cfg ClassifierConfig) *ColumnClassifier {
	def := DefaultClassifierConfig()
	if len(cfg.NameKeywords) == 0 {
		cfg.NameKeywords = def.NameKeywords
	}
	if len(cfg.CountryKeywords) == 0 {
		cfg.CountryKeywords = def.CountryKeywords
	}
	if len(cfg.CityKeywords) == 0 {
		cfg.CityKeywords = def.CityKeywords
	}
	if len(cfg.EmailKeywords) == 0 {
		cfg.EmailKeywords = def.EmailKeywords
	}
	if len(cfg.IdentifierKeywords) == 0 {
		cfg.IdentifierKeywords = def.IdentifierKeywords
	}
	if cfg.NumericRatio <= 0 {
		cfg.NumericRatio = def.NumericRatio
	}
	if cfg.MaxAvgIdentifierLength <= 0 {
		cfg.MaxAvgIdentifierLength = def.MaxAvgIdentifierLength
	}
	return &ColumnClassifier{cfg: cfg}
}

// FieldTypeFor guesses the field type from a header. Precedence is
// email, country, city, name; anything else is generic.
func (c *ColumnClassifier) FieldTypeFor(header string) domain.FieldType {
	switch {
	case matchesAny(header, c.cfg.EmailKeywords):
		return domain.FieldTypeEmail
	case matchesAny(header, c.cfg.CountryKeywords):
		return domain.FieldTypeCountry
	case matchesAny(header, c.cfg.CityKeywords):
		return domain.FieldTypeCity
	case matchesAny(header, c.cfg.NameKeywords):
		return domain.FieldTypeName
	default:
		return domain.FieldTypeGeneric
	}
}

// IsIdentifier reports whether a column holds keys that must never be
// altered: its header names an identifier, or most of its values are
// short digit strings.
func (c *ColumnClassifier) IsIdentifier(header string, cells []domain.Cell) bool {
	if matchesAny(header, c.cfg.IdentifierKeywords) {
		return true
	}

	var present, numeric, totalLen int
	for _, cell := range cells {
		if cell.IsMissing() {
			continue
		}
		v := strings.TrimSpace(cell.String())
		present++
		totalLen += len([]rune(v))
		if isDigits(v) {
			numeric++
		}
	}
	if present == 0 {
		return false
	}
	ratio := float64(numeric) / float64(present)
	avgLen := float64(totalLen) / float64(present)
	return ratio >= c.cfg.NumericRatio && avgLen < c.cfg.MaxAvgIdentifierLength
}

// Classify profiles every column of t in order.
func (c *ColumnClassifier) Classify(t *domain.Table) []ColumnProfile {
	columns := t.Columns()
	profiles := make([]ColumnProfile, len(columns))
	for i, col := range columns {
		p := ColumnProfile{Column: col, Index: i}
		if base, ok := strings.CutSuffix(col, CanonicalSuffix); ok && base != "" && t.HasColumn(base) {
			p.Derived = true
			p.FieldType = c.FieldTypeFor(base)
			profiles[i] = p
			continue
		}
		p.FieldType = c.FieldTypeFor(col)
		p.Identifier = c.IsIdentifier(col, t.Column(i))
		profiles[i] = p
	}
	return profiles
}

func matchesAny(header string, keywords []string) bool {
	lower := strings.ToLower(strings.TrimSpace(header))
	var tokens []string
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		// Short keywords must match a whole header token.
		if len(kw) > 3 {
			if strings.Contains(lower, kw) {
				return true
			}
			continue
		}
		if tokens == nil {
			tokens = HeaderTokens(header)
		}
		for _, tok := range tokens {
			if tok == kw {
				return true
			}
		}
	}
	return false
}

// HeaderTokens splits a header on punctuation, spaces and camelCase
// boundaries: "studentID" and "student_id" both yield [student id].
func HeaderTokens(header string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(header)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			flush()
		}
		cur = append(cur, r)
	}
	flush()
	return tokens
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
