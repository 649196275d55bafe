// Package domain provides domain models for the record cleaner service.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType selects the canonicalization policy applied to a value.
type FieldType string

const (
	FieldTypeName    FieldType = "name"
	FieldTypeCity    FieldType = "city"
	FieldTypeCountry FieldType = "country"
	FieldTypeEmail   FieldType = "email"
	FieldTypeGeneric FieldType = "generic"
)

// ReferenceFieldTypes lists the field types backed by a reference vocabulary.
var ReferenceFieldTypes = []FieldType{FieldTypeName, FieldTypeCity, FieldTypeCountry}

// ParseFieldType converts a string into a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	ft := FieldType(strings.ToLower(strings.TrimSpace(s)))
	switch ft {
	case FieldTypeName, FieldTypeCity, FieldTypeCountry, FieldTypeEmail, FieldTypeGeneric:
		return ft, nil
	default:
		return "", NewValidationError("field_type", fmt.Sprintf("unknown field type %q", s))
	}
}

// IsReference reports whether the field type resolves against a reference vocabulary.
func (f FieldType) IsReference() bool {
	switch f {
	case FieldTypeName, FieldTypeCity, FieldTypeCountry:
		return true
	default:
		return false
	}
}

// Method records which step of the canonicalization policy produced a value.
type Method string

const (
	MethodNone     Method = "none"
	MethodUser     Method = "user"
	MethodExact    Method = "exact"
	MethodFuzzy    Method = "fuzzy"
	MethodService  Method = "service"
	MethodFallback Method = "fallback"
)

// FieldCorrection is the result of canonicalizing one cell.
type FieldCorrection struct {
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Method     Method  `json:"method"`
	Confidence float64 `json:"confidence"`
}

// Changed reports whether the corrected value differs from the original.
func (c FieldCorrection) Changed() bool {
	return c.Original != c.Corrected
}

// DuplicatePair is a candidate duplicate. RowI is always less than RowJ.
type DuplicatePair struct {
	RowI  int     `json:"row_i"`
	RowJ  int     `json:"row_j"`
	Score float64 `json:"score"`
}

// OverrideEntry is a user-approved correction keyed by the lowercased raw value.
type OverrideEntry struct {
	Raw       string    `json:"raw"`
	Canonical string    `json:"canonical"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChangeLogEntry records one non-trivial correction emitted during a table pass.
type ChangeLogEntry struct {
	ID         uuid.UUID `json:"id"`
	RunID      string    `json:"run_id,omitempty"`
	Column     string    `json:"column"`
	Row        int       `json:"row"`
	Original   string    `json:"original"`
	Corrected  string    `json:"corrected"`
	Method     Method    `json:"method"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewChangeLogEntry creates a ChangeLogEntry stamped with a fresh ID and the current time.
func NewChangeLogEntry(runID, column string, row int, c FieldCorrection) ChangeLogEntry {
	return ChangeLogEntry{
		ID:         uuid.New(),
		RunID:      runID,
		Column:     column,
		Row:        row,
		Original:   c.Original,
		Corrected:  c.Corrected,
		Method:     c.Method,
		Confidence: c.Confidence,
		Timestamp:  time.Now().UTC(),
	}
}

// NormalizeKey lowercases a value and collapses its whitespace for use as an
// override or whitelist key.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
