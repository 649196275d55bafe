package profile

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/record-cleaner-service/internal/canonical"
	"github.com/helixir/record-cleaner-service/internal/domain"
)

const (
	minAge = 0
	maxAge = 120

	// DateLayout is the output form of corrected date cells.
	DateLayout = "2006-01-02"
)

var genderVocabulary = map[string]string{
	"m":      "male",
	"male":   "male",
	"boy":    "male",
	"man":    "male",
	"f":      "female",
	"female": "female",
	"femlae": "female",
	"girl":   "female",
	"woman":  "female",
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// ContextResult is the outcome of ApplyContextCorrections.
type ContextResult struct {
	Table *domain.Table `json:"-"`
	// Changed counts corrected cells per column.
	Changed map[string]int `json:"changed"`
}

// ApplyContextCorrections returns a copy of t with header-driven fixes:
//   - gender columns map common spellings to "male" or "female"
//   - age columns keep whole ages in (0, 120) and blank anything else
//   - date columns are rewritten as YYYY-MM-DD, unparsable dates are blanked
//
// A column is a gender, age or date column when one of its header tokens
// is that word.
func ApplyContextCorrections(t *domain.Table) (*ContextResult, error) {
	if t == nil {
		return nil, domain.NewInputError("table is nil")
	}

	fixers := make([]func(domain.Cell) domain.Cell, t.Width())
	for c, name := range t.Columns() {
		tokens := canonical.HeaderTokens(name)
		switch {
		case slices.Contains(tokens, "gender") || slices.Contains(tokens, "sex"):
			fixers[c] = fixGender
		case slices.Contains(tokens, "age"):
			fixers[c] = fixAge
		case slices.Contains(tokens, "date") || slices.Contains(tokens, "dob"):
			fixers[c] = fixDate
		}
	}

	columns := t.Columns()
	changed := make(map[string]int)
	rows := make([]domain.Row, t.Len())
	for r := range rows {
		row := t.Row(r)
		for c, fix := range fixers {
			if fix == nil || row[c].IsMissing() {
				continue
			}
			fixed := fix(row[c])
			if fixed != row[c] {
				changed[columns[c]]++
				row[c] = fixed
			}
		}
		rows[r] = row
	}

	out, err := domain.NewTable(columns, rows)
	if err != nil {
		return nil, err
	}
	return &ContextResult{Table: out, Changed: changed}, nil
}

func fixGender(c domain.Cell) domain.Cell {
	if c.Kind != domain.CellString {
		return c
	}
	if v, ok := genderVocabulary[strings.ToLower(strings.TrimSpace(c.Str))]; ok {
		return domain.StringCell(v)
	}
	return c
}

func fixAge(c domain.Cell) domain.Cell {
	var v float64
	switch c.Kind {
	case domain.CellNumber:
		v = c.Num
	case domain.CellString:
		f, err := strconv.ParseFloat(strings.TrimSpace(c.Str), 64)
		if err != nil {
			return domain.MissingCell()
		}
		v = f
	default:
		return c
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return domain.MissingCell()
	}
	age := int(v)
	if age <= minAge || age >= maxAge {
		return domain.MissingCell()
	}
	return domain.NumberCell(float64(age))
}

func fixDate(c domain.Cell) domain.Cell {
	if c.Kind != domain.CellString {
		return c
	}
	s := strings.TrimSpace(c.Str)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return domain.StringCell(ts.Format(DateLayout))
		}
	}
	return domain.MissingCell()
}
