// Package profile reports data quality findings on a table and applies a
// small set of context-aware corrections.
//
// Findings are advisory. Nothing here changes a table except
// ApplyContextCorrections, which returns a new one.
package profile

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/helixir/record-cleaner-service/internal/dedup"
	"github.com/helixir/record-cleaner-service/internal/domain"
)

// Column and row issue descriptions.
const (
	IssueInconsistentCase = "inconsistent capitalization"
	IssueOuterSpaces      = "leading or trailing spaces"
	IssueHighMissing      = "high missing value ratio"
	IssueEmptyRow         = "row completely empty"
	IssueMostlyEmptyRow   = "mostly empty row"
)

const (
	columnMissingRatio      = 0.4
	improvementMissingRatio = 0.3
	mostlyEmptyRowRatio     = 0.3
	categoricalRatio        = 0.05
	longTextMeanLength      = 60
	sparseColumnCount       = 2
)

// ColumnFinding lists the issues of one column.
type ColumnFinding struct {
	Column string   `json:"column"`
	Issues []string `json:"issues"`
}

// RowFinding lists the issues of one row.
type RowFinding struct {
	Row    int      `json:"row"`
	Issues []string `json:"issues"`
}

// Improvements groups column names by dataset-level suggestion.
type Improvements struct {
	HighMissingColumns   []string `json:"high_missing_columns,omitempty"`
	MixedTypeColumns     []string `json:"mixed_type_columns,omitempty"`
	CategoricalColumns   []string `json:"categorical_columns,omitempty"`
	LongTextColumns      []string `json:"long_text_columns,omitempty"`
	DuplicateColumnNames []string `json:"duplicate_column_names,omitempty"`
	EmptyColumns         []string `json:"empty_columns,omitempty"`
	SparseColumns        []string `json:"sparse_columns,omitempty"`
	IDColumns            []string `json:"id_columns,omitempty"`
}

// Report is the full profile of a table.
type Report struct {
	Rows            int             `json:"rows"`
	Columns         int             `json:"columns"`
	ColumnFindings  []ColumnFinding `json:"column_findings"`
	RowFindings     []RowFinding    `json:"row_findings"`
	Improvements    Improvements    `json:"improvements"`
	ExactDuplicates [][]int         `json:"exact_duplicates"`
}

// Profile runs every check on t.
func Profile(t *domain.Table) (*Report, error) {
	if t == nil {
		return nil, domain.NewInputError("table is nil")
	}
	dups := dedup.FindExactDuplicates(t)
	if dups == nil {
		dups = [][]int{}
	}
	return &Report{
		Rows:            t.Len(),
		Columns:         t.Width(),
		ColumnFindings:  SuggestColumnFixes(t),
		RowFindings:     SuggestRowFixes(t),
		Improvements:    SuggestImprovements(t),
		ExactDuplicates: dups,
	}, nil
}

// SuggestColumnFixes flags columns mixing upper and lower case letters,
// columns with values carrying outer whitespace and columns missing more
// than 40% of their values.
func SuggestColumnFixes(t *domain.Table) []ColumnFinding {
	out := []ColumnFinding{}
	if t == nil {
		return out
	}
	for c, name := range t.Columns() {
		var hasUpper, hasLower, outerSpace bool
		missing := 0
		for _, cell := range t.Column(c) {
			if cell.IsMissing() {
				missing++
				continue
			}
			if cell.Kind != domain.CellString {
				continue
			}
			for _, r := range cell.Str {
				hasUpper = hasUpper || unicode.IsUpper(r)
				hasLower = hasLower || unicode.IsLower(r)
			}
			if cell.Str != strings.TrimSpace(cell.Str) {
				outerSpace = true
			}
		}

		var issues []string
		if hasUpper && hasLower {
			issues = append(issues, IssueInconsistentCase)
		}
		if outerSpace {
			issues = append(issues, IssueOuterSpaces)
		}
		if ratio(missing, t.Len()) > columnMissingRatio {
			issues = append(issues, IssueHighMissing)
		}
		if len(issues) > 0 {
			out = append(out, ColumnFinding{Column: name, Issues: issues})
		}
	}
	return out
}

// SuggestRowFixes flags empty rows and rows with at most 30% of their
// cells filled.
func SuggestRowFixes(t *domain.Table) []RowFinding {
	out := []RowFinding{}
	if t == nil {
		return out
	}
	limit := float64(t.Width()) * mostlyEmptyRowRatio
	for r := 0; r < t.Len(); r++ {
		filled := 0
		for _, cell := range t.Row(r) {
			if !cell.IsMissing() {
				filled++
			}
		}

		var issues []string
		if filled == 0 {
			issues = append(issues, IssueEmptyRow)
		}
		if float64(filled) <= limit {
			issues = append(issues, IssueMostlyEmptyRow)
		}
		if len(issues) > 0 {
			out = append(out, RowFinding{Row: r, Issues: issues})
		}
	}
	return out
}

// SuggestImprovements computes dataset-level suggestions.
func SuggestImprovements(t *domain.Table) Improvements {
	var imp Improvements
	if t == nil {
		return imp
	}
	rows := t.Len()
	seen := make(map[string]bool)

	for c, name := range t.Columns() {
		if seen[name] {
			imp.DuplicateColumnNames = append(imp.DuplicateColumnNames, name)
		}
		seen[name] = true

		var (
			count, textLen, texts int
			kinds                 = make(map[domain.CellKind]bool)
			distinct              = make(map[string]bool)
		)
		for _, cell := range t.Column(c) {
			if cell.IsMissing() {
				continue
			}
			count++
			kinds[cell.Kind] = true
			distinct[cell.Kind.String()+":"+cell.String()] = true
			if cell.Kind == domain.CellString {
				texts++
				textLen += utf8.RuneCountInString(cell.Str)
			}
		}

		if ratio(rows-count, rows) > improvementMissingRatio {
			imp.HighMissingColumns = append(imp.HighMissingColumns, name)
		}
		if len(kinds) > 1 {
			imp.MixedTypeColumns = append(imp.MixedTypeColumns, name)
		}
		if float64(len(distinct)) < float64(rows)*categoricalRatio {
			imp.CategoricalColumns = append(imp.CategoricalColumns, name)
		}
		if texts > 0 && float64(textLen)/float64(texts) > longTextMeanLength {
			imp.LongTextColumns = append(imp.LongTextColumns, name)
		}
		if count == 0 {
			imp.EmptyColumns = append(imp.EmptyColumns, name)
		}
		if count <= sparseColumnCount {
			imp.SparseColumns = append(imp.SparseColumns, name)
		}
		if rows > 0 && count == rows && len(distinct) == rows {
			imp.IDColumns = append(imp.IDColumns, name)
		}
	}
	return imp
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
