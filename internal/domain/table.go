package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CellKind is the dynamic type of a table cell.
type CellKind uint8

const (
	CellMissing CellKind = iota
	CellString
	CellNumber
)

// String returns the kind name.
func (k CellKind) String() string {
	switch k {
	case CellString:
		return "string"
	case CellNumber:
		return "number"
	default:
		return "missing"
	}
}

// Cell is a typed table value: a string, a number, or missing.
type Cell struct {
	Kind CellKind
	Str  string
	Num  float64
}

// StringCell returns a string cell.
func StringCell(s string) Cell {
	return Cell{Kind: CellString, Str: s}
}

// NumberCell returns a numeric cell.
func NumberCell(f float64) Cell {
	return Cell{Kind: CellNumber, Num: f}
}

// MissingCell returns a missing cell.
func MissingCell() Cell {
	return Cell{}
}

// IsMissing reports whether the cell holds no value.
func (c Cell) IsMissing() bool {
	return c.Kind == CellMissing
}

// IsBlank reports whether the cell is missing or a whitespace-only string.
func (c Cell) IsBlank() bool {
	switch c.Kind {
	case CellMissing:
		return true
	case CellString:
		return strings.TrimSpace(c.Str) == ""
	default:
		return false
	}
}

// String returns the textual form of the cell. Missing cells render as "".
func (c Cell) String() string {
	switch c.Kind {
	case CellString:
		return c.Str
	case CellNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// MarshalJSON encodes missing as null, numbers as JSON numbers and strings as JSON strings.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CellString:
		return json.Marshal(c.Str)
	case CellNumber:
		if math.IsNaN(c.Num) || math.IsInf(c.Num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(c.Num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes null, numbers and strings. Any other JSON type is rejected.
func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = MissingCell()
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = StringCell(s)
		return nil
	case '[', '{', 't', 'f':
		return NewInputError("unsupported cell value %s", string(data))
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return NewInputError("unsupported cell value %s", string(data))
		}
		*c = NumberCell(f)
		return nil
	}
}

// Row is a positional sequence of cells aligned with the table's columns.
type Row []Cell

// Table is an immutable, ordered set of rows sharing one column schema.
// Row identifiers are positions in the table.
type Table struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// NewTable validates the shape of the input and returns a table that owns
// copies of columns and rows. Duplicate column names are allowed; lookups by
// name resolve to the first occurrence.
func NewTable(columns []string, rows []Row) (*Table, error) {
	if len(columns) == 0 {
		return nil, NewInputError("table has no columns")
	}
	cols := make([]string, len(columns))
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, NewInputError("column %d has an empty name", i)
		}
		cols[i] = c
		if _, ok := index[c]; !ok {
			index[c] = i
		}
	}

	copied := make([]Row, len(rows))
	for i, r := range rows {
		if len(r) != len(cols) {
			return nil, NewInputError("row %d has %d cells, expected %d", i, len(r), len(cols))
		}
		copied[i] = append(Row(nil), r...)
	}

	return &Table{columns: cols, index: index, rows: copied}, nil
}

// Columns returns a copy of the column names.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Width returns the number of columns.
func (t *Table) Width() int {
	return len(t.columns)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// ColumnIndex returns the position of the named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Row returns a copy of row i.
func (t *Table) Row(i int) Row {
	return append(Row(nil), t.rows[i]...)
}

// At returns the cell at row i, column position col.
func (t *Table) At(i, col int) Cell {
	return t.rows[i][col]
}

// Value returns the cell at row i in the named column.
func (t *Table) Value(i int, column string) (Cell, bool) {
	col, ok := t.index[column]
	if !ok {
		return Cell{}, false
	}
	return t.rows[i][col], true
}

// Column returns a copy of all cells in the column at position col.
func (t *Table) Column(col int) []Cell {
	out := make([]Cell, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[col]
	}
	return out
}

// Records returns the table as rows of strings, headed by the column names.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.rows)+1)
	out = append(out, t.Columns())
	for _, r := range t.rows {
		rec := make([]string, len(r))
		for i, c := range r {
			rec[i] = c.String()
		}
		out = append(out, rec)
	}
	return out
}

// String summarizes the table shape.
func (t *Table) String() string {
	return fmt.Sprintf("table(%d rows x %d columns)", len(t.rows), len(t.columns))
}
