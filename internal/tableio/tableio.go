// Package tableio reads and writes tables as CSV and XLSX.
//
// Readers produce string cells; empty cells become missing. Rows shorter
// than the header are padded with missing cells and rows longer than the
// header are rejected as malformed input.
package tableio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/helixir/record-cleaner-service/internal/domain"
)

const utf8BOM = "\ufeff"

// ReadFile reads a table from a .csv or .xlsx file.
func ReadFile(path string) (*domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f)
	case ".xlsx", ".xlsm":
		return ReadXLSX(f, "")
	default:
		return nil, domain.NewInputError("unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV reads a header row followed by data rows.
func ReadCSV(r io.Reader) (*domain.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, domain.NewInputError("malformed csv at line %d: %v", parseErr.Line, parseErr.Err)
		}
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRecords(records)
}

// ReadXLSX reads the named sheet of a workbook, or the first sheet when
// sheet is empty.
func ReadXLSX(r io.Reader, sheet string) (*domain.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.NewInputError("open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, domain.NewInputError("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, domain.NewInputError("read sheet %q: %v", sheet, err)
	}
	return fromRecords(rows)
}

func fromRecords(records [][]string) (*domain.Table, error) {
	if len(records) == 0 {
		return nil, domain.NewInputError("missing header row")
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		header[i] = strings.TrimSpace(h)
	}
	for len(header) > 0 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}
	for i, h := range header {
		if h == "" {
			header[i] = fmt.Sprintf("unnamed_%d", i)
		}
	}

	rows := make([]domain.Row, 0, len(records)-1)
	for n, rec := range records[1:] {
		if len(rec) > len(header) {
			extra := rec[len(header):]
			if !allEmpty(extra) {
				return nil, domain.NewInputError("row %d has %d fields, header has %d", n+1, len(rec), len(header))
			}
			rec = rec[:len(header)]
		}
		row := make(domain.Row, len(header))
		for i := range header {
			if i < len(rec) && rec[i] != "" {
				row[i] = domain.StringCell(rec[i])
			}
		}
		rows = append(rows, row)
	}

	return domain.NewTable(header, rows)
}

func allEmpty(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WriteCSV writes the table with a header row.
func WriteCSV(w io.Writer, t *domain.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WritePairsCSV writes duplicate pairs as a row_i,row_j,score table.
func WritePairsCSV(w io.Writer, pairs []domain.DuplicatePair) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"row_i", "row_j", "score"}); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	for _, p := range pairs {
		rec := []string{
			strconv.Itoa(p.RowI),
			strconv.Itoa(p.RowJ),
			strconv.FormatFloat(p.Score, 'f', 2, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// ReadLines reads one value per line, skipping blank lines and lines
// starting with '#'.
func ReadLines(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	var out []string
	for _, line := range strings.Split(strings.TrimPrefix(string(data), utf8BOM), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}
