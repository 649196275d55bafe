package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixir/record-cleaner-service/internal/profile"
	"github.com/helixir/record-cleaner-service/internal/tableio"
)

// maxRowFindings bounds the row findings rendered to a terminal.
const maxRowFindings = 20

func newProfileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <file>",
		Short: "Report data-quality issues of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tableio.ReadFile(args[0])
			if err != nil {
				return err
			}
			report, err := profile.Profile(t)
			if err != nil {
				return err
			}
			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, report)
			}
			renderProfile(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func renderProfile(w io.Writer, report *profile.Report) {
	fmt.Fprintf(w, "%d row(s), %d column(s)\n\n", report.Rows, report.Columns)

	fmt.Fprintln(w, "Column issues")
	columnRows := make([][]string, 0, len(report.ColumnFindings))
	for _, f := range report.ColumnFindings {
		columnRows = append(columnRows, []string{f.Column, strings.Join(f.Issues, "; ")})
	}
	printTable(w, []string{"Column", "Issues"}, columnRows, nil)

	fmt.Fprintln(w, "\nRow issues")
	rowRows := make([][]string, 0, len(report.RowFindings))
	for i, f := range report.RowFindings {
		if i == maxRowFindings {
			break
		}
		rowRows = append(rowRows, []string{strconv.Itoa(f.Row), strings.Join(f.Issues, "; ")})
	}
	printTable(w, []string{"Row", "Issues"}, rowRows, []columnAlignment{alignRight, alignLeft})
	if n := len(report.RowFindings); n > maxRowFindings {
		fmt.Fprintf(w, "... %d more row(s), use --json for the full list\n", n-maxRowFindings)
	}

	imp := report.Improvements
	suggestions := [][]string{
		{"High missing ratio", strings.Join(imp.HighMissingColumns, ", ")},
		{"Mixed types", strings.Join(imp.MixedTypeColumns, ", ")},
		{"Categorical", strings.Join(imp.CategoricalColumns, ", ")},
		{"Long text", strings.Join(imp.LongTextColumns, ", ")},
		{"Duplicate names", strings.Join(imp.DuplicateColumnNames, ", ")},
		{"Empty", strings.Join(imp.EmptyColumns, ", ")},
		{"Sparse", strings.Join(imp.SparseColumns, ", ")},
		{"Identifiers", strings.Join(imp.IDColumns, ", ")},
	}
	rows := suggestions[:0]
	for _, s := range suggestions {
		if s[1] != "" {
			rows = append(rows, s)
		}
	}
	fmt.Fprintln(w, "\nSuggestions")
	printTable(w, []string{"Suggestion", "Columns"}, rows, nil)

	if len(report.ExactDuplicates) > 0 {
		groups := make([]string, 0, len(report.ExactDuplicates))
		for _, g := range report.ExactDuplicates {
			ids := make([]string, len(g))
			for i, r := range g {
				ids[i] = strconv.Itoa(r)
			}
			groups = append(groups, "["+strings.Join(ids, " ")+"]")
		}
		fmt.Fprintf(w, "\nExact duplicate rows: %s\n", strings.Join(groups, " "))
	}
}
