package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/engine"
	"github.com/helixir/record-cleaner-service/internal/observability"
	"github.com/helixir/record-cleaner-service/internal/profile"
	"github.com/helixir/record-cleaner-service/internal/tableio"
)

func newCanonicalizeCommand(ctx *commandContext) *cobra.Command {
	var (
		output             string
		runID              string
		contextCorrections bool
	)

	cmd := &cobra.Command{
		Use:   "canonicalize <file>",
		Short: "Add canonical columns to a CSV or XLSX table",
		Long: `Canonicalize classifies every column of the input table and appends a
"<column>_canonical" column for each name, city, country and email column.
The cleaned table is written as CSV; the per-column summary goes to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tableio.ReadFile(args[0])
			if err != nil {
				return err
			}

			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				runCtx := cmd.Context()
				if runID != "" {
					runCtx = observability.WithRunID(runCtx, runID)
				}

				var contextChanges map[string]int
				if contextCorrections {
					fixed, err := profile.ApplyContextCorrections(t)
					if err != nil {
						return err
					}
					t, contextChanges = fixed.Table, fixed.Changed
				}

				res, err := eng.Tables.Canonicalize(runCtx, t)
				if err != nil {
					return err
				}

				w, closeOutput, err := createOutput(cmd, output)
				if err != nil {
					return err
				}
				if err := tableio.WriteCSV(w, res.Table); err != nil {
					_ = closeOutput()
					return err
				}
				if err := closeOutput(); err != nil {
					return fmt.Errorf("close %s: %w", output, err)
				}

				summary := cmd.ErrOrStderr()
				fmt.Fprintf(summary, "Run %s: %d value(s) changed\n", res.RunID, res.Changed)
				rows := make([][]string, 0, len(res.Columns))
				for _, rep := range res.Columns {
					rows = append(rows, []string{
						rep.Column,
						string(rep.FieldType),
						yesNo(rep.Identifier),
						rep.Output,
						formatMethods(rep.Methods),
						strconv.Itoa(rep.Changed),
					})
				}
				printTable(summary, []string{"Column", "Type", "Identifier", "Output", "Methods", "Changed"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
				if len(contextChanges) > 0 {
					fmt.Fprintf(summary, "Context corrections: %s\n", formatCounts(contextChanges))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output CSV path (default stdout)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier recorded in the change log")
	cmd.Flags().BoolVar(&contextCorrections, "context", false, "Fix gender, age and date columns first")
	return cmd
}

func formatMethods(methods map[domain.Method]int) string {
	counts := make(map[string]int, len(methods))
	for m, n := range methods {
		counts[string(m)] = n
	}
	return formatCounts(counts)
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
