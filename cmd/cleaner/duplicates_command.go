package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/engine"
	"github.com/helixir/record-cleaner-service/internal/tableio"
)

type duplicatesOutput struct {
	Pairs          []domain.DuplicatePair `json:"pairs"`
	Threshold      float64                `json:"threshold"`
	Buckets        int                    `json:"buckets"`
	BucketsSkipped int                    `json:"buckets_skipped"`
	BucketsSampled int                    `json:"buckets_sampled"`
	ComparedPairs  int                    `json:"compared_pairs"`
	ScoringErrors  int                    `json:"scoring_errors"`
	Partial        bool                   `json:"partial"`
}

func newDuplicatesCommand(ctx *commandContext) *cobra.Command {
	var (
		primary        string
		secondary      string
		blocking       string
		threshold      float64
		output         string
		canonicalize   bool
		raw            bool
		noNameMatching bool
	)

	cmd := &cobra.Command{
		Use:   "duplicates <file>",
		Short: "Find likely duplicate rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tableio.ReadFile(args[0])
			if err != nil {
				return err
			}

			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				if canonicalize {
					res, err := eng.Tables.Canonicalize(cmd.Context(), t)
					if err != nil {
						return err
					}
					t = res.Table
				}

				req := engine.DuplicateRequest{
					Primary:   primary,
					Secondary: secondary,
					Blocking:  blocking,
				}
				if cmd.Flags().Changed("threshold") {
					req.Threshold = &threshold
				}
				if raw {
					preferCanonical := false
					req.PreferCanonical = &preferCanonical
				}
				if noNameMatching {
					nameMatching := false
					req.NameMatching = &nameMatching
				}

				report, err := eng.DetectDuplicates(cmd.Context(), t, req)
				if err != nil {
					return err
				}
				if report.Partial {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning: detection was interrupted, results are partial")
				}

				if output != "" {
					w, closeOutput, err := createOutput(cmd, output)
					if err != nil {
						return err
					}
					if err := tableio.WritePairsCSV(w, report.Pairs); err != nil {
						_ = closeOutput()
						return err
					}
					if err := closeOutput(); err != nil {
						return fmt.Errorf("close %s: %w", output, err)
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "%d pair(s) written to %s\n", len(report.Pairs), output)
					return nil
				}

				if ctx.wantJSON(cmd) {
					pairs := report.Pairs
					if pairs == nil {
						pairs = []domain.DuplicatePair{}
					}
					return writeJSON(cmd, duplicatesOutput{
						Pairs:          pairs,
						Threshold:      report.Threshold,
						Buckets:        report.Buckets,
						BucketsSkipped: report.BucketsSkipped,
						BucketsSampled: report.BucketsSampled,
						ComparedPairs:  report.ComparedPairs,
						ScoringErrors:  report.ScoringErrors,
						Partial:        report.Partial,
					})
				}

				rows := make([][]string, 0, len(report.Pairs))
				for _, p := range report.Pairs {
					rows = append(rows, []string{
						strconv.Itoa(p.RowI),
						strconv.Itoa(p.RowJ),
						strconv.FormatFloat(p.Score, 'f', 2, 64),
						cellString(t, p.RowI, primary),
						cellString(t, p.RowJ, primary),
					})
				}
				out := cmd.OutOrStdout()
				printTable(out, []string{"Row", "Row", "Score", primary, primary}, rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft})
				fmt.Fprintf(out, "%d pair(s) at threshold %.1f; %d bucket(s), %d comparison(s), %d skipped, %d sampled\n",
					len(report.Pairs), report.Threshold, report.Buckets, report.ComparedPairs,
					report.BucketsSkipped, report.BucketsSampled)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&primary, "primary", "", "Primary comparison column (required)")
	cmd.Flags().StringVar(&secondary, "secondary", "", "Secondary comparison column")
	cmd.Flags().StringVar(&blocking, "blocking", "", `Blocking recipe, e.g. "name:1,city:3"`)
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum score on a 0-100 scale (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write pairs as CSV to this path")
	cmd.Flags().BoolVar(&canonicalize, "canonicalize", false, "Canonicalize the table before detection")
	cmd.Flags().BoolVar(&raw, "raw", false, "Compare raw values even when canonical columns exist")
	cmd.Flags().BoolVar(&noNameMatching, "no-name-matching", false, "Disable initial-aware name comparison")
	_ = cmd.MarkFlagRequired("primary")
	return cmd
}

func cellString(t *domain.Table, row int, column string) string {
	c, ok := t.Value(row, column)
	if !ok {
		return ""
	}
	return c.String()
}
