package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/engine"
)

type referenceSetOutput struct {
	FieldType domain.FieldType `json:"field_type"`
	Values    int              `json:"values"`
}

type referencesOutput struct {
	Sets     []referenceSetOutput `json:"sets"`
	LoadedAt time.Time            `json:"loaded_at"`
}

func newReferencesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "references",
		Short: "Show the loaded reference vocabularies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				out := referencesOutput{LoadedAt: eng.Catalog.LoadedAt()}
				for _, ft := range domain.ReferenceFieldTypes {
					out.Sets = append(out.Sets, referenceSetOutput{
						FieldType: ft,
						Values:    eng.Catalog.For(ft).Len(),
					})
				}
				if ctx.wantJSON(cmd) {
					return writeJSON(cmd, out)
				}
				rows := make([][]string, 0, len(out.Sets))
				for _, s := range out.Sets {
					rows = append(rows, []string{string(s.FieldType), strconv.Itoa(s.Values)})
				}
				printTable(cmd.OutOrStdout(), []string{"Field type", "Values"}, rows,
					[]columnAlignment{alignLeft, alignRight})
				return nil
			})
		},
	}
}
