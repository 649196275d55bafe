package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixir/record-cleaner-service/internal/engine"
)

func newOverrideCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Manage user corrections",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <raw> <canonical>",
		Short: "Map a raw value to its canonical form",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				entry, err := eng.Overrides.RecordOverride(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if ctx.wantJSON(cmd) {
					return writeJSON(cmd, entry)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%q -> %q\n", entry.Raw, entry.Canonical)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List user corrections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				entries := eng.Overrides.Entries()
				if ctx.wantJSON(cmd) {
					return writeJSON(cmd, entries)
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					updated := ""
					if !e.UpdatedAt.IsZero() {
						updated = e.UpdatedAt.Format(time.RFC3339)
					}
					rows = append(rows, []string{e.Raw, e.Canonical, updated})
				}
				printTable(cmd.OutOrStdout(), []string{"Raw", "Canonical", "Updated"}, rows, nil)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <raw>",
		Short: "Delete a user correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				if err := eng.Overrides.RemoveOverride(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %q\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

func newWhitelistCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage values that are never corrected",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <value>",
		Short: "Protect a value from correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				if err := eng.Overrides.AddWhitelist(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Whitelisted %q\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List whitelisted values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				values := eng.Overrides.Whitelist()
				if ctx.wantJSON(cmd) {
					if values == nil {
						values = []string{}
					}
					return writeJSON(cmd, values)
				}
				rows := make([][]string, 0, len(values))
				for _, v := range values {
					rows = append(rows, []string{v})
				}
				printTable(cmd.OutOrStdout(), []string{"Value"}, rows, nil)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <value>",
		Short: "Remove a value from the whitelist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				if err := eng.Overrides.RemoveWhitelist(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %q\n", args[0])
				return nil
			})
		},
	})

	return cmd
}
