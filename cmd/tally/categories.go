package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-tally/internal/cli"
)

func categoriesCmd() *cobra.Command {
	var showInactive bool

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List categories and their keywords",
		Long: `Display the category tree with the seed keywords used for inference.

Categories come from the keyword table (embedded, or keywords.path) and are
synced into the database on every run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rows := [][]string{}
			for _, cat := range a.table.Categories() {
				if !cat.IsActive && !showInactive {
					continue
				}
				name := cat.Name
				if !cat.IsRoot() {
					name = "  └ " + name
				}
				if cat.ID == a.table.DefaultCategory().ID {
					name += cli.SubtleStyle.Render(" (default)")
				}
				if !cat.IsActive {
					name += cli.SubtleStyle.Render(" (inactive)")
				}
				rows = append(rows, []string{
					strconv.FormatInt(cat.ID, 10),
					cat.Slug,
					name,
					strings.Join(cat.Keywords, ", "),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatTitle("Categories"))
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable([]string{"ID", "SLUG", "NAME", "KEYWORDS"}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showInactive, "all", false, "Include inactive categories")

	return cmd
}
