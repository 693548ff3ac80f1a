package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-tally/internal/cli"
	"github.com/Veraticus/spice-tally/internal/learning"
)

func weightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Inspect and maintain learned keyword weights",
	}

	cmd.AddCommand(listWeightsCmd())
	cmd.AddCommand(decayWeightsCmd())

	return cmd
}

func listWeightsCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show what tally has learned for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			weights, err := a.store.GetUserWeights(ctx, userID)
			if err != nil {
				return fmt.Errorf("failed to load weights: %w", err)
			}
			if len(weights) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.InfoStyle.Render("Nothing learned yet. Confirm a few expenses first."))
				return nil
			}

			rows := make([][]string, 0, len(weights))
			for _, w := range weights {
				rows = append(rows, []string{
					w.Keyword,
					categoryLabel(a.table, w.CategoryID),
					strconv.FormatFloat(w.Weight, 'f', 2, 64),
					strconv.Itoa(w.UseCount),
					w.LastUsed.Format("2006-01-02"),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatTitle("Learned weights for "+userID))
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable([]string{"KEYWORD", "CATEGORY", "WEIGHT", "USES", "LAST USED"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", defaultUser(), "User whose weights to list")

	return cmd
}

func decayWeightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Weaken weights that have not been used recently",
		Long: `Apply the configured decay policy to every learned weight idle for longer
than decay.idle_after. Meant to be run by a scheduler such as cron; each run
counts as one decay period.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			decayer, err := learning.NewDecayer(a.store, a.settings.DecayConfig())
			if err != nil {
				return err
			}

			stats, err := decayer.Sweep(ctx, time.Now())
			if err != nil {
				return fmt.Errorf("decay sweep failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Decayed %d of %d weights across %d users (%d skipped)",
				stats.Decayed, stats.Examined, stats.Users, stats.Skipped)))
			return nil
		},
	}

	return cmd
}
