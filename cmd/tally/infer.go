package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-tally/internal/cli"
)

func inferCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "infer <text>",
		Short: "Show the category guess for a piece of text",
		Long: `Rank categories for the given text using the seed keywords and the
user's learned weights. Nothing is stored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			text := strings.Join(args, " ")
			result, err := a.engine.Infer(ctx, text, userID)
			if err != nil {
				return fmt.Errorf("inference failed: %w", err)
			}

			cfg := a.settings.LifecycleConfig()
			var b strings.Builder
			fmt.Fprintf(&b, "Category: %s (%s)\n", categoryLabel(a.table, result.CategoryID), result.Slug)
			fmt.Fprintf(&b, "Confidence: %s\n", cli.FormatConfidence(result.Confidence, cfg.AutoConfirmThreshold, cfg.ReviewFloor))
			fmt.Fprintf(&b, "Score: %.2f\n", result.Score)
			if result.Fallback {
				b.WriteString(cli.FormatWarning("No keyword matched; using the default category.") + "\n")
			} else {
				fmt.Fprintf(&b, "Matched: %s\n", strings.Join(result.MatchedKeywords, ", "))
			}
			if len(result.Alternatives) > 0 {
				b.WriteString("\nAlternatives:\n")
				for _, alt := range result.Alternatives {
					fmt.Fprintf(&b, "  • %s  %.2f  [%s]\n", categoryLabel(a.table, alt.CategoryID), alt.Score, strings.Join(alt.MatchedKeywords, ", "))
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox("Inference", b.String()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", defaultUser(), "User whose learned weights apply")

	return cmd
}
