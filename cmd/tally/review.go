package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-tally/internal/cli"
	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/model"
	"github.com/Veraticus/spice-tally/internal/service"
)

func reviewCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Walk through expenses waiting for a category",
		Long: `Show every needs_review expense, oldest first, and accept the suggestion,
pick another category, reject it or skip it.

When the guess was too weak to be useful the full category list is shown
instead of a single suggestion. Interrupting keeps every answer given so far.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx := handler.HandleInterrupts(cmd.Context(), "tally review")

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			queue, err := a.store.ListExpenses(ctx, service.ExpenseFilter{
				UserID:   userID,
				Statuses: []model.ExpenseStatus{model.StatusNeedsReview},
			})
			if err != nil {
				return fmt.Errorf("failed to load review queue: %w", err)
			}
			if len(queue) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Nothing to review."))
				return nil
			}

			prompter := cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			prompter.SetTotal(len(queue))
			cfg := a.settings.LifecycleConfig()

			for i := len(queue) - 1; i >= 0; i-- {
				expense := queue[i]
				decision, err := prompter.Review(ctx, reviewItem(ctx, a, expense, cfg.AutoConfirmThreshold, cfg.ReviewFloor))
				if err != nil {
					if handler.WasInterrupted() || errors.Is(err, cli.ErrInputTerminated) {
						return nil
					}
					return err
				}

				switch decision.Action {
				case cli.ActionQuit:
					prompter.ShowCompletion()
					return nil
				case cli.ActionSkip:
					continue
				case cli.ActionAccept, cli.ActionPick:
					chosen := decision.CategoryID
					_, err = a.manager.Confirm(ctx, expense.ID, &chosen)
				case cli.ActionReject:
					_, err = a.manager.Reject(ctx, expense.ID, decision.Reason)
				}
				if err != nil {
					if errors.Is(err, common.ErrDuplicateTransition) {
						fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(common.UserMessage(err)))
						continue
					}
					return err
				}
			}

			prompter.ShowCompletion()
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", defaultUser(), "User whose expenses to review")

	return cmd
}

// reviewItem offers the ranked candidates for the expense's text, or every
// active category when the guess fell below the floor.
func reviewItem(ctx context.Context, a *app, expense model.Expense, threshold, floor float64) cli.ReviewItem {
	item := cli.ReviewItem{
		Expense:   expense,
		Threshold: threshold,
		Floor:     floor,
	}
	if expense.SuggestedCategoryID != nil {
		item.SuggestedLabel = categoryLabel(a.table, *expense.SuggestedCategoryID)
	}

	seen := make(map[int64]bool)
	add := func(id int64) {
		if seen[id] {
			return
		}
		seen[id] = true
		item.Options = append(item.Options, cli.CategoryOption{ID: id, Label: categoryLabel(a.table, id)})
	}

	if !expense.BelowFloor {
		if expense.SuggestedCategoryID != nil {
			add(*expense.SuggestedCategoryID)
		}
		text := expense.RawText
		if text == "" {
			text = expense.Description
		}
		result, err := a.engine.Infer(ctx, text, expense.UserID)
		if err != nil {
			slog.Warn("Failed to rank alternatives", "expense_id", expense.ID, "error", err)
		}
		for _, alt := range result.Alternatives {
			add(alt.CategoryID)
		}
		if len(item.Options) > 1 {
			return item
		}
	}

	for _, cat := range a.table.Active() {
		add(cat.ID)
	}
	return item
}
