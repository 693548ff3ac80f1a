package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-tally/internal/cli"
	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/extraction"
	"github.com/Veraticus/spice-tally/internal/model"
	"github.com/Veraticus/spice-tally/internal/service"
)

func expenseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expense",
		Short: "Record, confirm and list expenses",
	}

	cmd.AddCommand(addExpenseCmd())
	cmd.AddCommand(importExpensesCmd())
	cmd.AddCommand(confirmExpenseCmd())
	cmd.AddCommand(rejectExpenseCmd())
	cmd.AddCommand(listExpensesCmd())
	cmd.AddCommand(summaryCmd())

	return cmd
}

func addExpenseCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "add <message>",
		Short: "Record an expense from a short message",
		Long: `Parse an amount from the message, guess its category and store it.

Confident guesses for a category you have used before are confirmed
automatically; everything else waits for 'tally review'.`,
		Example: `  tally expense add "50 pesos tacos con amigos"
  tally expense add -u alice "$12.50 uber to the airport"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			text := strings.Join(args, " ")
			draft, err := a.oracle.Extract(ctx, userID, text)
			if err != nil {
				return errors.New(common.UserMessage(fmt.Errorf("%w: %w", common.ErrInvalidExtractionInput, err)))
			}

			expense, err := a.manager.Submit(ctx, draft)
			if err != nil {
				common.LogError(err, "Failed to record expense", common.Fields{"user_id": userID})
				return errors.New(common.UserMessage(err))
			}

			printExpense(cmd.OutOrStdout(), a, expense)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", defaultUser(), "User recording the expense")

	return cmd
}

func importExpensesCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Record one expense per line of a text file",
		Long: `Run every non-empty line of the file through extraction, inference and
the confirmation lifecycle. Lines without an amount are counted and skipped.
Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			lines, err := readLines(args[0])
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Nothing to import."))
				return nil
			}

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			bar := progressbar.NewOptions(len(lines),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("[cyan][bold]Importing expenses...[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
			)

			start := time.Now()
			stats := service.ImportStats{}
			for _, line := range lines {
				if err := ctx.Err(); err != nil {
					return err
				}
				stats.Total++

				draft, err := a.oracle.Extract(ctx, userID, line)
				if err != nil {
					if !errors.Is(err, extraction.ErrUnparseable) {
						return err
					}
					stats.Unparseable++
					slog.Debug("Skipping line without amount", "line", line)
					_ = bar.Add(1)
					continue
				}

				expense, err := a.manager.Submit(ctx, draft)
				if err != nil {
					return fmt.Errorf("failed to import %q: %w", line, err)
				}
				switch expense.Status {
				case model.StatusAutoConfirmed:
					stats.AutoConfirmed++
				case model.StatusNeedsReview:
					stats.NeedsReview++
				}
				_ = bar.Add(1)
			}
			_ = bar.Finish()
			stats.Duration = time.Since(start)

			summary := fmt.Sprintf("  • Lines: %d\n", stats.Total) +
				fmt.Sprintf("  • Auto-confirmed: %d\n", stats.AutoConfirmed) +
				fmt.Sprintf("  • Needs review: %d\n", stats.NeedsReview) +
				fmt.Sprintf("  • Unparseable: %d\n", stats.Unparseable) +
				fmt.Sprintf("  • Time taken: %s\n", stats.Duration.Round(time.Millisecond))
			fmt.Fprintln(cmd.OutOrStdout(), "\n"+cli.RenderBox("Import Complete", summary))
			if stats.NeedsReview > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Run 'tally review' to sort out the rest."))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", defaultUser(), "User recording the expenses")

	return cmd
}

func confirmExpenseCmd() *cobra.Command {
	var categoryRef string

	cmd := &cobra.Command{
		Use:   "confirm <expense-id>",
		Short: "Accept the suggested category, or pick another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var chosen *int64
			if categoryRef != "" {
				cat, err := resolveCategory(a.table, categoryRef)
				if err != nil {
					return err
				}
				chosen = &cat.ID
			}

			expense, err := a.manager.Confirm(ctx, args[0], chosen)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return fmt.Errorf("expense %s not found", args[0])
				}
				return errors.New(common.UserMessage(err))
			}

			printExpense(cmd.OutOrStdout(), a, expense)
			return nil
		},
	}

	cmd.Flags().StringVarP(&categoryRef, "category", "c", "", "Category slug or id to use instead of the suggestion")

	return cmd
}

func rejectExpenseCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <expense-id>",
		Short: "Decline an expense without categorizing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			expense, err := a.manager.Reject(ctx, args[0], reason)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return fmt.Errorf("expense %s not found", args[0])
				}
				return errors.New(common.UserMessage(err))
			}

			printExpense(cmd.OutOrStdout(), a, expense)
			return nil
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the expense was rejected")

	return cmd
}

func listExpensesCmd() *cobra.Command {
	var (
		userID   string
		statuses []string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's expenses, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			filter := service.ExpenseFilter{UserID: userID, Limit: limit}
			for _, s := range statuses {
				status, err := model.ParseExpenseStatus(s)
				if err != nil {
					return err
				}
				filter.Statuses = append(filter.Statuses, status)
			}

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			expenses, err := a.store.ListExpenses(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to list expenses: %w", err)
			}
			if len(expenses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.InfoStyle.Render("No expenses found. Use 'tally expense add' to record one."))
				return nil
			}

			cfg := a.settings.LifecycleConfig()
			rows := make([][]string, 0, len(expenses))
			for _, e := range expenses {
				category := ""
				switch {
				case e.CategoryID != nil:
					category = categoryLabel(a.table, *e.CategoryID)
				case e.SuggestedCategoryID != nil:
					category = cli.SubtleStyle.Render(categoryLabel(a.table, *e.SuggestedCategoryID) + "?")
				}
				rows = append(rows, []string{
					e.ID,
					e.SpentAt.Format("2006-01-02"),
					e.Amount() + " " + e.Currency,
					e.Description,
					category,
					cli.FormatConfidence(e.Confidence, cfg.AutoConfirmThreshold, cfg.ReviewFloor),
					cli.FormatStatus(e.Status),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable(
				[]string{"ID", "DATE", "AMOUNT", "DESCRIPTION", "CATEGORY", "CONF", "STATUS"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", defaultUser(), "User whose expenses to list")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only these statuses (pending, needs_review, auto_confirmed, confirmed, rejected)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of expenses")

	return cmd
}

func summaryCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Total accepted spend by top-level category",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			expenses, err := a.store.ListExpenses(ctx, service.ExpenseFilter{
				UserID:   userID,
				Statuses: []model.ExpenseStatus{model.StatusAutoConfirmed, model.StatusConfirmed},
			})
			if err != nil {
				return fmt.Errorf("failed to list expenses: %w", err)
			}

			rows := [][]string{}
			for _, sum := range a.table.RollUp(expenses) {
				rows = append(rows, []string{sum.Name, fmt.Sprintf("%d", sum.Count), model.FormatCents(sum.AmountCents)})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.InfoStyle.Render("No confirmed expenses yet."))
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatTitle("Spend by category"))
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable([]string{"CATEGORY", "COUNT", "AMOUNT"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", defaultUser(), "User whose spend to summarize")

	return cmd
}

func printExpense(w io.Writer, a *app, e *model.Expense) {
	cfg := a.settings.LifecycleConfig()

	var b strings.Builder
	fmt.Fprintf(&b, "ID: %s\n", e.ID)
	fmt.Fprintf(&b, "Amount: %s %s\n", e.Amount(), e.Currency)
	if e.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", e.Description)
	}
	switch {
	case e.CategoryID != nil:
		fmt.Fprintf(&b, "Category: %s\n", categoryLabel(a.table, *e.CategoryID))
	case e.SuggestedCategoryID != nil:
		fmt.Fprintf(&b, "Suggested: %s\n", categoryLabel(a.table, *e.SuggestedCategoryID))
	}
	fmt.Fprintf(&b, "Confidence: %s\n", cli.FormatConfidence(e.Confidence, cfg.AutoConfirmThreshold, cfg.ReviewFloor))
	fmt.Fprintf(&b, "Status: %s", cli.FormatStatus(e.Status))
	if e.RejectionReason != nil {
		fmt.Fprintf(&b, "\nReason: %s", *e.RejectionReason)
	}

	fmt.Fprintln(w, cli.RenderBox("Expense", b.String()))
}

func readLines(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path) // #nosec G304 - path is a user-supplied import file
		if err != nil {
			return nil, fmt.Errorf("failed to open import file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	return lines, nil
}
