package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/spice-tally/internal/model"
)

// ErrInputTerminated is returned when the input stream closes mid-prompt.
var ErrInputTerminated = errors.New("input terminated")

// ReviewAction is what the reviewer decided for one expense.
type ReviewAction string

// Review actions.
const (
	ActionAccept ReviewAction = "accept"
	ActionPick   ReviewAction = "pick"
	ActionReject ReviewAction = "reject"
	ActionSkip   ReviewAction = "skip"
	ActionQuit   ReviewAction = "quit"
)

// CategoryOption is one numbered choice shown to the reviewer.
type CategoryOption struct {
	Label string
	ID    int64
}

// ReviewItem is an expense waiting on a reviewer, with the suggestion and
// the categories to offer. When the expense fell below the review floor the
// caller passes the whole active category list as Options.
type ReviewItem struct {
	SuggestedLabel string
	Options        []CategoryOption
	Expense        model.Expense
	Threshold      float64
	Floor          float64
}

// ReviewDecision is the reviewer's answer for one item.
type ReviewDecision struct {
	Action     ReviewAction
	Reason     string
	CategoryID int64
}

// ReviewStats counts decisions across a session.
type ReviewStats struct {
	Duration  time.Duration
	Total     int
	Accepted  int
	Corrected int
	Rejected  int
	Skipped   int
}

// Prompter walks a reviewer through the needs_review queue.
type Prompter struct {
	startTime   time.Time
	writer      io.Writer
	reader      *LineReader
	progressBar *progressbar.ProgressBar
	stats       ReviewStats
	total       int
	statsMutex  sync.RWMutex
}

// NewPrompter creates a review prompter on the given reader and writer.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	return &Prompter{
		reader:    NewLineReader(reader),
		writer:    writer,
		startTime: time.Now(),
	}
}

// Review shows one expense and waits for a decision.
func (p *Prompter) Review(ctx context.Context, item ReviewItem) (ReviewDecision, error) {
	select {
	case <-ctx.Done():
		return ReviewDecision{}, ctx.Err()
	default:
	}

	if _, err := fmt.Fprintln(p.writer, RenderBox("Expense Review", p.formatExpense(item))); err != nil {
		return ReviewDecision{}, fmt.Errorf("failed to write expense box: %w", err)
	}

	canAccept := !item.Expense.BelowFloor && item.Expense.SuggestedCategoryID != nil
	valid := []string{"r", "s", "q"}

	var b strings.Builder
	b.WriteString(FormatPrompt("Options:") + "\n")
	if canAccept {
		fmt.Fprintf(&b, "  [A] Accept suggestion: %s\n", SuccessStyle.Render(item.SuggestedLabel))
		valid = append(valid, "a")
	}
	for i, opt := range item.Options {
		fmt.Fprintf(&b, "  [%d] %s\n", i+1, opt.Label)
		valid = append(valid, strconv.Itoa(i+1))
	}
	b.WriteString("  [R] Reject this expense\n")
	b.WriteString("  [S] Skip for now\n")
	b.WriteString("  [Q] Quit review\n")
	if _, err := fmt.Fprintln(p.writer, b.String()); err != nil {
		return ReviewDecision{}, fmt.Errorf("failed to write options: %w", err)
	}

	choice, err := p.promptChoice(ctx, "Choice", valid)
	if err != nil {
		return ReviewDecision{}, err
	}

	var decision ReviewDecision
	switch choice {
	case "a":
		decision = ReviewDecision{Action: ActionAccept, CategoryID: *item.Expense.SuggestedCategoryID}
	case "r":
		reason, err := p.promptLine(ctx, "Reason (optional)")
		if err != nil {
			return ReviewDecision{}, err
		}
		decision = ReviewDecision{Action: ActionReject, Reason: reason}
	case "s":
		decision = ReviewDecision{Action: ActionSkip}
	case "q":
		return ReviewDecision{Action: ActionQuit}, nil
	default:
		n, _ := strconv.Atoi(choice)
		picked := item.Options[n-1].ID
		decision = ReviewDecision{Action: ActionPick, CategoryID: picked}
		if item.Expense.SuggestedCategoryID != nil && *item.Expense.SuggestedCategoryID == picked {
			decision.Action = ActionAccept
		}
	}

	p.record(decision.Action)
	return decision, nil
}

// Stats returns the decisions made so far.
func (p *Prompter) Stats() ReviewStats {
	p.statsMutex.RLock()
	defer p.statsMutex.RUnlock()

	stats := p.stats
	stats.Duration = time.Since(p.startTime)
	return stats
}

// SetTotal sets how many expenses the session will show and starts the
// progress bar.
func (p *Prompter) SetTotal(total int) {
	p.total = total
	if total > 0 {
		p.initProgressBar()
	}
}

// ShowCompletion displays the session summary.
func (p *Prompter) ShowCompletion() {
	if p.progressBar != nil {
		if err := p.progressBar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
	}

	stats := p.Stats()
	summary := fmt.Sprintf("%s Review Complete!\n\n", TallyIcon) +
		fmt.Sprintf("  • Reviewed: %d\n", stats.Total) +
		fmt.Sprintf("  • Accepted: %d\n", stats.Accepted) +
		fmt.Sprintf("  • Corrected: %d\n", stats.Corrected) +
		fmt.Sprintf("  • Rejected: %d\n", stats.Rejected) +
		fmt.Sprintf("  • Skipped: %d\n", stats.Skipped) +
		fmt.Sprintf("  • Time taken: %s\n", stats.Duration.Round(time.Second))

	if _, err := fmt.Fprintln(p.writer, RenderBox("Review Complete", summary)); err != nil {
		slog.Warn("Failed to write completion box", "error", err)
	}
}

func (p *Prompter) initProgressBar() {
	p.progressBar = progressbar.NewOptions(p.total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Reviewing expenses...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (p *Prompter) record(action ReviewAction) {
	p.statsMutex.Lock()
	p.stats.Total++
	switch action {
	case ActionAccept:
		p.stats.Accepted++
	case ActionPick:
		p.stats.Corrected++
	case ActionReject:
		p.stats.Rejected++
	case ActionSkip:
		p.stats.Skipped++
	}
	p.statsMutex.Unlock()

	if p.progressBar != nil {
		if err := p.progressBar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}

func (p *Prompter) formatExpense(item ReviewItem) string {
	e := item.Expense

	var b strings.Builder
	b.WriteString(TitleStyle.Render(e.Description) + "\n")
	fmt.Fprintf(&b, "  Date: %s\n", e.SpentAt.Format("Jan 2, 2006"))
	fmt.Fprintf(&b, "  Amount: %s %s\n", e.Amount(), e.Currency)
	if e.MerchantName != "" {
		fmt.Fprintf(&b, "  Merchant: %s\n", e.MerchantName)
	}
	if e.RawText != "" && e.RawText != e.Description {
		fmt.Fprintf(&b, "  Message: %s\n", SubtleStyle.Render(e.RawText))
	}
	fmt.Fprintf(&b, "  Confidence: %s\n", FormatConfidence(e.Confidence, item.Threshold, item.Floor))

	if e.BelowFloor || e.SuggestedCategoryID == nil {
		b.WriteString("\n" + FormatWarning("No confident guess. Pick a category."))
	} else {
		b.WriteString("\n" + FormatInfo("Suggested: "+item.SuggestedLabel))
	}
	return b.String()
}

func (p *Prompter) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		input, err := p.promptLine(ctx, prompt)
		if err != nil {
			return "", err
		}

		choice := strings.ToLower(input)
		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}

		if _, err := fmt.Fprintln(p.writer, FormatError("Invalid choice. Please try again.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}

func (p *Prompter) promptLine(ctx context.Context, prompt string) (string, error) {
	if _, err := fmt.Fprintf(p.writer, "%s: ", FormatPrompt(prompt)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}

	input, err := p.reader.ReadLine(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrInputTerminated
		}
		if errors.Is(err, ErrInputCancelled) {
			return "", ctx.Err()
		}
		return "", err
	}
	return input, nil
}
