package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/keywords"
	"github.com/Veraticus/spice-tally/internal/model"
	"github.com/Veraticus/spice-tally/internal/service"
)

// Config holds the confidence thresholds that pick the initial branch.
type Config struct {
	DefaultCurrency      string
	AutoConfirmThreshold float64
	ReviewFloor          float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		DefaultCurrency:      "USD",
		AutoConfirmThreshold: 0.85,
		ReviewFloor:          0.3,
	}
}

// Validate checks that both thresholds are probabilities and ordered.
func (c Config) Validate() error {
	switch {
	case c.AutoConfirmThreshold < 0 || c.AutoConfirmThreshold > 1:
		return fmt.Errorf("%w: auto-confirm threshold must be in [0, 1], got %v", common.ErrInvalidConfig, c.AutoConfirmThreshold)
	case c.ReviewFloor < 0 || c.ReviewFloor > 1:
		return fmt.Errorf("%w: review floor must be in [0, 1], got %v", common.ErrInvalidConfig, c.ReviewFloor)
	case c.ReviewFloor > c.AutoConfirmThreshold:
		return fmt.Errorf("%w: review floor %v is above auto-confirm threshold %v", common.ErrInvalidConfig, c.ReviewFloor, c.AutoConfirmThreshold)
	}
	return nil
}

// Manager applies lifecycle transitions against an expense store.
// Every transition is a check-and-set on the stored status, so feedback
// runs at most once per expense even under duplicate delivery.
type Manager struct {
	store    service.ExpenseStore
	table    *keywords.Table
	inferrer Inferrer
	learner  Learner
	now      func() time.Time
	newID    func() string
	cfg      Config
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator overrides expense id generation.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

// NewManager creates a lifecycle manager. The inferrer is only needed by Submit.
func NewManager(store service.ExpenseStore, table *keywords.Table, inferrer Inferrer, learner Learner, cfg Config, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: expense store", common.ErrMissingConfig)
	}
	if table == nil {
		return nil, common.ErrUnresolvableCategory
	}
	if learner == nil {
		return nil, fmt.Errorf("%w: learner", common.ErrMissingConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		store:    store,
		table:    table,
		inferrer: inferrer,
		learner:  learner,
		cfg:      cfg,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Submit infers a category for an extracted draft and creates the expense.
// An invalid draft is rejected before inference runs.
func (m *Manager) Submit(ctx context.Context, draft model.ExtractedDraft) (*model.Expense, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	if m.inferrer == nil {
		return nil, fmt.Errorf("%w: inferrer", common.ErrMissingConfig)
	}

	result, err := m.inferrer.Infer(ctx, inferenceText(draft), draft.UserID)
	if err != nil {
		return nil, err
	}
	return m.CreatePendingExpense(ctx, draft, result)
}

// CreatePendingExpense builds a pending expense and resolves its initial
// branch before anything is written: auto_confirmed when the confidence is at
// or above the threshold and the user already accepted an expense in the
// suggested category, needs_review otherwise. The row is inserted once, in
// its target status, so a failed lookup leaves nothing behind.
func (m *Manager) CreatePendingExpense(ctx context.Context, draft model.ExtractedDraft, result model.InferenceResult) (*model.Expense, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	suggested, ok := m.table.ByID(result.CategoryID)
	if !ok {
		return nil, fmt.Errorf("suggested category %d: %w", result.CategoryID, common.ErrInvalidCategory)
	}

	now := m.now()
	spentAt := draft.SpentAt
	if spentAt.IsZero() {
		spentAt = now
	}
	currency := strings.ToUpper(strings.TrimSpace(draft.Currency))
	if currency == "" {
		currency = m.cfg.DefaultCurrency
	}
	suggestedID := suggested.ID

	pending := &model.Expense{
		ID:                  m.newID(),
		UserID:              draft.UserID,
		AmountCents:         *draft.AmountCents,
		Currency:            currency,
		Description:         draft.Description,
		MerchantName:        draft.MerchantName,
		RawText:             draft.RawText,
		SpentAt:             spentAt,
		CreatedAt:           now,
		Status:              model.StatusPending,
		SuggestedCategoryID: &suggestedID,
		Confidence:          result.Confidence,
		BelowFloor:          result.Confidence < m.cfg.ReviewFloor,
	}

	event := EventRequestReview
	if !result.Fallback && result.Confidence >= m.cfg.AutoConfirmThreshold {
		seen, err := m.store.HasAcceptedExpense(ctx, pending.UserID, suggestedID)
		if err != nil {
			return nil, fmt.Errorf("failed to check category history: %w", err)
		}
		if seen {
			event = EventAutoConfirm
		}
	}

	next, effects, err := Transition(pending.Status, event)
	if err != nil {
		return nil, fmt.Errorf("expense %s: %w", pending.ID, err)
	}
	expense, err := commit(pending, next, effects, nil, "", now)
	if err != nil {
		return nil, err
	}

	if err := m.store.CreateExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}

	slog.Info("Expense created",
		"expense_id", expense.ID,
		"user_id", expense.UserID,
		"status", expense.Status,
		"confidence", expense.Confidence)

	m.learn(ctx, expense, effects)
	return expense, nil
}

// Confirm accepts an expense. A nil or matching chosen category accepts the
// suggestion; any other category is an override and trains the correction.
func (m *Manager) Confirm(ctx context.Context, expenseID string, chosen *int64) (*model.Expense, error) {
	expense, err := m.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}

	event := EventConfirm
	if chosen != nil && (expense.SuggestedCategoryID == nil || *chosen != *expense.SuggestedCategoryID) {
		cat, ok := m.table.ByID(*chosen)
		if !ok || !cat.IsActive {
			return nil, fmt.Errorf("category %d: %w", *chosen, common.ErrInvalidCategory)
		}
		event = EventOverride
	}

	return m.apply(ctx, expense, event, chosen, "")
}

// Reject declines an expense. No category is committed and nothing is learned.
func (m *Manager) Reject(ctx context.Context, expenseID, reason string) (*model.Expense, error) {
	expense, err := m.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	return m.apply(ctx, expense, EventReject, nil, strings.TrimSpace(reason))
}

func (m *Manager) apply(ctx context.Context, expense *model.Expense, event Event, chosen *int64, reason string) (*model.Expense, error) {
	next, effects, err := Transition(expense.Status, event)
	if err != nil {
		return nil, fmt.Errorf("expense %s: %w", expense.ID, err)
	}

	updated, err := commit(expense, next, effects, chosen, reason, m.now())
	if err != nil {
		return nil, err
	}

	if err := m.store.TransitionExpense(ctx, updated, expense.Status); err != nil {
		if errors.Is(err, common.ErrDuplicateTransition) {
			slog.Info("Ignoring duplicate transition", "expense_id", expense.ID, "event", event)
		}
		return nil, err
	}

	slog.Info("Expense transitioned",
		"expense_id", updated.ID,
		"user_id", updated.UserID,
		"from", expense.Status,
		"to", updated.Status,
		"confidence", updated.Confidence)

	m.learn(ctx, updated, effects)
	return updated, nil
}

// commit returns a copy of expense moved to next with the effects' fields set.
func commit(expense *model.Expense, next model.ExpenseStatus, effects []Effect, chosen *int64, reason string, now time.Time) (*model.Expense, error) {
	updated := *expense
	updated.Status = next

	for _, effect := range effects {
		switch effect {
		case EffectCommitSuggested:
			if expense.SuggestedCategoryID == nil {
				return nil, fmt.Errorf("expense %s has no suggestion to commit: %w", expense.ID, common.ErrInvalidCategory)
			}
			id := *expense.SuggestedCategoryID
			updated.CategoryID = &id
			updated.ConfirmedAt = &now
		case EffectCommitChosen:
			id := *chosen
			updated.CategoryID = &id
			updated.ConfirmedAt = &now
		case EffectRecordRejection:
			updated.RejectedAt = &now
			if reason != "" {
				r := reason
				updated.RejectionReason = &r
			}
		}
	}
	return &updated, nil
}

// learn runs feedback after the transition is stored. A learning failure does
// not undo the committed category, so it is logged rather than returned.
func (m *Manager) learn(ctx context.Context, expense *model.Expense, effects []Effect) {
	var err error
	switch {
	case hasEffect(effects, EffectLearnConfirmed):
		err = m.learner.OnConfirmed(ctx, expense)
	case hasEffect(effects, EffectLearnCorrected):
		var suggestedID int64
		if expense.SuggestedCategoryID != nil {
			suggestedID = *expense.SuggestedCategoryID
		}
		err = m.learner.OnCorrected(ctx, expense, suggestedID, *expense.CategoryID)
	default:
		return
	}
	if err != nil {
		common.UserLogger(expense.UserID).Warn("Failed to learn from expense",
			"expense_id", expense.ID,
			"error", err)
	}
}

func validateDraft(draft model.ExtractedDraft) error {
	if draft.AmountCents == nil {
		return fmt.Errorf("%w: amount", common.ErrInvalidExtractionInput)
	}
	if strings.TrimSpace(draft.UserID) == "" {
		return fmt.Errorf("%w: user id", common.ErrInvalidExtractionInput)
	}
	return nil
}

func inferenceText(draft model.ExtractedDraft) string {
	if strings.TrimSpace(draft.RawText) != "" {
		return draft.RawText
	}
	return strings.TrimSpace(draft.Description + " " + draft.MerchantName)
}
