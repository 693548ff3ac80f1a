// Package learning turns user confirmations and corrections into learned
// keyword weights, and periodically decays weights that stopped being used.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/model"
	"github.com/Veraticus/spice-tally/internal/normalize"
	"github.com/Veraticus/spice-tally/internal/service"
)

// Config holds the reinforcement and penalty parameters.
type Config struct {
	InitialWeight   float64
	MaxWeight       float64
	ReinforceStep   float64
	PenaltyStep     float64
	PenaltyFloor    float64
	MaxWriteRetries int
	RetryDelay      time.Duration
}

// DefaultConfig returns the standard learning parameters.
func DefaultConfig() Config {
	return Config{
		InitialWeight:   model.InitialKeywordWeight,
		MaxWeight:       model.MaxKeywordWeight,
		ReinforceStep:   0.1,
		PenaltyStep:     0.2,
		PenaltyFloor:    0.1,
		MaxWriteRetries: 3,
		RetryDelay:      5 * time.Millisecond,
	}
}

// Validate checks that the parameters keep weights inside [0, MaxKeywordWeight].
func (c Config) Validate() error {
	switch {
	case c.MaxWeight <= 0 || c.MaxWeight > model.MaxKeywordWeight:
		return fmt.Errorf("%w: max weight must be in (0, %.1f], got %v", common.ErrInvalidConfig, model.MaxKeywordWeight, c.MaxWeight)
	case c.InitialWeight <= 0 || c.InitialWeight > c.MaxWeight:
		return fmt.Errorf("%w: initial weight must be in (0, max weight], got %v", common.ErrInvalidConfig, c.InitialWeight)
	case c.ReinforceStep < 0 || c.PenaltyStep < 0:
		return fmt.Errorf("%w: weight steps must not be negative", common.ErrInvalidConfig)
	case c.PenaltyFloor < 0 || c.PenaltyFloor > c.MaxWeight:
		return fmt.Errorf("%w: penalty floor must be in [0, max weight], got %v", common.ErrInvalidConfig, c.PenaltyFloor)
	case c.MaxWriteRetries < 0:
		return fmt.Errorf("%w: max write retries must not be negative", common.ErrInvalidConfig)
	}
	return nil
}

// Service applies feedback from accepted expenses to the weight store.
type Service struct {
	store service.WeightStore
	now   func() time.Time
	cfg   Config
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for last-used timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a feedback service.
func NewService(store service.WeightStore, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: weight store", common.ErrMissingConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OnConfirmed reinforces every keyword of the expense's raw text toward the
// category it was accepted under.
func (s *Service) OnConfirmed(ctx context.Context, expense *model.Expense) error {
	if expense == nil {
		return fmt.Errorf("%w: expense", common.ErrInvalidExtractionInput)
	}
	categoryID := acceptedCategory(expense)
	if categoryID == 0 {
		return fmt.Errorf("%w: expense %s has no category to learn", common.ErrInvalidCategory, expense.ID)
	}

	tokens := feedbackTokens(expense)
	now := s.now()

	var errs []error
	for _, token := range tokens {
		key := model.WeightKey{UserID: expense.UserID, Keyword: token, CategoryID: categoryID}
		if err := s.reinforce(ctx, key, now); err != nil {
			errs = append(errs, err)
		}
	}

	slog.Debug("learned from confirmation",
		"user_id", expense.UserID,
		"expense_id", expense.ID,
		"category_id", categoryID,
		"keywords", len(tokens))

	return errors.Join(errs...)
}

// OnCorrected reinforces the keywords toward the final category and softly
// penalizes any existing association with the rejected suggestion.
func (s *Service) OnCorrected(ctx context.Context, expense *model.Expense, suggestedID, finalID int64) error {
	if expense == nil {
		return fmt.Errorf("%w: expense", common.ErrInvalidExtractionInput)
	}
	if finalID <= 0 {
		return fmt.Errorf("%w: expense %s has no final category", common.ErrInvalidCategory, expense.ID)
	}

	tokens := feedbackTokens(expense)
	now := s.now()

	var errs []error
	for _, token := range tokens {
		key := model.WeightKey{UserID: expense.UserID, Keyword: token, CategoryID: finalID}
		if err := s.reinforce(ctx, key, now); err != nil {
			errs = append(errs, err)
		}
		if suggestedID <= 0 || suggestedID == finalID {
			continue
		}
		wrong := model.WeightKey{UserID: expense.UserID, Keyword: token, CategoryID: suggestedID}
		if err := s.penalize(ctx, wrong); err != nil {
			errs = append(errs, err)
		}
	}

	slog.Debug("learned from correction",
		"user_id", expense.UserID,
		"expense_id", expense.ID,
		"suggested_category_id", suggestedID,
		"final_category_id", finalID,
		"keywords", len(tokens))

	return errors.Join(errs...)
}

// reinforce creates the row at the initial weight or bumps it by one step.
// Each attempt re-reads the row so a lost race is retried on fresh data.
func (s *Service) reinforce(ctx context.Context, key model.WeightKey, now time.Time) error {
	err := common.WithRetry(ctx, func() error {
		current, err := s.store.GetWeight(ctx, key)
		if errors.Is(err, common.ErrNotFound) {
			return s.store.SaveWeight(ctx, nil, model.NewLearnedWeight(key, s.cfg.InitialWeight, now))
		}
		if err != nil {
			return err
		}
		return s.store.SaveWeight(ctx, current, current.Reinforced(s.cfg.ReinforceStep, s.cfg.MaxWeight, now))
	}, s.retryOptions())
	if err != nil {
		return fmt.Errorf("failed to reinforce %s: %w", key, err)
	}
	return nil
}

// penalize lowers an existing row. A missing row is left missing.
func (s *Service) penalize(ctx context.Context, key model.WeightKey) error {
	err := common.WithRetry(ctx, func() error {
		current, err := s.store.GetWeight(ctx, key)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		next := current.Penalized(s.cfg.PenaltyStep, s.cfg.PenaltyFloor)
		if next.Weight == current.Weight {
			return nil
		}
		return s.store.SaveWeight(ctx, current, next)
	}, s.retryOptions())
	if err != nil {
		return fmt.Errorf("failed to penalize %s: %w", key, err)
	}
	return nil
}

func (s *Service) retryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  s.cfg.MaxWriteRetries + 1,
		InitialDelay: s.cfg.RetryDelay,
		MaxDelay:     time.Second,
	}
}

func acceptedCategory(expense *model.Expense) int64 {
	if expense.CategoryID != nil {
		return *expense.CategoryID
	}
	if expense.SuggestedCategoryID != nil {
		return *expense.SuggestedCategoryID
	}
	return 0
}

func feedbackTokens(expense *model.Expense) []string {
	text := expense.RawText
	if text == "" {
		text = expense.Description
	}
	return normalize.Tokens(text)
}
