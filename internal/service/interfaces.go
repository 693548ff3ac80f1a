// Package service defines the interfaces shared between the core and its storage backends.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-tally/internal/model"
)

// ExpenseFilter defines filtering options for expense queries.
type ExpenseFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	UserID    string
	Statuses  []model.ExpenseStatus
	Limit     int
	Offset    int
}

// CategoryStore persists the two-level category tree.
type CategoryStore interface {
	GetCategories(ctx context.Context) ([]model.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*model.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*model.Category, error)
	// SaveCategory inserts or updates a category keyed by slug and sets its ID.
	// A parent that is itself a child is rejected.
	SaveCategory(ctx context.Context, category *model.Category) error
}

// WeightStore persists per-user learned keyword weights.
type WeightStore interface {
	GetUserWeights(ctx context.Context, userID string) ([]model.LearnedKeywordWeight, error)
	GetWeight(ctx context.Context, key model.WeightKey) (*model.LearnedKeywordWeight, error)
	// SaveWeight writes next only if the stored row still matches expected.
	// A nil expected means the row must not exist yet. A mismatch returns
	// common.ErrStaleWeightWrite.
	SaveWeight(ctx context.Context, expected *model.LearnedKeywordWeight, next model.LearnedKeywordWeight) error
	ListWeightUsers(ctx context.Context) ([]string, error)
}

// ExpenseStore persists expenses and applies lifecycle transitions.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, expense *model.Expense) error
	GetExpense(ctx context.Context, id string) (*model.Expense, error)
	// TransitionExpense stores the expense's new status and category fields only
	// if the stored status is one of from. Otherwise it returns
	// common.ErrDuplicateTransition.
	TransitionExpense(ctx context.Context, expense *model.Expense, from ...model.ExpenseStatus) error
	HasAcceptedExpense(ctx context.Context, userID string, categoryID int64) (bool, error)
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]model.Expense, error)
	DeleteUserData(ctx context.Context, userID string) error
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	CategoryStore
	WeightStore
	ExpenseStore

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// CategorySummary contains aggregated spend for one display category.
type CategorySummary struct {
	Slug        string
	Name        string
	Count       int
	AmountCents int64
}

// ImportStats shows the results of a bulk expense import.
type ImportStats struct {
	Total         int
	AutoConfirmed int
	NeedsReview   int
	Unparseable   int
	Duration      time.Duration
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}
