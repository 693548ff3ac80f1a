package lifecycle

//go:generate mockgen -source=learner.go -destination=learner_mock.go -package=lifecycle

import (
	"context"

	"github.com/Veraticus/spice-tally/internal/model"
)

// Learner receives feedback once an expense's category is committed.
type Learner interface {
	OnConfirmed(ctx context.Context, expense *model.Expense) error
	OnCorrected(ctx context.Context, expense *model.Expense, suggestedID, finalID int64) error
}

// Inferrer suggests a category for a user's text.
type Inferrer interface {
	Infer(ctx context.Context, text, userID string) (model.InferenceResult, error)
}
