// Package storage provides the SQLite persistence layer for tally.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-tally/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidWeight  = errors.New("invalid learned weight")
	ErrInvalidExpense = errors.New("invalid expense")
	ErrInvalidStatus  = errors.New("invalid expense status")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateWeightWrite checks the new row and that expected describes the same key.
func validateWeightWrite(expected *model.LearnedKeywordWeight, next model.LearnedKeywordWeight) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWeight, err)
	}
	if expected != nil && expected.Key() != next.Key() {
		return fmt.Errorf("%w: expected row %s does not match %s", ErrInvalidWeight, expected.Key(), next.Key())
	}
	return nil
}

// validateExpense validates an expense before insert.
func validateExpense(expense *model.Expense) error {
	if expense == nil {
		return fmt.Errorf("%w: expense", ErrNilParameter)
	}
	if expense.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidExpense)
	}
	if expense.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidExpense)
	}
	if expense.Currency == "" {
		return fmt.Errorf("%w: missing currency", ErrInvalidExpense)
	}
	if expense.Confidence < 0 || expense.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.3f outside [0,1]", ErrInvalidExpense, expense.Confidence)
	}
	if err := validateStatuses(expense.Status); err != nil {
		return err
	}
	if expense.CategoryID != nil && !expense.Status.IsAccepted() {
		return fmt.Errorf("%w: category set on %s expense", ErrInvalidExpense, expense.Status)
	}
	return nil
}

func validateStatuses(statuses ...model.ExpenseStatus) error {
	for _, status := range statuses {
		if _, err := model.ParseExpenseStatus(string(status)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidStatus, err)
		}
	}
	return nil
}
