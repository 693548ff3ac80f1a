// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Classification errors.
	ErrUnresolvableCategory = errors.New("no active categories loaded")
	ErrInvalidCategory      = errors.New("invalid category")

	// Lifecycle errors.
	ErrDuplicateTransition    = errors.New("expense already in a terminal state")
	ErrInvalidTransition      = errors.New("transition not allowed from current state")
	ErrInvalidExtractionInput = errors.New("extracted draft is missing a required field")

	// Learning errors.
	ErrStaleWeightWrite = errors.New("learned weight changed concurrently")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// UserMessage maps an error onto the prompt shown to the person who sent the
// expense. Internal details never leak: unknown failures become a generic retry.
func UserMessage(err error) string {
	var userErr *UserError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &userErr):
		return userErr.UserMessage
	case errors.Is(err, ErrInvalidExtractionInput):
		return "Could not detect an amount. Please try again, for example \"12.50 lunch\"."
	case errors.Is(err, ErrDuplicateTransition):
		return "This expense was already handled."
	case errors.Is(err, ErrInvalidCategory), errors.Is(err, ErrNotFound):
		return "Please pick a category from the list."
	default:
		return "Something went wrong. Please try again."
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrStaleWeightWrite) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
