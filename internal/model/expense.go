package model

import (
	"fmt"
	"time"
)

// ExpenseStatus is the lifecycle state of an expense.
type ExpenseStatus string

// Expense status constants.
const (
	StatusPending       ExpenseStatus = "pending"
	StatusAutoConfirmed ExpenseStatus = "auto_confirmed"
	StatusNeedsReview   ExpenseStatus = "needs_review"
	StatusConfirmed     ExpenseStatus = "confirmed"
	StatusRejected      ExpenseStatus = "rejected"
)

// ParseExpenseStatus converts a stored or user supplied value into a status.
func ParseExpenseStatus(s string) (ExpenseStatus, error) {
	switch status := ExpenseStatus(s); status {
	case StatusPending, StatusAutoConfirmed, StatusNeedsReview, StatusConfirmed, StatusRejected:
		return status, nil
	default:
		return "", fmt.Errorf("unknown expense status %q", s)
	}
}

// IsTerminal reports whether no further lifecycle transition is possible.
func (s ExpenseStatus) IsTerminal() bool {
	switch s {
	case StatusAutoConfirmed, StatusConfirmed, StatusRejected:
		return true
	default:
		return false
	}
}

// IsAccepted reports whether the expense's category was committed.
func (s ExpenseStatus) IsAccepted() bool {
	return s == StatusAutoConfirmed || s == StatusConfirmed
}

// Expense is a single user expense moving through the confirmation lifecycle.
//
// SuggestedCategoryID is the engine's pick and never changes once set; it is
// the training signal when the user overrides it. CategoryID stays nil until
// the expense is confirmed.
type Expense struct {
	CreatedAt           time.Time
	SpentAt             time.Time
	ConfirmedAt         *time.Time
	RejectedAt          *time.Time
	CategoryID          *int64
	SuggestedCategoryID *int64
	RejectionReason     *string
	ID                  string
	UserID              string
	Currency            string
	Description         string
	MerchantName        string
	RawText             string
	Status              ExpenseStatus
	AmountCents         int64
	Confidence          float64
	BelowFloor          bool
}

// Amount renders the fixed-point amount with two decimals.
func (e *Expense) Amount() string {
	return FormatCents(e.AmountCents)
}

// FormatCents renders minor units as a decimal string.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ExtractedDraft is what the extraction oracle hands to the core.
// AmountCents is nil when no amount was detected.
type ExtractedDraft struct {
	SpentAt      time.Time
	AmountCents  *int64
	UserID       string
	Currency     string
	Description  string
	MerchantName string
	RawText      string
	Confidence   float64
}
