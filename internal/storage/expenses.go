package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/model"
	"github.com/Veraticus/spice-tally/internal/service"
)

const expenseColumns = `id, user_id, amount_cents, currency, description, merchant_name, raw_text,
	category_id, suggested_category_id, confidence, below_floor, status, rejection_reason,
	spent_at, created_at, confirmed_at, rejected_at`

// CreateExpense inserts a new expense in its initial lifecycle state.
func (s *SQLiteStorage) CreateExpense(ctx context.Context, expense *model.Expense) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateExpense(expense); err != nil {
		return err
	}

	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now()
	}
	if expense.SpentAt.IsZero() {
		expense.SpentAt = expense.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		expense.ID, expense.UserID, expense.AmountCents, expense.Currency, expense.Description,
		expense.MerchantName, expense.RawText, nullableID(expense.CategoryID),
		nullableID(expense.SuggestedCategoryID), expense.Confidence, expense.BelowFloor,
		string(expense.Status), nullableString(expense.RejectionReason),
		expense.SpentAt.UTC(), expense.CreatedAt.UTC(),
		nullableTime(expense.ConfirmedAt), nullableTime(expense.RejectedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("expense %s: %w", expense.ID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

// GetExpense returns an expense by id or common.ErrNotFound.
func (s *SQLiteStorage) GetExpense(ctx context.Context, id string) (*model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getExpenseTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getExpenseTx(ctx context.Context, q queryable, id string) (*model.Expense, error) {
	exp, err := scanExpense(q.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", id, common.ErrNotFound)
	}
	return exp, err
}

// TransitionExpense writes the expense's lifecycle fields only if the stored
// status is still one of from. The suggested category is never rewritten.
func (s *SQLiteStorage) TransitionExpense(ctx context.Context, expense *model.Expense, from ...model.ExpenseStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if expense == nil {
		return fmt.Errorf("%w: expense", ErrNilParameter)
	}
	if len(from) == 0 {
		return fmt.Errorf("%w: from statuses", ErrNilParameter)
	}
	if err := validateStatuses(append([]model.ExpenseStatus{expense.Status}, from...)...); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	args := []any{
		string(expense.Status), nullableID(expense.CategoryID), nullableString(expense.RejectionReason),
		nullableTime(expense.ConfirmedAt), nullableTime(expense.RejectedAt), expense.ID,
	}
	for _, status := range from {
		args = append(args, string(status))
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE expenses
		SET status = ?, category_id = ?, rejection_reason = ?, confirmed_at = ?, rejected_at = ?
		WHERE id = ? AND status IN (`+placeholders(len(from))+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to transition expense: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		current, err := s.getExpenseTx(ctx, tx, expense.ID)
		if err != nil {
			return err
		}
		return fmt.Errorf("expense %s is %s: %w", expense.ID, current.Status, common.ErrDuplicateTransition)
	}

	return tx.Commit()
}

// HasAcceptedExpense reports whether the user has a confirmed or
// auto-confirmed expense in the category.
func (s *SQLiteStorage) HasAcceptedExpense(ctx context.Context, userID string, categoryID int64) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return false, err
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM expenses
			WHERE user_id = ? AND category_id = ? AND status IN (?, ?)
		)
	`, userID, categoryID, string(model.StatusConfirmed), string(model.StatusAutoConfirmed)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check expense history: %w", err)
	}
	return exists, nil
}

// ListExpenses returns expenses matching the filter, newest first.
func (s *SQLiteStorage) ListExpenses(ctx context.Context, filter service.ExpenseFilter) ([]model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateStatuses(filter.Statuses...); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if filter.StartDate != nil {
		where = append(where, "spent_at >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		where = append(where, "spent_at <= ?")
		args = append(args, filter.EndDate.UTC())
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var expenses []model.Expense
	for rows.Next() {
		exp, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expenses: %w", err)
	}
	return expenses, nil
}

func scanExpense(row rowScanner) (*model.Expense, error) {
	var (
		exp         model.Expense
		categoryID  sql.NullInt64
		suggestedID sql.NullInt64
		status      string
		reason      sql.NullString
		confirmedAt sql.NullTime
		rejectedAt  sql.NullTime
	)
	err := row.Scan(
		&exp.ID, &exp.UserID, &exp.AmountCents, &exp.Currency, &exp.Description, &exp.MerchantName, &exp.RawText,
		&categoryID, &suggestedID, &exp.Confidence, &exp.BelowFloor, &status, &reason,
		&exp.SpentAt, &exp.CreatedAt, &confirmedAt, &rejectedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan expense: %w", err)
	}

	exp.Status, err = model.ParseExpenseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStatus, err)
	}
	if categoryID.Valid {
		id := categoryID.Int64
		exp.CategoryID = &id
	}
	if suggestedID.Valid {
		id := suggestedID.Int64
		exp.SuggestedCategoryID = &id
	}
	if reason.Valid {
		r := reason.String
		exp.RejectionReason = &r
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		exp.ConfirmedAt = &t
	}
	if rejectedAt.Valid {
		t := rejectedAt.Time
		exp.RejectedAt = &t
	}
	return &exp, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
