// Package pgstore provides a PostgreSQL implementation of service.Storage.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/model"
	"github.com/Veraticus/spice-tally/internal/service"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// Config holds the PostgreSQL connection settings.
type Config struct {
	DSN         string
	MaxPoolSize int
}

// Store is a PostgreSQL backed service.Storage.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ service.Storage = (*Store)(nil)

// New connects to PostgreSQL. Call Migrate before first use.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", common.ErrMissingConfig)
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize) // #nosec G115 -- pool size comes from config
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL", "database", poolConfig.ConnConfig.Database)

	return &Store{pool: pool, logger: logger}, nil
}

// Migrate creates the schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	s.logger.Info("migrations completed successfully")
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const categoryColumns = `id, slug, name, description, parent_id, keywords, is_active, created_at`

// GetCategories returns every category, parents before children.
func (s *Store) GetCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating categories: %w", err)
	}
	return categories, nil
}

// GetCategoryByID returns a category or common.ErrNotFound.
func (s *Store) GetCategoryByID(ctx context.Context, id int64) (*model.Category, error) {
	return getCategory(ctx, s.pool, `id = $1`, id)
}

// GetCategoryBySlug returns a category or common.ErrNotFound.
func (s *Store) GetCategoryBySlug(ctx context.Context, slug string) (*model.Category, error) {
	return getCategory(ctx, s.pool, `slug = $1`, slug)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func getCategory(ctx context.Context, q querier, where string, arg any) (*model.Category, error) {
	cat, err := scanCategory(q.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("category %v: %w", arg, common.ErrNotFound)
	}
	return cat, err
}

// SaveCategory upserts by slug, keeping the tree two levels deep.
func (s *Store) SaveCategory(ctx context.Context, category *model.Category) error {
	if category == nil {
		return fmt.Errorf("%w: nil category", common.ErrInvalidCategory)
	}
	if err := category.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidCategory, err)
	}

	keywords := category.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if category.ParentID != nil {
			var (
				parentSlug  string
				grandparent *int64
				hasChildren bool
			)
			err := tx.QueryRow(ctx, `SELECT slug, parent_id FROM categories WHERE id = $1`, *category.ParentID).
				Scan(&parentSlug, &grandparent)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: parent %d of %q does not exist", common.ErrInvalidCategory, *category.ParentID, category.Slug)
			}
			if err != nil {
				return fmt.Errorf("loading parent category: %w", err)
			}
			if grandparent != nil {
				return fmt.Errorf("%w: %q would be a third level under %q", common.ErrInvalidCategory, category.Slug, parentSlug)
			}
			err = tx.QueryRow(ctx, `
				SELECT EXISTS(SELECT 1 FROM categories c JOIN categories p ON c.parent_id = p.id WHERE p.slug = $1)
			`, category.Slug).Scan(&hasChildren)
			if err != nil {
				return fmt.Errorf("checking child categories: %w", err)
			}
			if hasChildren {
				return fmt.Errorf("%w: %q has children and cannot become a child", common.ErrInvalidCategory, category.Slug)
			}
		}

		return tx.QueryRow(ctx, `
			INSERT INTO categories (slug, name, description, parent_id, keywords, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (slug) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				parent_id = EXCLUDED.parent_id,
				keywords = EXCLUDED.keywords,
				is_active = EXCLUDED.is_active
			RETURNING id, created_at
		`, category.Slug, category.Name, category.Description, category.ParentID, keywords, category.IsActive).
			Scan(&category.ID, &category.CreatedAt)
	})
}

func scanCategory(row pgx.Row) (*model.Category, error) {
	var cat model.Category
	err := row.Scan(&cat.ID, &cat.Slug, &cat.Name, &cat.Description, &cat.ParentID, &cat.Keywords, &cat.IsActive, &cat.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning category: %w", err)
	}
	return &cat, nil
}

const weightColumns = `user_id, keyword, category_id, weight, use_count, last_used, version`

// GetUserWeights returns every learned weight for a user.
func (s *Store) GetUserWeights(ctx context.Context, userID string) ([]model.LearnedKeywordWeight, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+weightColumns+`
		FROM learned_keyword_weights
		WHERE user_id = $1
		ORDER BY keyword, category_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying learned weights: %w", err)
	}
	defer rows.Close()

	var weights []model.LearnedKeywordWeight
	for rows.Next() {
		w, err := scanWeight(rows)
		if err != nil {
			return nil, err
		}
		weights = append(weights, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating learned weights: %w", err)
	}
	return weights, nil
}

// GetWeight returns one learned weight or common.ErrNotFound.
func (s *Store) GetWeight(ctx context.Context, key model.WeightKey) (*model.LearnedKeywordWeight, error) {
	w, err := scanWeight(s.pool.QueryRow(ctx, `
		SELECT `+weightColumns+`
		FROM learned_keyword_weights
		WHERE user_id = $1 AND keyword = $2 AND category_id = $3
	`, key.UserID, key.Keyword, key.CategoryID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("learned weight %s: %w", key, common.ErrNotFound)
	}
	return w, err
}

// SaveWeight is a check-and-set write keyed by the (user, keyword, category) triple.
func (s *Store) SaveWeight(ctx context.Context, expected *model.LearnedKeywordWeight, next model.LearnedKeywordWeight) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid learned weight: %w", err)
	}
	if expected != nil && expected.Key() != next.Key() {
		return fmt.Errorf("invalid learned weight: expected row %s does not match %s", expected.Key(), next.Key())
	}

	var (
		tag pgconn.CommandTag
		err error
	)
	if expected == nil {
		tag, err = s.pool.Exec(ctx, `
			INSERT INTO learned_keyword_weights (user_id, keyword, category_id, weight, use_count, last_used, version)
			VALUES ($1, $2, $3, $4, $5, $6, 1)
			ON CONFLICT (user_id, keyword, category_id) DO NOTHING
		`, next.UserID, next.Keyword, next.CategoryID, next.Weight, next.UseCount, next.LastUsed)
	} else {
		tag, err = s.pool.Exec(ctx, `
			UPDATE learned_keyword_weights
			SET weight = $1, use_count = $2, last_used = $3, version = version + 1
			WHERE user_id = $4 AND keyword = $5 AND category_id = $6 AND version = $7
		`, next.Weight, next.UseCount, next.LastUsed, next.UserID, next.Keyword, next.CategoryID, expected.Version)
	}
	if err != nil {
		return fmt.Errorf("saving learned weight: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", common.ErrStaleWeightWrite, next.Key())
	}
	return nil
}

// ListWeightUsers returns every user owning at least one learned weight.
func (s *Store) ListWeightUsers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT user_id FROM learned_keyword_weights ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("querying weight users: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collecting weight users: %w", err)
	}
	return users, nil
}

func scanWeight(row pgx.Row) (*model.LearnedKeywordWeight, error) {
	var w model.LearnedKeywordWeight
	err := row.Scan(&w.UserID, &w.Keyword, &w.CategoryID, &w.Weight, &w.UseCount, &w.LastUsed, &w.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning learned weight: %w", err)
	}
	return &w, nil
}

const expenseColumns = `id, user_id, amount_cents, currency, description, merchant_name, raw_text,
	category_id, suggested_category_id, confidence, below_floor, status, rejection_reason,
	spent_at, created_at, confirmed_at, rejected_at`

// CreateExpense inserts a new expense.
func (s *Store) CreateExpense(ctx context.Context, expense *model.Expense) error {
	if expense == nil || expense.ID == "" || expense.UserID == "" {
		return fmt.Errorf("invalid expense: id and user id are required")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now()
	}
	if expense.SpentAt.IsZero() {
		expense.SpentAt = expense.CreatedAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		expense.ID, expense.UserID, expense.AmountCents, expense.Currency, expense.Description,
		expense.MerchantName, expense.RawText, expense.CategoryID, expense.SuggestedCategoryID,
		expense.Confidence, expense.BelowFloor, string(expense.Status), expense.RejectionReason,
		expense.SpentAt, expense.CreatedAt, expense.ConfirmedAt, expense.RejectedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("expense %s: %w", expense.ID, common.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("inserting expense: %w", err)
	}
	return nil
}

// GetExpense returns an expense or common.ErrNotFound.
func (s *Store) GetExpense(ctx context.Context, id string) (*model.Expense, error) {
	return getExpense(ctx, s.pool, id)
}

func getExpense(ctx context.Context, q querier, id string) (*model.Expense, error) {
	exp, err := scanExpense(q.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", id, common.ErrNotFound)
	}
	return exp, err
}

// TransitionExpense updates lifecycle fields if the stored status is one of from.
func (s *Store) TransitionExpense(ctx context.Context, expense *model.Expense, from ...model.ExpenseStatus) error {
	if expense == nil || len(from) == 0 {
		return fmt.Errorf("invalid transition: expense and from statuses are required")
	}

	statuses := make([]string, len(from))
	for i, status := range from {
		statuses[i] = string(status)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE expenses
			SET status = $1, category_id = $2, rejection_reason = $3, confirmed_at = $4, rejected_at = $5
			WHERE id = $6 AND status = ANY($7)
		`, string(expense.Status), expense.CategoryID, expense.RejectionReason,
			expense.ConfirmedAt, expense.RejectedAt, expense.ID, statuses)
		if err != nil {
			return fmt.Errorf("transitioning expense: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		current, err := getExpense(ctx, tx, expense.ID)
		if err != nil {
			return err
		}
		return fmt.Errorf("expense %s is %s: %w", expense.ID, current.Status, common.ErrDuplicateTransition)
	})
}

// HasAcceptedExpense reports whether the user accepted any expense in the category.
func (s *Store) HasAcceptedExpense(ctx context.Context, userID string, categoryID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM expenses
			WHERE user_id = $1 AND category_id = $2 AND status IN ('confirmed', 'auto_confirmed')
		)
	`, userID, categoryID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking expense history: %w", err)
	}
	return exists, nil
}

// ListExpenses returns expenses matching the filter, newest first.
func (s *Store) ListExpenses(ctx context.Context, filter service.ExpenseFilter) ([]model.Expense, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		where = append(where, "user_id = "+arg(filter.UserID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if filter.StartDate != nil {
		where = append(where, "spent_at >= "+arg(*filter.StartDate))
	}
	if filter.EndDate != nil {
		where = append(where, "spent_at <= "+arg(*filter.EndDate))
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying expenses: %w", err)
	}
	defer rows.Close()

	var expenses []model.Expense
	for rows.Next() {
		exp, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expenses: %w", err)
	}
	return expenses, nil
}

// DeleteUserData removes a user's expenses and learned weights together.
func (s *Store) DeleteUserData(ctx context.Context, userID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM learned_keyword_weights WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("deleting learned weights: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM expenses WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("deleting expenses: %w", err)
		}
		return nil
	})
}

func scanExpense(row pgx.Row) (*model.Expense, error) {
	var (
		exp    model.Expense
		status string
	)
	err := row.Scan(
		&exp.ID, &exp.UserID, &exp.AmountCents, &exp.Currency, &exp.Description, &exp.MerchantName, &exp.RawText,
		&exp.CategoryID, &exp.SuggestedCategoryID, &exp.Confidence, &exp.BelowFloor, &status, &exp.RejectionReason,
		&exp.SpentAt, &exp.CreatedAt, &exp.ConfirmedAt, &exp.RejectedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning expense: %w", err)
	}
	exp.Status, err = model.ParseExpenseStatus(status)
	if err != nil {
		return nil, err
	}
	return &exp, nil
}
