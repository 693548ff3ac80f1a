package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/model"
)

const categoryColumns = `id, slug, name, description, parent_id, keywords, is_active, created_at`

// GetCategories returns every category, active or not, parents before children.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "count", len(categories))
	return categories, nil
}

// GetCategoryByID returns a category by id or common.ErrNotFound.
func (s *SQLiteStorage) GetCategoryByID(ctx context.Context, id int64) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getCategoryTx(ctx, s.db, `id = ?`, id)
}

// GetCategoryBySlug returns a category by slug or common.ErrNotFound.
func (s *SQLiteStorage) GetCategoryBySlug(ctx context.Context, slug string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(slug, "slug"); err != nil {
		return nil, err
	}
	return s.getCategoryTx(ctx, s.db, `slug = ?`, slug)
}

func (s *SQLiteStorage) getCategoryTx(ctx context.Context, q queryable, where string, arg any) (*model.Category, error) {
	cat, err := scanCategory(q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %v: %w", arg, common.ErrNotFound)
	}
	return cat, err
}

// SaveCategory inserts a category or updates the one with the same slug.
// The tree is limited to two levels: the parent must be a root, and a
// category that already has children cannot become a child.
func (s *SQLiteStorage) SaveCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	if err := category.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidCategory, err)
	}

	keywords, err := json.Marshal(category.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}
	if category.Keywords == nil {
		keywords = []byte("[]")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := checkDepth(ctx, tx, category); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO categories (slug, name, description, parent_id, keywords, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			parent_id = excluded.parent_id,
			keywords = excluded.keywords,
			is_active = excluded.is_active
	`, category.Slug, category.Name, category.Description, nullableID(category.ParentID), string(keywords), category.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}

	saved, err := s.getCategoryTx(ctx, tx, `slug = ?`, category.Slug)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit category: %w", err)
	}

	category.ID = saved.ID
	category.CreatedAt = saved.CreatedAt
	return nil
}

func checkDepth(ctx context.Context, tx *sql.Tx, category *model.Category) error {
	if category.ParentID == nil {
		return nil
	}

	var (
		parentSlug  string
		grandparent sql.NullInt64
	)
	err := tx.QueryRowContext(ctx, `SELECT slug, parent_id FROM categories WHERE id = ?`, *category.ParentID).
		Scan(&parentSlug, &grandparent)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: parent %d of %q does not exist", common.ErrInvalidCategory, *category.ParentID, category.Slug)
	}
	if err != nil {
		return fmt.Errorf("failed to load parent category: %w", err)
	}
	if grandparent.Valid {
		return fmt.Errorf("%w: %q would be a third level under %q", common.ErrInvalidCategory, category.Slug, parentSlug)
	}
	if parentSlug == category.Slug {
		return fmt.Errorf("%w: %q cannot be its own parent", common.ErrInvalidCategory, category.Slug)
	}

	var hasChildren bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM categories c
			JOIN categories p ON c.parent_id = p.id
			WHERE p.slug = ?
		)`, category.Slug).Scan(&hasChildren)
	if err != nil {
		return fmt.Errorf("failed to check child categories: %w", err)
	}
	if hasChildren {
		return fmt.Errorf("%w: %q has children and cannot become a child", common.ErrInvalidCategory, category.Slug)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*model.Category, error) {
	var (
		cat      model.Category
		parentID sql.NullInt64
		keywords string
		created  sql.NullTime
	)
	err := row.Scan(&cat.ID, &cat.Slug, &cat.Name, &cat.Description, &parentID, &keywords, &cat.IsActive, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}

	if parentID.Valid {
		id := parentID.Int64
		cat.ParentID = &id
	}
	if created.Valid {
		cat.CreatedAt = created.Time
	}
	if err := json.Unmarshal([]byte(keywords), &cat.Keywords); err != nil {
		return nil, fmt.Errorf("failed to decode keywords for %q: %w", cat.Slug, err)
	}
	return &cat, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
