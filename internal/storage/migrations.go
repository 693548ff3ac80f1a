package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Category tree",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS categories (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				slug TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				parent_id INTEGER REFERENCES categories(id),
				keywords TEXT NOT NULL DEFAULT '[]',
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX idx_categories_parent ON categories(parent_id)`,
		),
	},
	{
		Version:     2,
		Description: "Learned keyword weights",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS learned_keyword_weights (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				keyword TEXT NOT NULL,
				category_id INTEGER NOT NULL REFERENCES categories(id),
				weight REAL NOT NULL CHECK (weight >= 0 AND weight <= 2.0),
				use_count INTEGER NOT NULL CHECK (use_count >= 1),
				last_used DATETIME NOT NULL,
				version INTEGER NOT NULL DEFAULT 1,
				UNIQUE (user_id, keyword, category_id)
			)`,
			`CREATE INDEX idx_learned_weights_user_keyword ON learned_keyword_weights(user_id, keyword)`,
		),
	},
	{
		Version:     3,
		Description: "Expenses",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS expenses (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				amount_cents INTEGER NOT NULL,
				currency TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				merchant_name TEXT NOT NULL DEFAULT '',
				raw_text TEXT NOT NULL DEFAULT '',
				category_id INTEGER REFERENCES categories(id),
				suggested_category_id INTEGER REFERENCES categories(id),
				confidence REAL NOT NULL DEFAULT 0 CHECK (confidence >= 0 AND confidence <= 1),
				below_floor INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL CHECK (status IN ('pending', 'auto_confirmed', 'needs_review', 'confirmed', 'rejected')),
				rejection_reason TEXT,
				spent_at DATETIME NOT NULL,
				created_at DATETIME NOT NULL,
				confirmed_at DATETIME,
				rejected_at DATETIME
			)`,
			`CREATE INDEX idx_expenses_user_status ON expenses(user_id, status)`,
			`CREATE INDEX idx_expenses_user_category ON expenses(user_id, category_id)`,
		),
	},
	{
		Version:     4,
		Description: "Freeze suggested category",
		Up: execAll(
			`CREATE TRIGGER IF NOT EXISTS expenses_suggested_category_immutable
				BEFORE UPDATE OF suggested_category_id ON expenses
				WHEN OLD.suggested_category_id IS NOT NULL
					AND NEW.suggested_category_id IS NOT OLD.suggested_category_id
			BEGIN
				SELECT RAISE(ABORT, 'suggested_category_id is immutable');
			END`,
		),
	},
}

func execAll(queries ...string) func(*sql.Tx) error {
	return func(tx *sql.Tx) error {
		for _, query := range queries {
			if _, err := tx.Exec(query); err != nil {
				return fmt.Errorf("failed to execute query: %w", err)
			}
		}
		return nil
	}
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
