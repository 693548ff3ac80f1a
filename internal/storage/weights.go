package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/model"
)

const weightColumns = `user_id, keyword, category_id, weight, use_count, last_used, version`

// GetUserWeights returns every learned weight for a user. Results are served
// from a per-user cache that every weight write for that user invalidates.
func (s *SQLiteStorage) GetUserWeights(ctx context.Context, userID string) ([]model.LearnedKeywordWeight, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	cached, gen, ok := s.getCachedWeights(userID)
	if ok {
		return cached, nil
	}

	weights, err := s.getUserWeightsTx(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	s.cacheWeights(userID, gen, weights)
	return weights, nil
}

func (s *SQLiteStorage) getUserWeightsTx(ctx context.Context, q queryable, userID string) ([]model.LearnedKeywordWeight, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+weightColumns+`
		FROM learned_keyword_weights
		WHERE user_id = ?
		ORDER BY keyword, category_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned weights: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var weights []model.LearnedKeywordWeight
	for rows.Next() {
		w, err := scanWeight(rows)
		if err != nil {
			return nil, err
		}
		weights = append(weights, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating learned weights: %w", err)
	}

	return weights, nil
}

// GetWeight returns the row for one (user, keyword, category) triple or common.ErrNotFound.
// It always reads the database so the version is current for SaveWeight.
func (s *SQLiteStorage) GetWeight(ctx context.Context, key model.WeightKey) (*model.LearnedKeywordWeight, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(key.UserID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(key.Keyword, "keyword"); err != nil {
		return nil, err
	}

	w, err := scanWeight(s.db.QueryRowContext(ctx, `
		SELECT `+weightColumns+`
		FROM learned_keyword_weights
		WHERE user_id = ? AND keyword = ? AND category_id = ?
	`, key.UserID, key.Keyword, key.CategoryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("learned weight %s: %w", key, common.ErrNotFound)
	}
	return w, err
}

// SaveWeight applies a check-and-set write. With expected nil the row is
// inserted only if absent; otherwise it is updated only if its version still
// equals expected.Version. Either miss reports common.ErrStaleWeightWrite.
func (s *SQLiteStorage) SaveWeight(ctx context.Context, expected *model.LearnedKeywordWeight, next model.LearnedKeywordWeight) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateWeightWrite(expected, next); err != nil {
		return err
	}

	var (
		res sql.Result
		err error
	)
	if expected == nil {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO learned_keyword_weights (user_id, keyword, category_id, weight, use_count, last_used, version)
			VALUES (?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(user_id, keyword, category_id) DO NOTHING
		`, next.UserID, next.Keyword, next.CategoryID, next.Weight, next.UseCount, next.LastUsed.UTC())
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE learned_keyword_weights
			SET weight = ?, use_count = ?, last_used = ?, version = version + 1
			WHERE user_id = ? AND keyword = ? AND category_id = ? AND version = ?
		`, next.Weight, next.UseCount, next.LastUsed.UTC(),
			next.UserID, next.Keyword, next.CategoryID, expected.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to save learned weight: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	s.invalidateUserWeights(next.UserID)

	if affected == 0 {
		slog.Debug("learned weight write lost the race", "key", next.Key().String())
		return fmt.Errorf("%w: %s", common.ErrStaleWeightWrite, next.Key())
	}
	return nil
}

// ListWeightUsers returns every user that owns at least one learned weight.
func (s *SQLiteStorage) ListWeightUsers(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM learned_keyword_weights ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query weight users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []string
	for rows.Next() {
		var user string
		if err := rows.Scan(&user); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weight users: %w", err)
	}
	return users, nil
}

func scanWeight(row rowScanner) (*model.LearnedKeywordWeight, error) {
	var w model.LearnedKeywordWeight
	err := row.Scan(&w.UserID, &w.Keyword, &w.CategoryID, &w.Weight, &w.UseCount, &w.LastUsed, &w.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan learned weight: %w", err)
	}
	return &w, nil
}
