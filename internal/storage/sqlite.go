package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Veraticus/spice-tally/internal/model"
	"github.com/Veraticus/spice-tally/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// weightCacheTTL bounds how long a user's weight snapshot is served from memory.
const weightCacheTTL = 5 * time.Minute

type cachedWeights struct {
	expires time.Time
	weights []model.LearnedKeywordWeight
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db          *sql.DB
	weightCache map[string]cachedWeights
	weightGen   map[string]uint64
	dbPath      string
	cacheMutex  sync.RWMutex
}

var _ service.Storage = (*SQLiteStorage)(nil)

// queryable is satisfied by *sql.DB and *sql.Tx.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers; the version check catches lost updates.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:          db,
		dbPath:      dbPath,
		weightCache: make(map[string]cachedWeights),
		weightGen:   make(map[string]uint64),
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file the storage was opened with.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// DeleteUserData removes every expense and learned weight owned by a user.
func (s *SQLiteStorage) DeleteUserData(ctx context.Context, userID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM learned_keyword_weights WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete learned weights: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete expenses: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
	}

	s.invalidateUserWeights(userID)
	return nil
}

// getCachedWeights returns the cached snapshot, or the current generation to
// hand back to cacheWeights after a miss.
func (s *SQLiteStorage) getCachedWeights(userID string) ([]model.LearnedKeywordWeight, uint64, bool) {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()

	entry, ok := s.weightCache[userID]
	if !ok || time.Now().After(entry.expires) {
		return nil, s.weightGen[userID], false
	}
	out := make([]model.LearnedKeywordWeight, len(entry.weights))
	copy(out, entry.weights)
	return out, 0, true
}

// cacheWeights stores a snapshot unless a write invalidated the user since gen was read.
func (s *SQLiteStorage) cacheWeights(userID string, gen uint64, weights []model.LearnedKeywordWeight) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if s.weightGen[userID] != gen {
		return
	}
	stored := make([]model.LearnedKeywordWeight, len(weights))
	copy(stored, weights)
	s.weightCache[userID] = cachedWeights{weights: stored, expires: time.Now().Add(weightCacheTTL)}
}

func (s *SQLiteStorage) invalidateUserWeights(userID string) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	delete(s.weightCache, userID)
	s.weightGen[userID]++
}
