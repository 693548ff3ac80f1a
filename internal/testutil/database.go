// Package testutil provides test databases seeded with a category table.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/spice-tally/internal/keywords"
	"github.com/Veraticus/spice-tally/internal/model"
	"github.com/Veraticus/spice-tally/internal/storage"
)

// TestDB is an in-memory SQLite store with its category table loaded.
type TestDB struct {
	Storage *storage.SQLiteStorage
	Table   *keywords.Table
	t       *testing.T
}

// SetupTestDB creates an in-memory database seeded with the embedded default
// keyword table. It handles migrations and cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	seed, err := keywords.DefaultSeed()
	if err != nil {
		t.Fatalf("failed to load default seed: %v", err)
	}
	return SetupTestDBWithSeed(t, seed)
}

// SetupTestDBWithSeed creates an in-memory database seeded with the given table.
//
// Example:
//
//	db := testutil.SetupTestDBWithSeed(t, testutil.NewSeed("misc").
//		Root("bills", "Bills", "invoice").
//		Child("bills", "subscriptions", "Subscriptions", "netflix").
//		Build())
func SetupTestDBWithSeed(t *testing.T, seed *keywords.Seed) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	table, err := keywords.Sync(ctx, store, seed)
	if err != nil {
		t.Fatalf("failed to seed categories: %v", err)
	}

	return &TestDB{
		Storage: store,
		Table:   table,
		t:       t,
	}
}

// MustCategory returns the category with the given slug or fails the test.
func (db *TestDB) MustCategory(slug string) model.Category {
	db.t.Helper()
	cat, ok := db.Table.BySlug(slug)
	if !ok {
		db.t.Fatalf("category %q not found in test data", slug)
	}
	return cat
}

// MustCategoryID returns the id of the category with the given slug.
func (db *TestDB) MustCategoryID(slug string) int64 {
	db.t.Helper()
	return db.MustCategory(slug).ID
}
