package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	// createTestStorage already migrated once.
	require.NoError(t, store.Migrate(ctx))

	var version int
	require.NoError(t, store.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)
	assert.Equal(t, len(migrations), version)

	for _, table := range []string{"categories", "learned_keyword_weights", "expenses"} {
		var name string
		err := store.db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestMigrate_UniqueTriple(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	ids := seedCategories(t, store)

	insert := `INSERT INTO learned_keyword_weights (user_id, keyword, category_id, weight, use_count, last_used)
		VALUES ('u1', 'tacos', ?, 1.0, 1, CURRENT_TIMESTAMP)`
	_, err := store.db.ExecContext(ctx, insert, ids["fast_food"])
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, insert, ids["fast_food"])
	assert.Error(t, err, "duplicate (user, keyword, category) must be rejected")

	_, err = store.db.ExecContext(ctx, `UPDATE learned_keyword_weights SET weight = 2.5`)
	assert.Error(t, err, "weight above 2.0 must be rejected")
}
