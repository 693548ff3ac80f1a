package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-tally/internal/config"
	"github.com/Veraticus/spice-tally/internal/keywords"
	"github.com/Veraticus/spice-tally/internal/model"
	"github.com/Veraticus/spice-tally/internal/storage"
)

func setupTestApp(t *testing.T) *app {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	seed, err := keywords.DefaultSeed()
	require.NoError(t, err)

	a, err := wireApp(context.Background(), store, seed, config.Defaults())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestCategoryLabel(t *testing.T) {
	a := setupTestApp(t)

	fastFood, ok := a.table.BySlug("fast_food")
	require.True(t, ok)
	food, ok := a.table.BySlug("food")
	require.True(t, ok)

	assert.Equal(t, "Food / Fast Food", categoryLabel(a.table, fastFood.ID))
	assert.Equal(t, "Food", categoryLabel(a.table, food.ID))
	assert.Equal(t, "#9999", categoryLabel(a.table, 9999))
}

func TestResolveCategory(t *testing.T) {
	a := setupTestApp(t)
	fastFood, _ := a.table.BySlug("fast_food")

	tests := []struct {
		name    string
		ref     string
		wantID  int64
		wantErr bool
	}{
		{name: "slug", ref: "fast_food", wantID: fastFood.ID},
		{name: "slug is case insensitive", ref: "Fast_Food", wantID: fastFood.ID},
		{name: "numeric id", ref: strconv.FormatInt(fastFood.ID, 10), wantID: fastFood.ID},
		{name: "unknown slug", ref: "yachts", wantErr: true},
		{name: "unknown id", ref: "9999", wantErr: true},
		{name: "partly numeric", ref: "12abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, err := resolveCategory(a.table, tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, cat.ID)
		})
	}
}

func TestReviewItem(t *testing.T) {
	ctx := context.Background()
	a := setupTestApp(t)
	fastFood, _ := a.table.BySlug("fast_food")
	cfg := a.settings.LifecycleConfig()

	t.Run("suggestion first", func(t *testing.T) {
		draft, err := a.oracle.Extract(ctx, "u1", "50 pesos tacos")
		require.NoError(t, err)
		expense, err := a.manager.Submit(ctx, draft)
		require.NoError(t, err)
		require.Equal(t, model.StatusNeedsReview, expense.Status)
		require.False(t, expense.BelowFloor)

		item := reviewItem(ctx, a, *expense, cfg.AutoConfirmThreshold, cfg.ReviewFloor)
		require.NotEmpty(t, item.Options)
		assert.Equal(t, fastFood.ID, item.Options[0].ID)
		assert.Equal(t, "Food / Fast Food", item.SuggestedLabel)
	})

	t.Run("below floor lists every active category", func(t *testing.T) {
		draft, err := a.oracle.Extract(ctx, "u1", "50 zzz")
		require.NoError(t, err)
		expense, err := a.manager.Submit(ctx, draft)
		require.NoError(t, err)
		require.True(t, expense.BelowFloor)

		item := reviewItem(ctx, a, *expense, cfg.AutoConfirmThreshold, cfg.ReviewFloor)
		assert.Len(t, item.Options, len(a.table.Active()))
	})
}

func TestLoadSeed(t *testing.T) {
	t.Run("default category override", func(t *testing.T) {
		settings := config.Defaults()
		settings.Inference.DefaultCategory = "food"

		seed, err := loadSeed(settings)
		require.NoError(t, err)
		assert.Equal(t, "food", seed.Default)
	})

	t.Run("keyword file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "keywords.yaml")
		content := "default: misc\ncategories:\n  - slug: misc\n    name: Misc\n  - slug: pets\n    name: Pets\n    keywords: [vet]\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		settings := config.Defaults()
		settings.Keywords.Path = path
		settings.Inference.DefaultCategory = "misc"

		seed, err := loadSeed(settings)
		require.NoError(t, err)
		assert.Len(t, seed.Categories, 2)
	})

	t.Run("missing keyword file", func(t *testing.T) {
		settings := config.Defaults()
		settings.Keywords.Path = filepath.Join(t.TempDir(), "nope.yaml")

		_, err := loadSeed(settings)
		assert.Error(t, err)
	})
}

func TestReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expenses.txt")
	content := "# march\n50 tacos\n\n  12.50 uber  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	lines, err := readLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"50 tacos", "12.50 uber"}, lines)

	_, err = readLines(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
