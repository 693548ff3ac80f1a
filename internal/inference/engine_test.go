package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/keywords"
	"github.com/Veraticus/spice-tally/internal/model"
)

func ptr(v int64) *int64 { return &v }

type fakeWeights struct {
	err     error
	byUser  map[string][]model.LearnedKeywordWeight
	queried []string
}

func (f *fakeWeights) GetUserWeights(_ context.Context, userID string) ([]model.LearnedKeywordWeight, error) {
	f.queried = append(f.queried, userID)
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

func defaultEngine(t *testing.T, weights WeightSource, opts ...Option) (*Engine, *keywords.Table) {
	t.Helper()
	seed, err := keywords.DefaultSeed()
	require.NoError(t, err)
	table, err := keywords.FromSeed(seed)
	require.NoError(t, err)
	engine, err := New(table, weights, opts...)
	require.NoError(t, err)
	return engine, table
}

func testTable(t *testing.T) *keywords.Table {
	t.Helper()
	table, err := keywords.New([]model.Category{
		{ID: 1, Name: "Misc", Slug: "misc", IsActive: true},
		{ID: 2, Name: "Entertainment", Slug: "entertainment", Keywords: []string{"netflix"}, IsActive: true},
		{ID: 3, Name: "Streaming", Slug: "streaming", ParentID: ptr(2), Keywords: []string{"netflix"}, IsActive: true},
		{ID: 4, Name: "Bills", Slug: "bills", Keywords: []string{"invoice"}, IsActive: true},
		{ID: 5, Name: "Subscriptions", Slug: "subscriptions", ParentID: ptr(4), Keywords: []string{"monthly"}, IsActive: true},
		{ID: 6, Name: "Archive", Slug: "archive", Keywords: []string{"legacy"}, IsActive: false},
		{ID: 7, Name: "Alpha", Slug: "alpha", Keywords: []string{"shared"}, IsActive: true},
		{ID: 8, Name: "Beta", Slug: "beta", Keywords: []string{"shared"}, IsActive: true},
	}, "misc")
	require.NoError(t, err)
	return table
}

func TestNew(t *testing.T) {
	table := testTable(t)

	_, err := New(nil, nil)
	assert.ErrorIs(t, err, common.ErrUnresolvableCategory)

	_, err = New(table, nil, WithSmoothing(0))
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = New(table, nil, WithSmoothing(-1))
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	engine, err := New(table, nil, WithSmoothing(0.4), WithAlternatives(-2))
	require.NoError(t, err)
	assert.Equal(t, 0.4, engine.Smoothing())
}

func TestRank_NewUserStaticKeyword(t *testing.T) {
	engine, table := defaultEngine(t, nil)

	result := engine.Rank("50 tacos", nil)

	fastFood, ok := table.BySlug("fast_food")
	require.True(t, ok)
	assert.Equal(t, fastFood.ID, result.CategoryID)
	assert.Equal(t, "fast_food", result.Slug)
	assert.Equal(t, 1.0, result.Score)
	assert.InDelta(t, 0.5, result.Confidence, 1e-9)
	assert.Greater(t, result.Confidence, 0.0)
	assert.Less(t, result.Confidence, 0.85)
	assert.Equal(t, []string{"tacos"}, result.MatchedKeywords)
	assert.False(t, result.Fallback)
}

func TestRank_Fallback(t *testing.T) {
	engine, table := defaultEngine(t, nil)
	def := table.DefaultCategory()

	tests := []struct {
		name    string
		text    string
		weights []model.LearnedKeywordWeight
	}{
		{name: "empty text", text: ""},
		{name: "whitespace only", text: "   \t "},
		{name: "no keyword matches", text: "zzzq qqxv"},
		{
			name: "learned weights that do not match",
			text: "zzzq qqxv",
			weights: []model.LearnedKeywordWeight{
				{UserID: "u1", Keyword: "tacos", CategoryID: 3, Weight: 2.0, UseCount: 9},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Rank(tt.text, tt.weights)
			assert.True(t, result.Fallback)
			assert.Equal(t, def.ID, result.CategoryID)
			assert.Equal(t, def.Slug, result.Slug)
			assert.Equal(t, 0.0, result.Confidence)
			assert.Empty(t, result.Alternatives)
		})
	}
}

func TestRank_LearnedWeightsAddToStaticScore(t *testing.T) {
	engine, table := defaultEngine(t, nil)
	fastFood, _ := table.BySlug("fast_food")
	used := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	weights := []model.LearnedKeywordWeight{
		{UserID: "u1", Keyword: "tacos", CategoryID: fastFood.ID, Weight: 1.4, UseCount: 5, LastUsed: used},
	}

	result := engine.Rank("Tacos el Güero", weights)
	assert.Equal(t, "fast_food", result.Slug)
	assert.InDelta(t, 2.4, result.Score, 1e-9)
	assert.InDelta(t, 2.4/3.4, result.Confidence, 1e-9)
	assert.Equal(t, []string{"tacos"}, result.MatchedKeywords)
}

func TestRank_LearnedKeywordOnlyKnownToUser(t *testing.T) {
	engine, table := defaultEngine(t, nil)
	subs, _ := table.BySlug("subscriptions")

	weights := []model.LearnedKeywordWeight{
		{UserID: "u1", Keyword: "patreon", CategoryID: subs.ID, Weight: 1.0, UseCount: 1},
	}

	result := engine.Rank("patreon 5 usd", weights)
	assert.Equal(t, "subscriptions", result.Slug)
	assert.Equal(t, 1.0, result.Score)
	assert.False(t, result.Fallback)
}

func TestRank_IgnoresInactiveAndUnknownCategories(t *testing.T) {
	engine, err := New(testTable(t), nil)
	require.NoError(t, err)

	weights := []model.LearnedKeywordWeight{
		{UserID: "u1", Keyword: "vinyl", CategoryID: 6, Weight: 2.0, UseCount: 4},
		{UserID: "u1", Keyword: "vinyl", CategoryID: 99, Weight: 2.0, UseCount: 4},
	}

	result := engine.Rank("legacy vinyl", weights)
	assert.True(t, result.Fallback)
	assert.Equal(t, "misc", result.Slug)
}

func TestRank_ParentAndChildAreIndependent(t *testing.T) {
	engine, err := New(testTable(t), nil)
	require.NoError(t, err)

	result := engine.Rank("netflix", nil)

	assert.Equal(t, "streaming", result.Slug, "child wins a full tie with its parent")
	assert.Equal(t, 1.0, result.Score, "child score is not merged into the parent")
	require.Len(t, result.Alternatives, 1)
	assert.Equal(t, "entertainment", result.Alternatives[0].Slug)
	assert.Equal(t, 1.0, result.Alternatives[0].Score)
}

func TestRank_TieBreaks(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	tests := []struct {
		name    string
		text    string
		want    string
		weights []model.LearnedKeywordWeight
	}{
		{
			name: "slug order on a static tie",
			text: "shared",
			want: "alpha",
		},
		{
			name: "recent learning beats slug order",
			text: "shared thing",
			weights: []model.LearnedKeywordWeight{
				{UserID: "u1", Keyword: "thing", CategoryID: 7, Weight: 0.5, UseCount: 1, LastUsed: older},
				{UserID: "u1", Keyword: "thing", CategoryID: 8, Weight: 0.5, UseCount: 1, LastUsed: newer},
			},
			want: "beta",
		},
		{
			name: "higher score beats recency",
			text: "shared thing",
			weights: []model.LearnedKeywordWeight{
				{UserID: "u1", Keyword: "thing", CategoryID: 7, Weight: 0.6, UseCount: 1, LastUsed: older},
				{UserID: "u1", Keyword: "thing", CategoryID: 8, Weight: 0.5, UseCount: 1, LastUsed: newer},
			},
			want: "alpha",
		},
	}

	engine, err := New(testTable(t), nil)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.Rank(tt.text, tt.weights).Slug)
		})
	}
}

func TestRank_Deterministic(t *testing.T) {
	engine, table := defaultEngine(t, nil)
	fastFood, _ := table.BySlug("fast_food")
	food, _ := table.BySlug("food")
	used := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)

	weights := []model.LearnedKeywordWeight{
		{UserID: "u1", Keyword: "tacos", CategoryID: fastFood.ID, Weight: 1.3, UseCount: 4, LastUsed: used},
		{UserID: "u1", Keyword: "guero", CategoryID: food.ID, Weight: 0.7, UseCount: 2, LastUsed: used},
		{UserID: "u1", Keyword: "lunch", CategoryID: fastFood.ID, Weight: 0.1, UseCount: 1, LastUsed: used},
	}
	reversed := []model.LearnedKeywordWeight{weights[2], weights[1], weights[0]}

	first := engine.Rank("lunch tacos el guero", weights)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, engine.Rank("lunch tacos el guero", weights))
	}
	assert.Equal(t, first, engine.Rank("lunch tacos el guero", reversed))
	assert.Equal(t, first, engine.Rank("LUNCH  Tacos el GÜERO", weights))
}

func TestRank_Alternatives(t *testing.T) {
	engine, err := New(testTable(t), nil, WithAlternatives(1))
	require.NoError(t, err)

	result := engine.Rank("netflix monthly invoice", nil)
	assert.Len(t, result.Alternatives, 1)

	engine, err = New(testTable(t), nil, WithAlternatives(0))
	require.NoError(t, err)
	assert.Empty(t, engine.Rank("netflix monthly invoice", nil).Alternatives)
}

func TestRank_ConfidenceIsMonotoneInScore(t *testing.T) {
	engine, err := New(testTable(t), nil)
	require.NoError(t, err)

	prev := 0.0
	for _, weight := range []float64{0.1, 0.5, 1.0, 1.5, 2.0} {
		result := engine.Rank("widget", []model.LearnedKeywordWeight{
			{UserID: "u1", Keyword: "widget", CategoryID: 4, Weight: weight, UseCount: 1},
		})
		assert.Greater(t, result.Confidence, prev)
		assert.Less(t, result.Confidence, 1.0)
		prev = result.Confidence
	}
}

func TestInfer(t *testing.T) {
	t.Run("uses only the requesting user's weights", func(t *testing.T) {
		source := &fakeWeights{byUser: map[string][]model.LearnedKeywordWeight{
			"u1": {{UserID: "u1", Keyword: "widget", CategoryID: 4, Weight: 1.0, UseCount: 1}},
		}}
		engine, err := New(testTable(t), source)
		require.NoError(t, err)

		mine, err := engine.Infer(context.Background(), "widget", "u1")
		require.NoError(t, err)
		assert.Equal(t, "bills", mine.Slug)

		theirs, err := engine.Infer(context.Background(), "widget", "u2")
		require.NoError(t, err)
		assert.True(t, theirs.Fallback)

		assert.Equal(t, []string{"u1", "u2"}, source.queried)
	})

	t.Run("anonymous skips the weight lookup", func(t *testing.T) {
		source := &fakeWeights{}
		engine, err := New(testTable(t), source)
		require.NoError(t, err)

		result, err := engine.Infer(context.Background(), "netflix", "")
		require.NoError(t, err)
		assert.Equal(t, "streaming", result.Slug)
		assert.Empty(t, source.queried)
	})

	t.Run("storage failure is an error", func(t *testing.T) {
		boom := errors.New("disk gone")
		engine, err := New(testTable(t), &fakeWeights{err: boom})
		require.NoError(t, err)

		_, err = engine.Infer(context.Background(), "netflix", "u1")
		assert.ErrorIs(t, err, boom)
	})
}
