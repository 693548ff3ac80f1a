// Package inference scores categories for free text using seed keywords and
// a user's learned keyword weights.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/keywords"
	"github.com/Veraticus/spice-tally/internal/model"
	"github.com/Veraticus/spice-tally/internal/normalize"
)

// DefaultSmoothing is the k in score / (score + k).
const DefaultSmoothing = 1.0

// DefaultAlternatives is how many runner-up categories a result carries.
const DefaultAlternatives = 3

// WeightSource supplies a user's learned weight snapshot.
type WeightSource interface {
	GetUserWeights(ctx context.Context, userID string) ([]model.LearnedKeywordWeight, error)
}

// Engine ranks active categories for a piece of text. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	table        *keywords.Table
	weights      WeightSource
	active       []model.Category
	k            float64
	alternatives int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSmoothing sets the confidence smoothing constant k.
func WithSmoothing(k float64) Option {
	return func(e *Engine) {
		e.k = k
	}
}

// WithAlternatives sets how many runner-up rankings are returned.
func WithAlternatives(n int) Option {
	return func(e *Engine) {
		e.alternatives = n
	}
}

// New creates an engine over a loaded keyword table.
func New(table *keywords.Table, weights WeightSource, opts ...Option) (*Engine, error) {
	if table == nil {
		return nil, common.ErrUnresolvableCategory
	}

	e := &Engine{
		table:        table,
		weights:      weights,
		active:       table.Active(),
		k:            DefaultSmoothing,
		alternatives: DefaultAlternatives,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.k <= 0 {
		return nil, fmt.Errorf("%w: smoothing constant must be positive, got %v", common.ErrInvalidConfig, e.k)
	}
	if e.alternatives < 0 {
		e.alternatives = 0
	}
	return e, nil
}

// Infer loads the user's learned weights and ranks the text against them.
// Only a storage failure is an error; no match yields the default category.
func (e *Engine) Infer(ctx context.Context, text, userID string) (model.InferenceResult, error) {
	var weights []model.LearnedKeywordWeight
	if e.weights != nil && userID != "" {
		var err error
		weights, err = e.weights.GetUserWeights(ctx, userID)
		if err != nil {
			return model.InferenceResult{}, fmt.Errorf("failed to load learned weights for %s: %w", userID, err)
		}
	}

	result := e.Rank(text, weights)

	slog.Debug("inferred category",
		"user_id", userID,
		"category", result.Slug,
		"score", result.Score,
		"confidence", result.Confidence,
		"fallback", result.Fallback)

	return result, nil
}

// Rank is the pure scoring step. Each active category scores +1 per seed
// keyword that matches the text, plus the stored weight of each learned
// keyword that matches. Children and parents score independently.
func (e *Engine) Rank(text string, weights []model.LearnedKeywordWeight) model.InferenceResult {
	normalized := normalize.Text(text)
	if normalized == "" {
		return e.fallback()
	}

	candidates := make(map[int64]*model.CategoryRanking)
	candidate := func(cat model.Category) *model.CategoryRanking {
		r, ok := candidates[cat.ID]
		if !ok {
			r = &model.CategoryRanking{CategoryID: cat.ID, Slug: cat.Slug, IsChild: !cat.IsRoot()}
			candidates[cat.ID] = r
		}
		return r
	}

	for _, cat := range e.active {
		for _, kw := range cat.Keywords {
			if normalize.Matches(normalized, kw) {
				r := candidate(cat)
				r.Score += 1.0
				r.MatchedKeywords = appendUnique(r.MatchedKeywords, kw)
			}
		}
	}

	for _, w := range sortedWeights(weights) {
		if w.Weight <= 0 {
			continue
		}
		cat, ok := e.table.ByID(w.CategoryID)
		if !ok || !cat.IsActive {
			continue
		}
		kw := normalize.Keyword(w.Keyword)
		if !normalize.Matches(normalized, kw) {
			continue
		}
		r := candidate(cat)
		r.Score += w.Weight
		r.MatchedKeywords = appendUnique(r.MatchedKeywords, kw)
		if w.LastUsed.After(r.LastLearned) {
			r.LastLearned = w.LastUsed
		}
	}

	if len(candidates) == 0 {
		return e.fallback()
	}

	rankings := make(model.CategoryRankings, 0, len(candidates))
	for _, r := range candidates {
		rankings = append(rankings, *r)
	}
	rankings.Sort()

	top := rankings[0]
	result := model.InferenceResult{
		CategoryID:      top.CategoryID,
		Slug:            top.Slug,
		Score:           top.Score,
		Confidence:      e.confidence(top.Score),
		MatchedKeywords: top.MatchedKeywords,
	}
	if e.alternatives > 0 && len(rankings) > 1 {
		result.Alternatives = rankings[1:].TopN(e.alternatives)
	}
	return result
}

// Smoothing returns the configured k.
func (e *Engine) Smoothing() float64 {
	return e.k
}

func (e *Engine) confidence(score float64) float64 {
	if score <= 0 {
		return 0
	}
	return score / (score + e.k)
}

func (e *Engine) fallback() model.InferenceResult {
	def := e.table.DefaultCategory()
	return model.InferenceResult{
		CategoryID: def.ID,
		Slug:       def.Slug,
		Fallback:   true,
	}
}

// sortedWeights copies and orders weights so float summation order does not
// depend on how the snapshot was produced.
func sortedWeights(weights []model.LearnedKeywordWeight) []model.LearnedKeywordWeight {
	out := make([]model.LearnedKeywordWeight, len(weights))
	copy(out, weights)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Keyword != out[j].Keyword {
			return out[i].Keyword < out[j].Keyword
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
