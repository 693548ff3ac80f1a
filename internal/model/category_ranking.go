package model

import (
	"fmt"
	"sort"
	"time"
)

// CategoryRanking is one scored candidate produced by the inference engine.
type CategoryRanking struct {
	LastLearned     time.Time
	Slug            string
	MatchedKeywords []string
	CategoryID      int64
	Score           float64
	IsChild         bool
}

// Validate ensures the CategoryRanking has valid data.
func (r *CategoryRanking) Validate() error {
	if r.Slug == "" {
		return fmt.Errorf("category slug is required")
	}

	if r.CategoryID <= 0 {
		return fmt.Errorf("category id is required")
	}

	if r.Score < 0.0 {
		return fmt.Errorf("score must not be negative, got %.2f", r.Score)
	}

	return nil
}

// CategoryRankings is a slice of CategoryRanking that supports sorting and utility methods.
type CategoryRankings []CategoryRanking

// Len implements sort.Interface.
func (r CategoryRankings) Len() int {
	return len(r)
}

// Less implements sort.Interface.
// Highest raw score first; ties go to the most recently used learned keyword,
// then to the child category, then to the smallest slug.
func (r CategoryRankings) Less(i, j int) bool {
	if r[i].Score != r[j].Score {
		return r[i].Score > r[j].Score
	}
	if !r[i].LastLearned.Equal(r[j].LastLearned) {
		return r[i].LastLearned.After(r[j].LastLearned)
	}
	if r[i].IsChild != r[j].IsChild {
		return r[i].IsChild
	}
	return r[i].Slug < r[j].Slug
}

// Swap implements sort.Interface.
func (r CategoryRankings) Swap(i, j int) {
	r[i], r[j] = r[j], r[i]
}

// Sort sorts the rankings best first.
func (r CategoryRankings) Sort() {
	sort.Sort(r)
}

// Top returns the best candidate, or nil if empty.
func (r CategoryRankings) Top() *CategoryRanking {
	if len(r) == 0 {
		return nil
	}
	r.Sort()
	return &r[0]
}

// TopN returns the N best candidates.
func (r CategoryRankings) TopN(n int) CategoryRankings {
	if n <= 0 {
		return CategoryRankings{}
	}

	r.Sort()

	if n > len(r) {
		n = len(r)
	}

	result := make(CategoryRankings, n)
	copy(result, r[:n])
	return result
}

// Validate ensures all rankings in the slice are valid.
func (r CategoryRankings) Validate() error {
	seen := make(map[int64]bool)

	for i, ranking := range r {
		if err := ranking.Validate(); err != nil {
			return fmt.Errorf("invalid ranking at index %d: %w", i, err)
		}

		if seen[ranking.CategoryID] {
			return fmt.Errorf("duplicate category %q in rankings", ranking.Slug)
		}
		seen[ranking.CategoryID] = true
	}

	return nil
}

// InferenceResult is the engine's answer for one piece of text.
// Fallback is set when nothing matched and the default category was returned.
type InferenceResult struct {
	Slug            string
	MatchedKeywords []string
	Alternatives    CategoryRankings
	CategoryID      int64
	Score           float64
	Confidence      float64
	Fallback        bool
}
