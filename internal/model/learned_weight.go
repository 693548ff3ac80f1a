package model

import (
	"fmt"
	"math"
	"time"
)

// Bounds and defaults for learned keyword weights.
const (
	MaxKeywordWeight     = 2.0
	InitialKeywordWeight = 1.0
)

// WeightKey identifies a learned weight row. At most one row exists per key.
type WeightKey struct {
	UserID     string
	Keyword    string
	CategoryID int64
}

func (k WeightKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.UserID, k.Keyword, k.CategoryID)
}

// LearnedKeywordWeight associates a user's keyword with a category.
// Version is bumped by storage on every write and backs the check-and-set.
type LearnedKeywordWeight struct {
	LastUsed   time.Time
	UserID     string
	Keyword    string
	CategoryID int64
	Weight     float64
	UseCount   int
	Version    int64
}

// Key returns the unique triple for this row.
func (w LearnedKeywordWeight) Key() WeightKey {
	return WeightKey{UserID: w.UserID, Keyword: w.Keyword, CategoryID: w.CategoryID}
}

// NewLearnedWeight creates the first row for a key.
func NewLearnedWeight(key WeightKey, initial float64, now time.Time) LearnedKeywordWeight {
	return LearnedKeywordWeight{
		UserID:     key.UserID,
		Keyword:    key.Keyword,
		CategoryID: key.CategoryID,
		Weight:     initial,
		UseCount:   1,
		LastUsed:   now,
	}
}

// Reinforced returns a copy with the weight raised by step (capped at limit),
// the usage count incremented and last-used set to now.
func (w LearnedKeywordWeight) Reinforced(step, limit float64, now time.Time) LearnedKeywordWeight {
	next := w
	next.Weight = roundWeight(math.Min(limit, w.Weight+step))
	next.UseCount++
	next.LastUsed = now
	return next
}

// Penalized returns a copy with the weight lowered by step but never below floor.
// A weight already under floor is left as is; a penalty never raises it.
// Usage count and last-used are left alone: the keyword was not used for this category.
func (w LearnedKeywordWeight) Penalized(step, floor float64) LearnedKeywordWeight {
	next := w
	next.Weight = roundWeight(math.Min(w.Weight, math.Max(floor, w.Weight-step)))
	return next
}

// WithWeight returns a copy carrying weight v. Usage is left alone.
func (w LearnedKeywordWeight) WithWeight(v float64) LearnedKeywordWeight {
	next := w
	next.Weight = roundWeight(v)
	return next
}

// Validate checks the row invariants.
func (w LearnedKeywordWeight) Validate() error {
	if w.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if w.Keyword == "" {
		return fmt.Errorf("keyword is required")
	}
	if w.CategoryID <= 0 {
		return fmt.Errorf("category id is required")
	}
	if w.Weight < 0 || w.Weight > MaxKeywordWeight {
		return fmt.Errorf("weight must be between 0.0 and %.1f, got %.2f", MaxKeywordWeight, w.Weight)
	}
	if w.UseCount < 1 {
		return fmt.Errorf("use count must be at least 1, got %d", w.UseCount)
	}
	return nil
}

// roundWeight trims float drift so repeated +0.1 steps land on 2.0 exactly.
func roundWeight(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
