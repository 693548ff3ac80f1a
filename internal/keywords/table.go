// Package keywords holds the immutable category tree and its seed keywords.
package keywords

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/model"
	"github.com/Veraticus/spice-tally/internal/normalize"
	"github.com/Veraticus/spice-tally/internal/service"
)

// Table is the process-wide category tree with seed keywords.
// It is immutable after construction and safe for concurrent use.
type Table struct {
	byID       map[int64]int
	bySlug     map[string]int
	children   map[int64][]int64
	categories []model.Category
	active     []int
	defaultIdx int
}

// New builds a table from a flat category list. Parents must be roots, slugs
// and IDs unique, and defaultSlug must name an active category.
func New(categories []model.Category, defaultSlug string) (*Table, error) {
	t := &Table{
		byID:       make(map[int64]int, len(categories)),
		bySlug:     make(map[string]int, len(categories)),
		children:   make(map[int64][]int64),
		categories: make([]model.Category, len(categories)),
	}

	for i, cat := range categories {
		if err := cat.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrInvalidCategory, err)
		}
		if cat.ID <= 0 {
			return nil, fmt.Errorf("%w: category %q has no id", common.ErrInvalidCategory, cat.Slug)
		}
		if _, dup := t.byID[cat.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate category id %d", common.ErrInvalidCategory, cat.ID)
		}
		if _, dup := t.bySlug[cat.Slug]; dup {
			return nil, fmt.Errorf("%w: duplicate category slug %q", common.ErrInvalidCategory, cat.Slug)
		}

		cat.Keywords = normalizeKeywords(cat.Keywords)
		t.categories[i] = cat
		t.byID[cat.ID] = i
		t.bySlug[cat.Slug] = i
	}

	for i, cat := range t.categories {
		if cat.ParentID != nil {
			parentIdx, ok := t.byID[*cat.ParentID]
			if !ok {
				return nil, fmt.Errorf("%w: parent %d of %q not found", common.ErrInvalidCategory, *cat.ParentID, cat.Slug)
			}
			if !t.categories[parentIdx].IsRoot() {
				return nil, fmt.Errorf("%w: %q would be a third level under %q",
					common.ErrInvalidCategory, cat.Slug, t.categories[parentIdx].Slug)
			}
			t.children[*cat.ParentID] = append(t.children[*cat.ParentID], cat.ID)
		}
		if cat.IsActive {
			t.active = append(t.active, i)
		}
	}

	if len(t.active) == 0 {
		return nil, common.ErrUnresolvableCategory
	}

	idx, ok := t.bySlug[defaultSlug]
	if !ok || !t.categories[idx].IsActive {
		return nil, fmt.Errorf("%w: default category %q is not an active category", common.ErrUnresolvableCategory, defaultSlug)
	}
	t.defaultIdx = idx

	return t, nil
}

// FromSeed builds a table with synthetic IDs, without storage.
func FromSeed(seed *Seed) (*Table, error) {
	return New(seed.Flatten(), seed.Default)
}

// Sync upserts every seed category into the store, then loads the table back
// so IDs match the stored rows.
func Sync(ctx context.Context, store service.CategoryStore, seed *Seed) (*Table, error) {
	for _, root := range seed.Categories {
		rootCat := root.category(nil)
		if err := store.SaveCategory(ctx, &rootCat); err != nil {
			return nil, fmt.Errorf("failed to save category %q: %w", root.Slug, err)
		}
		for _, child := range root.Children {
			parentID := rootCat.ID
			childCat := child.category(&parentID)
			if err := store.SaveCategory(ctx, &childCat); err != nil {
				return nil, fmt.Errorf("failed to save category %q: %w", child.Slug, err)
			}
		}
	}

	table, err := Load(ctx, store, seed.Default)
	if err != nil {
		return nil, err
	}
	slog.Info("Synced keyword table", "categories", len(table.categories), "active", len(table.active))
	return table, nil
}

// Load builds the table from the categories already in the store.
func Load(ctx context.Context, store service.CategoryStore, defaultSlug string) (*Table, error) {
	categories, err := store.GetCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	return New(categories, defaultSlug)
}

// Categories returns every category, active or not, in load order.
func (t *Table) Categories() []model.Category {
	out := make([]model.Category, len(t.categories))
	copy(out, t.categories)
	return out
}

// Active returns the active categories in load order.
func (t *Table) Active() []model.Category {
	out := make([]model.Category, 0, len(t.active))
	for _, i := range t.active {
		out = append(out, t.categories[i])
	}
	return out
}

// ByID looks up a category by id.
func (t *Table) ByID(id int64) (model.Category, bool) {
	i, ok := t.byID[id]
	if !ok {
		return model.Category{}, false
	}
	return t.categories[i], true
}

// BySlug looks up a category by slug.
func (t *Table) BySlug(slug string) (model.Category, bool) {
	i, ok := t.bySlug[slug]
	if !ok {
		return model.Category{}, false
	}
	return t.categories[i], true
}

// Children returns the direct children of a root category.
func (t *Table) Children(id int64) []model.Category {
	ids := t.children[id]
	out := make([]model.Category, 0, len(ids))
	for _, childID := range ids {
		out = append(out, t.categories[t.byID[childID]])
	}
	return out
}

// DefaultCategory is returned by inference when nothing matches.
func (t *Table) DefaultCategory() model.Category {
	return t.categories[t.defaultIdx]
}

// DisplayCategory returns the category an expense aggregates under in reports:
// the category itself for roots, its parent for children.
func (t *Table) DisplayCategory(id int64) (model.Category, bool) {
	cat, ok := t.ByID(id)
	if !ok {
		return model.Category{}, false
	}
	return t.ByID(cat.DisplayID())
}

// RollUp totals accepted expenses by display category, largest spend first.
func (t *Table) RollUp(expenses []model.Expense) []service.CategorySummary {
	totals := make(map[int64]*service.CategorySummary)
	for _, exp := range expenses {
		if !exp.Status.IsAccepted() || exp.CategoryID == nil {
			continue
		}
		display, ok := t.DisplayCategory(*exp.CategoryID)
		if !ok {
			continue
		}
		sum, ok := totals[display.ID]
		if !ok {
			sum = &service.CategorySummary{Slug: display.Slug, Name: display.Name}
			totals[display.ID] = sum
		}
		sum.Count++
		sum.AmountCents += exp.AmountCents
	}

	out := make([]service.CategorySummary, 0, len(totals))
	for _, sum := range totals {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AmountCents != out[j].AmountCents {
			return out[i].AmountCents > out[j].AmountCents
		}
		return out[i].Slug < out[j].Slug
	})
	return out
}

func normalizeKeywords(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, kw := range raw {
		kw = normalize.Keyword(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
