package testutil

import (
	"github.com/Veraticus/spice-tally/internal/keywords"
)

// SeedBuilder assembles a small keyword table for tests.
// The default category is always created first as an active root.
type SeedBuilder struct {
	seed *keywords.Seed
}

// NewSeed starts a table whose fallback category is defaultSlug.
func NewSeed(defaultSlug string) *SeedBuilder {
	return &SeedBuilder{seed: &keywords.Seed{
		Default:    defaultSlug,
		Categories: []keywords.SeedCategory{{Slug: defaultSlug, Name: defaultSlug}},
	}}
}

// Root adds a top-level category.
func (b *SeedBuilder) Root(slug, name string, kws ...string) *SeedBuilder {
	b.seed.Categories = append(b.seed.Categories, keywords.SeedCategory{Slug: slug, Name: name, Keywords: kws})
	return b
}

// Child adds a category under an existing root. Unknown parents are ignored.
func (b *SeedBuilder) Child(parent, slug, name string, kws ...string) *SeedBuilder {
	for i := range b.seed.Categories {
		if b.seed.Categories[i].Slug == parent {
			b.seed.Categories[i].Children = append(b.seed.Categories[i].Children,
				keywords.SeedCategory{Slug: slug, Name: name, Keywords: kws})
			break
		}
	}
	return b
}

// Inactive marks an already added category as inactive.
func (b *SeedBuilder) Inactive(slug string) *SeedBuilder {
	for i := range b.seed.Categories {
		if b.seed.Categories[i].Slug == slug {
			b.seed.Categories[i].Inactive = true
		}
		for j := range b.seed.Categories[i].Children {
			if b.seed.Categories[i].Children[j].Slug == slug {
				b.seed.Categories[i].Children[j].Inactive = true
			}
		}
	}
	return b
}

// Build returns the assembled seed.
func (b *SeedBuilder) Build() *keywords.Seed {
	return b.seed
}
