package keywords

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/model"
)

//go:embed default_keywords.yaml
var defaultKeywordsYAML []byte

// Seed is the on-disk description of the category tree and its keywords.
type Seed struct {
	Default    string         `yaml:"default"`
	Categories []SeedCategory `yaml:"categories"`
}

// SeedCategory is one node of the seed tree. Children may not nest further.
type SeedCategory struct {
	Slug        string         `yaml:"slug"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Keywords    []string       `yaml:"keywords"`
	Children    []SeedCategory `yaml:"children"`
	Inactive    bool           `yaml:"inactive"`
}

// DefaultSeed returns the embedded seed table.
func DefaultSeed() (*Seed, error) {
	return LoadSeed(bytes.NewReader(defaultKeywordsYAML))
}

// LoadSeedFile reads a seed table from a YAML file.
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from user configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return LoadSeed(f)
}

// LoadSeed decodes and validates a seed table.
func LoadSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: keyword file is empty", common.ErrUnresolvableCategory)
		}
		return nil, fmt.Errorf("failed to parse keyword file: %w", err)
	}

	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks the tree shape. Slug format and uniqueness are checked when
// the table is built.
func (s *Seed) Validate() error {
	if len(s.Categories) == 0 {
		return fmt.Errorf("%w: keyword file defines no categories", common.ErrUnresolvableCategory)
	}
	if s.Default == "" {
		return fmt.Errorf("%w: default category is required", common.ErrInvalidCategory)
	}
	for _, root := range s.Categories {
		for _, child := range root.Children {
			if len(child.Children) > 0 {
				return fmt.Errorf("%w: %s/%s nests deeper than two levels", common.ErrInvalidCategory, root.Slug, child.Slug)
			}
		}
	}
	return nil
}

// Flatten returns the categories with synthetic sequential IDs, parents first.
func (s *Seed) Flatten() []model.Category {
	var (
		out    []model.Category
		nextID int64
	)
	for _, root := range s.Categories {
		nextID++
		rootID := nextID
		out = append(out, root.category(nil))
		out[len(out)-1].ID = rootID

		for _, child := range root.Children {
			nextID++
			parent := rootID
			out = append(out, child.category(&parent))
			out[len(out)-1].ID = nextID
		}
	}
	return out
}

func (c SeedCategory) category(parentID *int64) model.Category {
	return model.Category{
		ParentID:    parentID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		Keywords:    normalizeKeywords(c.Keywords),
		IsActive:    !c.Inactive,
	}
}
