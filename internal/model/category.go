package model

import (
	"fmt"
	"regexp"
	"time"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:_[a-z0-9]+)*$`)

// Category is a node in the two-level category tree.
// Root categories have no parent; children point at a root.
type Category struct {
	CreatedAt   time.Time
	ParentID    *int64
	Name        string
	Slug        string
	Description string
	Keywords    []string
	ID          int64
	IsActive    bool
}

// IsRoot reports whether the category has no parent.
func (c Category) IsRoot() bool {
	return c.ParentID == nil
}

// DisplayID returns the id used when aggregating spend for reports.
// Children roll up to their parent.
func (c Category) DisplayID() int64 {
	if c.ParentID != nil {
		return *c.ParentID
	}
	return c.ID
}

// Validate checks the fields that do not depend on the rest of the tree.
func (c Category) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("category name is required")
	}
	if !slugPattern.MatchString(c.Slug) {
		return fmt.Errorf("invalid category slug %q", c.Slug)
	}
	if c.ParentID != nil && c.ID != 0 && *c.ParentID == c.ID {
		return fmt.Errorf("category %q cannot be its own parent", c.Slug)
	}
	return nil
}
