package domain

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Category maps a classifier id to the directory documents are filed into.
type Category struct {
	ID          int    `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Taxonomy is the immutable category set shared by every stage of a pipeline.
// Build it once with NewTaxonomy and pass it by value.
type Taxonomy struct {
	categories []Category
	byID       map[int]Category
	defaultID  int
}

func DefaultTaxonomy() Taxonomy {
	t, err := NewTaxonomy([]Category{
		{ID: 1, Name: "contracts", Label: "Contracts", Description: "agreements, leases, terms of service, signed deals"},
		{ID: 2, Name: "personal_documents", Label: "Personal Documents", Description: "identity papers, certificates, payslips, personal letters"},
		{ID: 3, Name: "Food", Label: "Food", Description: "food-related content: receipts, menus, recipes, groceries"},
		{ID: 4, Name: "others", Label: "Others", Description: "anything that fits none of the other categories"},
	}, 4)
	if err != nil {
		panic(err)
	}
	return t
}

func NewTaxonomy(categories []Category, defaultID int) (Taxonomy, error) {
	if len(categories) == 0 {
		return Taxonomy{}, WrapError(ErrInvalidInput, "build taxonomy", fmt.Errorf("no categories"))
	}

	byID := make(map[int]Category, len(categories))
	names := make(map[string]struct{}, len(categories))
	sorted := make([]Category, 0, len(categories))
	for _, c := range categories {
		c.Name = strings.TrimSpace(c.Name)
		if c.ID <= 0 {
			return Taxonomy{}, WrapError(ErrInvalidInput, "build taxonomy", fmt.Errorf("category id %d must be positive", c.ID))
		}
		if c.Name == "" || c.Name == "." || c.Name == ".." || strings.ContainsAny(c.Name, `/\`) || filepath.IsAbs(c.Name) {
			return Taxonomy{}, WrapError(ErrInvalidInput, "build taxonomy", fmt.Errorf("category %d has invalid directory name %q", c.ID, c.Name))
		}
		if _, dup := byID[c.ID]; dup {
			return Taxonomy{}, WrapError(ErrInvalidInput, "build taxonomy", fmt.Errorf("duplicate category id %d", c.ID))
		}
		if _, dup := names[strings.ToLower(c.Name)]; dup {
			return Taxonomy{}, WrapError(ErrInvalidInput, "build taxonomy", fmt.Errorf("duplicate category name %q", c.Name))
		}
		if strings.TrimSpace(c.Label) == "" {
			c.Label = c.Name
		}
		byID[c.ID] = c
		names[strings.ToLower(c.Name)] = struct{}{}
		sorted = append(sorted, c)
	}
	if _, ok := byID[defaultID]; !ok {
		return Taxonomy{}, WrapError(ErrInvalidInput, "build taxonomy", fmt.Errorf("default category %d is not defined", defaultID))
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	return Taxonomy{categories: sorted, byID: byID, defaultID: defaultID}, nil
}

// Categories returns a copy ordered by id.
func (t Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	copy(out, t.categories)
	return out
}

func (t Taxonomy) IDs() []int {
	ids := make([]int, 0, len(t.categories))
	for _, c := range t.categories {
		ids = append(ids, c.ID)
	}
	return ids
}

func (t Taxonomy) Lookup(id int) (Category, bool) {
	c, ok := t.byID[id]
	return c, ok
}

func (t Taxonomy) Default() Category {
	return t.byID[t.defaultID]
}

func (t Taxonomy) DefaultID() int {
	return t.defaultID
}

func (t Taxonomy) Len() int {
	return len(t.categories)
}
