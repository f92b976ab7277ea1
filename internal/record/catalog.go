package record

import (
	_ "embed"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultCatalogYAML []byte

// Category is a primary category and the sub-categories that belong to it.
type Category struct {
	ID            string        `yaml:"id" json:"id"`
	Label         string        `yaml:"label" json:"label"`
	Subcategories []Subcategory `yaml:"subcategories" json:"subcategories"`
}

// Subcategory is a refinement of exactly one primary category.
type Subcategory struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// Catalog is the immutable set of categories a property can be tagged with.
type Catalog struct {
	categories []Category
	primary    map[string]int
	parent     map[string]string
	labels     map[string]string
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "record: read catalog %s", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a catalog document with a top-level "categories" list.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Categories []Category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "record: parse catalog")
	}
	if len(doc.Categories) == 0 {
		return nil, eris.New("record: catalog has no categories")
	}

	c := &Catalog{
		categories: doc.Categories,
		primary:    make(map[string]int),
		parent:     make(map[string]string),
		labels:     make(map[string]string),
	}
	for i, cat := range doc.Categories {
		if strings.TrimSpace(cat.ID) == "" {
			return nil, eris.Errorf("record: category %d has no id", i)
		}
		if _, dup := c.primary[cat.ID]; dup {
			return nil, eris.Errorf("record: duplicate category %q", cat.ID)
		}
		c.primary[cat.ID] = i
		c.labels[cat.ID] = labelOr(cat.Label, cat.ID)

		for _, sub := range cat.Subcategories {
			if strings.TrimSpace(sub.ID) == "" {
				return nil, eris.Errorf("record: category %q has a sub-category without id", cat.ID)
			}
			if _, dup := c.primary[sub.ID]; dup {
				return nil, eris.Errorf("record: sub-category %q clashes with a category id", sub.ID)
			}
			if owner, dup := c.parent[sub.ID]; dup {
				return nil, eris.Errorf("record: sub-category %q listed under both %q and %q", sub.ID, owner, cat.ID)
			}
			c.parent[sub.ID] = cat.ID
			c.labels[sub.ID] = labelOr(sub.Label, sub.ID)
		}
	}
	return c, nil
}

// Categories returns the catalog in file order.
func (c *Catalog) Categories() []Category {
	return slices.Clone(c.categories)
}

// Primary looks up a primary category.
func (c *Catalog) Primary(id string) (Category, bool) {
	i, ok := c.primary[id]
	if !ok {
		return Category{}, false
	}
	return c.categories[i], true
}

// ParentOf returns the primary category a sub-category belongs to.
func (c *Catalog) ParentOf(subID string) (string, bool) {
	p, ok := c.parent[subID]
	return p, ok
}

// Label returns the display label of a primary or sub-category id, or the
// id itself when unknown.
func (c *Catalog) Label(id string) string {
	if l, ok := c.labels[id]; ok {
		return l
	}
	return id
}

// Select builds a Selection from explicit id lists. Unknown ids and
// sub-categories whose primary is not selected are rejected.
func (c *Catalog) Select(primary, sub []string) (*Selection, error) {
	s := c.NewSelection()
	for _, id := range primary {
		if err := s.SetPrimary(id, true); err != nil {
			return nil, err
		}
	}
	for _, id := range sub {
		if err := s.SetSub(id, true); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewSelection returns an empty selection over c.
func (c *Catalog) NewSelection() *Selection {
	return &Selection{
		catalog: c,
		primary: make(map[string]bool),
		sub:     make(map[string]bool),
	}
}

// Selection is the set of chosen categories. Every selected sub-category
// belongs to a selected primary category; deselecting a primary drops its
// sub-categories.
type Selection struct {
	catalog *Catalog
	primary map[string]bool
	sub     map[string]bool
}

// SetPrimary selects or deselects a primary category.
func (s *Selection) SetPrimary(id string, on bool) error {
	cat, ok := s.catalog.Primary(id)
	if !ok {
		return eris.Wrapf(ErrValidation, "record: unknown category %q", id)
	}
	if on {
		s.primary[id] = true
		return nil
	}
	delete(s.primary, id)
	for _, sub := range cat.Subcategories {
		delete(s.sub, sub.ID)
	}
	return nil
}

// SetSub selects or deselects a sub-category. Selecting requires its primary
// category to be selected already.
func (s *Selection) SetSub(id string, on bool) error {
	parent, ok := s.catalog.ParentOf(id)
	if !ok {
		return eris.Wrapf(ErrValidation, "record: unknown sub-category %q", id)
	}
	if !on {
		delete(s.sub, id)
		return nil
	}
	if !s.primary[parent] {
		return eris.Wrapf(ErrValidation, "record: sub-category %q requires category %q", id, parent)
	}
	s.sub[id] = true
	return nil
}

// Primary returns the selected primary ids in catalog order.
func (s *Selection) Primary() []string {
	var out []string
	for _, cat := range s.catalog.categories {
		if s.primary[cat.ID] {
			out = append(out, cat.ID)
		}
	}
	return out
}

// Sub returns the selected sub-category ids in catalog order.
func (s *Selection) Sub() []string {
	var out []string
	for _, cat := range s.catalog.categories {
		for _, sub := range cat.Subcategories {
			if s.sub[sub.ID] {
				out = append(out, sub.ID)
			}
		}
	}
	return out
}

// Complete reports whether at least one primary and one sub-category are
// chosen.
func (s *Selection) Complete() bool {
	return len(s.primary) > 0 && len(s.sub) > 0
}

func labelOr(label, id string) string {
	if strings.TrimSpace(label) == "" {
		return id
	}
	return label
}
