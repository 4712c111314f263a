package content

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh row identity for fields, taxonomy links and relations.
func NewID() string {
	return uuid.NewString()
}

// Field returns the field stored at (key, locale).
func (c *Content) Field(key FieldKey, locale string) (*Field, bool) {
	for _, f := range c.Fields {
		if f.Locale == locale && f.Key.Equal(key) {
			return f, true
		}
	}
	return nil, false
}

func (c *Content) HasField(key FieldKey, locale string) bool {
	_, ok := c.Field(key, locale)
	return ok
}

// AddField appends f, replacing any field already stored at the same
// (key, locale) so that pair stays unique.
func (c *Content) AddField(f *Field) {
	if f.ID == "" {
		f.ID = NewID()
	}
	for i, existing := range c.Fields {
		if existing.Locale == f.Locale && existing.Key.Equal(f.Key) {
			c.Fields[i] = f
			return
		}
	}
	c.Fields = append(c.Fields, f)
}

// RemoveField drops the field with the same row identity as f.
func (c *Content) RemoveField(f *Field) bool {
	for i, existing := range c.Fields {
		if existing.ID == f.ID {
			c.Fields = append(c.Fields[:i], c.Fields[i+1:]...)
			return true
		}
	}
	return false
}

// FieldsByName returns every locale variant of a key, in insertion order.
func (c *Content) FieldsByName(key FieldKey) []*Field {
	var out []*Field
	for _, f := range c.Fields {
		if f.Key.Equal(key) {
			out = append(out, f)
		}
	}
	return out
}

// TaxonomiesOf returns the assignments whose taxonomy type is key.
func (c *Content) TaxonomiesOf(key string) []*TaxonomyLink {
	var out []*TaxonomyLink
	for _, l := range c.Taxonomies {
		if l.Taxonomy.Type == key {
			out = append(out, l)
		}
	}
	return out
}

// RemoveTaxonomies drops every assignment under key and returns how many went.
func (c *Content) RemoveTaxonomies(key string) int {
	kept := c.Taxonomies[:0]
	removed := 0
	for _, l := range c.Taxonomies {
		if l.Taxonomy.Type == key {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	c.Taxonomies = kept
	return removed
}

func (c *Content) AddTaxonomy(t Taxonomy) *TaxonomyLink {
	l := &TaxonomyLink{ID: NewID(), Taxonomy: t}
	c.Taxonomies = append(c.Taxonomies, l)
	return l
}

// RelationsNamed returns the outgoing relations submitted under a group.
func (c *Content) RelationsNamed(name string) []*Relation {
	var out []*Relation
	for _, r := range c.Relations {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// RemoveRelations drops every outgoing relation of a group.
func (c *Content) RemoveRelations(name string) int {
	kept := c.Relations[:0]
	removed := 0
	for _, r := range c.Relations {
		if r.Name == name {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	c.Relations = kept
	return removed
}

// ClearRelations drops every outgoing relation regardless of group.
func (c *Content) ClearRelations() int {
	n := len(c.Relations)
	c.Relations = nil
	return n
}

func (c *Content) AddRelation(name string, to int64) *Relation {
	r := &Relation{ID: NewID(), FromID: c.ID, ToID: to, Name: name}
	c.Relations = append(c.Relations, r)
	return r
}

// Clone returns a deep copy. Row identities are kept.
func (c *Content) Clone() *Content {
	out := *c
	out.CreatedAt = cloneTime(c.CreatedAt)
	out.ModifiedAt = cloneTime(c.ModifiedAt)
	out.PublishedAt = cloneTime(c.PublishedAt)
	out.DepublishedAt = cloneTime(c.DepublishedAt)
	out.Fields = make([]*Field, 0, len(c.Fields))
	for _, f := range c.Fields {
		cp := *f
		cp.Key = FieldKey{Owner: append([]string(nil), f.Key.Owner...), Name: f.Key.Name}
		cp.Value = CloneValue(f.Value)
		out.Fields = append(out.Fields, &cp)
	}
	out.Taxonomies = make([]*TaxonomyLink, 0, len(c.Taxonomies))
	for _, l := range c.Taxonomies {
		cp := *l
		out.Taxonomies = append(out.Taxonomies, &cp)
	}
	out.Relations = make([]*Relation, 0, len(c.Relations))
	for _, r := range c.Relations {
		cp := *r
		out.Relations = append(out.Relations, &cp)
	}
	return &out
}

// Duplicate returns an unsaved copy owned by author: identity and every
// timestamp are cleared and all rows get fresh identities.
func (c *Content) Duplicate(author string) *Content {
	out := c.Clone()
	out.ID = 0
	out.Author = author
	out.CreatedAt = nil
	out.ModifiedAt = nil
	out.PublishedAt = nil
	out.DepublishedAt = nil
	for _, f := range out.Fields {
		f.ID = NewID()
	}
	for _, l := range out.Taxonomies {
		l.ID = NewID()
	}
	for _, r := range out.Relations {
		r.ID = NewID()
		r.FromID = 0
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CloneValue deep-copies the value shapes a field can hold.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = CloneValue(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = CloneValue(x)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []CollectionItem:
		return append([]CollectionItem(nil), t...)
	default:
		return v
	}
}
