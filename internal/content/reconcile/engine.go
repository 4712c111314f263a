// Package reconcile brings a content item's field graph into agreement with a
// submitted payload, reusing field identities wherever name, locale and type
// still match.
package reconcile

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/contentd/contentd/internal/content"
	"github.com/contentd/contentd/internal/content/payload"
	"github.com/contentd/contentd/internal/schema"
	"github.com/contentd/contentd/pkg/logger"
	"github.com/contentd/contentd/pkg/metrics"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change records one field row operation produced by a reconciliation.
type Change struct {
	Op     Op
	Key    content.FieldKey
	Locale string
}

// Result is the reconciled copy of the content plus what changed. Dropped
// lists relation targets that were skipped.
type Result struct {
	Content *content.Content
	Changes []Change
	Dropped []*content.ReferenceError
}

// Options carries definitions for fields the content type does not declare.
type Options struct {
	Definitions map[string]*schema.FieldDefinition
}

// Engine reconciles payloads against content items.
type Engine struct {
	taxonomies TaxonomyRepository
	contents   ContentResolver
}

func NewEngine(taxonomies TaxonomyRepository, contents ContentResolver) *Engine {
	return &Engine{taxonomies: taxonomies, contents: contents}
}

// Reconcile applies p to a copy of existing using locale as the resolved edit
// locale. On error the input is left untouched and nothing should be persisted.
func (e *Engine) Reconcile(ctx context.Context, existing *content.Content, ct *schema.ContentType, p *payload.Payload, locale string, opts Options) (*Result, error) {
	if existing.ContentType != ct.Slug {
		return nil, &content.ValidationError{Reason: fmt.Sprintf("content type %q does not match schema %q", existing.ContentType, ct.Slug)}
	}
	r := &run{
		engine: e,
		ct:     ct,
		locale: locale,
		opts:   opts,
		res:    &Result{Content: existing.Clone()},
	}
	c := r.res.Content

	if p.Status != "" && !c.SetStatus(p.Status) {
		logger.Debugf("reconcile: ignoring unknown status %q for content %d", p.Status, c.ID)
	}

	var err error
	if c.PublishedAt, err = parseTimestamp("publishedAt", p.PublishedAt); err != nil {
		return nil, err
	}
	if c.DepublishedAt, err = parseTimestamp("depublishedAt", p.DepublishedAt); err != nil {
		return nil, err
	}

	if err := r.fields(p.Fields); err != nil {
		return nil, err
	}
	if err := r.sets(p.Sets); err != nil {
		return nil, err
	}
	if err := r.collections(p.Collections); err != nil {
		return nil, err
	}
	if err := r.taxonomy(ctx, p.Taxonomy); err != nil {
		return nil, err
	}
	if err := r.relations(ctx, p.Relationship); err != nil {
		return nil, err
	}
	return r.res, nil
}

type run struct {
	engine *Engine
	ct     *schema.ContentType
	locale string
	opts   Options
	res    *Result
}

func (r *run) definition(name string) (*schema.FieldDefinition, error) {
	if def, ok := r.ct.Field(name); ok {
		return def, nil
	}
	if def, ok := r.opts.Definitions[name]; ok && def != nil {
		return def, nil
	}
	return nil, &content.ValidationError{Field: name, Reason: fmt.Sprintf("not a field of %q", r.ct.Slug)}
}

func (r *run) fields(fields map[string]any) error {
	for _, name := range sortedKeys(fields) {
		def, err := r.definition(name)
		if err != nil {
			return err
		}
		if def.Kind != schema.KindScalar {
			return &content.ValidationError{Field: name, Reason: fmt.Sprintf("%s fields are not submitted as plain fields", def.Kind)}
		}
		r.upsert(content.Key(name), def, def.Localize, fields[name])
	}
	return nil
}

// A set models one active instance: every hash gets its own member fields
// and the set field keeps the last hash in key order.
func (r *run) sets(sets map[string]map[string]map[string]any) error {
	for _, name := range sortedKeys(sets) {
		def, err := r.definition(name)
		if err != nil {
			return err
		}
		if def.Kind != schema.KindSet {
			return &content.ValidationError{Field: name, Reason: "not a set"}
		}
		byHash := sets[name]
		for _, hash := range sortedKeys(byHash) {
			if err := r.setMembers(name, def, hash, byHash[hash], def.Localize); err != nil {
				return err
			}
			r.upsert(content.Key(name), def, def.Localize, hash)
		}
	}
	return nil
}

func (r *run) setMembers(path string, def *schema.FieldDefinition, hash string, children map[string]any, localize bool) error {
	if strings.TrimSpace(hash) == "" || strings.Contains(hash, content.KeySeparator) {
		return &content.StructuralError{Path: path, Reason: fmt.Sprintf("invalid set hash %q", hash)}
	}
	for _, child := range sortedKeys(children) {
		childDef, ok := def.Child(child)
		if !ok {
			return &content.ValidationError{Field: path + "." + child, Reason: "not a member of the set"}
		}
		r.upsert(content.Key(child, hash), childDef, localize || childDef.Localize, children[child])
	}
	return nil
}

type indexedItem struct {
	index int
	item  content.CollectionItem
}

// Every hash submitted under an item must appear in the collection order.
// Order entries without a submitted item are ignored.
func (r *run) collections(cols map[string]payload.Collection) error {
	for _, name := range sortedKeys(cols) {
		def, err := r.definition(name)
		if err != nil {
			return err
		}
		if def.Kind != schema.KindCollection {
			return &content.ValidationError{Field: name, Reason: "not a collection"}
		}
		col := cols[name]
		position := make(map[string]int, len(col.Order))
		// a repeated hash takes its last position
		for i, hash := range col.Order {
			position[hash] = i
		}

		var placed []indexedItem
		taken := make(map[int]string)
		for _, itemName := range sortedKeys(col.Items) {
			itemDef, ok := def.Child(itemName)
			if !ok {
				return &content.ValidationError{Field: name + "." + itemName, Reason: "not an item of the collection"}
			}
			byHash := col.Items[itemName]
			localize := def.Localize || itemDef.Localize

			if itemDef.Kind == schema.KindSet {
				for _, hash := range sortedKeys(byHash) {
					children, ok := byHash[hash].(map[string]any)
					if !ok {
						return &content.StructuralError{Path: name + "." + itemName + "." + hash, Reason: "set item must be an object"}
					}
					if err := r.setMembers(name+"."+itemName, itemDef, hash, children, localize); err != nil {
						return err
					}
				}
			} else {
				values := make(map[string]any, len(byHash))
				for h, v := range byHash {
					values[h] = v
				}
				r.upsert(content.Key(itemName, name), itemDef, localize, values)
			}

			for _, hash := range sortedKeys(byHash) {
				idx, ok := position[hash]
				if !ok {
					return &content.StructuralError{Path: name + ".order", Reason: fmt.Sprintf("hash %q of item %q is missing from the order", hash, itemName)}
				}
				if other, dup := taken[idx]; dup {
					return &content.StructuralError{Path: name, Reason: fmt.Sprintf("hash %q is used by both %q and %q", hash, other, itemName)}
				}
				taken[idx] = itemName
				placed = append(placed, indexedItem{index: idx, item: content.CollectionItem{
					FieldName: itemName,
					Reference: hash,
					FieldType: itemDef.StorageType(),
				}})
			}
		}

		sort.Slice(placed, func(i, j int) bool { return placed[i].index < placed[j].index })
		value := make([]content.CollectionItem, 0, len(placed))
		for _, p := range placed {
			value = append(value, p.item)
		}
		r.upsert(content.Key(name), def, def.Localize, value)
	}
	return nil
}

// upsert resolves or creates the field at (key, locale). An existing field of
// another type is deleted and replaced; its identity and value are not kept.
func (r *run) upsert(key content.FieldKey, def *schema.FieldDefinition, localize bool, value any) {
	c := r.res.Content
	locale := ""
	if localize {
		locale = r.locale
	}
	typ := def.StorageType()

	f, ok := c.Field(key, locale)
	if ok && f.Type != typ {
		c.RemoveField(f)
		r.record(OpDelete, key, locale)
		logger.Debugf("reconcile: replacing %s/%s, type %s -> %s", key, locale, f.Type, typ)
		ok = false
	}
	if !ok {
		c.AddField(&content.Field{ID: content.NewID(), Key: key, Locale: locale, Type: typ, Value: value})
		r.record(OpCreate, key, locale)
		return
	}
	if !reflect.DeepEqual(f.Value, value) {
		f.Value = value
		r.record(OpUpdate, key, locale)
	}
}

func (r *run) record(op Op, key content.FieldKey, locale string) {
	r.res.Changes = append(r.res.Changes, Change{Op: op, Key: key, Locale: locale})
	metrics.FieldChanges.WithLabelValues(string(op)).Inc()
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimestamp returns nil for an empty value; omission clears the timestamp.
func parseTimestamp(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, &content.ValidationError{Field: field, Reason: fmt.Sprintf("malformed timestamp %q", s)}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
