package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/contentd/contentd/internal/content"
	"github.com/contentd/contentd/internal/schema"
	"github.com/contentd/contentd/pkg/logger"
	"github.com/contentd/contentd/pkg/metrics"
)

// TaxonomyRepository finds shared taxonomy terms. It returns
// content.ErrNotFound for unknown (type, slug) pairs.
type TaxonomyRepository interface {
	FindTaxonomy(ctx context.Context, typ, slug string) (*content.Taxonomy, error)
}

// ContentResolver reports whether a relation target exists.
type ContentResolver interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

func (r *run) taxonomy(ctx context.Context, tax map[string][]string) error {
	for _, key := range sortedKeys(tax) {
		def, err := r.definition(key)
		if err != nil {
			return err
		}
		if def.Kind != schema.KindTaxonomy {
			return &content.ValidationError{Field: key, Reason: "not a taxonomy"}
		}
		if err := r.engine.SyncTaxonomy(ctx, r.res.Content, key, tax[key]); err != nil {
			return err
		}
	}
	return nil
}

// An unnamed group replaces every outgoing relation. It is filed under the
// type's only relation when there is exactly one, so scoping rules that
// follow that relation still see it.
func (r *run) relations(ctx context.Context, rel map[string][]int64) error {
	if ids, ok := rel[""]; ok {
		r.res.Content.ClearRelations()
		dropped, err := r.engine.SyncRelations(ctx, r.res.Content, r.soleRelation(), ids)
		if err != nil {
			return err
		}
		r.res.Dropped = append(r.res.Dropped, dropped...)
	}
	for _, name := range sortedKeys(rel) {
		if name == "" {
			continue
		}
		def, err := r.definition(name)
		if err != nil {
			return err
		}
		if def.Kind != schema.KindRelation {
			return &content.ValidationError{Field: name, Reason: "not a relation"}
		}
		dropped, err := r.engine.SyncRelations(ctx, r.res.Content, name, rel[name])
		if err != nil {
			return err
		}
		r.res.Dropped = append(r.res.Dropped, dropped...)
	}
	return nil
}

func (r *run) soleRelation() string {
	name := ""
	for _, def := range r.ct.Fields.All() {
		if def.Kind != schema.KindRelation {
			continue
		}
		if name != "" {
			return ""
		}
		name = def.Name
	}
	return name
}

// SyncTaxonomy replaces every assignment under key with the submitted slugs.
// Assignments are recreated, never diffed, so link identities change on
// every call even when the slug set does not.
func (e *Engine) SyncTaxonomy(ctx context.Context, c *content.Content, key string, slugs []string) error {
	c.RemoveTaxonomies(key)
	seen := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		slug = strings.TrimSpace(slug)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true

		t, err := e.taxonomies.FindTaxonomy(ctx, key, slug)
		switch {
		case errors.Is(err, content.ErrNotFound):
			t = &content.Taxonomy{ID: content.NewID(), Type: key, Slug: slug, Name: slug}
		case err != nil:
			return fmt.Errorf("find taxonomy %s/%s: %w", key, slug, err)
		}
		c.AddTaxonomy(*t)
	}
	metrics.TaxonomySyncs.Inc()
	return nil
}

// SyncRelations replaces the outgoing relations of one group. Targets that
// do not resolve are skipped and returned as reference errors.
func (e *Engine) SyncRelations(ctx context.Context, c *content.Content, name string, ids []int64) ([]*content.ReferenceError, error) {
	c.RemoveRelations(name)
	var dropped []*content.ReferenceError
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		ok, err := e.contents.Exists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve relation target %d: %w", id, err)
		}
		if !ok {
			dropped = append(dropped, &content.ReferenceError{Relation: name, TargetID: id})
			metrics.RelationsDropped.Inc()
			logger.Debugf("reconcile: dropping relation %q of content %d to missing content %d", name, c.ID, id)
			continue
		}
		c.AddRelation(name, id)
	}
	return dropped, nil
}
