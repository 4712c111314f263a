// Package repository persists content aggregates and runs query plans against
// them. Memory, MongoDB and Postgres backends share the Store contract.
package repository

import (
	"context"

	"github.com/contentd/contentd/internal/content"
	"github.com/contentd/contentd/internal/query"
)

// Store persists whole aggregates. Save assigns an ID to unsaved content,
// upserts the taxonomies it links and replaces fields, taxonomy links and
// outgoing relations in one step. Get and Delete return content.ErrNotFound
// for unknown ids; Delete also removes relations pointing at the item.
type Store interface {
	Get(ctx context.Context, id int64) (*content.Content, error)
	Save(ctx context.Context, c *content.Content) error
	Delete(ctx context.Context, id int64) error
	Exists(ctx context.Context, id int64) (bool, error)
	FindTaxonomy(ctx context.Context, typ, slug string) (*content.Taxonomy, error)
	query.Executor
}

func taxonomyKey(typ, slug string) string {
	return typ + "/" + slug
}
