package repository

import (
	"context"
	"testing"

	"github.com/contentd/contentd/internal/content"
	"github.com/contentd/contentd/internal/query"
	"github.com/stretchr/testify/require"
)

func page(title string) *content.Content {
	c := content.New("pages", "admin", content.StatusDraft)
	c.AddField(&content.Field{Key: content.Key("title"), Locale: "en", Type: "text", Value: title})
	return c
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	c := page("Hello")
	require.NoError(t, s.Save(ctx, c))
	require.Equal(t, int64(1), c.ID)

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	f, ok := got.Field(content.Key("title"), "en")
	require.True(t, ok)
	require.Equal(t, "Hello", f.Value)

	// stored copies are isolated from the caller
	f.Value = "changed"
	again, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	f2, _ := again.Field(content.Key("title"), "en")
	require.Equal(t, "Hello", f2.Value)

	ok, err = s.Exists(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Delete(ctx, c.ID))
	_, err = s.Get(ctx, c.ID)
	require.ErrorIs(t, err, content.ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, c.ID), content.ErrNotFound)

	unknown := page("x")
	unknown.ID = 42
	require.ErrorIs(t, s.Save(ctx, unknown), content.ErrNotFound)
}

func TestMemoryStoreTaxonomiesAreShared(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := page("a")
	a.AddTaxonomy(content.Taxonomy{ID: "t1", Type: "tags", Slug: "news", Name: "news"})
	require.NoError(t, s.Save(ctx, a))

	tax, err := s.FindTaxonomy(ctx, "tags", "news")
	require.NoError(t, err)
	require.Equal(t, "t1", tax.ID)

	// a concurrently created term with the same slug resolves to the stored one
	b := page("b")
	b.AddTaxonomy(content.Taxonomy{ID: "t2", Type: "tags", Slug: "news", Name: "news"})
	require.NoError(t, s.Save(ctx, b))
	require.Equal(t, "t1", b.Taxonomies[0].Taxonomy.ID)

	_, err = s.FindTaxonomy(ctx, "tags", "other")
	require.ErrorIs(t, err, content.ErrNotFound)
}

func TestMemoryStoreDeleteCascadesIncomingRelations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	country := content.New("countries", "admin", content.StatusPublished)
	require.NoError(t, s.Save(ctx, country))

	dist := content.New("distributors", "admin", content.StatusPublished)
	dist.AddRelation("countries", country.ID)
	require.NoError(t, s.Save(ctx, dist))
	require.Equal(t, dist.ID, dist.Relations[0].FromID)

	require.NoError(t, s.Delete(ctx, country.ID))
	got, err := s.Get(ctx, dist.ID)
	require.NoError(t, err)
	require.Empty(t, got.Relations)
}

func TestMemoryStoreExecutesPlans(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, title := range []string{"c", "a", "b"} {
		require.NoError(t, s.Save(ctx, page(title)))
	}
	other := content.New("countries", "admin", content.StatusPublished)
	require.NoError(t, s.Save(ctx, other))

	plan := query.NewPlan("pages")
	title := plan.Join("title", "en")
	plan.OrderBy(query.OrderTerm{Join: title})
	plan.Limit, plan.Offset = 2, 1

	n, err := s.Count(ctx, plan)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	recs, err := s.Fetch(ctx, plan)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	var titles []any
	for _, r := range recs {
		f, _ := r.Field(content.Key("title"), "en")
		titles = append(titles, f.Value)
	}
	require.Equal(t, []any{"b", "c"}, titles)
}
