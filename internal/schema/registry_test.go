package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRegistry(t *testing.T) {
	r, err := Load("testdata/contenttypes.yaml")
	require.NoError(t, err)
	require.Equal(t, []string{"pages", "countries", "distributors"}, r.Slugs())

	pages, err := r.Get("pages")
	require.NoError(t, err)
	require.Equal(t, "page", pages.SingularSlug)
	require.Equal(t, "en", pages.DefaultLocale())
	require.True(t, pages.HasLocale("nl"))
	require.False(t, pages.HasLocale("de"))

	// document order, then taxonomy and relations
	require.Equal(t, []string{"title", "slug", "body", "seo", "blocks", "tags", "categories", "countries"}, pages.Fields.Names())

	title, ok := pages.Field("title")
	require.True(t, ok)
	require.Equal(t, KindScalar, title.Kind)
	require.True(t, title.Localize)
	require.True(t, title.Required)

	seo, _ := pages.Field("seo")
	require.Equal(t, KindSet, seo.Kind)
	require.Equal(t, []string{"title", "keywords"}, seo.Fields.Names())

	blocks, _ := pages.Field("blocks")
	require.Equal(t, KindCollection, blocks.Kind)
	quote, ok := blocks.Child("quote")
	require.True(t, ok)
	require.Equal(t, KindSet, quote.Kind)
	author, ok := quote.Child("author")
	require.True(t, ok)
	require.Equal(t, "text", author.StorageType())

	tags, _ := pages.Field("tags")
	require.Equal(t, KindTaxonomy, tags.Kind)
	rel, _ := pages.Field("countries")
	require.Equal(t, KindRelation, rel.Kind)

	require.Equal(t, "ROLE_COUNTRY_MANAGER", r.Scoping.RestrictedScope)
	rule, ok := r.Scoping.Rule("distributors")
	require.True(t, ok)
	require.Equal(t, ViaRelation, rule.Via)
	rule, ok = r.Scoping.Rule("countries")
	require.True(t, ok)
	require.Equal(t, ViaDirect, rule.Via)
	_, ok = r.Scoping.Rule("pages")
	require.False(t, ok)
}

func TestDashboardTypes(t *testing.T) {
	r, err := Load("testdata/contenttypes.yaml")
	require.NoError(t, err)
	require.Equal(t, []string{"pages", "distributors"}, r.DashboardTypes())
	require.Equal(t, "distributors", r.Scoping.Dashboard)
	require.Equal(t, 1000, r.Scoping.DashboardLimit)

	r, err = Parse([]byte(`
content_types:
  pages:
    show_on_dashboard: false
    fields:
      title: { type: text }`))
	require.NoError(t, err)
	require.Empty(t, r.DashboardTypes())
}

func TestGetUnknownContentType(t *testing.T) {
	r := NewRegistry(&ContentType{Slug: "pages", Fields: NewFields()})
	_, err := r.Get("nope")
	require.True(t, errors.Is(err, ErrUnknownContentType))
}

func TestParseRejectsInvalidSchemas(t *testing.T) {
	cases := map[string]string{
		"missing content types": `foo: bar`,
		"reserved separator": `
content_types:
  pages:
    fields:
      "a::b": { type: text }`,
		"empty set": `
content_types:
  pages:
    fields:
      seo: { type: set }`,
		"collection in set": `
content_types:
  pages:
    fields:
      seo:
        type: set
        fields:
          inner: { type: collection, fields: { a: { type: text } } }`,
		"collection in collection": `
content_types:
  pages:
    fields:
      blocks:
        type: collection
        fields:
          inner: { type: collection, fields: { a: { type: text } } }`,
		"unknown scoped type": `
content_types:
  pages:
    fields:
      title: { type: text }
scoping:
  rules:
    - content_type: nope`,
		"unknown dashboard type": `
content_types:
  pages:
    fields:
      title: { type: text }
scoping:
  dashboard: nope`,
		"unsupported via": `
content_types:
  pages:
    fields:
      title: { type: text }
scoping:
  rules:
    - content_type: pages
      via: teleport`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindScalar, KindOf("html"))
	require.Equal(t, KindSet, KindOf("Set"))
	require.Equal(t, KindCollection, KindOf(" collection "))
	require.Equal(t, KindTaxonomy, KindOf("taxonomy"))
	require.Equal(t, KindRelation, KindOf("relation"))
	require.Equal(t, "collection", KindCollection.String())
}
