package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFieldKeyRoundTrip(t *testing.T) {
	k := Key("author", "blocks", "h1")
	require.Equal(t, "blocks::h1::author", k.String())
	require.True(t, ParseFieldKey(k.String()).Equal(k))
	require.Equal(t, FieldKey{Name: "title"}, ParseFieldKey("title"))

	b, err := json.Marshal(&Field{Key: k, Type: "text", Value: "x"})
	require.NoError(t, err)
	require.Contains(t, string(b), `"name":"blocks::h1::author"`)
	var f Field
	require.NoError(t, json.Unmarshal(b, &f))
	require.Equal(t, []string{"blocks", "h1"}, f.Key.Owner)
}

func TestStatus(t *testing.T) {
	c := New("pages", "admin", StatusDraft)
	require.True(t, c.SetStatus("published"))
	require.Equal(t, StatusPublished, c.Status)
	require.False(t, c.SetStatus("archived"))
	require.Equal(t, StatusPublished, c.Status)
	_, ok := ParseStatus("timed")
	require.True(t, ok)
}

func TestGraphKeepsKeyLocaleUnique(t *testing.T) {
	c := New("pages", "admin", StatusDraft)
	c.AddField(&Field{Key: Key("title"), Locale: "en", Value: "a"})
	c.AddField(&Field{Key: Key("title"), Locale: "nl", Value: "b"})
	c.AddField(&Field{Key: Key("title"), Locale: "en", Value: "c"})
	require.Len(t, c.Fields, 2)

	f, ok := c.Field(Key("title"), "en")
	require.True(t, ok)
	require.Equal(t, "c", f.Value)
	require.NotEmpty(t, f.ID)
	require.Len(t, c.FieldsByName(Key("title")), 2)

	require.True(t, c.RemoveField(f))
	require.False(t, c.HasField(Key("title"), "en"))
	require.True(t, c.HasField(Key("title"), "nl"))
}

func TestTaxonomyAndRelationGroups(t *testing.T) {
	c := New("pages", "admin", StatusDraft)
	c.AddTaxonomy(Taxonomy{Type: "tags", Slug: "a"})
	c.AddTaxonomy(Taxonomy{Type: "categories", Slug: "news"})
	c.AddTaxonomy(Taxonomy{Type: "tags", Slug: "b"})
	require.Len(t, c.TaxonomiesOf("tags"), 2)
	require.Equal(t, 2, c.RemoveTaxonomies("tags"))
	require.Len(t, c.Taxonomies, 1)

	c.AddRelation("countries", 5)
	c.AddRelation("regions", 7)
	require.Equal(t, 1, c.RemoveRelations("countries"))
	require.Len(t, c.RelationsNamed("regions"), 1)
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	c := New("pages", "admin", StatusDraft)
	c.ID = 3
	c.CreatedAt = &now
	c.AddField(&Field{Key: Key("seo"), Value: map[string]any{"a": []any{"x"}}})
	c.AddTaxonomy(Taxonomy{Type: "tags", Slug: "a"})

	cp := c.Clone()
	cp.Fields[0].Value.(map[string]any)["a"].([]any)[0] = "y"
	*cp.CreatedAt = now.Add(time.Hour)
	cp.Taxonomies[0].Taxonomy.Slug = "b"

	require.Equal(t, "x", c.Fields[0].Value.(map[string]any)["a"].([]any)[0])
	require.Equal(t, now, *c.CreatedAt)
	require.Equal(t, "a", c.Taxonomies[0].Taxonomy.Slug)
	require.Equal(t, c.Fields[0].ID, cp.Fields[0].ID)
}

func TestDuplicateClearsIdentity(t *testing.T) {
	now := time.Now()
	c := New("pages", "admin", StatusPublished)
	c.ID = 3
	c.CreatedAt, c.ModifiedAt, c.PublishedAt, c.DepublishedAt = &now, &now, &now, &now
	c.AddField(&Field{Key: Key("title"), Value: "hi"})
	c.AddRelation("countries", 5)

	d := c.Duplicate("editor")
	require.Zero(t, d.ID)
	require.Equal(t, "editor", d.Author)
	require.Nil(t, d.CreatedAt)
	require.Nil(t, d.ModifiedAt)
	require.Nil(t, d.PublishedAt)
	require.Nil(t, d.DepublishedAt)
	require.NotEqual(t, c.Fields[0].ID, d.Fields[0].ID)
	require.Equal(t, "hi", d.Fields[0].Value)
	require.Equal(t, int64(5), d.Relations[0].ToID)
	require.Zero(t, d.Relations[0].FromID)
}

func TestValueCodec(t *testing.T) {
	items := []CollectionItem{{FieldName: "text", Reference: "h1", FieldType: "textarea"}}
	raw, err := EncodeValue(items)
	require.NoError(t, err)
	v, err := DecodeValue(FieldTypeCollection, raw)
	require.NoError(t, err)
	require.Equal(t, items, v)

	v, err = DecodeValue("text", []byte(`"hello"`))
	require.NoError(t, err)
	require.Equal(t, "hello", v)
	require.Equal(t, "hello", ValueText(v))
	require.Equal(t, "3", ValueText(float64(3)))
	require.Equal(t, `["a"]`, ValueText([]any{"a"}))
}

func TestErrorClassification(t *testing.T) {
	require.True(t, IsFatal(&ValidationError{Field: "publishedAt", Reason: "bad"}))
	require.True(t, IsFatal(fmt.Errorf("save: %w", &StructuralError{Path: "blocks", Reason: "x"})))
	require.False(t, IsFatal(&ReferenceError{Relation: "countries", TargetID: 9}))
	require.False(t, IsFatal(errors.New("boom")))
}
