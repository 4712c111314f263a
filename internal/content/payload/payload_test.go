package payload

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/contentd/contentd/internal/content"
	"github.com/stretchr/testify/require"
)

const body = `{
  "status": "published",
  "publishedAt": "2024-05-01 10:00",
  "depublishedAt": "",
  "_edit_locale": "nl",
  "fields": {"title": "Hallo", "gallery": ["[\"a.jpg\",\"b.jpg\"]"]},
  "sets": {"seo": {"h1": {"title": "T", "keywords": "k"}}},
  "collections": {
    "blocks": {
      "order": ["h2", "h1"],
      "text": {"h1": "first"},
      "quote": {"h2": {"author": "A", "quote": "Q"}}
    }
  },
  "taxonomy": {"tags": ["a", "", "b"], "categories": "[\"news\"]"},
  "relationship": {"countries": [5, "999"]}
}`

func TestDecodeJSON(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	p, err := Decode(doc)
	require.NoError(t, err)

	require.Equal(t, "published", p.Status)
	require.Equal(t, "2024-05-01 10:00", p.PublishedAt)
	require.Empty(t, p.DepublishedAt)
	require.Equal(t, "nl", p.EditLocale)
	require.Equal(t, "Hallo", p.Fields["title"])
	require.Equal(t, []any{"a.jpg", "b.jpg"}, p.Fields["gallery"])
	require.Equal(t, "T", p.Sets["seo"]["h1"]["title"])

	blocks := p.Collections["blocks"]
	require.Equal(t, []string{"h2", "h1"}, blocks.Order)
	require.Equal(t, "first", blocks.Items["text"]["h1"])
	require.Equal(t, map[string]any{"author": "A", "quote": "Q"}, blocks.Items["quote"]["h2"])

	require.Equal(t, []string{"a", "b"}, p.Taxonomy["tags"])
	require.Equal(t, []string{"news"}, p.Taxonomy["categories"])
	require.Equal(t, []int64{5, 999}, p.Relationship["countries"])
}

func TestDecodeRejectsMalformedShapes(t *testing.T) {
	_, err := Decode(map[string]any{"sets": map[string]any{"seo": "nope"}})
	var se *content.StructuralError
	require.True(t, errors.As(err, &se))

	_, err = Decode(map[string]any{"relationship": map[string]any{"countries": []any{"x"}}})
	var ve *content.ValidationError
	require.True(t, errors.As(err, &ve))
}

func TestBareRelationshipListIsOneGroup(t *testing.T) {
	p, err := Decode(map[string]any{"relationship": []any{float64(5)}})
	require.NoError(t, err)
	require.Equal(t, []int64{5}, p.Relationship[""])
}

func TestParseForm(t *testing.T) {
	form := url.Values{}
	form.Set("status", "held")
	form.Set("_edit_locale", "en")
	form.Set("fields[title]", "Hello")
	form.Set("sets[seo][h1][title]", "T")
	form["collections[blocks][order][]"] = []string{"h2", "h1"}
	form.Set("collections[blocks][text][h1]", "first")
	form.Set("collections[blocks][quote][h2][author]", "A")
	form["taxonomy[tags][]"] = []string{"a", "b"}
	form["relationship[countries][]"] = []string{"5", "6"}

	p, err := ParseForm(form)
	require.NoError(t, err)
	require.Equal(t, "held", p.Status)
	require.Equal(t, "en", p.EditLocale)
	require.Equal(t, "Hello", p.Fields["title"])
	require.Equal(t, "T", p.Sets["seo"]["h1"]["title"])
	require.Equal(t, []string{"h2", "h1"}, p.Collections["blocks"].Order)
	require.Equal(t, "first", p.Collections["blocks"].Items["text"]["h1"])
	require.Equal(t, map[string]any{"author": "A"}, p.Collections["blocks"].Items["quote"]["h2"])
	require.Equal(t, []string{"a", "b"}, p.Taxonomy["tags"])
	require.Equal(t, []int64{5, 6}, p.Relationship["countries"])
}

func TestParseFormConflictingKeys(t *testing.T) {
	form := url.Values{}
	form.Set("fields[seo]", "x")
	form.Set("fields[seo][title]", "y")
	_, err := ParseForm(form)
	require.Error(t, err)
}

func TestSplitFormKey(t *testing.T) {
	require.Equal(t, []string{"status"}, splitFormKey("status"))
	require.Equal(t, []string{"collections", "blocks", "order", ""}, splitFormKey("collections[blocks][order][]"))
}
