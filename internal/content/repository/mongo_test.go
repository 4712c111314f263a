package repository

import (
	"testing"
	"time"

	"github.com/contentd/contentd/internal/content"
	"github.com/contentd/contentd/internal/query"
	"github.com/contentd/contentd/internal/schema"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMongoFilter(t *testing.T) {
	plan := query.NewPlan("pages", "distributors")
	title := plan.Join("title", "en")
	plan.Where(query.ColumnIn{Column: query.ColumnID, Values: []string{"4", "x"}})
	plan.Where(query.FieldIn{Join: title, Values: []string{"Hello"}})
	plan.Where(query.TaxonomyIn{Type: "tags", Slugs: []string{"a"}})
	plan.Where(query.Scope{ContentType: "distributors", Via: schema.ViaRelation, Relation: "countries", References: []int64{1, 2}})
	plan.Where(query.Scope{ContentType: "pages"})

	f := mongoFilter(plan)
	require.Equal(t, bson.D{
		{Key: "content_type", Value: bson.M{"$in": []string{"pages", "distributors"}}},
		{Key: "$and", Value: bson.A{
			bson.M{"_id": bson.M{"$in": bson.A{int64(4)}}},
			bson.M{"fields": bson.M{"$elemMatch": bson.M{"name": "title", "locale": "en", "text": bson.M{"$in": []string{"Hello"}}}}},
			bson.M{"taxonomies": bson.M{"$elemMatch": bson.M{"type": "tags", "slug": bson.M{"$in": []string{"a"}}}}},
			bson.M{"$or": bson.A{
				bson.M{"content_type": bson.M{"$ne": "distributors"}},
				bson.M{"relations": bson.M{"$elemMatch": bson.M{"to_id": bson.M{"$in": []int64{1, 2}}, "name": "countries"}}},
			}},
			bson.M{"content_type": bson.M{"$ne": "pages"}},
		}},
	}, f)
}

func TestMongoFilterDirectScope(t *testing.T) {
	plan := query.NewPlan("countries")
	plan.Where(query.Scope{ContentType: "countries", References: []int64{3}})
	f := mongoFilter(plan)
	require.Equal(t, bson.A{bson.M{"$or": bson.A{
		bson.M{"content_type": bson.M{"$ne": "countries"}},
		bson.M{"_id": bson.M{"$in": []int64{3}}},
	}}}, f[1].Value)
}

func TestMongoPipeline(t *testing.T) {
	plan := query.NewPlan("pages")
	title := plan.Join("title", "en")
	plan.OrderBy(query.OrderTerm{Join: title, Desc: true})
	plan.OrderBy(query.OrderTerm{Column: query.ColumnModifiedAt})
	plan.OrderBy(query.OrderTerm{Join: title})
	plan.Limit, plan.Offset = 10, 20

	p := mongoPipeline(plan)
	require.Len(t, p, 5)
	require.Equal(t, "$match", p[0][0].Key)
	require.Equal(t, "$addFields", p[1][0].Key)
	added := p[1][0].Value.(bson.D)
	require.Len(t, added, 3)
	require.Equal(t, "_sort_f1", added[0].Key)
	require.Equal(t, "_null_f1", added[1].Key)
	require.Equal(t, "_null_modified_at", added[2].Key)
	require.Equal(t, bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$modified_at", nil}}, nil}}, added[2].Value)
	require.Equal(t, bson.D{{Key: "$sort", Value: bson.D{
		{Key: "_null_f1", Value: -1},
		{Key: "_sort_f1", Value: -1},
		{Key: "_null_modified_at", Value: 1},
		{Key: "modified_at", Value: 1},
		{Key: "_id", Value: 1},
	}}}, p[2])
	require.Equal(t, bson.D{{Key: "$skip", Value: int64(20)}}, p[3])
	require.Equal(t, bson.D{{Key: "$limit", Value: int64(10)}}, p[4])
}

func TestMongoPipelineWithoutWindow(t *testing.T) {
	plan := query.NewPlan("pages")
	plan.OrderBy(query.OrderTerm{Column: query.ColumnID, Desc: true})
	p := mongoPipeline(plan)
	require.Len(t, p, 2)
	require.Equal(t, bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: -1}}}}, p[1])
}

func TestMongoDocumentMapping(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := content.New("pages", "admin", content.StatusPublished)
	c.ID = 9
	c.CreatedAt = &now
	c.AddField(&content.Field{Key: content.Key("title"), Locale: "en", Type: "text", Value: "Hi"})
	c.AddField(&content.Field{Key: content.Key("text", "blocks"), Type: "text", Value: map[string]any{"h1": "x"}})
	c.AddField(&content.Field{Key: content.Key("blocks"), Type: content.FieldTypeCollection, Value: []content.CollectionItem{
		{FieldName: "text", Reference: "h1", FieldType: "text"},
	}})
	c.AddTaxonomy(content.Taxonomy{ID: "t1", Type: "tags", Slug: "a", Name: "a"})
	c.AddRelation("countries", 3)

	d, err := toDoc(c)
	require.NoError(t, err)
	require.Equal(t, "blocks::text", d.Fields[1].Name)
	require.Equal(t, `{"h1":"x"}`, d.Fields[1].Value)
	require.Equal(t, "Hi", d.Fields[0].Text)

	back, err := fromDoc(d)
	require.NoError(t, err)
	require.Equal(t, c.CreatedAt, back.CreatedAt)
	f, ok := back.Field(content.Key("text", "blocks"), "")
	require.True(t, ok)
	require.Equal(t, map[string]any{"h1": "x"}, f.Value)
	col, ok := back.Field(content.Key("blocks"), "")
	require.True(t, ok)
	require.Equal(t, []content.CollectionItem{{FieldName: "text", Reference: "h1", FieldType: "text"}}, col.Value)
	require.Equal(t, "t1", back.Taxonomies[0].Taxonomy.ID)
	require.Equal(t, int64(9), back.Relations[0].FromID)
	require.Equal(t, int64(3), back.Relations[0].ToID)
}
