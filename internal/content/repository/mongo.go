package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/contentd/contentd/internal/content"
	"github.com/contentd/contentd/internal/query"
	"github.com/contentd/contentd/internal/schema"
	"github.com/contentd/contentd/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps each aggregate as one document in the contents
// collection. Taxonomies live in their own collection, unique per
// (type, slug); ids come from a counters collection.
type MongoStore struct {
	contents   *mongo.Collection
	taxonomies *mongo.Collection
	counters   *mongo.Collection
}

type contentDoc struct {
	ID            int64         `bson:"_id"`
	ContentType   string        `bson:"content_type"`
	Author        string        `bson:"author"`
	Status        string        `bson:"status"`
	CreatedAt     *time.Time    `bson:"created_at"`
	ModifiedAt    *time.Time    `bson:"modified_at"`
	PublishedAt   *time.Time    `bson:"published_at"`
	DepublishedAt *time.Time    `bson:"depublished_at"`
	Fields        []fieldDoc    `bson:"fields"`
	Taxonomies    []linkDoc     `bson:"taxonomies"`
	Relations     []relationDoc `bson:"relations"`
}

// fieldDoc keeps the value JSON-encoded; text is the filter and sort form.
type fieldDoc struct {
	ID     string `bson:"id"`
	Name   string `bson:"name"`
	Locale string `bson:"locale"`
	Type   string `bson:"type"`
	Value  string `bson:"value"`
	Text   string `bson:"text"`
}

type linkDoc struct {
	ID         string `bson:"id"`
	TaxonomyID string `bson:"taxonomy_id"`
	Type       string `bson:"type"`
	Slug       string `bson:"slug"`
	Name       string `bson:"name"`
}

type relationDoc struct {
	ID   string `bson:"id"`
	ToID int64  `bson:"to_id"`
	Name string `bson:"name"`
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	s := &MongoStore{
		contents:   db.Collection("contents"),
		taxonomies: db.Collection("taxonomies"),
		counters:   db.Collection("counters"),
	}
	ctx := context.Background()
	indexes := []struct {
		col   *mongo.Collection
		model mongo.IndexModel
	}{
		{s.taxonomies, mongo.IndexModel{Keys: bson.D{{Key: "type", Value: 1}, {Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{s.contents, mongo.IndexModel{Keys: bson.D{{Key: "content_type", Value: 1}, {Key: "status", Value: 1}}}},
		{s.contents, mongo.IndexModel{Keys: bson.D{{Key: "relations.to_id", Value: 1}}}},
	}
	for _, idx := range indexes {
		if _, err := idx.col.Indexes().CreateOne(ctx, idx.model); err != nil {
			logger.Warnf("mongo: create index on %s: %v", idx.col.Name(), err)
		}
	}
	return s
}

func (m *MongoStore) Get(ctx context.Context, id int64) (*content.Content, error) {
	var d contentDoc
	err := m.contents.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, content.ErrNotFound
		}
		return nil, err
	}
	return fromDoc(&d)
}

func (m *MongoStore) Save(ctx context.Context, c *content.Content) error {
	for _, l := range c.Taxonomies {
		t, err := m.upsertTaxonomy(ctx, l.Taxonomy)
		if err != nil {
			return err
		}
		l.Taxonomy = *t
	}
	if c.ID == 0 {
		id, err := m.nextID(ctx)
		if err != nil {
			return err
		}
		c.ID = id
		for _, r := range c.Relations {
			r.FromID = c.ID
		}
		d, err := toDoc(c)
		if err != nil {
			return err
		}
		_, err = m.contents.InsertOne(ctx, d)
		return err
	}
	for _, r := range c.Relations {
		r.FromID = c.ID
	}
	d, err := toDoc(c)
	if err != nil {
		return err
	}
	res, err := m.contents.ReplaceOne(ctx, bson.M{"_id": c.ID}, d)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return content.ErrNotFound
	}
	return nil
}

func (m *MongoStore) upsertTaxonomy(ctx context.Context, t content.Taxonomy) (*content.Taxonomy, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	update := bson.M{"$setOnInsert": bson.M{"_id": t.ID, "name": t.Name}}
	var out content.Taxonomy
	err := m.taxonomies.FindOneAndUpdate(ctx, bson.M{"type": t.Type, "slug": t.Slug}, update, opts).Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("upsert taxonomy %s/%s: %w", t.Type, t.Slug, err)
	}
	return &out, nil
}

func (m *MongoStore) nextID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := m.counters.FindOneAndUpdate(ctx, bson.M{"_id": "contents"}, bson.M{"$inc": bson.M{"seq": 1}}, opts).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next content id: %w", err)
	}
	return counter.Seq, nil
}

func (m *MongoStore) Delete(ctx context.Context, id int64) error {
	res, err := m.contents.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return content.ErrNotFound
	}
	_, err = m.contents.UpdateMany(ctx,
		bson.M{"relations.to_id": id},
		bson.M{"$pull": bson.M{"relations": bson.M{"to_id": id}}})
	return err
}

func (m *MongoStore) Exists(ctx context.Context, id int64) (bool, error) {
	n, err := m.contents.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *MongoStore) FindTaxonomy(ctx context.Context, typ, slug string) (*content.Taxonomy, error) {
	var t content.Taxonomy
	err := m.taxonomies.FindOne(ctx, bson.M{"type": typ, "slug": slug}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, content.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (m *MongoStore) Count(ctx context.Context, plan *query.Plan) (int, error) {
	n, err := m.contents.CountDocuments(ctx, mongoFilter(plan))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (m *MongoStore) Fetch(ctx context.Context, plan *query.Plan) ([]*content.Content, error) {
	cur, err := m.contents.Aggregate(ctx, mongoPipeline(plan))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []contentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*content.Content, 0, len(docs))
	for i := range docs {
		c, err := fromDoc(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func toDoc(c *content.Content) (*contentDoc, error) {
	d := &contentDoc{
		ID:            c.ID,
		ContentType:   c.ContentType,
		Author:        c.Author,
		Status:        string(c.Status),
		CreatedAt:     c.CreatedAt,
		ModifiedAt:    c.ModifiedAt,
		PublishedAt:   c.PublishedAt,
		DepublishedAt: c.DepublishedAt,
		Fields:        make([]fieldDoc, 0, len(c.Fields)),
		Taxonomies:    make([]linkDoc, 0, len(c.Taxonomies)),
		Relations:     make([]relationDoc, 0, len(c.Relations)),
	}
	for _, f := range c.Fields {
		raw, err := content.EncodeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", f.Key, err)
		}
		d.Fields = append(d.Fields, fieldDoc{
			ID:     f.ID,
			Name:   f.Key.String(),
			Locale: f.Locale,
			Type:   f.Type,
			Value:  string(raw),
			Text:   content.ValueText(f.Value),
		})
	}
	for _, l := range c.Taxonomies {
		d.Taxonomies = append(d.Taxonomies, linkDoc{
			ID:         l.ID,
			TaxonomyID: l.Taxonomy.ID,
			Type:       l.Taxonomy.Type,
			Slug:       l.Taxonomy.Slug,
			Name:       l.Taxonomy.Name,
		})
	}
	for _, r := range c.Relations {
		d.Relations = append(d.Relations, relationDoc{ID: r.ID, ToID: r.ToID, Name: r.Name})
	}
	return d, nil
}

func fromDoc(d *contentDoc) (*content.Content, error) {
	c := &content.Content{
		ID:            d.ID,
		ContentType:   d.ContentType,
		Author:        d.Author,
		Status:        content.Status(d.Status),
		CreatedAt:     d.CreatedAt,
		ModifiedAt:    d.ModifiedAt,
		PublishedAt:   d.PublishedAt,
		DepublishedAt: d.DepublishedAt,
	}
	for _, fd := range d.Fields {
		v, err := content.DecodeValue(fd.Type, []byte(fd.Value))
		if err != nil {
			return nil, fmt.Errorf("content %d: %w", d.ID, err)
		}
		c.Fields = append(c.Fields, &content.Field{
			ID:     fd.ID,
			Key:    content.ParseFieldKey(fd.Name),
			Locale: fd.Locale,
			Type:   fd.Type,
			Value:  v,
		})
	}
	for _, ld := range d.Taxonomies {
		c.Taxonomies = append(c.Taxonomies, &content.TaxonomyLink{
			ID:       ld.ID,
			Taxonomy: content.Taxonomy{ID: ld.TaxonomyID, Type: ld.Type, Slug: ld.Slug, Name: ld.Name},
		})
	}
	for _, rd := range d.Relations {
		c.Relations = append(c.Relations, &content.Relation{ID: rd.ID, FromID: d.ID, ToID: rd.ToID, Name: rd.Name})
	}
	return c, nil
}

func mongoColumn(col query.Column) string {
	if col == query.ColumnID {
		return "_id"
	}
	return string(col)
}

// mongoFilter renders the content type filter and predicates of a plan as a
// match document.
func mongoFilter(plan *query.Plan) bson.D {
	filter := bson.D{{Key: "content_type", Value: bson.M{"$in": plan.ContentTypes}}}
	var and bson.A
	for _, pred := range plan.Predicates {
		and = append(and, mongoPredicate(pred))
	}
	if len(and) > 0 {
		filter = append(filter, bson.E{Key: "$and", Value: and})
	}
	return filter
}

func mongoPredicate(pred query.Predicate) bson.M {
	switch p := pred.(type) {
	case query.ColumnIn:
		return bson.M{mongoColumn(p.Column): bson.M{"$in": columnValues(p)}}
	case query.FieldIn:
		return bson.M{"fields": bson.M{"$elemMatch": bson.M{
			"name":   p.Join.Name,
			"locale": p.Join.Locale,
			"text":   bson.M{"$in": p.Values},
		}}}
	case query.TaxonomyIn:
		return bson.M{"taxonomies": bson.M{"$elemMatch": bson.M{
			"type": p.Type,
			"slug": bson.M{"$in": p.Slugs},
		}}}
	case query.Scope:
		other := bson.M{"content_type": bson.M{"$ne": p.ContentType}}
		if len(p.References) == 0 {
			return other
		}
		var restriction bson.M
		if p.Via == schema.ViaRelation {
			match := bson.M{"to_id": bson.M{"$in": p.References}}
			if p.Relation != "" {
				match["name"] = p.Relation
			}
			restriction = bson.M{"relations": bson.M{"$elemMatch": match}}
		} else {
			restriction = bson.M{"_id": bson.M{"$in": p.References}}
		}
		return bson.M{"$or": bson.A{other, restriction}}
	}
	return bson.M{"_id": bson.M{"$in": bson.A{}}}
}

// columnValues converts directive text to the stored column type. Values
// that do not parse cannot match and are dropped.
func columnValues(p query.ColumnIn) bson.A {
	out := bson.A{}
	for _, v := range p.Values {
		switch p.Column {
		case query.ColumnID:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				out = append(out, n)
			}
		case query.ColumnCreatedAt, query.ColumnModifiedAt, query.ColumnPublishedAt, query.ColumnDepublishedAt:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				out = append(out, t)
			}
		default:
			out = append(out, v)
		}
	}
	return out
}

// mongoPipeline adds one sort key per ordered field join, then sorts with id
// as the final tiebreaker and applies the window. Nullable keys get a null
// flag sorted first so missing values land where Postgres puts NULLs.
func mongoPipeline(plan *query.Plan) mongo.Pipeline {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: mongoFilter(plan)}}}
	var added, sortKeys bson.D
	seen := map[string]bool{}
	for _, t := range plan.Order {
		key := mongoColumn(t.Column)
		if t.Join != nil {
			key = "_sort_" + t.Join.Alias
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		dir := 1
		if t.Desc {
			dir = -1
		}
		switch {
		case t.Join != nil:
			flag := "_null_" + t.Join.Alias
			added = append(added,
				bson.E{Key: key, Value: joinedText(t.Join)},
				bson.E{Key: flag, Value: isNull(joinedText(t.Join))})
			sortKeys = append(sortKeys, bson.E{Key: flag, Value: dir})
		case nullableColumn(t.Column):
			flag := "_null_" + key
			added = append(added, bson.E{Key: flag, Value: isNull("$" + key)})
			sortKeys = append(sortKeys, bson.E{Key: flag, Value: dir})
		}
		sortKeys = append(sortKeys, bson.E{Key: key, Value: dir})
	}
	if !seen["_id"] {
		sortKeys = append(sortKeys, bson.E{Key: "_id", Value: 1})
	}
	if len(added) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$addFields", Value: added}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sortKeys}})
	if plan.Offset > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: int64(plan.Offset)}})
	}
	if plan.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: int64(plan.Limit)}})
	}
	return pipeline
}

func isNull(expr any) bson.M {
	return bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{expr, nil}}, nil}}
}

func nullableColumn(col query.Column) bool {
	switch col {
	case query.ColumnCreatedAt, query.ColumnModifiedAt, query.ColumnPublishedAt, query.ColumnDepublishedAt:
		return true
	}
	return false
}

func joinedText(j *query.FieldJoin) bson.M {
	match := bson.M{"$filter": bson.M{
		"input": "$fields",
		"as":    "m",
		"cond": bson.M{"$and": bson.A{
			bson.M{"$eq": bson.A{"$$m.name", j.Name}},
			bson.M{"$eq": bson.A{"$$m.locale", j.Locale}},
		}},
	}}
	return bson.M{"$let": bson.M{
		"vars": bson.M{"f": bson.M{"$arrayElemAt": bson.A{match, 0}}},
		"in":   "$$f.text",
	}}
}
