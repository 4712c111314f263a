package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/contentd/contentd/internal/content"
	"github.com/contentd/contentd/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresSaveNew(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := page("Hello")
	link := c.AddTaxonomy(content.Taxonomy{ID: "t-new", Type: "tags", Slug: "news", Name: "news"})
	rel := c.AddRelation("countries", 3)
	f := c.Fields[0]

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO contents`).
		WithArgs("pages", "admin", "draft", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(`DELETE FROM content_fields`).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO content_fields`).
		WithArgs(f.ID, int64(7), 0, "title", "en", "text", `"Hello"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM content_taxonomies`).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
	// the slug already exists under another identity
	mock.ExpectQuery(`INSERT INTO taxonomies`).
		WithArgs("t-new", "tags", "news", "news").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("t-old", "News"))
	mock.ExpectExec(`INSERT INTO content_taxonomies`).
		WithArgs(link.ID, int64(7), "t-old", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM content_relations`).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO content_relations`).
		WithArgs(rel.ID, int64(7), int64(3), "countries", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := NewPostgresStore(db)
	require.NoError(t, s.Save(context.Background(), c))
	assert.Equal(t, int64(7), c.ID)
	assert.Equal(t, "t-old", c.Taxonomies[0].Taxonomy.ID)
	assert.Equal(t, "News", c.Taxonomies[0].Taxonomy.Name)
	assert.Equal(t, int64(7), c.Relations[0].FromID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveUnknownRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := page("Hello")
	c.ID = 42

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE contents SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	s := NewPostgresStore(db)
	err = s.Save(context.Background(), c)
	require.ErrorIs(t, err, content.ErrNotFound)
	assert.Equal(t, int64(42), c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM contents WHERE id IN`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content_type", "author", "status", "created_at", "modified_at", "published_at", "depublished_at"}).
			AddRow(7, "pages", "admin", "published", created, nil, nil, nil))
	mock.ExpectQuery(`FROM content_fields WHERE content_id IN`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content_id", "name", "locale", "type", "value"}).
			AddRow("f1", 7, "blocks", "", "collection", []byte(`[{"field_name":"text","field_reference":"h1","field_type":"text"}]`)).
			AddRow("f2", 7, "blocks::text", "", "text", []byte(`{"h1":"x"}`)))
	mock.ExpectQuery(`FROM content_taxonomies ct JOIN taxonomies`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content_id", "taxonomy_id", "type", "slug", "name"}).
			AddRow("l1", 7, "t1", "tags", "news", "News"))
	mock.ExpectQuery(`FROM content_relations WHERE from_content_id IN`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "from_content_id", "to_content_id", "name"}).
			AddRow("r1", 7, 3, "countries"))

	s := NewPostgresStore(db)
	c, err := s.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, content.StatusPublished, c.Status)
	require.NotNil(t, c.CreatedAt)
	assert.True(t, created.Equal(*c.CreatedAt))
	assert.Nil(t, c.ModifiedAt)
	require.Len(t, c.Fields, 2)
	assert.Equal(t, []content.CollectionItem{{FieldName: "text", Reference: "h1", FieldType: "text"}}, c.Fields[0].Value)
	assert.Equal(t, content.Key("text", "blocks"), c.Fields[1].Key)
	assert.Equal(t, "news", c.Taxonomies[0].Taxonomy.Slug)
	assert.Equal(t, int64(3), c.Relations[0].ToID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM contents WHERE id IN`).WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content_type", "author", "status", "created_at", "modified_at", "published_at", "depublished_at"}))

	_, err = NewPostgresStore(db).Get(context.Background(), 9)
	require.ErrorIs(t, err, content.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountAndFetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	plan := query.NewPlan("countries")
	plan.OrderBy(query.OrderTerm{Column: query.ColumnID, Desc: true})
	countSQL, _ := query.CountSQL(plan)
	selectSQL, _ := query.SelectSQL(plan)

	mock.ExpectQuery(regexp.QuoteMeta(countSQL)).WithArgs("countries").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).WithArgs("countries").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3).AddRow(1))
	mock.ExpectQuery(`FROM contents WHERE id IN`).WithArgs(int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content_type", "author", "status", "created_at", "modified_at", "published_at", "depublished_at"}).
			AddRow(1, "countries", "admin", "published", nil, nil, nil, nil).
			AddRow(3, "countries", "admin", "published", nil, nil, nil, nil))
	mock.ExpectQuery(`FROM content_fields`).WillReturnRows(sqlmock.NewRows([]string{"id", "content_id", "name", "locale", "type", "value"}))
	mock.ExpectQuery(`FROM content_taxonomies`).WillReturnRows(sqlmock.NewRows([]string{"id", "content_id", "taxonomy_id", "type", "slug", "name"}))
	mock.ExpectQuery(`FROM content_relations`).WillReturnRows(sqlmock.NewRows([]string{"id", "from_content_id", "to_content_id", "name"}))

	s := NewPostgresStore(db)
	ctx := context.Background()
	n, err := s.Count(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recs, err := s.Fetch(ctx, plan)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// plan order survives the aggregate load
	assert.Equal(t, int64(3), recs[0].ID)
	assert.Equal(t, int64(1), recs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteAndFindTaxonomy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM contents WHERE id`).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM contents WHERE id`).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM taxonomies WHERE type`).WithArgs("tags", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "slug", "name"}))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	s := NewPostgresStore(db)
	ctx := context.Background()
	require.NoError(t, s.Delete(ctx, 5))
	require.ErrorIs(t, s.Delete(ctx, 5), content.ErrNotFound)
	_, err = s.FindTaxonomy(ctx, "tags", "missing")
	require.ErrorIs(t, err, content.ErrNotFound)
	ok, err := s.Exists(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
