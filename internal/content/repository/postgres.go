package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contentd/contentd/internal/content"
	"github.com/contentd/contentd/internal/query"
)

// PostgresSchema creates the relational layout the SQL renderer reads.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS contents (
	id BIGSERIAL PRIMARY KEY,
	content_type TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ,
	modified_at TIMESTAMPTZ,
	published_at TIMESTAMPTZ,
	depublished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS contents_type_status ON contents (content_type, status);
CREATE TABLE IF NOT EXISTS content_fields (
	id UUID PRIMARY KEY,
	content_id BIGINT NOT NULL REFERENCES contents (id) ON DELETE CASCADE,
	position INT NOT NULL,
	name TEXT NOT NULL,
	locale TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	value JSONB,
	UNIQUE (content_id, name, locale)
);
CREATE TABLE IF NOT EXISTS taxonomies (
	id UUID PRIMARY KEY,
	type TEXT NOT NULL,
	slug TEXT NOT NULL,
	name TEXT NOT NULL,
	UNIQUE (type, slug)
);
CREATE TABLE IF NOT EXISTS content_taxonomies (
	id UUID PRIMARY KEY,
	content_id BIGINT NOT NULL REFERENCES contents (id) ON DELETE CASCADE,
	taxonomy_id UUID NOT NULL REFERENCES taxonomies (id),
	position INT NOT NULL
);
CREATE TABLE IF NOT EXISTS content_relations (
	id UUID PRIMARY KEY,
	from_content_id BIGINT NOT NULL REFERENCES contents (id) ON DELETE CASCADE,
	to_content_id BIGINT NOT NULL REFERENCES contents (id) ON DELETE CASCADE,
	name TEXT NOT NULL DEFAULT '',
	position INT NOT NULL
);
CREATE INDEX IF NOT EXISTS content_relations_to ON content_relations (to_content_id);
`

// PostgresStore persists aggregates across five tables and saves each one in
// a single transaction. Plans run through query.CountSQL and query.SelectSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates missing tables and indexes.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id int64) (*content.Content, error) {
	recs, err := p.load(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, content.ErrNotFound
	}
	return recs[0], nil
}

func (p *PostgresStore) Save(ctx context.Context, c *content.Content) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	created := c.ID == 0
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			if created {
				c.ID = 0
			}
		}
	}()

	if created {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO contents (content_type, author, status, created_at, modified_at, published_at, depublished_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			c.ContentType, c.Author, string(c.Status), c.CreatedAt, c.ModifiedAt, c.PublishedAt, c.DepublishedAt,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("insert content: %w", err)
		}
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx,
			`UPDATE contents SET content_type = $1, author = $2, status = $3, created_at = $4, modified_at = $5, published_at = $6, depublished_at = $7 WHERE id = $8`,
			c.ContentType, c.Author, string(c.Status), c.CreatedAt, c.ModifiedAt, c.PublishedAt, c.DepublishedAt, c.ID,
		)
		if err != nil {
			return fmt.Errorf("update content %d: %w", c.ID, err)
		}
		var n int64
		if n, err = res.RowsAffected(); err != nil {
			return err
		}
		if n == 0 {
			err = content.ErrNotFound
			return err
		}
	}

	if err = p.saveFields(ctx, tx, c); err != nil {
		return err
	}
	if err = p.saveTaxonomies(ctx, tx, c); err != nil {
		return err
	}
	if err = p.saveRelations(ctx, tx, c); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) saveFields(ctx context.Context, tx *sql.Tx, c *content.Content) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM content_fields WHERE content_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clear fields: %w", err)
	}
	for i, f := range c.Fields {
		raw, err := content.EncodeValue(f.Value)
		if err != nil {
			return fmt.Errorf("encode field %s: %w", f.Key, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO content_fields (id, content_id, position, name, locale, type, value) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			f.ID, c.ID, i, f.Key.String(), f.Locale, f.Type, string(raw),
		)
		if err != nil {
			return fmt.Errorf("insert field %s: %w", f.Key, err)
		}
	}
	return nil
}

// saveTaxonomies upserts each term by (type, slug) and adopts the stored
// identity, so concurrent creators of the same slug share one row.
func (p *PostgresStore) saveTaxonomies(ctx context.Context, tx *sql.Tx, c *content.Content) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM content_taxonomies WHERE content_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clear taxonomies: %w", err)
	}
	for i, l := range c.Taxonomies {
		t := &l.Taxonomy
		err := tx.QueryRowContext(ctx,
			`INSERT INTO taxonomies (id, type, slug, name) VALUES ($1, $2, $3, $4) ON CONFLICT (type, slug) DO UPDATE SET type = EXCLUDED.type RETURNING id, name`,
			t.ID, t.Type, t.Slug, t.Name,
		).Scan(&t.ID, &t.Name)
		if err != nil {
			return fmt.Errorf("upsert taxonomy %s/%s: %w", t.Type, t.Slug, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO content_taxonomies (id, content_id, taxonomy_id, position) VALUES ($1, $2, $3, $4)`,
			l.ID, c.ID, t.ID, i,
		)
		if err != nil {
			return fmt.Errorf("link taxonomy %s/%s: %w", t.Type, t.Slug, err)
		}
	}
	return nil
}

func (p *PostgresStore) saveRelations(ctx context.Context, tx *sql.Tx, c *content.Content) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM content_relations WHERE from_content_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clear relations: %w", err)
	}
	for i, r := range c.Relations {
		r.FromID = c.ID
		_, err := tx.ExecContext(ctx,
			`INSERT INTO content_relations (id, from_content_id, to_content_id, name, position) VALUES ($1, $2, $3, $4, $5)`,
			r.ID, c.ID, r.ToID, r.Name, i,
		)
		if err != nil {
			return fmt.Errorf("insert relation %s -> %d: %w", r.Name, r.ToID, err)
		}
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM contents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return content.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM contents WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (p *PostgresStore) FindTaxonomy(ctx context.Context, typ, slug string) (*content.Taxonomy, error) {
	var t content.Taxonomy
	err := p.db.QueryRowContext(ctx,
		`SELECT id, type, slug, name FROM taxonomies WHERE type = $1 AND slug = $2`, typ, slug,
	).Scan(&t.ID, &t.Type, &t.Slug, &t.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, content.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (p *PostgresStore) Count(ctx context.Context, plan *query.Plan) (int, error) {
	q, args := query.CountSQL(plan)
	var n int
	if err := p.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *PostgresStore) Fetch(ctx context.Context, plan *query.Plan) ([]*content.Content, error) {
	q, args := query.SelectSQL(plan)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*content.Content{}, nil
	}
	return p.load(ctx, ids)
}

// load reads the aggregates for ids and returns them in the order of ids.
// Unknown ids are skipped.
func (p *PostgresStore) load(ctx context.Context, ids []int64) ([]*content.Content, error) {
	in, args := inList(ids)
	byID := make(map[int64]*content.Content, len(ids))

	rows, err := p.db.QueryContext(ctx,
		`SELECT id, content_type, author, status, created_at, modified_at, published_at, depublished_at FROM contents WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return nil, err
	}
	err = scanRows(rows, func() error {
		var c content.Content
		var status string
		var created, modified, published, depublished sql.NullTime
		if err := rows.Scan(&c.ID, &c.ContentType, &c.Author, &status, &created, &modified, &published, &depublished); err != nil {
			return err
		}
		c.Status = content.Status(status)
		c.CreatedAt = nullTime(created)
		c.ModifiedAt = nullTime(modified)
		c.PublishedAt = nullTime(published)
		c.DepublishedAt = nullTime(depublished)
		byID[c.ID] = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(byID) == 0 {
		return nil, nil
	}

	rows, err = p.db.QueryContext(ctx,
		`SELECT id, content_id, name, locale, type, value FROM content_fields WHERE content_id IN (`+in+`) ORDER BY content_id, position`, args...)
	if err != nil {
		return nil, err
	}
	err = scanRows(rows, func() error {
		var f content.Field
		var owner int64
		var name string
		var raw []byte
		if err := rows.Scan(&f.ID, &owner, &name, &f.Locale, &f.Type, &raw); err != nil {
			return err
		}
		v, err := content.DecodeValue(f.Type, raw)
		if err != nil {
			return fmt.Errorf("content %d: %w", owner, err)
		}
		f.Key = content.ParseFieldKey(name)
		f.Value = v
		if c, ok := byID[owner]; ok {
			c.Fields = append(c.Fields, &f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows, err = p.db.QueryContext(ctx,
		`SELECT ct.id, ct.content_id, t.id, t.type, t.slug, t.name FROM content_taxonomies ct JOIN taxonomies t ON t.id = ct.taxonomy_id WHERE ct.content_id IN (`+in+`) ORDER BY ct.content_id, ct.position`, args...)
	if err != nil {
		return nil, err
	}
	err = scanRows(rows, func() error {
		var l content.TaxonomyLink
		var owner int64
		if err := rows.Scan(&l.ID, &owner, &l.Taxonomy.ID, &l.Taxonomy.Type, &l.Taxonomy.Slug, &l.Taxonomy.Name); err != nil {
			return err
		}
		if c, ok := byID[owner]; ok {
			c.Taxonomies = append(c.Taxonomies, &l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows, err = p.db.QueryContext(ctx,
		`SELECT id, from_content_id, to_content_id, name FROM content_relations WHERE from_content_id IN (`+in+`) ORDER BY from_content_id, position`, args...)
	if err != nil {
		return nil, err
	}
	err = scanRows(rows, func() error {
		var r content.Relation
		if err := rows.Scan(&r.ID, &r.FromID, &r.ToID, &r.Name); err != nil {
			return err
		}
		if c, ok := byID[r.FromID]; ok {
			c.Relations = append(c.Relations, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*content.Content, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func scanRows(rows *sql.Rows, fn func() error) error {
	defer rows.Close()
	for rows.Next() {
		if err := fn(); err != nil {
			return err
		}
	}
	return rows.Err()
}

func inList(ids []int64) (string, []interface{}) {
	ps := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		ps[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return strings.Join(ps, ", "), args
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
