package repository

import (
	"context"
	"sync"
	"time"

	"github.com/contentd/contentd/internal/content"
	"github.com/contentd/contentd/internal/query"
)

// MemoryStore keeps aggregates in process. Records are cloned on the way in
// and out so callers never share state with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     int64
	contents   map[int64]*content.Content
	taxonomies map[string]*content.Taxonomy
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contents:   make(map[int64]*content.Content),
		taxonomies: make(map[string]*content.Taxonomy),
	}
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*content.Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.contents[id]; ok {
		return c.Clone(), nil
	}
	return nil, content.ErrNotFound
}

func (m *MemoryStore) Save(_ context.Context, c *content.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		m.nextID++
		c.ID = m.nextID
	} else if _, ok := m.contents[c.ID]; !ok {
		return content.ErrNotFound
	}
	for _, l := range c.Taxonomies {
		key := taxonomyKey(l.Taxonomy.Type, l.Taxonomy.Slug)
		if existing, ok := m.taxonomies[key]; ok {
			l.Taxonomy = *existing
			continue
		}
		t := l.Taxonomy
		m.taxonomies[key] = &t
	}
	for _, r := range c.Relations {
		r.FromID = c.ID
	}
	m.contents[c.ID] = c.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contents[id]; !ok {
		return content.ErrNotFound
	}
	delete(m.contents, id)
	for _, other := range m.contents {
		kept := other.Relations[:0]
		for _, r := range other.Relations {
			if r.ToID != id {
				kept = append(kept, r)
			}
		}
		other.Relations = kept
	}
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, id int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.contents[id]
	return ok, nil
}

func (m *MemoryStore) FindTaxonomy(_ context.Context, typ, slug string) (*content.Taxonomy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.taxonomies[taxonomyKey(typ, slug)]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, content.ErrNotFound
}

func (m *MemoryStore) Count(_ context.Context, plan *query.Plan) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.contents {
		if query.Match(plan, c) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Fetch(_ context.Context, plan *query.Plan) ([]*content.Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var recs []*content.Content
	for _, c := range m.contents {
		if query.Match(plan, c) {
			recs = append(recs, c)
		}
	}
	query.Sort(plan, recs)
	recs = query.Window(plan, recs)
	out := make([]*content.Content, len(recs))
	for i, c := range recs {
		out[i] = c.Clone()
	}
	return out, nil
}

// Seed stores c under its own ID, keeping timestamps as given. Used to load
// fixtures.
func (m *MemoryStore) Seed(c *content.Content) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID > m.nextID {
		m.nextID = c.ID
	}
	if c.CreatedAt == nil {
		now := time.Now().UTC()
		c.CreatedAt = &now
	}
	for _, l := range c.Taxonomies {
		key := taxonomyKey(l.Taxonomy.Type, l.Taxonomy.Slug)
		if _, ok := m.taxonomies[key]; !ok {
			t := l.Taxonomy
			m.taxonomies[key] = &t
		}
	}
	m.contents[c.ID] = c.Clone()
}
