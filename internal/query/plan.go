// Package query turns content type selectors, directives and a principal
// into a retrieval plan, and runs it against a storage executor.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/contentd/contentd/internal/schema"
)

// Error is a retrieval-level failure; no partial results accompany it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "query: " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Column is an inline column of the content table.
type Column string

const (
	ColumnID            Column = "id"
	ColumnContentType   Column = "content_type"
	ColumnAuthor        Column = "author"
	ColumnStatus        Column = "status"
	ColumnCreatedAt     Column = "created_at"
	ColumnModifiedAt    Column = "modified_at"
	ColumnPublishedAt   Column = "published_at"
	ColumnDepublishedAt Column = "depublished_at"
)

var columnNames = map[string]Column{
	"id":             ColumnID,
	"author":         ColumnAuthor,
	"status":         ColumnStatus,
	"createdat":      ColumnCreatedAt,
	"created_at":     ColumnCreatedAt,
	"modifiedat":     ColumnModifiedAt,
	"modified_at":    ColumnModifiedAt,
	"publishedat":    ColumnPublishedAt,
	"published_at":   ColumnPublishedAt,
	"depublishedat":  ColumnDepublishedAt,
	"depublished_at": ColumnDepublishedAt,
}

// ColumnByName resolves directive spellings such as modifiedAt.
func ColumnByName(name string) (Column, bool) {
	c, ok := columnNames[strings.ToLower(name)]
	return c, ok
}

// FieldJoin reads one field value per row, keyed by (name, locale).
type FieldJoin struct {
	Alias  string
	Name   string
	Locale string
}

// Predicate is one AND-ed restriction of a plan.
type Predicate interface {
	Key() string
	isPredicate()
}

// ColumnIn keeps rows whose column is one of Values.
type ColumnIn struct {
	Column Column
	Values []string
}

// FieldIn keeps rows whose joined field text is one of Values.
type FieldIn struct {
	Join   *FieldJoin
	Values []string
}

// TaxonomyIn keeps rows assigned at least one of Slugs under Type.
type TaxonomyIn struct {
	Type  string
	Slugs []string
}

// Scope restricts rows of ContentType to the principal's references, either
// by row id or through an outgoing relation. Rows of other types pass.
type Scope struct {
	ContentType string
	Via         schema.Via
	Relation    string
	References  []int64
}

func (p ColumnIn) Key() string {
	return "column:" + string(p.Column) + "=" + strings.Join(p.Values, ",")
}

func (p FieldIn) Key() string {
	return "field:" + p.Join.Alias + "=" + strings.Join(p.Values, ",")
}

func (p TaxonomyIn) Key() string {
	return "taxonomy:" + p.Type + "=" + strings.Join(p.Slugs, ",")
}

func (p Scope) Key() string {
	refs := make([]string, len(p.References))
	for i, r := range p.References {
		refs[i] = strconv.FormatInt(r, 10)
	}
	return fmt.Sprintf("scope:%s:%s:%s=%s", p.ContentType, p.Via, p.Relation, strings.Join(refs, ","))
}

func (ColumnIn) isPredicate()   {}
func (FieldIn) isPredicate()    {}
func (TaxonomyIn) isPredicate() {}
func (Scope) isPredicate()      {}

// OrderTerm sorts by a column, or by a joined field when Join is set.
type OrderTerm struct {
	Column Column
	Join   *FieldJoin
	Desc   bool
}

// Plan is the storage-independent description of one retrieval.
type Plan struct {
	ContentTypes []string
	Predicates   []Predicate
	Joins        []*FieldJoin
	Order        []OrderTerm
	Locale       string
	Limit        int
	Offset       int
	Single       bool

	page         int
	pageExplicit bool
	pageSize     int
	seen         map[string]bool
}

func NewPlan(contentTypes ...string) *Plan {
	return &Plan{ContentTypes: contentTypes, seen: make(map[string]bool)}
}

// Where adds a predicate unless an identical one is already present.
func (p *Plan) Where(pred Predicate) {
	if p.seen == nil {
		p.seen = make(map[string]bool)
	}
	k := pred.Key()
	if p.seen[k] {
		return
	}
	p.seen[k] = true
	p.Predicates = append(p.Predicates, pred)
}

// Join returns the join for (name, locale), adding it on first use.
func (p *Plan) Join(name, locale string) *FieldJoin {
	for _, j := range p.Joins {
		if j.Name == name && j.Locale == locale {
			return j
		}
	}
	j := &FieldJoin{Alias: fmt.Sprintf("f%d", len(p.Joins)+1), Name: name, Locale: locale}
	p.Joins = append(p.Joins, j)
	return j
}

func (p *Plan) OrderBy(t OrderTerm) {
	p.Order = append(p.Order, t)
}

// Scopes returns the scope predicates of the plan.
func (p *Plan) Scopes() []Scope {
	var out []Scope
	for _, pred := range p.Predicates {
		if s, ok := pred.(Scope); ok {
			out = append(out, s)
		}
	}
	return out
}

// String summarizes the plan for debug logs.
func (p *Plan) String() string {
	keys := make([]string, 0, len(p.Predicates))
	for _, pred := range p.Predicates {
		keys = append(keys, pred.Key())
	}
	sort.Strings(keys)
	return fmt.Sprintf("types=%v predicates=%v joins=%d order=%d limit=%d offset=%d single=%v",
		p.ContentTypes, keys, len(p.Joins), len(p.Order), p.Limit, p.Offset, p.Single)
}
