package query

import (
	"sort"
	"strconv"
	"time"

	"github.com/contentd/contentd/internal/content"
	"github.com/contentd/contentd/internal/schema"
)

// timeLayout sorts lexicographically in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Match evaluates the plan's content type filter and predicates against one
// record, for executors that hold records in memory.
func Match(plan *Plan, c *content.Content) bool {
	if !contains(plan.ContentTypes, c.ContentType) {
		return false
	}
	for _, pred := range plan.Predicates {
		if !matches(pred, c) {
			return false
		}
	}
	return true
}

func matches(pred Predicate, c *content.Content) bool {
	switch p := pred.(type) {
	case ColumnIn:
		return contains(p.Values, ColumnText(c, p.Column))
	case FieldIn:
		f, ok := c.Field(content.ParseFieldKey(p.Join.Name), p.Join.Locale)
		return ok && contains(p.Values, content.ValueText(f.Value))
	case TaxonomyIn:
		for _, l := range c.TaxonomiesOf(p.Type) {
			if contains(p.Slugs, l.Taxonomy.Slug) {
				return true
			}
		}
		return false
	case Scope:
		if c.ContentType != p.ContentType {
			return true
		}
		if p.Via == schema.ViaRelation {
			for _, r := range c.Relations {
				if (p.Relation == "" || r.Name == p.Relation) && containsID(p.References, r.ToID) {
					return true
				}
			}
			return false
		}
		return containsID(p.References, c.ID)
	}
	return false
}

// ColumnText is the comparable text of an inline column.
func ColumnText(c *content.Content, col Column) string {
	switch col {
	case ColumnID:
		return strconv.FormatInt(c.ID, 10)
	case ColumnContentType:
		return c.ContentType
	case ColumnAuthor:
		return c.Author
	case ColumnStatus:
		return string(c.Status)
	case ColumnCreatedAt:
		return timeText(c.CreatedAt)
	case ColumnModifiedAt:
		return timeText(c.ModifiedAt)
	case ColumnPublishedAt:
		return timeText(c.PublishedAt)
	case ColumnDepublishedAt:
		return timeText(c.DepublishedAt)
	}
	return ""
}

func timeText(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// Sort orders records by the plan's order terms; ties keep ascending ids.
func Sort(plan *Plan, recs []*content.Content) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		for _, t := range plan.Order {
			cmp := compare(t, a, b)
			if cmp == 0 {
				continue
			}
			if t.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return a.ID < b.ID
	})
}

func compare(t OrderTerm, a, b *content.Content) int {
	if t.Join == nil && t.Column == ColumnID {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	}
	x, xok := sortText(t, a)
	y, yok := sortText(t, b)
	switch {
	case !xok && !yok:
		return 0
	case !xok:
		return 1
	case !yok:
		return -1
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// sortText is the text a record sorts by. Missing values compare after every
// present one, so they come last ascending and first descending like SQL
// NULLs.
func sortText(t OrderTerm, c *content.Content) (string, bool) {
	if t.Join != nil {
		f, ok := c.Field(content.ParseFieldKey(t.Join.Name), t.Join.Locale)
		if !ok {
			return "", false
		}
		return content.ValueText(f.Value), true
	}
	var ts *time.Time
	switch t.Column {
	case ColumnCreatedAt:
		ts = c.CreatedAt
	case ColumnModifiedAt:
		ts = c.ModifiedAt
	case ColumnPublishedAt:
		ts = c.PublishedAt
	case ColumnDepublishedAt:
		ts = c.DepublishedAt
	default:
		return ColumnText(c, t.Column), true
	}
	if ts == nil {
		return "", false
	}
	return timeText(ts), true
}

// Window applies the plan's offset and limit to sorted records.
func Window(plan *Plan, recs []*content.Content) []*content.Content {
	if plan.Offset >= len(recs) {
		return []*content.Content{}
	}
	recs = recs[plan.Offset:]
	if plan.Limit > 0 && plan.Limit < len(recs) {
		recs = recs[:plan.Limit]
	}
	return recs
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsID(list []int64, v int64) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
