package query

import (
	"fmt"
	"strings"

	"github.com/contentd/contentd/internal/schema"
)

// Relational layout read by the SQL renderer.
const (
	TableContents          = "contents"
	TableFields            = "content_fields"
	TableTaxonomies        = "taxonomies"
	TableContentTaxonomies = "content_taxonomies"
	TableRelations         = "content_relations"
)

type sqlWriter struct {
	sb   strings.Builder
	args []interface{}
}

func (w *sqlWriter) param(v interface{}) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *sqlWriter) params(vs []string) string {
	ps := make([]string, len(vs))
	for i, v := range vs {
		ps[i] = w.param(v)
	}
	return strings.Join(ps, ", ")
}

func (w *sqlWriter) ids(vs []int64) string {
	ps := make([]string, len(vs))
	for i, v := range vs {
		ps[i] = w.param(v)
	}
	return strings.Join(ps, ", ")
}

// SelectSQL renders the plan as a query returning matching content ids in
// plan order, honoring Limit and Offset.
func SelectSQL(plan *Plan) (string, []interface{}) {
	w := &sqlWriter{}
	w.sb.WriteString("SELECT c.id FROM " + TableContents + " c")
	w.from(plan)
	w.where(plan)
	if len(plan.Order) > 0 {
		terms := make([]string, 0, len(plan.Order))
		for _, t := range plan.Order {
			dir := "ASC"
			if t.Desc {
				dir = "DESC"
			}
			terms = append(terms, fmt.Sprintf("%s %s", orderExpr(t), dir))
		}
		w.sb.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if plan.Limit > 0 {
		w.sb.WriteString(" LIMIT " + w.param(plan.Limit))
	}
	if plan.Offset > 0 {
		w.sb.WriteString(" OFFSET " + w.param(plan.Offset))
	}
	return w.sb.String(), w.args
}

// CountSQL renders the row count of the plan, ignoring Limit and Offset.
func CountSQL(plan *Plan) (string, []interface{}) {
	w := &sqlWriter{}
	w.sb.WriteString("SELECT COUNT(*) FROM " + TableContents + " c")
	w.from(plan)
	w.where(plan)
	return w.sb.String(), w.args
}

// Field rows are unique per (content, name, locale), so LEFT JOINs never
// multiply result rows.
func (w *sqlWriter) from(plan *Plan) {
	for _, j := range plan.Joins {
		w.sb.WriteString(fmt.Sprintf(" LEFT JOIN %s %s ON %s.content_id = c.id AND %s.name = %s AND %s.locale = %s",
			TableFields, j.Alias, j.Alias, j.Alias, w.param(j.Name), j.Alias, w.param(j.Locale)))
	}
}

func (w *sqlWriter) where(plan *Plan) {
	conds := []string{"c.content_type IN (" + w.params(plan.ContentTypes) + ")"}
	for _, pred := range plan.Predicates {
		conds = append(conds, w.predicate(pred))
	}
	w.sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
}

func (w *sqlWriter) predicate(pred Predicate) string {
	switch p := pred.(type) {
	case ColumnIn:
		if p.Column == ColumnID {
			return "c.id::text IN (" + w.params(p.Values) + ")"
		}
		return fmt.Sprintf("c.%s IN (%s)", p.Column, w.params(p.Values))
	case FieldIn:
		return fmt.Sprintf("%s IN (%s)", fieldText(p.Join), w.params(p.Values))
	case TaxonomyIn:
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s ct JOIN %s t ON t.id = ct.taxonomy_id WHERE ct.content_id = c.id AND t.type = %s AND t.slug IN (%s))",
			TableContentTaxonomies, TableTaxonomies, w.param(p.Type), w.params(p.Slugs))
	case Scope:
		other := "c.content_type <> " + w.param(p.ContentType)
		if len(p.References) == 0 {
			return other
		}
		if p.Via == schema.ViaRelation {
			hop := fmt.Sprintf("SELECT 1 FROM %s r WHERE r.from_content_id = c.id AND r.to_content_id IN (%s)", TableRelations, w.ids(p.References))
			if p.Relation != "" {
				hop += " AND r.name = " + w.param(p.Relation)
			}
			return fmt.Sprintf("(%s OR EXISTS (%s))", other, hop)
		}
		return fmt.Sprintf("(%s OR c.id IN (%s))", other, w.ids(p.References))
	}
	return "FALSE"
}

func fieldText(j *FieldJoin) string {
	return j.Alias + ".value #>> '{}'"
}

func orderExpr(t OrderTerm) string {
	if t.Join != nil {
		return fieldText(t.Join)
	}
	return "c." + string(t.Column)
}
