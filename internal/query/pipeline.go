package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/contentd/contentd/internal/authz"
	"github.com/contentd/contentd/internal/content"
	"github.com/contentd/contentd/internal/schema"
	"github.com/contentd/contentd/pkg/logger"
	"github.com/contentd/contentd/pkg/metrics"
)

const DefaultPageSize = 10

// Executor runs plans against a storage backend. Count ignores Limit and
// Offset; Fetch honors them and the plan order.
type Executor interface {
	Count(ctx context.Context, plan *Plan) (int, error)
	Fetch(ctx context.Context, plan *Plan) ([]*content.Content, error)
}

// ScopeFunc adds type-specific predicates to a plan.
type ScopeFunc func(plan *Plan)

// Page is one page of records plus pagination metadata.
type Page struct {
	Records     []*content.Content `json:"records"`
	CurrentPage int                `json:"currentPage"`
	TotalPages  int                `json:"totalPages"`
	TotalCount  int                `json:"totalCount"`
	PageSize    int                `json:"pageSize"`
}

// Result holds either Single (possibly nil when nothing matched) for single
// lookups, or Page.
type Result struct {
	Single *content.Content
	Page   *Page
}

type Pipeline struct {
	registry *schema.Registry
	exec     Executor
	pageSize int
	scopes   map[string][]ScopeFunc
}

func NewPipeline(registry *schema.Registry, exec Executor, pageSize int) *Pipeline {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pipeline{registry: registry, exec: exec, pageSize: pageSize, scopes: make(map[string][]ScopeFunc)}
}

// RegisterScope adds a hook run for every plan that selects contentType.
func (p *Pipeline) RegisterScope(contentType string, fn ScopeFunc) {
	p.scopes[contentType] = append(p.scopes[contentType], fn)
}

// Query parses a selector such as "pages/5" and executes it. Singular slugs
// ("page/about") select their content type and imply a single result.
func (p *Pipeline) Query(ctx context.Context, selector string, d *Directives, principal authz.Principal, requestPage int) (*Result, error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		metrics.Queries.WithLabelValues("error").Inc()
		return nil, err
	}
	d = d.Clone()
	for i, name := range sel.ContentTypes {
		if _, err := p.registry.Get(name); err == nil {
			continue
		}
		if slug, ok := p.singular(name); ok {
			sel.ContentTypes[i] = slug
			d.Set(DirectiveReturnSingle, "true")
		}
	}
	switch {
	case sel.ID != 0:
		d.Set(DirectiveID, strconv.FormatInt(sel.ID, 10))
		d.Set(DirectiveReturnSingle, "true")
	case sel.Slug != "":
		for _, name := range sel.ContentTypes {
			ct, err := p.registry.Get(name)
			if err != nil {
				break
			}
			if def, ok := ct.Field("slug"); !ok || def.Kind != schema.KindScalar {
				metrics.Queries.WithLabelValues("error").Inc()
				return nil, &Error{Op: "parse selector", Err: fmt.Errorf("%q has no slug field", name)}
			}
		}
		d.Set("slug", sel.Slug)
		d.Set(DirectiveReturnSingle, "true")
	}
	return p.Execute(ctx, sel.ContentTypes, d, principal, requestPage)
}

func (p *Pipeline) singular(name string) (string, bool) {
	for _, slug := range p.registry.Slugs() {
		ct, _ := p.registry.Get(slug)
		if ct.SingularSlug == name {
			return slug, true
		}
	}
	return "", false
}

// Execute plans and runs a retrieval. requestPage is the page asked for by
// the request and only applies when no page directive is given.
func (p *Pipeline) Execute(ctx context.Context, contentTypes []string, d *Directives, principal authz.Principal, requestPage int) (*Result, error) {
	plan, err := p.Plan(contentTypes, d, principal)
	if err != nil {
		metrics.Queries.WithLabelValues("error").Inc()
		return nil, err
	}

	if plan.Single {
		// relation-hop scoping is applied again for single lookups
		p.scope(plan, principal, true)
		plan.Limit, plan.Offset = 1, 0
		logger.Debugf("query: single %s", plan)
		recs, err := p.exec.Fetch(ctx, plan)
		if err != nil {
			metrics.Queries.WithLabelValues("error").Inc()
			return nil, &Error{Op: "fetch", Err: err}
		}
		metrics.Queries.WithLabelValues("single").Inc()
		if len(recs) == 0 {
			return &Result{}, nil
		}
		return &Result{Single: recs[0]}, nil
	}

	pageSize := p.pageSize
	if plan.pageSize > 0 {
		pageSize = plan.pageSize
	}
	count, err := p.exec.Count(ctx, plan)
	if err != nil {
		metrics.Queries.WithLabelValues("error").Inc()
		return nil, &Error{Op: "count", Err: err}
	}
	totalPages := (count + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	page := requestPage
	if plan.pageExplicit {
		page = plan.page
	}
	page = clampPage(page, totalPages)

	plan.Limit = pageSize
	plan.Offset = (page - 1) * pageSize
	logger.Debugf("query: page %d/%d %s", page, totalPages, plan)
	recs, err := p.exec.Fetch(ctx, plan)
	if err != nil {
		metrics.Queries.WithLabelValues("error").Inc()
		return nil, &Error{Op: "fetch", Err: err}
	}
	metrics.Queries.WithLabelValues("page").Inc()
	return &Result{Page: &Page{
		Records:     recs,
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalCount:  count,
		PageSize:    pageSize,
	}}, nil
}

// An overlong page serves the last page instead of failing.
func clampPage(page, totalPages int) int {
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Plan builds the retrieval plan without running it. Directive values are
// read, never modified.
func (p *Pipeline) Plan(contentTypes []string, d *Directives, principal authz.Principal) (*Plan, error) {
	if len(contentTypes) == 0 {
		return nil, &Error{Op: "plan", Err: errors.New("no content type given")}
	}
	types := make([]*schema.ContentType, 0, len(contentTypes))
	slugs := make([]string, 0, len(contentTypes))
	for _, name := range contentTypes {
		ct, err := p.registry.Get(name)
		if err != nil {
			return nil, &Error{Op: "plan", Err: err}
		}
		types = append(types, ct)
		slugs = append(slugs, ct.Slug)
	}
	plan := NewPlan(slugs...)

	for _, slug := range slugs {
		for _, fn := range p.scopes[slug] {
			fn(plan)
		}
	}

	b := &builder{plan: plan, types: types}
	b.structure(d)
	for _, dir := range d.All() {
		if err := b.apply(dir); err != nil {
			return nil, &Error{Op: "directive " + dir.Name, Err: err}
		}
	}

	p.scope(plan, principal, false)

	if !orderedBy(plan, ColumnID) {
		plan.OrderBy(OrderTerm{Column: ColumnID})
	}
	return plan, nil
}

func orderedBy(plan *Plan, col Column) bool {
	for _, t := range plan.Order {
		if t.Join == nil && t.Column == col {
			return true
		}
	}
	return false
}

// Dashboard pages the most recently modified items of every type shown on
// the dashboard. Restricted principals get the scoping dashboard type instead
// when one is configured.
func (p *Pipeline) Dashboard(ctx context.Context, principal authz.Principal, requestPage int) (*Result, error) {
	types := p.registry.DashboardTypes()
	d := NewDirectives(Directive{Name: DirectiveOrder, Value: "-modifiedAt"})
	sc := p.registry.Scoping
	if sc.Dashboard != "" && restricted(sc, principal) {
		types = []string{sc.Dashboard}
		if sc.DashboardLimit > 0 {
			d.Set(DirectiveLimit, strconv.Itoa(sc.DashboardLimit))
		}
	}
	if len(types) == 0 {
		return &Result{Page: &Page{CurrentPage: 1, TotalPages: 1, PageSize: p.pageSize}}, nil
	}
	return p.Execute(ctx, types, d, principal, requestPage)
}

func (p *Pipeline) scope(plan *Plan, principal authz.Principal, relationOnly bool) {
	Restrict(p.registry.Scoping, plan, principal, relationOnly)
}

// Restrict adds scope predicates for principals holding the restricted scope
// without the override. Predicates are AND-ed and deduplicated.
func Restrict(sc schema.Scoping, plan *Plan, principal authz.Principal, relationOnly bool) {
	if !restricted(sc, principal) {
		return
	}
	refs := principal.ReferenceIDs()
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	for _, ct := range plan.ContentTypes {
		rule, ok := sc.Rule(ct)
		if !ok || (relationOnly && rule.Via != schema.ViaRelation) {
			continue
		}
		before := len(plan.Predicates)
		plan.Where(Scope{ContentType: ct, Via: rule.Via, Relation: rule.Relation, References: refs})
		if len(plan.Predicates) > before {
			logger.Infof("query: scoping %s for %s to %d reference(s)", ct, principal.Subject(), len(refs))
		}
	}
}

func restricted(sc schema.Scoping, principal authz.Principal) bool {
	if principal == nil || sc.RestrictedScope == "" || !principal.IsGranted(sc.RestrictedScope) {
		return false
	}
	return sc.OverrideScope == "" || !principal.IsGranted(sc.OverrideScope)
}

type builder struct {
	plan  *Plan
	types []*schema.ContentType
}

func (b *builder) field(name string) (*schema.FieldDefinition, bool) {
	for _, ct := range b.types {
		if def, ok := ct.Field(name); ok {
			return def, true
		}
	}
	return nil, false
}

func (b *builder) joinFor(def *schema.FieldDefinition) *FieldJoin {
	locale := ""
	if def.Localize {
		locale = b.plan.Locale
	}
	return b.plan.Join(def.Name, locale)
}

// structure resolves the locale and attaches the field joins every directive
// will read before any directive is applied.
func (b *builder) structure(d *Directives) {
	if l, ok := d.Get(DirectiveLocale); ok && strings.TrimSpace(l) != "" {
		b.plan.Locale = strings.TrimSpace(l)
	} else {
		b.plan.Locale = b.types[0].DefaultLocale()
	}
	for _, dir := range d.All() {
		switch dir.Name {
		case DirectiveOrder:
			for _, term := range splitList(dir.Value) {
				name := strings.TrimLeft(term, "-+")
				if _, ok := ColumnByName(name); ok {
					continue
				}
				if def, ok := b.field(name); ok && def.Kind == schema.KindScalar {
					b.joinFor(def)
				}
			}
		case DirectiveLimit, DirectivePage, DirectiveLocale, DirectiveStatus, DirectiveReturnSingle, DirectiveID:
		default:
			if def, ok := b.field(dir.Name); ok && def.Kind == schema.KindScalar {
				b.joinFor(def)
			}
		}
	}
}

func (b *builder) apply(dir Directive) error {
	switch dir.Name {
	case DirectiveLimit:
		n, err := positiveInt(dir.Value)
		if err != nil {
			return err
		}
		b.plan.pageSize = n
	case DirectivePage:
		n, err := positiveInt(dir.Value)
		if err != nil {
			return err
		}
		b.plan.page = n
		b.plan.pageExplicit = true
	case DirectiveOrder:
		for _, term := range splitList(dir.Value) {
			desc := strings.HasPrefix(term, "-")
			name := strings.TrimLeft(term, "-+")
			if col, ok := ColumnByName(name); ok {
				b.plan.OrderBy(OrderTerm{Column: col, Desc: desc})
				continue
			}
			def, ok := b.field(name)
			if !ok || def.Kind != schema.KindScalar {
				return fmt.Errorf("cannot order by %q", name)
			}
			b.plan.OrderBy(OrderTerm{Join: b.joinFor(def), Desc: desc})
		}
	case DirectiveLocale:
	case DirectiveStatus:
		values := splitList(dir.Value)
		for _, v := range values {
			if _, ok := content.ParseStatus(v); !ok {
				return fmt.Errorf("unknown status %q", v)
			}
		}
		if len(values) > 0 {
			b.plan.Where(ColumnIn{Column: ColumnStatus, Values: values})
		}
	case DirectiveReturnSingle:
		single := true
		if v := strings.TrimSpace(dir.Value); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean %q", v)
			}
			single = parsed
		}
		b.plan.Single = single
	case DirectiveID:
		values := splitList(dir.Value)
		for _, v := range values {
			if _, err := positiveInt64(v); err != nil {
				return err
			}
		}
		if len(values) > 0 {
			b.plan.Where(ColumnIn{Column: ColumnID, Values: values})
		}
	default:
		def, ok := b.field(dir.Name)
		if !ok {
			logger.Debugf("query: ignoring directive %q", dir.Name)
			return nil
		}
		values := splitList(dir.Value)
		if len(values) == 0 {
			return nil
		}
		switch def.Kind {
		case schema.KindScalar:
			b.plan.Where(FieldIn{Join: b.joinFor(def), Values: values})
		case schema.KindTaxonomy:
			b.plan.Where(TaxonomyIn{Type: def.Name, Slugs: values})
		default:
			logger.Debugf("query: ignoring directive %q on %s field", dir.Name, def.Kind)
		}
	}
	return nil
}

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("expected a positive integer, got %q", s)
	}
	return n, nil
}

func positiveInt64(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("expected a positive id, got %q", s)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
