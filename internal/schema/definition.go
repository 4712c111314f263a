// Package schema holds the configuration-defined content type layouts.
// Definitions are resolved once at load time and handed explicitly to the
// reconciliation engine and the query pipeline.
package schema

import (
	"errors"
	"strings"
)

var (
	ErrUnknownContentType = errors.New("unknown content type")
)

// Kind is the storage shape of a field.
type Kind int

const (
	KindScalar Kind = iota
	KindSet
	KindCollection
	KindTaxonomy
	KindRelation
)

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindCollection:
		return "collection"
	case KindTaxonomy:
		return "taxonomy"
	case KindRelation:
		return "relation"
	default:
		return "scalar"
	}
}

// KindOf maps a configured type tag to its storage shape. Widget types such as
// text, html or slug are all scalars.
func KindOf(typeTag string) Kind {
	switch strings.ToLower(strings.TrimSpace(typeTag)) {
	case "set":
		return KindSet
	case "collection":
		return KindCollection
	case "taxonomy":
		return KindTaxonomy
	case "relation":
		return KindRelation
	default:
		return KindScalar
	}
}

// FieldDefinition describes one named field of a content type or of a
// set/collection sub-schema.
type FieldDefinition struct {
	Name     string
	Kind     Kind
	Type     string // configured type tag, e.g. "text", "html", "set"
	Localize bool
	Required bool
	Fields   *Fields // sub-schema, only for sets and collections
}

// Scalar builds a scalar definition; handy for callers supplying definitions
// for fields the schema does not know.
func Scalar(name, typeTag string) *FieldDefinition {
	if typeTag == "" {
		typeTag = "text"
	}
	return &FieldDefinition{Name: name, Kind: KindScalar, Type: typeTag}
}

// StorageType is the type tag persisted alongside a field row.
func (d *FieldDefinition) StorageType() string {
	if d.Type != "" {
		return d.Type
	}
	return d.Kind.String()
}

// Child returns a sub-field of a set or collection.
func (d *FieldDefinition) Child(name string) (*FieldDefinition, bool) {
	if d == nil || d.Fields == nil {
		return nil, false
	}
	return d.Fields.Get(name)
}

// Fields is an ordered mapping of field name to definition.
type Fields struct {
	order []string
	defs  map[string]*FieldDefinition
}

func NewFields(defs ...*FieldDefinition) *Fields {
	f := &Fields{defs: make(map[string]*FieldDefinition, len(defs))}
	for _, d := range defs {
		f.add(d)
	}
	return f
}

func (f *Fields) add(d *FieldDefinition) {
	if _, ok := f.defs[d.Name]; !ok {
		f.order = append(f.order, d.Name)
	}
	f.defs[d.Name] = d
}

func (f *Fields) Get(name string) (*FieldDefinition, bool) {
	if f == nil {
		return nil, false
	}
	d, ok := f.defs[name]
	return d, ok
}

func (f *Fields) Names() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

func (f *Fields) All() []*FieldDefinition {
	if f == nil {
		return nil
	}
	out := make([]*FieldDefinition, 0, len(f.order))
	for _, n := range f.order {
		out = append(out, f.defs[n])
	}
	return out
}

func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.order)
}

// ContentType is the schema for one category of content.
type ContentType struct {
	Slug          string
	Name          string
	SingularSlug  string
	Locales       []string
	DefaultStatus string
	// ShowOnDashboard lists the type's recent items on the dashboard.
	ShowOnDashboard bool
	Fields          *Fields
}

func (ct *ContentType) Field(name string) (*FieldDefinition, bool) {
	return ct.Fields.Get(name)
}

// DefaultLocale is the first configured locale, or "" for monolingual types.
func (ct *ContentType) DefaultLocale() string {
	if len(ct.Locales) == 0 {
		return ""
	}
	return ct.Locales[0]
}

func (ct *ContentType) HasLocale(locale string) bool {
	for _, l := range ct.Locales {
		if l == locale {
			return true
		}
	}
	return false
}

// FieldsOfKind lists top-level definitions of the given kind in schema order.
func (ct *ContentType) FieldsOfKind(k Kind) []*FieldDefinition {
	var out []*FieldDefinition
	for _, d := range ct.Fields.All() {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

// Via selects how a scoping rule reaches the principal's reference set.
type Via string

const (
	ViaDirect   Via = ""
	ViaRelation Via = "relation"
)

// ScopingRule restricts rows of one content type for principals holding the
// restricted scope. Relation optionally narrows a relation hop to one group.
type ScopingRule struct {
	ContentType string `yaml:"content_type"`
	Via         Via    `yaml:"via"`
	Relation    string `yaml:"relation"`
}

// Scoping is the row-visibility configuration consumed by the query pipeline.
type Scoping struct {
	RestrictedScope string        `yaml:"restricted_scope"`
	OverrideScope   string        `yaml:"override_scope"`
	Rules           []ScopingRule `yaml:"rules"`
	// Dashboard replaces the dashboard listing for restricted principals.
	Dashboard      string `yaml:"dashboard"`
	DashboardLimit int    `yaml:"dashboard_limit"`
}

// Rule returns the scoping rule for a content type, if any.
func (s Scoping) Rule(contentType string) (ScopingRule, bool) {
	for _, r := range s.Rules {
		if r.ContentType == contentType {
			return r, true
		}
	}
	return ScopingRule{}, false
}
