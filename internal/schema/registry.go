package schema

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry holds every configured content type. It is read-only once loaded.
type Registry struct {
	types   map[string]*ContentType
	order   []string
	Scoping Scoping
}

func NewRegistry(types ...*ContentType) *Registry {
	r := &Registry{types: make(map[string]*ContentType, len(types))}
	for _, ct := range types {
		if _, ok := r.types[ct.Slug]; !ok {
			r.order = append(r.order, ct.Slug)
		}
		r.types[ct.Slug] = ct
	}
	return r
}

// Get resolves a content type by slug.
func (r *Registry) Get(slug string) (*ContentType, error) {
	ct, ok := r.types[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, slug)
	}
	return ct, nil
}

// Slugs returns the configured slugs in declaration order.
func (r *Registry) Slugs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

type rawDocument struct {
	ContentTypes yaml.Node `yaml:"content_types"`
	Scoping      Scoping   `yaml:"scoping"`
}

type rawContentType struct {
	Name          string               `yaml:"name"`
	SingularSlug  string               `yaml:"singular_slug"`
	Locales       []string             `yaml:"locales"`
	DefaultStatus string               `yaml:"default_status"`
	Dashboard     *bool                `yaml:"show_on_dashboard"`
	Fields        yaml.Node            `yaml:"fields"`
	Taxonomy      []string             `yaml:"taxonomy"`
	Relations     map[string]yaml.Node `yaml:"relations"`
}

type rawField struct {
	Type     string    `yaml:"type"`
	Localize bool      `yaml:"localize"`
	Required bool      `yaml:"required"`
	Fields   yaml.Node `yaml:"fields"`
}

// Parse reads a content types document. Field order follows the document.
func Parse(b []byte) (*Registry, error) {
	var doc rawDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if doc.ContentTypes.Kind != yaml.MappingNode {
		return nil, errors.New("schema: missing content_types mapping")
	}

	var types []*ContentType
	err := eachPair(&doc.ContentTypes, func(slug string, node *yaml.Node) error {
		var raw rawContentType
		if err := node.Decode(&raw); err != nil {
			return fmt.Errorf("content type %q: %w", slug, err)
		}
		ct, err := buildContentType(slug, &raw)
		if err != nil {
			return fmt.Errorf("content type %q: %w", slug, err)
		}
		types = append(types, ct)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	r := NewRegistry(types...)
	r.Scoping = doc.Scoping
	for _, rule := range r.Scoping.Rules {
		if _, ok := r.types[rule.ContentType]; !ok {
			return nil, fmt.Errorf("schema: scoping rule: %w: %q", ErrUnknownContentType, rule.ContentType)
		}
		if rule.Via != ViaDirect && rule.Via != ViaRelation {
			return nil, fmt.Errorf("schema: scoping rule for %q: unsupported via %q", rule.ContentType, rule.Via)
		}
		if rule.Relation != "" && rule.Via != ViaRelation {
			return nil, fmt.Errorf("schema: scoping rule for %q: relation needs via: relation", rule.ContentType)
		}
	}
	if d := r.Scoping.Dashboard; d != "" {
		if _, ok := r.types[d]; !ok {
			return nil, fmt.Errorf("schema: scoping dashboard: %w: %q", ErrUnknownContentType, d)
		}
	}
	return r, nil
}

// DashboardTypes returns the slugs shown on the dashboard, in schema order.
func (r *Registry) DashboardTypes() []string {
	var out []string
	for _, slug := range r.order {
		if r.types[slug].ShowOnDashboard {
			out = append(out, slug)
		}
	}
	return out
}

// Load reads and parses a content types file.
func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func buildContentType(slug string, raw *rawContentType) (*ContentType, error) {
	if err := checkName(slug); err != nil {
		return nil, err
	}
	fields, err := buildFields(&raw.Fields, levelContentType)
	if err != nil {
		return nil, err
	}
	for _, t := range raw.Taxonomy {
		if err := checkName(t); err != nil {
			return nil, err
		}
		if _, ok := fields.Get(t); !ok {
			fields.add(&FieldDefinition{Name: t, Kind: KindTaxonomy, Type: "taxonomy"})
		}
	}
	relNames := make([]string, 0, len(raw.Relations))
	for name := range raw.Relations {
		relNames = append(relNames, name)
	}
	sort.Strings(relNames)
	for _, name := range relNames {
		if err := checkName(name); err != nil {
			return nil, err
		}
		if _, ok := fields.Get(name); !ok {
			fields.add(&FieldDefinition{Name: name, Kind: KindRelation, Type: "relation"})
		}
	}

	name := raw.Name
	if name == "" {
		name = slug
	}
	singular := raw.SingularSlug
	if singular == "" {
		singular = slug
	}
	return &ContentType{
		Slug:          slug,
		Name:          name,
		SingularSlug:  singular,
		Locales:       raw.Locales,
		DefaultStatus:   raw.DefaultStatus,
		ShowOnDashboard: raw.Dashboard == nil || *raw.Dashboard,
		Fields:          fields,
	}, nil
}

type level int

const (
	levelContentType level = iota
	levelCollection
	levelSet
)

func buildFields(node *yaml.Node, lvl level) (*Fields, error) {
	fields := NewFields()
	if node.Kind == 0 {
		return fields, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("fields must be a mapping")
	}
	err := eachPair(node, func(name string, n *yaml.Node) error {
		if err := checkName(name); err != nil {
			return err
		}
		var raw rawField
		if err := n.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		def := &FieldDefinition{
			Name:     name,
			Kind:     KindOf(raw.Type),
			Type:     strings.ToLower(strings.TrimSpace(raw.Type)),
			Localize: raw.Localize,
			Required: raw.Required,
		}
		if def.Type == "" {
			def.Type = "text"
		}
		switch lvl {
		case levelSet:
			if def.Kind != KindScalar {
				return fmt.Errorf("field %q: sets may only hold scalar fields", name)
			}
		case levelCollection:
			if def.Kind != KindScalar && def.Kind != KindSet {
				return fmt.Errorf("field %q: collections may only hold scalar or set fields", name)
			}
		}
		var sub *Fields
		var err error
		switch def.Kind {
		case KindSet:
			sub, err = buildFields(&raw.Fields, levelSet)
		case KindCollection:
			sub, err = buildFields(&raw.Fields, levelCollection)
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		if def.Kind == KindSet || def.Kind == KindCollection {
			if sub.Len() == 0 {
				return fmt.Errorf("field %q: %s needs sub-fields", name, def.Kind)
			}
			def.Fields = sub
		}
		fields.add(def)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func eachPair(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// Names are stored inside compound field keys, so the separator is reserved.
func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("empty name")
	}
	if strings.Contains(name, "::") {
		return fmt.Errorf("name %q must not contain \"::\"", name)
	}
	return nil
}
