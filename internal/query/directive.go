package query

import (
	"net/url"
	"strings"
)

// Recognized directive names. Any other name is matched against the schema
// as a field or taxonomy filter and ignored when it matches nothing.
const (
	DirectiveLimit        = "limit"
	DirectivePage         = "page"
	DirectiveOrder        = "order"
	DirectiveLocale       = "locale"
	DirectiveStatus       = "status"
	DirectiveReturnSingle = "returnsingle"
	DirectiveID           = "id"
)

// Directive is one named raw query parameter.
type Directive struct {
	Name  string
	Value string
}

// Directives is an ordered set: a name keeps the position of its first
// registration and the value of its last.
type Directives struct {
	order  []string
	values map[string]string
}

func NewDirectives(ds ...Directive) *Directives {
	d := &Directives{values: make(map[string]string)}
	for _, x := range ds {
		d.Set(x.Name, x.Value)
	}
	return d
}

func (d *Directives) Set(name, value string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	if _, ok := d.values[name]; !ok {
		d.order = append(d.order, name)
	}
	d.values[name] = value
}

func (d *Directives) Get(name string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d.values[strings.ToLower(name)]
	return v, ok
}

func (d *Directives) Has(name string) bool {
	_, ok := d.Get(name)
	return ok
}

// All returns the directives in registration order.
func (d *Directives) All() []Directive {
	if d == nil {
		return nil
	}
	out := make([]Directive, 0, len(d.order))
	for _, n := range d.order {
		out = append(out, Directive{Name: n, Value: d.values[n]})
	}
	return out
}

func (d *Directives) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}

// Clone copies the set so callers can add directives without touching the
// original.
func (d *Directives) Clone() *Directives {
	out := NewDirectives()
	if d != nil {
		out.order = append(out.order, d.order...)
		for k, v := range d.values {
			out.values[k] = v
		}
	}
	return out
}

// ParseRawQuery reads directives from a raw query string, keeping the order
// in which parameters appear.
func ParseRawQuery(raw string) (*Directives, error) {
	d := NewDirectives()
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		n, err := url.QueryUnescape(name)
		if err != nil {
			return nil, &Error{Op: "parse directives", Err: err}
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, &Error{Op: "parse directives", Err: err}
		}
		d.Set(n, v)
	}
	return d, nil
}
