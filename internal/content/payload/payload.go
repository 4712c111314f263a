// Package payload decodes edit submissions into the nested shape consumed by
// the reconciliation engine. JSON bodies and bracketed form posts decode to
// the same Payload.
package payload

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/contentd/contentd/internal/content"
)

// Collection is one submitted collection: the presentation order of item
// hashes and, per item name, the values keyed by hash.
type Collection struct {
	Order []string
	Items map[string]map[string]any
}

// Payload is a decoded edit submission. Every part is optional.
type Payload struct {
	Status        string
	PublishedAt   string
	DepublishedAt string
	EditLocale    string
	Fields        map[string]any
	Sets          map[string]map[string]map[string]any
	Collections   map[string]Collection
	Taxonomy      map[string][]string
	Relationship  map[string][]int64
}

// Decode builds a Payload from a generic JSON document.
func Decode(doc map[string]any) (*Payload, error) {
	p := &Payload{
		Status:        scalarString(doc["status"]),
		PublishedAt:   scalarString(doc["publishedAt"]),
		DepublishedAt: scalarString(doc["depublishedAt"]),
		EditLocale:    scalarString(doc["_edit_locale"]),
	}

	if raw, ok := doc["fields"]; ok {
		m, err := asMap("fields", raw)
		if err != nil {
			return nil, err
		}
		p.Fields = make(map[string]any, len(m))
		for name, v := range m {
			p.Fields[name] = NormalizeValue(v)
		}
	}

	if raw, ok := doc["sets"]; ok {
		sets, err := asMap("sets", raw)
		if err != nil {
			return nil, err
		}
		p.Sets = make(map[string]map[string]map[string]any, len(sets))
		for name, rawSet := range sets {
			hashes, err := asMap("sets."+name, rawSet)
			if err != nil {
				return nil, err
			}
			byHash := make(map[string]map[string]any, len(hashes))
			for hash, rawChildren := range hashes {
				children, err := asMap("sets."+name+"."+hash, rawChildren)
				if err != nil {
					return nil, err
				}
				byHash[hash] = normalizeAll(children)
			}
			p.Sets[name] = byHash
		}
	}

	if raw, ok := doc["collections"]; ok {
		cols, err := asMap("collections", raw)
		if err != nil {
			return nil, err
		}
		p.Collections = make(map[string]Collection, len(cols))
		for name, rawCol := range cols {
			col, err := decodeCollection(name, rawCol)
			if err != nil {
				return nil, err
			}
			p.Collections[name] = col
		}
	}

	if raw, ok := doc["taxonomy"]; ok {
		tax, err := asMap("taxonomy", raw)
		if err != nil {
			return nil, err
		}
		p.Taxonomy = make(map[string][]string, len(tax))
		for key, v := range tax {
			p.Taxonomy[key] = stringList(v)
		}
	}

	if raw, ok := doc["relationship"]; ok {
		rel, err := decodeRelationship(raw)
		if err != nil {
			return nil, err
		}
		p.Relationship = rel
	}
	return p, nil
}

func decodeCollection(name string, raw any) (Collection, error) {
	m, err := asMap("collections."+name, raw)
	if err != nil {
		return Collection{}, err
	}
	col := Collection{Items: make(map[string]map[string]any, len(m))}
	for item, v := range m {
		if item == "order" {
			col.Order = stringList(v)
			continue
		}
		byHash, err := asMap("collections."+name+"."+item, v)
		if err != nil {
			return Collection{}, err
		}
		col.Items[item] = normalizeAll(byHash)
	}
	return col, nil
}

// A bare list is accepted as a single unnamed relation group.
func decodeRelationship(raw any) (map[string][]int64, error) {
	groups := map[string]any{}
	switch t := raw.(type) {
	case map[string]any:
		groups = t
	default:
		groups[""] = t
	}
	out := make(map[string][]int64, len(groups))
	for name, v := range groups {
		var ids []int64
		for _, s := range stringList(v) {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, &content.ValidationError{Field: "relationship." + name, Reason: fmt.Sprintf("invalid content id %q", s)}
			}
			ids = append(ids, id)
		}
		out[name] = ids
	}
	return out, nil
}

func asMap(path string, v any) (map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case nil:
		return map[string]any{}, nil
	}
	return nil, &content.StructuralError{Path: path, Reason: fmt.Sprintf("expected an object, got %T", v)}
}

func normalizeAll(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = NormalizeValue(v)
	}
	return out
}

// NormalizeValue decodes list values whose first element is a JSON document,
// as sent by widgets that serialize their state into one hidden input.
func NormalizeValue(v any) any {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return v
	}
	s, ok := list[0].(string)
	if !ok || !isJSONDocument(s) {
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return v
	}
	return out
}

func isJSONDocument(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '[' && s[0] != '{') {
		return false
	}
	return json.Valid([]byte(s))
}

// stringList accepts a list, a JSON-encoded list or a single scalar and
// drops empty entries.
func stringList(v any) []string {
	var raw []any
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		raw = t
	case []string:
		for _, s := range t {
			raw = append(raw, s)
		}
	case string:
		if isJSONDocument(t) {
			var decoded any
			if err := json.Unmarshal([]byte(t), &decoded); err == nil {
				return stringList(decoded)
			}
		}
		raw = []any{t}
	default:
		raw = []any{t}
	}
	if len(raw) == 1 {
		if s, ok := raw[0].(string); ok && isJSONDocument(s) {
			return stringList(s)
		}
	}
	out := make([]string, 0, len(raw))
	for _, x := range raw {
		s := scalarString(x)
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		if len(t) == 0 {
			return ""
		}
		return scalarString(t[len(t)-1])
	default:
		return fmt.Sprint(t)
	}
}

// ParseForm builds a Payload from bracketed form keys such as fields[title],
// sets[seo][h1][title] or collections[blocks][order][].
func ParseForm(form url.Values) (*Payload, error) {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := map[string]any{}
	for _, key := range keys {
		vals := form[key]
		path := splitFormKey(key)
		if len(path) == 0 {
			continue
		}
		var value any
		if path[len(path)-1] == "" {
			path = path[:len(path)-1]
			list := make([]any, len(vals))
			for i, v := range vals {
				list[i] = v
			}
			value = list
		} else if len(vals) > 0 {
			value = vals[len(vals)-1]
		}
		if len(path) == 0 {
			continue
		}
		if err := setPath(root, path, value, key); err != nil {
			return nil, err
		}
	}
	return Decode(root)
}

func splitFormKey(key string) []string {
	i := strings.IndexByte(key, '[')
	if i < 0 {
		return []string{key}
	}
	path := []string{key[:i]}
	rest := key[i:]
	for len(rest) > 0 && rest[0] == '[' {
		j := strings.IndexByte(rest, ']')
		if j < 0 {
			break
		}
		path = append(path, rest[1:j])
		rest = rest[j+1:]
	}
	return path
}

func setPath(root map[string]any, path []string, value any, key string) error {
	m := root
	for _, seg := range path[:len(path)-1] {
		next, ok := m[seg]
		if !ok {
			child := map[string]any{}
			m[seg] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return &content.StructuralError{Path: key, Reason: "conflicting form keys"}
		}
		m = child
	}
	m[path[len(path)-1]] = value
	return nil
}
