package query

import (
	"errors"
	"strconv"
	"strings"
)

// Selector is the parsed content part of a query: "pages", "pages,entries",
// "pages/5" (by id) or "pages/about" (by slug).
type Selector struct {
	ContentTypes []string
	ID           int64
	Slug         string
}

// Single reports whether the selector names one record.
func (s Selector) Single() bool {
	return s.ID != 0 || s.Slug != ""
}

func ParseSelector(raw string) (Selector, error) {
	raw = strings.Trim(strings.TrimSpace(raw), "/")
	types, ident, _ := strings.Cut(raw, "/")

	var sel Selector
	for _, t := range strings.Split(types, ",") {
		if t = strings.TrimSpace(t); t != "" {
			sel.ContentTypes = append(sel.ContentTypes, t)
		}
	}
	if len(sel.ContentTypes) == 0 {
		return Selector{}, &Error{Op: "parse selector", Err: errors.New("no content type given")}
	}

	ident = strings.TrimSpace(ident)
	if ident == "" {
		return sel, nil
	}
	if strings.Contains(ident, "/") {
		return Selector{}, &Error{Op: "parse selector", Err: errors.New("too many path segments in " + strconv.Quote(raw))}
	}
	if id, err := strconv.ParseInt(ident, 10, 64); err == nil {
		if id <= 0 {
			return Selector{}, &Error{Op: "parse selector", Err: errors.New("content id must be positive")}
		}
		sel.ID = id
		return sel, nil
	}
	sel.Slug = ident
	return sel, nil
}
