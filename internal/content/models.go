package content

import (
	"strings"
	"time"
)

// Status is the publication state of a content item.
type Status string

const (
	StatusPublished Status = "published"
	StatusHeld      Status = "held"
	StatusDraft     Status = "draft"
	StatusTimed     Status = "timed"
)

// Statuses lists the recognized statuses.
func Statuses() []Status {
	return []Status{StatusPublished, StatusHeld, StatusDraft, StatusTimed}
}

// ParseStatus reports whether s names a recognized status.
func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// KeySeparator joins the owner path and name of a compound field key in storage.
const KeySeparator = "::"

// FieldKey identifies a field within a content item. Set members are owned by
// their set hash, collection items by the collection name.
type FieldKey struct {
	Owner []string
	Name  string
}

// Key builds a top-level key, or a compound key when owners are given.
func Key(name string, owner ...string) FieldKey {
	return FieldKey{Owner: owner, Name: name}
}

func (k FieldKey) String() string {
	if len(k.Owner) == 0 {
		return k.Name
	}
	return strings.Join(k.Owner, KeySeparator) + KeySeparator + k.Name
}

func (k FieldKey) Equal(o FieldKey) bool {
	return k.String() == o.String()
}

func (k FieldKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *FieldKey) UnmarshalText(b []byte) error {
	*k = ParseFieldKey(string(b))
	return nil
}

// ParseFieldKey is the inverse of FieldKey.String.
func ParseFieldKey(s string) FieldKey {
	parts := strings.Split(s, KeySeparator)
	if len(parts) == 1 {
		return FieldKey{Name: s}
	}
	return FieldKey{Owner: parts[:len(parts)-1], Name: parts[len(parts)-1]}
}

// Field is one stored value of a content item at (key, locale).
type Field struct {
	ID     string   `json:"id"`
	Key    FieldKey `json:"name"`
	Locale string   `json:"locale,omitempty"`
	Type   string   `json:"type"`
	Value  any      `json:"value"`
}

// CollectionItem is one ordered entry of a collection field's value.
// Reference is a set hash, or the value hash of a direct child field.
type CollectionItem struct {
	FieldName string `json:"field_name"`
	Reference string `json:"field_reference"`
	FieldType string `json:"field_type"`
}

// Taxonomy is a shared (type, slug) term.
type Taxonomy struct {
	ID   string `json:"id" bson:"_id"`
	Type string `json:"type" bson:"type"`
	Slug string `json:"slug" bson:"slug"`
	Name string `json:"name" bson:"name"`
}

// TaxonomyLink assigns a taxonomy to a content item.
type TaxonomyLink struct {
	ID       string   `json:"id"`
	Taxonomy Taxonomy `json:"taxonomy"`
}

// Relation is a directed edge owned by the From side. Name is the relation
// group it was submitted under.
type Relation struct {
	ID     string `json:"id"`
	FromID int64  `json:"fromId"`
	ToID   int64  `json:"toId"`
	Name   string `json:"name"`
}

// Content is one editable item of a content type. ID is zero until persisted.
type Content struct {
	ID            int64           `json:"id"`
	ContentType   string          `json:"contentType"`
	Author        string          `json:"author,omitempty"`
	Status        Status          `json:"status"`
	CreatedAt     *time.Time      `json:"createdAt,omitempty"`
	ModifiedAt    *time.Time      `json:"modifiedAt,omitempty"`
	PublishedAt   *time.Time      `json:"publishedAt,omitempty"`
	DepublishedAt *time.Time      `json:"depublishedAt,omitempty"`
	Fields        []*Field        `json:"fields"`
	Taxonomies    []*TaxonomyLink `json:"taxonomies"`
	Relations     []*Relation     `json:"relations"`
}

// New returns an unsaved content item of the given type.
func New(contentType, author string, status Status) *Content {
	return &Content{ContentType: contentType, Author: author, Status: status}
}

// SetStatus applies s when it is a recognized status and reports whether it did.
func (c *Content) SetStatus(s string) bool {
	st, ok := ParseStatus(s)
	if !ok {
		return false
	}
	c.Status = st
	return true
}
