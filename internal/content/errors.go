package content

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("content not found")
)

// ValidationError rejects a submission; nothing is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// ReferenceError reports a relation target that no longer resolves. It is
// collected and logged, never returned from a save.
type ReferenceError struct {
	Relation string
	TargetID int64
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("reference: %s: content %d does not resolve", e.Relation, e.TargetID)
}

// StructuralError rejects a payload whose shape contradicts itself, such as a
// collection item missing from the collection order.
type StructuralError struct {
	Path   string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structure: %s: %s", e.Path, e.Reason)
}

// IsFatal reports whether err must abort a save.
func IsFatal(err error) bool {
	var v *ValidationError
	var s *StructuralError
	return errors.As(err, &v) || errors.As(err, &s)
}
