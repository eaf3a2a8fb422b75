package parse

import (
	"fmt"
	"sort"
	"strings"
)

// DecodeError indicates the candidate text was not structurally valid JSON.
type DecodeError struct {
	Reason string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed: %s", e.Reason)
}

// Violation records a single field-level schema violation with the
// expected vs actual shape.
type Violation struct {
	Field    string
	Expected string
	Actual   string
}

// String renders the violation as "field: expected X, got Y".
func (v Violation) String() string {
	return fmt.Sprintf("%s: expected %s, got %s", v.Field, v.Expected, v.Actual)
}

// SchemaViolationError indicates well-formed JSON with the wrong shape.
// It enumerates every violated field, not just the first.
type SchemaViolationError struct {
	Schema     string
	Violations []Violation
}

// Error implements the error interface. Violations are sorted by field path
// so the same input always produces the same message.
func (e *SchemaViolationError) Error() string {
	sorted := make([]Violation, len(e.Violations))
	copy(sorted, e.Violations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Field < sorted[j].Field })

	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = v.String()
	}
	return fmt.Sprintf("schema %q violated: %s", e.Schema, strings.Join(parts, "; "))
}

// HasField reports whether any violation names the given field path.
func (e *SchemaViolationError) HasField(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}
