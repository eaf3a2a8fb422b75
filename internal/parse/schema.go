package parse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldType enumerates the shapes a schema field may declare.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeBool   FieldType = "bool"
	TypeObject FieldType = "object"
	TypeArray  FieldType = "array"
	TypeEnum   FieldType = "enum" // single enum-valued string
)

// Field declares the expected shape of one schema field.
type Field struct {
	Type     FieldType
	Required bool
	Nullable bool
	Enum     []string // allowed values when Type is TypeEnum
	Elem     *Field   // element shape when Type is TypeArray
	Object   *Schema  // nested shape when Type is TypeObject
}

// Schema is a declarative description of a record's required shape.
// It is used for validation only, never for code generation; schemas are
// supplied by the calling feature, not owned by this package.
type Schema struct {
	Name   string
	Fields map[string]Field
}

// Validate decodes candidateText and checks the decoded value against the
// schema. It fails closed: ambiguous or partially-matching input is a
// failure, never a best-effort partial object. The decoded generic tree is
// returned on success so callers can re-decode into a concrete type.
//
// Violations are accumulated for every bad field, not just the first.
func (s Schema) Validate(candidateText string) (map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(candidateText))
	dec.UseNumber()

	var tree map[string]interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}

	violations := s.check(tree, "")
	if len(violations) > 0 {
		return nil, &SchemaViolationError{Schema: s.Name, Violations: violations}
	}
	return tree, nil
}

// check walks the decoded tree collecting violations. prefix is the dotted
// field path of the enclosing object ("" at the root).
func (s Schema) check(tree map[string]interface{}, prefix string) []Violation {
	var violations []Violation

	for name, field := range s.Fields {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		value, present := tree[name]
		if !present {
			if field.Required {
				violations = append(violations, Violation{
					Field:    path,
					Expected: string(field.Type),
					Actual:   "missing",
				})
			}
			continue
		}

		violations = append(violations, checkField(path, field, value)...)
	}

	return violations
}

// checkField validates a single value against its declared field shape.
func checkField(path string, field Field, value interface{}) []Violation {
	if value == nil {
		// Null is only acceptable where the schema explicitly allows it;
		// a non-nullable string field given null is a hard violation.
		if field.Nullable {
			return nil
		}
		return []Violation{{Field: path, Expected: string(field.Type), Actual: "null"}}
	}

	switch field.Type {
	case TypeString:
		if _, ok := value.(string); !ok {
			return []Violation{{Field: path, Expected: "string", Actual: jsonTypeName(value)}}
		}

	case TypeEnum:
		// Hard rule from an observed provider defect: an enum-declared field
		// returned as an array must be rejected, never coerced.
		str, ok := value.(string)
		if !ok {
			return []Violation{{Field: path, Expected: "enum string", Actual: jsonTypeName(value)}}
		}
		if len(field.Enum) > 0 && !containsString(field.Enum, str) {
			return []Violation{{
				Field:    path,
				Expected: fmt.Sprintf("one of [%s]", strings.Join(field.Enum, ", ")),
				Actual:   fmt.Sprintf("%q", str),
			}}
		}

	case TypeNumber:
		switch value.(type) {
		case json.Number, float64:
		default:
			return []Violation{{Field: path, Expected: "number", Actual: jsonTypeName(value)}}
		}

	case TypeBool:
		if _, ok := value.(bool); !ok {
			return []Violation{{Field: path, Expected: "bool", Actual: jsonTypeName(value)}}
		}

	case TypeObject:
		obj, ok := value.(map[string]interface{})
		if !ok {
			return []Violation{{Field: path, Expected: "object", Actual: jsonTypeName(value)}}
		}
		if field.Object != nil {
			return field.Object.check(obj, path)
		}

	case TypeArray:
		arr, ok := value.([]interface{})
		if !ok {
			return []Violation{{Field: path, Expected: "array", Actual: jsonTypeName(value)}}
		}
		if field.Elem != nil {
			var violations []Violation
			for i, elem := range arr {
				elemPath := fmt.Sprintf("%s[%d]", path, i)
				violations = append(violations, checkField(elemPath, *field.Elem, elem)...)
			}
			return violations
		}

	default:
		return []Violation{{Field: path, Expected: "known type", Actual: string(field.Type)}}
	}

	return nil
}

// jsonTypeName names the JSON type of a decoded value for violation messages.
func jsonTypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number, float64:
		return "number"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// DecodeInto re-decodes candidateText into the concrete type T after the
// schema check has passed. The validator never coerces or drops fields; T is
// expected to mirror the schema's declared shape.
func DecodeInto[T any](candidateText string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(candidateText), &out); err != nil {
		return out, &DecodeError{Reason: err.Error()}
	}
	return out, nil
}
