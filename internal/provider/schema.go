package provider

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// FieldType enumerates the JSON value kinds a schema field may declare.
type FieldType int

const (
	TypeString FieldType = iota
	TypeBool
	TypeInt
	TypeNumber
	TypeObject
	TypeArray
)

// Field describes one property of an object schema.
type Field struct {
	Name     string
	Type     FieldType
	Optional bool
	Enum     []string // Closed set of allowed values, TypeString only
	Object   *Schema  // Element schema when Type == TypeObject
	Items    *Schema  // Element schema when Type == TypeArray
}

// Schema describes the expected shape of a structured model response.
// Exactly one of Fields (object) or Items (array) is set.
type Schema struct {
	Fields []Field
	Items  *Schema
}

// Object builds an object schema from its fields.
func Object(fields ...Field) *Schema {
	return &Schema{Fields: fields}
}

// Array builds an array schema with the given element schema.
func Array(elem *Schema) *Schema {
	return &Schema{Items: elem}
}

// Validate parses raw as JSON and checks it against the schema. Returns a
// *FormatError describing the first mismatch, or nil when the payload
// conforms.
func (s *Schema) Validate(raw []byte) error {
	trimmed := stripFences(raw)

	var value any
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return &FormatError{Detail: "response is not valid JSON", Err: err}
	}
	return s.check("$", value)
}

// Decode validates raw against the schema and unmarshals it into v.
func (s *Schema) Decode(raw []byte, v any) error {
	if err := s.Validate(raw); err != nil {
		return err
	}
	if err := json.Unmarshal(stripFences(raw), v); err != nil {
		return &FormatError{Detail: "response does not fit target type", Err: err}
	}
	return nil
}

func (s *Schema) check(path string, value any) error {
	if s.Items != nil {
		arr, ok := value.([]any)
		if !ok {
			return &FormatError{Detail: fmt.Sprintf("%s: expected array, got %T", path, value)}
		}
		for i, elem := range arr {
			if err := s.Items.check(fmt.Sprintf("%s[%d]", path, i), elem); err != nil {
				return err
			}
		}
		return nil
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return &FormatError{Detail: fmt.Sprintf("%s: expected object, got %T", path, value)}
	}

	for _, f := range s.Fields {
		fieldPath := path + "." + f.Name
		raw, present := obj[f.Name]
		if !present {
			if f.Optional {
				continue
			}
			return &FormatError{Detail: fmt.Sprintf("%s: missing required field", fieldPath)}
		}
		if err := f.checkValue(fieldPath, raw); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) checkValue(path string, value any) error {
	switch f.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return &FormatError{Detail: fmt.Sprintf("%s: expected string, got %T", path, value)}
		}
		if len(f.Enum) > 0 {
			for _, allowed := range f.Enum {
				if s == allowed {
					return nil
				}
			}
			return &FormatError{Detail: fmt.Sprintf("%s: %q not in enum %v", path, s, f.Enum)}
		}
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return &FormatError{Detail: fmt.Sprintf("%s: expected bool, got %T", path, value)}
		}
	case TypeInt:
		n, ok := value.(float64)
		if !ok || n != math.Trunc(n) {
			return &FormatError{Detail: fmt.Sprintf("%s: expected integer, got %v", path, value)}
		}
	case TypeNumber:
		if _, ok := value.(float64); !ok {
			return &FormatError{Detail: fmt.Sprintf("%s: expected number, got %T", path, value)}
		}
	case TypeObject:
		if f.Object == nil {
			return &FormatError{Detail: fmt.Sprintf("%s: object field missing element schema", path)}
		}
		return f.Object.check(path, value)
	case TypeArray:
		if f.Items == nil {
			return &FormatError{Detail: fmt.Sprintf("%s: array field missing element schema", path)}
		}
		arr := Array(f.Items)
		return arr.check(path, value)
	}
	return nil
}

// stripFences removes a surrounding markdown code fence, which models emit
// around JSON payloads despite instructions not to.
func stripFences(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	return []byte(s)
}
