// Package schema declares the output shapes produced by each agent stage and
// the per-agent contracts (template, required context fields, output shape).
//
// A Shape is a small JSON-schema subset: enough to describe every stage
// output, to send as a response schema to a generation backend, and to
// validate the value that comes back.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind is the JSON type of a Shape.
type Kind string

const (
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"

	// KindAny accepts any JSON value.
	KindAny Kind = ""
)

// Shape describes the structure a generated value must have.
type Shape struct {
	Kind        Kind
	Description string

	// Object
	Properties map[string]*Shape
	Required   []string

	// Array
	Items    *Shape
	MinItems int
	MaxItems int // 0 = unbounded

	// String
	Enum      []string
	MinLength int

	// Nullable accepts JSON null in addition to Kind.
	Nullable bool
}

// Object builds an object shape. Every name in required must be a property.
func Object(props map[string]*Shape, required ...string) *Shape {
	for _, r := range required {
		if _, ok := props[r]; !ok {
			panic(fmt.Sprintf("schema: required property %q not declared", r))
		}
	}
	return &Shape{Kind: KindObject, Properties: props, Required: required}
}

// Array builds an array shape.
func Array(items *Shape) *Shape { return &Shape{Kind: KindArray, Items: items} }

// String builds a string shape.
func String() *Shape { return &Shape{Kind: KindString} }

// NonEmptyString builds a string shape that rejects "".
func NonEmptyString() *Shape { return &Shape{Kind: KindString, MinLength: 1} }

// Integer builds an integer shape.
func Integer() *Shape { return &Shape{Kind: KindInteger} }

// Number builds a number shape.
func Number() *Shape { return &Shape{Kind: KindNumber} }

// Boolean builds a boolean shape.
func Boolean() *Shape { return &Shape{Kind: KindBoolean} }

// Any builds a shape that accepts every JSON value.
func Any() *Shape { return &Shape{Kind: KindAny} }

// Enum builds a string shape restricted to values.
func Enum(values ...string) *Shape {
	return &Shape{Kind: KindString, Enum: append([]string(nil), values...)}
}

// Between sets array length bounds and returns the shape.
func (s *Shape) Between(min, max int) *Shape {
	s.MinItems, s.MaxItems = min, max
	return s
}

// OrNull marks the shape nullable and returns it.
func (s *Shape) OrNull() *Shape {
	s.Nullable = true
	return s
}

// Describe sets the description and returns the shape.
func (s *Shape) Describe(d string) *Shape {
	s.Description = d
	return s
}

// JSONSchema renders the shape as a JSON schema document.
func (s *Shape) JSONSchema() map[string]any {
	out := map[string]any{}
	if s.Kind == KindAny {
		if s.Description != "" {
			out["description"] = s.Description
		}
		return out
	}
	if s.Nullable {
		out["type"] = []string{string(s.Kind), "null"}
	} else {
		out["type"] = string(s.Kind)
	}
	if s.Description != "" {
		out["description"] = s.Description
	}

	switch s.Kind {
	case KindObject:
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.JSONSchema()
		}
		out["properties"] = props
		if len(s.Required) > 0 {
			out["required"] = append([]string(nil), s.Required...)
		}
	case KindArray:
		if s.Items != nil {
			out["items"] = s.Items.JSONSchema()
		}
		if s.MinItems > 0 {
			out["minItems"] = s.MinItems
		}
		if s.MaxItems > 0 {
			out["maxItems"] = s.MaxItems
		}
	case KindString:
		if len(s.Enum) > 0 {
			out["enum"] = append([]string(nil), s.Enum...)
		}
		if s.MinLength > 0 {
			out["minLength"] = s.MinLength
		}
	}
	return out
}

// JSONSchemaText renders the schema as indented JSON, for backends that
// take the schema inside the prompt.
func (s *Shape) JSONSchemaText() string {
	data, err := json.MarshalIndent(s.JSONSchema(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Validate decodes raw and checks it against the shape.
func (s *Shape) Validate(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return &ValidationError{Path: "$", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if dec.More() {
		return &ValidationError{Path: "$", Reason: "trailing data after JSON value"}
	}
	return s.ValidateValue(v)
}

// ValidateValue checks an already-decoded value (as produced by
// encoding/json with UseNumber) against the shape.
func (s *Shape) ValidateValue(v any) error {
	return s.validate(v, "$")
}

func (s *Shape) validate(v any, path string) error {
	if s.Kind == KindAny {
		return nil
	}
	if v == nil {
		if s.Nullable {
			return nil
		}
		return &ValidationError{Path: path, Reason: fmt.Sprintf("expected %s, got null", s.Kind)}
	}

	switch s.Kind {
	case KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return typeError(path, s.Kind, v)
		}
		for _, name := range s.Required {
			if _, present := obj[name]; !present {
				return &ValidationError{Path: path + "." + name, Reason: "required property missing"}
			}
		}
		names := make([]string, 0, len(s.Properties))
		for name := range s.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			child, present := obj[name]
			if !present {
				continue
			}
			if err := s.Properties[name].validate(child, path+"."+name); err != nil {
				return err
			}
		}
	case KindArray:
		arr, ok := v.([]any)
		if !ok {
			return typeError(path, s.Kind, v)
		}
		if len(arr) < s.MinItems {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("expected at least %d items, got %d", s.MinItems, len(arr))}
		}
		if s.MaxItems > 0 && len(arr) > s.MaxItems {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("expected at most %d items, got %d", s.MaxItems, len(arr))}
		}
		if s.Items != nil {
			for i, item := range arr {
				if err := s.Items.validate(item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	case KindString:
		str, ok := v.(string)
		if !ok {
			return typeError(path, s.Kind, v)
		}
		if len(str) < s.MinLength {
			return &ValidationError{Path: path, Reason: "string too short"}
		}
		if len(s.Enum) > 0 && !contains(s.Enum, str) {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("%q is not one of %v", str, s.Enum)}
		}
	case KindInteger:
		n, ok := v.(json.Number)
		if !ok {
			return typeError(path, s.Kind, v)
		}
		if _, err := n.Int64(); err != nil {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("%s is not an integer", n)}
		}
	case KindNumber:
		n, ok := v.(json.Number)
		if !ok {
			return typeError(path, s.Kind, v)
		}
		if _, err := n.Float64(); err != nil {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("%s is not a number", n)}
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return typeError(path, s.Kind, v)
		}
	default:
		return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown kind %q", s.Kind)}
	}
	return nil
}

func typeError(path string, want Kind, got any) error {
	return &ValidationError{Path: path, Reason: fmt.Sprintf("expected %s, got %s", want, jsonTypeName(got))}
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// ValidationError reports the first structural mismatch found.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}
