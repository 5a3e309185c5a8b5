package mcp

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MethodSpec is the canonical form of a nested sub-operation carried inside
// the explain and export_data tools. Callers send it either as the mapping
// form {"name": ..., "arguments": {...}} or as the positional form
// ["name", {...}] that many agent clients emit; both normalize to the same
// MethodSpec. Anything else is a validation failure, never a decode panic.
type MethodSpec struct {
	Name      string
	Arguments json.RawMessage
}

const (
	methodFind      = "find"
	methodAggregate = "aggregate"
	methodCount     = "count"
)

var (
	explainMethods = []string{methodFind, methodAggregate, methodCount}
	exportTargets  = []string{methodFind, methodAggregate}
)

var methodSpecShapes = []string{
	`{"name": "...", "arguments": {...}}`,
	`["name", {...}]`,
}

var emptyArguments = json.RawMessage(`{}`)

// parseMethodSpec normalizes the two accepted wire shapes into a MethodSpec
// whose name is a member of allowed.
func parseMethodSpec(field string, raw json.RawMessage, allowed []string) (MethodSpec, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return MethodSpec{}, &ValidationError{
			Detail:  field + " is required",
			Allowed: methodSpecShapes,
		}
	}

	var spec MethodSpec
	switch trimmed[0] {
	case '{':
		var mapping struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(trimmed, &mapping); err != nil {
			return MethodSpec{}, &ValidationError{
				Detail:  field + " mapping form is malformed",
				Allowed: methodSpecShapes,
			}
		}
		spec.Name = mapping.Name
		spec.Arguments = mapping.Arguments
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return MethodSpec{}, &ValidationError{
				Detail:  field + " positional form is malformed",
				Allowed: methodSpecShapes,
			}
		}
		// A bare ["name"] is accepted with empty arguments; zero or more
		// than two elements is a shape violation.
		if len(elems) == 0 || len(elems) > 2 {
			return MethodSpec{}, &ValidationError{
				Detail:  field + " positional form must have one or two elements",
				Allowed: methodSpecShapes,
			}
		}
		if err := json.Unmarshal(elems[0], &spec.Name); err != nil {
			return MethodSpec{}, &ValidationError{
				Detail:  field + " positional form element 0 must be a string",
				Allowed: methodSpecShapes,
			}
		}
		if len(elems) == 2 {
			args := bytes.TrimSpace(elems[1])
			if len(args) == 0 || args[0] != '{' {
				return MethodSpec{}, &ValidationError{
					Detail:  field + " positional form element 1 must be a mapping",
					Allowed: methodSpecShapes,
				}
			}
			spec.Arguments = args
		}
	default:
		return MethodSpec{}, &ValidationError{
			Detail:  field + " must be a mapping or a positional array",
			Allowed: methodSpecShapes,
		}
	}

	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return MethodSpec{}, &ValidationError{
			Detail:  field + " name is required",
			Allowed: allowed,
		}
	}
	found := false
	for _, candidate := range allowed {
		if spec.Name == candidate {
			found = true
			break
		}
	}
	if !found {
		return MethodSpec{}, &ValidationError{
			Detail:  field + " name " + strconvQuote(spec.Name) + " is not supported",
			Allowed: allowed,
		}
	}
	if len(bytes.TrimSpace(spec.Arguments)) == 0 {
		spec.Arguments = emptyArguments
	}
	return spec, nil
}

type findMethodArguments struct {
	Filter     map[string]any `json:"filter"`
	Projection map[string]any `json:"projection"`
	Sort       map[string]any `json:"sort"`
	Limit      int64          `json:"limit"`
}

type aggregateMethodArguments struct {
	Pipeline []map[string]any `json:"pipeline"`
}

type countMethodArguments struct {
	Query map[string]any `json:"query"`
}

func decodeMethodArguments(spec MethodSpec, out any) error {
	if err := json.Unmarshal(spec.Arguments, out); err != nil {
		return validationf("decode %s arguments: %v", spec.Name, err)
	}
	return nil
}

// validateChoice checks an enumerated-choice parameter against its closed
// set, applying fallback when the value is empty.
func validateChoice(field, value, fallback string, allowed []string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	for _, candidate := range allowed {
		if value == candidate {
			return value, nil
		}
	}
	return "", &ValidationError{
		Detail:  "invalid " + field + " " + strconvQuote(value),
		Allowed: allowed,
	}
}

func strconvQuote(s string) string {
	encoded, err := json.Marshal(s)
	if err != nil {
		return `"` + s + `"`
	}
	return string(encoded)
}
