package mcp

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMethodSpecShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantName string
		wantArgs string
	}{
		{
			name:     "mapping form",
			raw:      `{"name":"find","arguments":{"filter":{"status":"open"}}}`,
			wantName: "find",
			wantArgs: `{"filter":{"status":"open"}}`,
		},
		{
			name:     "positional form",
			raw:      `["find",{"filter":{"status":"open"}}]`,
			wantName: "find",
			wantArgs: `{"filter":{"status":"open"}}`,
		},
		{
			name:     "mapping form without arguments",
			raw:      `{"name":"count"}`,
			wantName: "count",
			wantArgs: `{}`,
		},
		{
			name:     "bare positional name",
			raw:      `["aggregate"]`,
			wantName: "aggregate",
			wantArgs: `{}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			spec, err := parseMethodSpec("method", json.RawMessage(tc.raw), explainMethods)
			if err != nil {
				t.Fatalf("parseMethodSpec: %v", err)
			}
			if spec.Name != tc.wantName {
				t.Fatalf("name = %q, want %q", spec.Name, tc.wantName)
			}
			if string(spec.Arguments) != tc.wantArgs {
				t.Fatalf("arguments = %s, want %s", spec.Arguments, tc.wantArgs)
			}
		})
	}
}

func TestParseMethodSpecBothShapesNormalizeIdentically(t *testing.T) {
	t.Parallel()

	mapping, err := parseMethodSpec("method", json.RawMessage(`{"name":"find","arguments":{"limit":5}}`), explainMethods)
	if err != nil {
		t.Fatalf("mapping form: %v", err)
	}
	positional, err := parseMethodSpec("method", json.RawMessage(`["find",{"limit":5}]`), explainMethods)
	if err != nil {
		t.Fatalf("positional form: %v", err)
	}
	if mapping.Name != positional.Name || string(mapping.Arguments) != string(positional.Arguments) {
		t.Fatalf("shapes diverged: %+v vs %+v", mapping, positional)
	}
}

func TestParseMethodSpecRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ``},
		{"null", `null`},
		{"scalar", `"find"`},
		{"empty array", `[]`},
		{"three elements", `["find",{},{}]`},
		{"non-string name", `[7,{}]`},
		{"non-mapping arguments", `["find",[1,2]]`},
		{"unknown method", `{"name":"mapReduce"}`},
		{"missing name", `{"arguments":{}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseMethodSpec("method", json.RawMessage(tc.raw), explainMethods)
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("want ValidationError, got %v", err)
			}
		})
	}
}

func TestParseMethodSpecExportTargetsExcludeCount(t *testing.T) {
	t.Parallel()

	_, err := parseMethodSpec("method", json.RawMessage(`{"name":"count"}`), exportTargets)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if len(validation.Allowed) != 2 {
		t.Fatalf("allowed = %v, want find and aggregate", validation.Allowed)
	}
}

func TestValidateChoice(t *testing.T) {
	t.Parallel()

	got, err := validateChoice("verbosity", "", verbosityQueryPlanner, explainVerbosities)
	if err != nil || got != verbosityQueryPlanner {
		t.Fatalf("empty value: got %q, %v", got, err)
	}
	got, err = validateChoice("verbosity", "executionStats", verbosityQueryPlanner, explainVerbosities)
	if err != nil || got != verbosityExecutionStats {
		t.Fatalf("valid value: got %q, %v", got, err)
	}
	_, err = validateChoice("verbosity", "loud", verbosityQueryPlanner, explainVerbosities)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}
