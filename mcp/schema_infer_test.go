package mcp

import (
	"strings"
	"testing"
)

func TestInferSchema(t *testing.T) {
	t.Parallel()

	docs := []map[string]any{
		{"name": "alice", "age": int32(34), "tags": []any{"a"}},
		{"name": "bob", "age": int64(28)},
		{"name": "carol", "age": "unknown", "nested": map[string]any{"x": 1}},
		{"name": nil},
	}

	fields := inferSchema(docs)

	name := fields["name"]
	if name.OccurrenceCount != 4 {
		t.Fatalf("name occurrences = %d, want 4", name.OccurrenceCount)
	}
	if name.OccurrencePercentage != 100 {
		t.Fatalf("name percentage = %v, want 100", name.OccurrencePercentage)
	}
	if len(name.Types) != 2 || name.Types[0] != "null" || name.Types[1] != "string" {
		t.Fatalf("name types = %v, want [null string]", name.Types)
	}
	if len(name.SampleValues) != 3 {
		t.Fatalf("name samples = %v, want 3 non-null values", name.SampleValues)
	}

	age := fields["age"]
	if age.OccurrenceCount != 3 {
		t.Fatalf("age occurrences = %d, want 3", age.OccurrenceCount)
	}
	if age.OccurrencePercentage != 75 {
		t.Fatalf("age percentage = %v, want 75", age.OccurrencePercentage)
	}
	wantTypes := []string{"int", "long", "string"}
	if len(age.Types) != len(wantTypes) {
		t.Fatalf("age types = %v, want %v", age.Types, wantTypes)
	}
	for i, typ := range wantTypes {
		if age.Types[i] != typ {
			t.Fatalf("age types = %v, want %v", age.Types, wantTypes)
		}
	}

	if got := fields["tags"].Types[0]; got != "array" {
		t.Fatalf("tags type = %q, want array", got)
	}
	if got := fields["nested"].Types[0]; got != "object" {
		t.Fatalf("nested type = %q, want object", got)
	}
}

func TestInferSchemaClipsSampleValues(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 500)
	fields := inferSchema([]map[string]any{{"blob": long}})
	samples := fields["blob"].SampleValues
	if len(samples) != 1 {
		t.Fatalf("samples = %v, want one entry", samples)
	}
	if len(samples[0]) != schemaSampleValueWidth {
		t.Fatalf("sample length = %d, want %d", len(samples[0]), schemaSampleValueWidth)
	}
}

func TestInferSchemaDeduplicatesSamples(t *testing.T) {
	t.Parallel()

	fields := inferSchema([]map[string]any{
		{"status": "open"},
		{"status": "open"},
		{"status": "closed"},
	})
	samples := fields["status"].SampleValues
	if len(samples) != 2 {
		t.Fatalf("samples = %v, want deduplicated pair", samples)
	}
}

func TestInferSchemaEmptyInput(t *testing.T) {
	t.Parallel()

	fields := inferSchema(nil)
	if len(fields) != 0 {
		t.Fatalf("fields = %v, want empty", fields)
	}
}
