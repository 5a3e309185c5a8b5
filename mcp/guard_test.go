package mcp

import (
	"errors"
	"testing"
)

func TestCheckPipelineStages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pipeline   []map[string]any
		wantPolicy bool
		wantValid  bool
	}{
		{
			name:     "plain read pipeline",
			pipeline: []map[string]any{{"$match": map[string]any{"a": 1}}, {"$limit": 10}},
		},
		{
			name:       "out as sole key",
			pipeline:   []map[string]any{{"$match": map[string]any{}}, {"$out": "target"}},
			wantPolicy: true,
		},
		{
			name:       "merge as sole key",
			pipeline:   []map[string]any{{"$merge": map[string]any{"into": "target"}}},
			wantPolicy: true,
		},
		{
			name:      "vector search unsupported",
			pipeline:  []map[string]any{{"$vectorSearch": map[string]any{"index": "v"}}},
			wantValid: true,
		},
		{
			// $out only mutates as a stage operator, not as a field name
			// inside a multi-key document.
			name:     "out alongside another key",
			pipeline: []map[string]any{{"$out": 1, "$match": map[string]any{}}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := checkPipelineStages(tc.pipeline)
			var policy *PolicyError
			var validation *ValidationError
			switch {
			case tc.wantPolicy:
				if !errors.As(err, &policy) {
					t.Fatalf("want PolicyError, got %v", err)
				}
			case tc.wantValid:
				if !errors.As(err, &validation) {
					t.Fatalf("want ValidationError, got %v", err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestPipelineHasLimit(t *testing.T) {
	t.Parallel()

	if pipelineHasLimit([]map[string]any{{"$match": map[string]any{}}}) {
		t.Fatal("no limit stage present")
	}
	if !pipelineHasLimit([]map[string]any{{"$match": map[string]any{}}, {"$limit": 5}}) {
		t.Fatal("limit stage not detected")
	}
}

func TestPlanUsesIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		explain   map[string]any
		wantUsed  bool
		wantStage string
	}{
		{
			name: "index scan",
			explain: map[string]any{
				"queryPlanner": map[string]any{
					"winningPlan": map[string]any{
						"stage":      "FETCH",
						"inputStage": map[string]any{"stage": "IXSCAN"},
					},
				},
			},
			wantUsed:  true,
			wantStage: "FETCH",
		},
		{
			name: "top level collscan",
			explain: map[string]any{
				"queryPlanner": map[string]any{
					"winningPlan": map[string]any{"stage": "COLLSCAN"},
				},
			},
			wantUsed:  false,
			wantStage: "COLLSCAN",
		},
		{
			name: "collscan buried under inputStages",
			explain: map[string]any{
				"queryPlanner": map[string]any{
					"winningPlan": map[string]any{
						"stage": "SORT",
						"inputStages": []any{
							map[string]any{"stage": "IXSCAN"},
							map[string]any{"stage": "COLLSCAN"},
						},
					},
				},
			},
			wantUsed:  false,
			wantStage: "SORT",
		},
		{
			name: "sharded shape without winningPlan",
			explain: map[string]any{
				"shards": map[string]any{
					"shard0": map[string]any{
						"winningPlan": map[string]any{"stage": "IXSCAN"},
					},
				},
			},
			wantUsed:  true,
			wantStage: "unknown",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			used, stage := planUsesIndex(tc.explain)
			if used != tc.wantUsed {
				t.Fatalf("used = %v, want %v", used, tc.wantUsed)
			}
			if stage != tc.wantStage {
				t.Fatalf("stage = %q, want %q", stage, tc.wantStage)
			}
		})
	}
}

func TestBuildExplainCommand(t *testing.T) {
	t.Parallel()

	spec, err := parseMethodSpec("method", []byte(`{"name":"find","arguments":{"filter":{"a":1},"limit":3}}`), explainMethods)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	command, err := buildExplainCommand("orders", spec)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if command[0].Key != "find" || command[0].Value != "orders" {
		t.Fatalf("unexpected command head: %+v", command[0])
	}

	spec, err = parseMethodSpec("method", []byte(`["aggregate",{"pipeline":[{"$out":"x"}]}]`), explainMethods)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = buildExplainCommand("orders", spec)
	var policy *PolicyError
	if !errors.As(err, &policy) {
		t.Fatalf("forbidden pipeline stage should fail the explain build, got %v", err)
	}
}
