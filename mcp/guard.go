package mcp

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Stages whose sole key would write through an aggregation pipeline.
var forbiddenPipelineStages = map[string]bool{
	"$out":   true,
	"$merge": true,
}

// checkPipelineStages rejects pipelines that would mutate data ($out/$merge)
// or that require capabilities legacy servers lack ($vectorSearch). Runs
// before any part of the pipeline reaches the database.
func checkPipelineStages(pipeline []map[string]any) error {
	for _, stage := range pipeline {
		if len(stage) == 1 {
			for key := range stage {
				if forbiddenPipelineStages[key] {
					return policyf("mutating aggregation stage %s forbidden in read-only mode", key)
				}
			}
		}
		if _, ok := stage["$vectorSearch"]; ok {
			return validationf("$vectorSearch is not supported on MongoDB servers older than 4.0")
		}
	}
	return nil
}

// pipelineHasLimit reports whether any stage caps the result set.
func pipelineHasLimit(pipeline []map[string]any) bool {
	for _, stage := range pipeline {
		if _, ok := stage["$limit"]; ok {
			return true
		}
	}
	return false
}

// buildExplainCommand translates a normalized MethodSpec into the server
// command whose plan is inspected. The explain tool and the index-check
// pre-flight share this builder so both see the plan the server would pick
// for the real operation.
func buildExplainCommand(collection string, spec MethodSpec) (bson.D, error) {
	switch spec.Name {
	case methodFind:
		var args findMethodArguments
		if err := decodeMethodArguments(spec, &args); err != nil {
			return nil, err
		}
		command := bson.D{
			{Key: "find", Value: collection},
			{Key: "filter", Value: orEmptyDocument(args.Filter)},
		}
		if args.Projection != nil {
			command = append(command, bson.E{Key: "projection", Value: args.Projection})
		}
		if args.Sort != nil {
			command = append(command, bson.E{Key: "sort", Value: args.Sort})
		}
		if args.Limit > 0 {
			command = append(command, bson.E{Key: "limit", Value: args.Limit})
		}
		return command, nil
	case methodAggregate:
		var args aggregateMethodArguments
		if err := decodeMethodArguments(spec, &args); err != nil {
			return nil, err
		}
		if err := checkPipelineStages(args.Pipeline); err != nil {
			return nil, err
		}
		pipeline := args.Pipeline
		if pipeline == nil {
			pipeline = []map[string]any{}
		}
		return bson.D{
			{Key: "aggregate", Value: collection},
			{Key: "pipeline", Value: pipeline},
			{Key: "cursor", Value: bson.D{}},
		}, nil
	case methodCount:
		var args countMethodArguments
		if err := decodeMethodArguments(spec, &args); err != nil {
			return nil, err
		}
		return bson.D{
			{Key: "count", Value: collection},
			{Key: "query", Value: orEmptyDocument(args.Query)},
		}, nil
	}
	return nil, &ValidationError{Detail: "unsupported method " + strconvQuote(spec.Name), Allowed: explainMethods}
}

// planUsesIndex walks an explain reply looking for a COLLSCAN stage. It
// prefers the queryPlanner/winningPlan path emitted by 2.6-3.x servers and
// falls back to a whole-document walk for the sharded and aggregate explain
// shapes. Returns the winning top-level stage for diagnostics.
func planUsesIndex(explain map[string]any) (bool, string) {
	stage := "unknown"
	if planner, ok := explain["queryPlanner"].(map[string]any); ok {
		if winning, ok := planner["winningPlan"].(map[string]any); ok {
			if name, ok := winning["stage"].(string); ok {
				stage = name
			}
			return !subtreeHasStage(winning, "COLLSCAN"), stage
		}
	}
	return !subtreeHasStage(explain, "COLLSCAN"), stage
}

func subtreeHasStage(node any, want string) bool {
	switch value := node.(type) {
	case map[string]any:
		if name, ok := value["stage"].(string); ok && name == want {
			return true
		}
		for _, child := range value {
			if subtreeHasStage(child, want) {
				return true
			}
		}
	case []any:
		for _, child := range value {
			if subtreeHasStage(child, want) {
				return true
			}
		}
	}
	return false
}

func decodeExplain(raw bson.Raw) (map[string]any, error) {
	var explain map[string]any
	if err := bson.Unmarshal(raw, &explain); err != nil {
		return nil, validationf("decode explain reply: %v", err)
	}
	return explain, nil
}

// preflightPlanCheck runs the explain pre-flight and rejects plans that scan
// the whole collection. Only called when index-check mode is enabled.
func (s *server) preflightPlanCheck(ctx context.Context, database string, command bson.D) error {
	raw, err := s.session.Explain(ctx, database, command, verbosityQueryPlanner)
	if err != nil {
		return err
	}
	explain, err := decodeExplain(raw)
	if err != nil {
		return err
	}
	used, stage := planUsesIndex(explain)
	if !used {
		return policyf("query rejected: no index used (winning stage: %s); use collection_indexes to see available indexes", stage)
	}
	return nil
}

// enforceIndexCheck applies the index policy to filter-shaped operations
// (find/count). An empty filter is rejected outright: it always scans.
func (s *server) enforceIndexCheck(ctx context.Context, database string, command bson.D, filter map[string]any) error {
	if !s.cfg.IndexCheck {
		return nil
	}
	if len(filter) == 0 {
		return policyf("query rejected: empty filter would scan the whole collection; index check mode requires a filter on an indexed field")
	}
	return s.preflightPlanCheck(ctx, database, command)
}

func orEmptyDocument(doc map[string]any) any {
	if doc == nil {
		return bson.D{}
	}
	return doc
}
