package mcp

import (
	"context"
	"encoding/json"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.mongodb.org/mongo-driver/v2/bson"

	"pkt.systems/mongomcp/internal/mongodb"
)

const (
	verbosityQueryPlanner      = "queryPlanner"
	verbosityExecutionStats    = "executionStats"
	verbosityAllPlansExecution = "allPlansExecution"
)

var explainVerbosities = []string{verbosityQueryPlanner, verbosityExecutionStats, verbosityAllPlansExecution}

func requireTarget(database, collection string) (string, string, error) {
	database = strings.TrimSpace(database)
	if database == "" {
		return "", "", validationf("database is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return "", "", validationf("collection is required")
	}
	return database, collection, nil
}

type findToolInput struct {
	Database   string         `json:"database" jsonschema:"Database name"`
	Collection string         `json:"collection" jsonschema:"Collection name"`
	Filter     map[string]any `json:"filter,omitempty" jsonschema:"Query filter document in extended JSON"`
	Projection map[string]any `json:"projection,omitempty" jsonschema:"Field projection document"`
	Sort       map[string]any `json:"sort,omitempty" jsonschema:"Sort specification document"`
	Limit      int            `json:"limit,omitempty" jsonschema:"Maximum documents to return (defaults to server default, capped at the configured ceiling)"`

	// ResponseBytesLimit can only tighten the configured byte ceiling.
	ResponseBytesLimit int `json:"responseBytesLimit,omitempty" jsonschema:"Optional per-call byte ceiling; never raises the configured maximum"`
}

type findToolOutput struct {
	Database         string            `json:"database"`
	Collection       string            `json:"collection"`
	Documents        []json.RawMessage `json:"documents"`
	Count            int               `json:"count"`
	Truncated        bool              `json:"truncated"`
	TruncationReason string            `json:"truncation_reason,omitempty"`
}

func (s *server) handleFindTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input findToolInput) (*mcpsdk.CallToolResult, findToolOutput, error) {
	database, collection, err := requireTarget(input.Database, input.Collection)
	if err != nil {
		return nil, findToolOutput{}, err
	}
	if input.Limit < 0 {
		return nil, findToolOutput{}, validationf("limit must not be negative")
	}

	effectiveLimit := input.Limit
	if effectiveLimit == 0 {
		effectiveLimit = s.cfg.DefaultFindLimit
	}
	if effectiveLimit > s.cfg.MaxDocumentsPerQuery {
		effectiveLimit = s.cfg.MaxDocumentsPerQuery
	}

	if s.cfg.IndexCheck {
		command := bson.D{
			{Key: "find", Value: collection},
			{Key: "filter", Value: orEmptyDocument(input.Filter)},
		}
		if err := s.enforceIndexCheck(ctx, database, command, input.Filter); err != nil {
			return nil, findToolOutput{}, err
		}
	}

	cur, err := s.session.Find(ctx, database, collection, mongodb.FindQuery{
		Filter:     input.Filter,
		Projection: input.Projection,
		Sort:       input.Sort,
		Limit:      int64(effectiveLimit),
	})
	if err != nil {
		return nil, findToolOutput{}, err
	}

	limits := s.limits.withByteCap(int64(input.ResponseBytesLimit))
	limits.MaxDocuments = effectiveLimit
	result, err := boundCursor(ctx, cur, limits, false)
	if err != nil {
		return nil, findToolOutput{}, err
	}
	s.metrics.resultTruncated(toolFind, result.Reason)
	s.toolLog.Debug("find", "database", database, "collection", collection,
		"count", len(result.Documents), "truncated", result.Truncated)

	return nil, findToolOutput{
		Database:         database,
		Collection:       collection,
		Documents:        orEmptyDocuments(result.Documents),
		Count:            len(result.Documents),
		Truncated:        result.Truncated,
		TruncationReason: truncationReasonField(result),
	}, nil
}

type countToolInput struct {
	Database   string         `json:"database" jsonschema:"Database name"`
	Collection string         `json:"collection" jsonschema:"Collection name"`
	Query      map[string]any `json:"query,omitempty" jsonschema:"Filter document restricting which documents are counted"`
}

type countToolOutput struct {
	Database   string `json:"database"`
	Collection string `json:"collection"`
	Count      int64  `json:"count"`
}

func (s *server) handleCountTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input countToolInput) (*mcpsdk.CallToolResult, countToolOutput, error) {
	database, collection, err := requireTarget(input.Database, input.Collection)
	if err != nil {
		return nil, countToolOutput{}, err
	}

	if s.cfg.IndexCheck {
		command := bson.D{
			{Key: "count", Value: collection},
			{Key: "query", Value: orEmptyDocument(input.Query)},
		}
		if err := s.enforceIndexCheck(ctx, database, command, input.Query); err != nil {
			return nil, countToolOutput{}, err
		}
	}

	n, err := s.session.Count(ctx, database, collection, input.Query)
	if err != nil {
		return nil, countToolOutput{}, err
	}
	return nil, countToolOutput{Database: database, Collection: collection, Count: n}, nil
}

type aggregateToolInput struct {
	Database   string           `json:"database" jsonschema:"Database name"`
	Collection string           `json:"collection" jsonschema:"Collection name"`
	Pipeline   []map[string]any `json:"pipeline" jsonschema:"Aggregation pipeline stages; $out and $merge are rejected"`

	// ResponseBytesLimit can only tighten the configured byte ceiling.
	ResponseBytesLimit int `json:"responseBytesLimit,omitempty" jsonschema:"Optional per-call byte ceiling; never raises the configured maximum"`
}

type aggregateToolOutput struct {
	Database         string            `json:"database"`
	Collection       string            `json:"collection"`
	Documents        []json.RawMessage `json:"documents"`
	Count            int               `json:"count"`
	Truncated        bool              `json:"truncated"`
	TruncationReason string            `json:"truncation_reason,omitempty"`
}

func (s *server) handleAggregateTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input aggregateToolInput) (*mcpsdk.CallToolResult, aggregateToolOutput, error) {
	database, collection, err := requireTarget(input.Database, input.Collection)
	if err != nil {
		return nil, aggregateToolOutput{}, err
	}
	if len(input.Pipeline) == 0 {
		return nil, aggregateToolOutput{}, validationf("pipeline is required")
	}
	if err := checkPipelineStages(input.Pipeline); err != nil {
		return nil, aggregateToolOutput{}, err
	}

	pipeline := input.Pipeline
	if !pipelineHasLimit(pipeline) {
		// Server-side cap so unbounded pipelines never stream more than the
		// bounder would keep anyway.
		pipeline = append(append([]map[string]any{}, pipeline...),
			map[string]any{"$limit": s.cfg.MaxDocumentsPerQuery})
	}

	if s.cfg.IndexCheck {
		command := bson.D{
			{Key: "aggregate", Value: collection},
			{Key: "pipeline", Value: pipeline},
			{Key: "cursor", Value: bson.D{}},
		}
		if err := s.preflightPlanCheck(ctx, database, command); err != nil {
			return nil, aggregateToolOutput{}, err
		}
	}

	cur, err := s.session.Aggregate(ctx, database, collection, pipeline)
	if err != nil {
		return nil, aggregateToolOutput{}, err
	}
	result, err := boundCursor(ctx, cur, s.limits.withByteCap(int64(input.ResponseBytesLimit)), false)
	if err != nil {
		return nil, aggregateToolOutput{}, err
	}
	s.metrics.resultTruncated(toolAggregate, result.Reason)
	s.toolLog.Debug("aggregate", "database", database, "collection", collection,
		"stages", len(input.Pipeline), "count", len(result.Documents), "truncated", result.Truncated)

	return nil, aggregateToolOutput{
		Database:         database,
		Collection:       collection,
		Documents:        orEmptyDocuments(result.Documents),
		Count:            len(result.Documents),
		Truncated:        result.Truncated,
		TruncationReason: truncationReasonField(result),
	}, nil
}

type explainToolInput struct {
	Database   string          `json:"database" jsonschema:"Database name"`
	Collection string          `json:"collection" jsonschema:"Collection name"`
	Method     json.RawMessage `json:"method" jsonschema:"Operation to explain: {\"name\":\"find|aggregate|count\",\"arguments\":{...}} or [name, {arguments}]"`
	Verbosity  string          `json:"verbosity,omitempty" jsonschema:"Explain verbosity: queryPlanner (default), executionStats, or allPlansExecution"`
}

type explainToolOutput struct {
	Database     string          `json:"database"`
	Collection   string          `json:"collection"`
	Method       string          `json:"method"`
	Verbosity    string          `json:"verbosity"`
	Explain      json.RawMessage `json:"explain"`
	IndexUsed    bool            `json:"index_used"`
	WinningStage string          `json:"winning_stage"`
}

func (s *server) handleExplainTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input explainToolInput) (*mcpsdk.CallToolResult, explainToolOutput, error) {
	database, collection, err := requireTarget(input.Database, input.Collection)
	if err != nil {
		return nil, explainToolOutput{}, err
	}
	spec, err := parseMethodSpec("method", input.Method, explainMethods)
	if err != nil {
		return nil, explainToolOutput{}, err
	}
	verbosity, err := validateChoice("verbosity", input.Verbosity, verbosityQueryPlanner, explainVerbosities)
	if err != nil {
		return nil, explainToolOutput{}, err
	}
	command, err := buildExplainCommand(collection, spec)
	if err != nil {
		return nil, explainToolOutput{}, err
	}

	raw, err := s.session.Explain(ctx, database, command, verbosity)
	if err != nil {
		return nil, explainToolOutput{}, err
	}
	explain, err := decodeExplain(raw)
	if err != nil {
		return nil, explainToolOutput{}, err
	}
	used, stage := planUsesIndex(explain)

	encoded, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, explainToolOutput{}, validationf("serialize explain reply: %v", err)
	}
	return nil, explainToolOutput{
		Database:     database,
		Collection:   collection,
		Method:       spec.Name,
		Verbosity:    verbosity,
		Explain:      json.RawMessage(encoded),
		IndexUsed:    used,
		WinningStage: stage,
	}, nil
}

type exportDataToolInput struct {
	Database   string          `json:"database" jsonschema:"Database name"`
	Collection string          `json:"collection" jsonschema:"Collection name"`
	Method     json.RawMessage `json:"method" jsonschema:"Operation producing the export: {\"name\":\"find|aggregate\",\"arguments\":{...}} or [name, {arguments}]"`
	Title      string          `json:"title" jsonschema:"Human-readable title used in the export filename"`
	Format     string          `json:"format,omitempty" jsonschema:"Extended JSON flavor: relaxed (default) or canonical"`
}

type exportDataToolOutput struct {
	Path             string `json:"path"`
	DocumentCount    int    `json:"document_count"`
	Format           string `json:"format"`
	Truncated        bool   `json:"truncated"`
	TruncationReason string `json:"truncation_reason,omitempty"`
}

func (s *server) handleExportDataTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input exportDataToolInput) (*mcpsdk.CallToolResult, exportDataToolOutput, error) {
	database, collection, err := requireTarget(input.Database, input.Collection)
	if err != nil {
		return nil, exportDataToolOutput{}, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, exportDataToolOutput{}, validationf("title is required")
	}
	spec, err := parseMethodSpec("method", input.Method, exportTargets)
	if err != nil {
		return nil, exportDataToolOutput{}, err
	}
	format, err := validateChoice("format", input.Format, exportFormatRelaxed, exportFormats)
	if err != nil {
		return nil, exportDataToolOutput{}, err
	}
	canonical := format == exportFormatCanonical

	var cur mongodb.Cursor
	switch spec.Name {
	case methodFind:
		var args findMethodArguments
		if err := decodeMethodArguments(spec, &args); err != nil {
			return nil, exportDataToolOutput{}, err
		}
		if s.cfg.IndexCheck {
			command := bson.D{
				{Key: "find", Value: collection},
				{Key: "filter", Value: orEmptyDocument(args.Filter)},
			}
			if err := s.enforceIndexCheck(ctx, database, command, args.Filter); err != nil {
				return nil, exportDataToolOutput{}, err
			}
		}
		cur, err = s.session.Find(ctx, database, collection, mongodb.FindQuery{
			Filter:     args.Filter,
			Projection: args.Projection,
			Sort:       args.Sort,
			Limit:      args.Limit,
		})
	case methodAggregate:
		var args aggregateMethodArguments
		if err := decodeMethodArguments(spec, &args); err != nil {
			return nil, exportDataToolOutput{}, err
		}
		if err := checkPipelineStages(args.Pipeline); err != nil {
			return nil, exportDataToolOutput{}, err
		}
		pipeline := args.Pipeline
		if !pipelineHasLimit(pipeline) {
			pipeline = append(append([]map[string]any{}, pipeline...),
				map[string]any{"$limit": s.cfg.MaxDocumentsPerQuery})
		}
		if s.cfg.IndexCheck {
			command := bson.D{
				{Key: "aggregate", Value: collection},
				{Key: "pipeline", Value: pipeline},
				{Key: "cursor", Value: bson.D{}},
			}
			if err := s.preflightPlanCheck(ctx, database, command); err != nil {
				return nil, exportDataToolOutput{}, err
			}
		}
		cur, err = s.session.Aggregate(ctx, database, collection, pipeline)
	}
	if err != nil {
		return nil, exportDataToolOutput{}, err
	}

	result, err := boundCursor(ctx, cur, s.limits, canonical)
	if err != nil {
		return nil, exportDataToolOutput{}, err
	}
	s.metrics.resultTruncated(toolExportData, result.Reason)

	path, err := writeExportFile(s.cfg.ExportDir, input.Title, result.Documents)
	if err != nil {
		return nil, exportDataToolOutput{}, err
	}
	s.toolLog.Info("export written", "path", path, "database", database,
		"collection", collection, "documents", len(result.Documents), "format", format)

	return nil, exportDataToolOutput{
		Path:             path,
		DocumentCount:    len(result.Documents),
		Format:           format,
		Truncated:        result.Truncated,
		TruncationReason: truncationReasonField(result),
	}, nil
}

func orEmptyDocuments(docs []json.RawMessage) []json.RawMessage {
	if docs == nil {
		return []json.RawMessage{}
	}
	return docs
}

func truncationReasonField(result BoundedResult) string {
	if !result.Truncated {
		return ""
	}
	return string(result.Reason)
}
