package mcp

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	toolListDatabases         = "list_databases"
	toolListCollections       = "list_collections"
	toolFind                  = "find"
	toolCount                 = "count"
	toolAggregate             = "aggregate"
	toolCollectionIndexes     = "collection_indexes"
	toolCollectionSchema      = "collection_schema"
	toolCollectionStorageSize = "collection_storage_size"
	toolDBStats               = "db_stats"
	toolExplain               = "explain"
	toolExportData            = "export_data"
	toolMongoDBLogs           = "mongodb_logs"
	toolGetServerConfig       = "get_server_config"
)

var mcpToolNames = []string{
	toolListDatabases,
	toolListCollections,
	toolFind,
	toolCount,
	toolAggregate,
	toolCollectionIndexes,
	toolCollectionSchema,
	toolCollectionStorageSize,
	toolDBStats,
	toolExplain,
	toolExportData,
	toolMongoDBLogs,
	toolGetServerConfig,
}

// ToolNames returns the registered tool names in registration order.
func ToolNames() []string {
	return append([]string(nil), mcpToolNames...)
}

type toolContract struct {
	Top      []string
	Purpose  string
	UseWhen  string
	Requires string
	Effects  string
	Retry    string
	Next     string
}

func formatToolDescription(spec toolContract) string {
	lines := make([]string, 0, len(spec.Top)+6)
	for _, line := range spec.Top {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	lines = append(lines, []string{
		"Purpose: " + spec.Purpose,
		"Use when: " + spec.UseWhen,
		"Requires: " + spec.Requires,
		"Effects: " + spec.Effects,
		"Retry: " + spec.Retry,
		"Next: " + spec.Next,
	}...)
	return strings.Join(lines, "\n")
}

const (
	readOnlyLine   = "READ-ONLY: Every tool on this server reads data; nothing is ever written to the database."
	truncationLine = "TRUNCATION: Results may be cut at the configured document or byte ceiling; check the `truncated` flag before assuming completeness."
	legacyLine     = "LEGACY: The upstream server is a legacy MongoDB instance (2.x/3.x); modern operators may be unavailable."
)

func buildToolDescriptions(cfg Config) map[string]string {
	maxDocs := cfg.MaxDocumentsPerQuery
	maxBytes := humanize.IBytes(uint64(cfg.MaxBytesPerQuery))
	methodShapes := "`method` accepts either {\"name\":..., \"arguments\":{...}} or the positional form [name, {arguments}]."

	return map[string]string{
		toolListDatabases: formatToolDescription(toolContract{
			Top:      []string{readOnlyLine},
			Purpose:  "List databases on the connected MongoDB instance with size information.",
			UseWhen:  "You are orienting yourself on an unfamiliar server and need to know what databases exist.",
			Requires: "No arguments.",
			Effects:  "Returns database names, size on disk, and emptiness flags, plus the total size across all databases.",
			Retry:    "Safe to retry; this is a read operation.",
			Next:     "Call `list_collections` on a database of interest.",
		}),
		toolListCollections: formatToolDescription(toolContract{
			Top:      []string{readOnlyLine},
			Purpose:  "List collection names in one database.",
			UseWhen:  "You know the database and need to discover its collections.",
			Requires: "`database` is required.",
			Effects:  "Returns collection names only; no document data is read.",
			Retry:    "Safe to retry; this is a read operation.",
			Next:     "Call `collection_schema` or `collection_indexes` before querying, or `find` directly.",
		}),
		toolFind: formatToolDescription(toolContract{
			Top:      []string{readOnlyLine, truncationLine},
			Purpose:  "Run a filtered find query against one collection.",
			UseWhen:  "You need documents matching a filter, optionally projected and sorted.",
			Requires: fmt.Sprintf("`database` and `collection` are required. Optional `filter`, `projection`, and `sort` are MongoDB documents in extended JSON. `limit` defaults to %d and is capped at %d. When index-check mode is on, the filter must use an index.", cfg.DefaultFindLimit, maxDocs),
			Effects:  fmt.Sprintf("Returns matching documents serialized as relaxed extended JSON, bounded at %d documents and %s.", maxDocs, maxBytes),
			Retry:    "Safe to retry; this is a read operation.",
			Next:     "Narrow the filter or add a projection if the result was truncated; `explain` shows the plan.",
		}),
		toolCount: formatToolDescription(toolContract{
			Top:      []string{readOnlyLine},
			Purpose:  "Count documents matching a query in one collection.",
			UseWhen:  "You need a cardinality, not the documents themselves.",
			Requires: "`database` and `collection` are required. Optional `query` is a MongoDB filter document. When index-check mode is on, the query must use an index.",
			Effects:  "Returns the matching document count.",
			Retry:    "Safe to retry; this is a read operation.",
			Next:     "Call `find` with the same filter to inspect the documents.",
		}),
		toolAggregate: formatToolDescription(toolContract{
			Top:      []string{readOnlyLine, truncationLine, legacyLine},
			Purpose:  "Run a read-only aggregation pipeline against one collection.",
			UseWhen:  "You need grouping, reshaping, or multi-stage computation beyond a plain find.",
			Requires: fmt.Sprintf("`database`, `collection`, and `pipeline` (array of stage documents) are required. `$out` and `$merge` stages are rejected; `$vectorSearch` is unsupported. A `$limit` of %d is appended when the pipeline has none.", maxDocs),
			Effects:  fmt.Sprintf("Returns pipeline output documents as relaxed extended JSON, bounded at %d documents and %s.", maxDocs, maxBytes),
			Retry:    "Safe to retry; this is a read operation.",
			Next:     "Use `explain` with an aggregate method to inspect the pipeline plan.",
		}),
		toolCollectionIndexes: formatToolDescription(toolContract{
			Top:      []string{readOnlyLine},
			Purpose:  "List the indexes defined on one collection.",
			UseWhen:  "A query was rejected for not using an index, or you are planning filters.",
			Requires: "`database` and `collection` are required.",
			Effects:  "Returns index definitions (keys, names, options).",
			Retry:    "Safe to retry; this is a read operation.",
			Next:     "Shape `find`/`count` filters around an indexed field.",
		}),
		toolCollectionSchema: formatToolDescription(toolContract{
			Top:      []string{readOnlyLine},
			Purpose:  "Infer a field-level schema from a sample of collection documents.",
			UseWhen:  "You need field names, types, and occurrence rates before writing queries.",
			Requires: fmt.Sprintf("`database` and `collection` are required. Optional `sampleSize` defaults to %d.", cfg.DefaultSampleSize),
			Effects:  "Samples documents ($sample, falling back to a plain find on servers without it) and returns per-field types, occurrence counts and percentages, and clipped sample values.",
			Retry:    "Safe to retry; sampling may return a different subset each call.",
			Next:     "Call `find` with filters on the discovered fields.",
		}),
		toolCollectionStorageSize: formatToolDescription(toolContract{
			Top:      []string{readOnlyLine},
			Purpose:  "Report storage statistics for one collection.",
			UseWhen:  "You need size, document count, or average object size for capacity questions.",
			Requires: "`database` and `collection` are required.",
			Effects:  "Runs collStats and returns its reply.",
			Retry:    "Safe to retry; this is a read operation.",
			Next:     "Call `db_stats` for the database-wide view.",
		}),
		toolDBStats: formatToolDescription(toolContract{
			Top:      []string{readOnlyLine},
			Purpose:  "Report storage statistics for one database.",
			UseWhen:  "You need database-level size and object counts.",
			Requires: "`database` is required.",
			Effects:  "Runs dbStats and returns its reply.",
			Retry:    "Safe to retry; this is a read operation.",
			Next:     "Call `collection_storage_size` to drill into one collection.",
		}),
		toolExplain: formatToolDescription(toolContract{
			Top:      []string{readOnlyLine, legacyLine},
			Purpose:  "Return the query plan the server would choose for a find, aggregate, or count.",
			UseWhen:  "A query is slow or was rejected by index-check mode and you need to see why.",
			Requires: "`database`, `collection`, and `method` are required. " + methodShapes + " `verbosity` accepts queryPlanner (default), executionStats, or allPlansExecution.",
			Effects:  "Runs the explain command without executing writes and annotates whether the winning plan uses an index.",
			Retry:    "Safe to retry; this is a read operation.",
			Next:     "Call `collection_indexes` if the plan shows a collection scan.",
		}),
		toolExportData: formatToolDescription(toolContract{
			Top:      []string{readOnlyLine, truncationLine},
			Purpose:  "Run a find or aggregation and write the result to a local newline-delimited JSON file.",
			UseWhen:  "The result set should land on disk for downstream processing rather than in the conversation.",
			Requires: "`database`, `collection`, `method`, and `title` are required. " + methodShapes + " Only find and aggregate methods are accepted. `format` is relaxed (default) or canonical extended JSON.",
			Effects:  fmt.Sprintf("Writes one document per line under the export directory and returns the absolute file path and document count. The same %d-document and %s ceilings apply.", maxDocs, maxBytes),
			Retry:    "Safe to retry; each call writes a new uniquely named file.",
			Next:     "Process the returned file path outside the session.",
		}),
		toolMongoDBLogs: formatToolDescription(toolContract{
			Top:      []string{readOnlyLine, legacyLine},
			Purpose:  "Read recent entries from the server's in-memory log ring buffer.",
			UseWhen:  "You are diagnosing server-side warnings or startup problems.",
			Requires: "Optional `type` is global (default) or startupWarnings. Optional `limit` defaults to 50 and is clamped to [1, 1024].",
			Effects:  "Runs the getLog admin command and returns the most recent entries.",
			Retry:    "Safe to retry; this is a read operation.",
			Next:     "Call `db_stats` or `get_server_config` for further diagnostics.",
		}),
		toolGetServerConfig: formatToolDescription(toolContract{
			Top:      []string{readOnlyLine},
			Purpose:  "Report this server's effective configuration and connection target.",
			UseWhen:  "You need to confirm limits, policy flags, or which instance is connected.",
			Requires: "No arguments.",
			Effects:  "Returns configuration with all credentials masked; no database command is issued.",
			Retry:    "Safe to retry; nothing is read from MongoDB.",
			Next:     "Adjust queries to the reported document and byte ceilings.",
		}),
	}
}
