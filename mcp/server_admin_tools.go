package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.mongodb.org/mongo-driver/v2/bson"

	"pkt.systems/mongomcp/internal/mongodb"
)

type listDatabasesToolInput struct{}

type databaseInfoOutput struct {
	Name       string `json:"name"`
	SizeOnDisk int64  `json:"size_on_disk"`
	Empty      bool   `json:"empty"`
}

type listDatabasesToolOutput struct {
	Databases []databaseInfoOutput `json:"databases"`
	TotalSize int64                `json:"total_size"`
}

func (s *server) handleListDatabasesTool(ctx context.Context, _ *mcpsdk.CallToolRequest, _ listDatabasesToolInput) (*mcpsdk.CallToolResult, listDatabasesToolOutput, error) {
	res, err := s.session.ListDatabases(ctx)
	if err != nil {
		return nil, listDatabasesToolOutput{}, err
	}
	out := listDatabasesToolOutput{
		Databases: make([]databaseInfoOutput, 0, len(res.Databases)),
		TotalSize: res.TotalSize,
	}
	for _, db := range res.Databases {
		out.Databases = append(out.Databases, databaseInfoOutput{
			Name:       db.Name,
			SizeOnDisk: db.SizeOnDisk,
			Empty:      db.Empty,
		})
	}
	return nil, out, nil
}

type listCollectionsToolInput struct {
	Database string `json:"database" jsonschema:"Database name"`
}

type listCollectionsToolOutput struct {
	Database    string   `json:"database"`
	Collections []string `json:"collections"`
}

func (s *server) handleListCollectionsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input listCollectionsToolInput) (*mcpsdk.CallToolResult, listCollectionsToolOutput, error) {
	database := strings.TrimSpace(input.Database)
	if database == "" {
		return nil, listCollectionsToolOutput{}, validationf("database is required")
	}
	names, err := s.session.ListCollectionNames(ctx, database)
	if err != nil {
		return nil, listCollectionsToolOutput{}, err
	}
	sort.Strings(names)
	if names == nil {
		names = []string{}
	}
	return nil, listCollectionsToolOutput{Database: database, Collections: names}, nil
}

type collectionIndexesToolInput struct {
	Database   string `json:"database" jsonschema:"Database name"`
	Collection string `json:"collection" jsonschema:"Collection name"`
}

type collectionIndexesToolOutput struct {
	Database   string            `json:"database"`
	Collection string            `json:"collection"`
	Indexes    []json.RawMessage `json:"indexes"`
}

func (s *server) handleCollectionIndexesTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input collectionIndexesToolInput) (*mcpsdk.CallToolResult, collectionIndexesToolOutput, error) {
	database, collection, err := requireTarget(input.Database, input.Collection)
	if err != nil {
		return nil, collectionIndexesToolOutput{}, err
	}
	cur, err := s.session.ListIndexes(ctx, database, collection)
	if err != nil {
		return nil, collectionIndexesToolOutput{}, err
	}
	result, err := boundCursor(ctx, cur, s.limits, false)
	if err != nil {
		return nil, collectionIndexesToolOutput{}, err
	}
	return nil, collectionIndexesToolOutput{
		Database:   database,
		Collection: collection,
		Indexes:    orEmptyDocuments(result.Documents),
	}, nil
}

type collectionSchemaToolInput struct {
	Database   string `json:"database" jsonschema:"Database name"`
	Collection string `json:"collection" jsonschema:"Collection name"`
	SampleSize int    `json:"sampleSize,omitempty" jsonschema:"Documents to sample (defaults to the server default sample size)"`

	// ResponseBytesLimit can only tighten the configured byte ceiling.
	ResponseBytesLimit int `json:"responseBytesLimit,omitempty" jsonschema:"Optional per-call byte ceiling on sampled data; never raises the configured maximum"`
}

type collectionSchemaToolOutput struct {
	Database       string                 `json:"database"`
	Collection     string                 `json:"collection"`
	SampledCount   int                    `json:"sampled_count"`
	Fields         map[string]fieldSchema `json:"fields"`
	SampledViaFind bool                   `json:"sampled_via_find,omitempty"`
}

func (s *server) handleCollectionSchemaTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input collectionSchemaToolInput) (*mcpsdk.CallToolResult, collectionSchemaToolOutput, error) {
	database, collection, err := requireTarget(input.Database, input.Collection)
	if err != nil {
		return nil, collectionSchemaToolOutput{}, err
	}
	if input.SampleSize < 0 {
		return nil, collectionSchemaToolOutput{}, validationf("sampleSize must not be negative")
	}
	sampleSize := input.SampleSize
	if sampleSize == 0 {
		sampleSize = s.cfg.DefaultSampleSize
	}

	limits := s.limits.withByteCap(int64(input.ResponseBytesLimit))

	// $sample first; very old servers (pre-3.2) lack the stage, so fall back
	// to reading the first documents in natural order.
	viaFind := false
	docs, err := s.sampleDocuments(ctx, database, collection, sampleSize, limits.MaxBytes)
	if err != nil {
		var sampleErr *mongodb.Error
		if !errors.As(err, &sampleErr) {
			return nil, collectionSchemaToolOutput{}, err
		}
		viaFind = true
		docs, err = s.firstDocuments(ctx, database, collection, sampleSize, limits.MaxBytes)
		if err != nil {
			return nil, collectionSchemaToolOutput{}, err
		}
	}

	return nil, collectionSchemaToolOutput{
		Database:       database,
		Collection:     collection,
		SampledCount:   len(docs),
		Fields:         inferSchema(docs),
		SampledViaFind: viaFind,
	}, nil
}

func (s *server) sampleDocuments(ctx context.Context, database, collection string, size int, maxBytes int64) ([]map[string]any, error) {
	cur, err := s.session.Aggregate(ctx, database, collection, []map[string]any{
		{"$sample": map[string]any{"size": size}},
	})
	if err != nil {
		return nil, err
	}
	return collectDocuments(ctx, cur, size, maxBytes)
}

func (s *server) firstDocuments(ctx context.Context, database, collection string, size int, maxBytes int64) ([]map[string]any, error) {
	cur, err := s.session.Find(ctx, database, collection, mongodb.FindQuery{Limit: int64(size)})
	if err != nil {
		return nil, err
	}
	return collectDocuments(ctx, cur, size, maxBytes)
}

// collectDocuments reads at most max documents from cur. The byte budget
// counts raw BSON sizes; the document that would cross it is discarded along
// with the remainder of the cursor.
func collectDocuments(ctx context.Context, cur mongodb.Cursor, max int, maxBytes int64) ([]map[string]any, error) {
	defer cur.Close(ctx)
	docs := make([]map[string]any, 0, max)
	var used int64
	for cur.Next(ctx) {
		if len(docs) >= max {
			break
		}
		raw := cur.Current()
		if maxBytes > 0 && used+int64(len(raw)) > maxBytes {
			break
		}
		used += int64(len(raw))
		var doc map[string]any
		if err := bson.Unmarshal(raw, &doc); err != nil {
			return nil, validationf("decode sampled document: %v", err)
		}
		docs = append(docs, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

type collectionStorageSizeToolInput struct {
	Database   string `json:"database" jsonschema:"Database name"`
	Collection string `json:"collection" jsonschema:"Collection name"`
}

type collectionStorageSizeToolOutput struct {
	Database   string          `json:"database"`
	Collection string          `json:"collection"`
	Stats      json.RawMessage `json:"stats"`
}

func (s *server) handleCollectionStorageSizeTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input collectionStorageSizeToolInput) (*mcpsdk.CallToolResult, collectionStorageSizeToolOutput, error) {
	database, collection, err := requireTarget(input.Database, input.Collection)
	if err != nil {
		return nil, collectionStorageSizeToolOutput{}, err
	}
	raw, err := s.session.RunCommand(ctx, database, bson.D{{Key: "collStats", Value: collection}})
	if err != nil {
		return nil, collectionStorageSizeToolOutput{}, err
	}
	stats, err := rawToRelaxedJSON(raw)
	if err != nil {
		return nil, collectionStorageSizeToolOutput{}, err
	}
	return nil, collectionStorageSizeToolOutput{
		Database:   database,
		Collection: collection,
		Stats:      stats,
	}, nil
}

type dbStatsToolInput struct {
	Database string `json:"database" jsonschema:"Database name"`
}

type dbStatsToolOutput struct {
	Database string          `json:"database"`
	Stats    json.RawMessage `json:"stats"`
}

func (s *server) handleDBStatsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input dbStatsToolInput) (*mcpsdk.CallToolResult, dbStatsToolOutput, error) {
	database := strings.TrimSpace(input.Database)
	if database == "" {
		return nil, dbStatsToolOutput{}, validationf("database is required")
	}
	raw, err := s.session.RunCommand(ctx, database, bson.D{{Key: "dbStats", Value: 1}})
	if err != nil {
		return nil, dbStatsToolOutput{}, err
	}
	stats, err := rawToRelaxedJSON(raw)
	if err != nil {
		return nil, dbStatsToolOutput{}, err
	}
	return nil, dbStatsToolOutput{Database: database, Stats: stats}, nil
}

const (
	logTypeGlobal          = "global"
	logTypeStartupWarnings = "startupWarnings"

	logLimitDefault = 50
	logLimitMin     = 1
	logLimitMax     = 1024
)

var logTypes = []string{logTypeGlobal, logTypeStartupWarnings}

type mongoDBLogsToolInput struct {
	Type  string `json:"type,omitempty" jsonschema:"Log buffer: global (default) or startupWarnings"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum entries to return, clamped to [1, 1024] (default 50)"`
}

type mongoDBLogsToolOutput struct {
	Type       string   `json:"type"`
	Entries    []string `json:"entries"`
	TotalLines int      `json:"total_lines"`
}

func (s *server) handleMongoDBLogsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input mongoDBLogsToolInput) (*mcpsdk.CallToolResult, mongoDBLogsToolOutput, error) {
	logType, err := validateChoice("type", input.Type, logTypeGlobal, logTypes)
	if err != nil {
		return nil, mongoDBLogsToolOutput{}, err
	}
	limit := input.Limit
	if limit == 0 {
		limit = logLimitDefault
	}
	if limit < logLimitMin {
		limit = logLimitMin
	}
	if limit > logLimitMax {
		limit = logLimitMax
	}

	raw, err := s.session.RunCommand(ctx, "admin", bson.D{{Key: "getLog", Value: logType}})
	if err != nil {
		return nil, mongoDBLogsToolOutput{}, err
	}
	var reply struct {
		Log        []string `bson:"log"`
		TotalLines int      `bson:"totalLinesWritten"`
	}
	if err := bson.Unmarshal(raw, &reply); err != nil {
		return nil, mongoDBLogsToolOutput{}, validationf("decode getLog reply: %v", err)
	}
	entries := reply.Log
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if entries == nil {
		entries = []string{}
	}
	return nil, mongoDBLogsToolOutput{
		Type:       logType,
		Entries:    entries,
		TotalLines: reply.TotalLines,
	}, nil
}

type getServerConfigToolInput struct{}

type getServerConfigToolOutput struct {
	ConnectionString     string `json:"connection_string"`
	ServerVersion        string `json:"server_version"`
	Transport            string `json:"transport"`
	ReadOnly             bool   `json:"read_only"`
	IndexCheck           bool   `json:"index_check"`
	MaxDocumentsPerQuery int    `json:"max_documents_per_query"`
	MaxBytesPerQuery     int64  `json:"max_bytes_per_query"`
	DefaultFindLimit     int    `json:"default_find_limit"`
	DefaultSampleSize    int    `json:"default_sample_size"`
	ExportDir            string `json:"export_dir"`
}

// handleGetServerConfigTool reports effective configuration without touching
// the database; the server version was captured at dial time.
func (s *server) handleGetServerConfigTool(_ context.Context, _ *mcpsdk.CallToolRequest, _ getServerConfigToolInput) (*mcpsdk.CallToolResult, getServerConfigToolOutput, error) {
	return nil, getServerConfigToolOutput{
		ConnectionString:     RedactConnectionString(s.cfg.ConnectionString),
		ServerVersion:        s.session.ServerVersion(),
		Transport:            s.transportName(),
		ReadOnly:             s.cfg.ReadOnly,
		IndexCheck:           s.cfg.IndexCheck,
		MaxDocumentsPerQuery: s.cfg.MaxDocumentsPerQuery,
		MaxBytesPerQuery:     s.cfg.MaxBytesPerQuery,
		DefaultFindLimit:     s.cfg.DefaultFindLimit,
		DefaultSampleSize:    s.cfg.DefaultSampleSize,
		ExportDir:            s.cfg.ExportDir,
	}, nil
}

// rawToRelaxedJSON serializes a command reply as relaxed extended JSON with
// credential-bearing fields masked. Redaction runs on the JSON shape so
// extended-JSON wrappers ($date, $numberLong) pass through untouched.
func rawToRelaxedJSON(raw bson.Raw) (json.RawMessage, error) {
	encoded, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, validationf("serialize command reply: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, validationf("decode command reply: %v", err)
	}
	masked, err := json.Marshal(redactDocument(doc))
	if err != nil {
		return nil, validationf("serialize command reply: %v", err)
	}
	return json.RawMessage(masked), nil
}
