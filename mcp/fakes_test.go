package mcp

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
	"pkt.systems/pslog"

	"pkt.systems/mongomcp/internal/mongodb"
)

func mustRaw(t *testing.T, doc any) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return bson.Raw(raw)
}

type fakeCursor struct {
	docs   []bson.Raw
	pos    int
	err    error
	closed bool
}

func (c *fakeCursor) Next(context.Context) bool {
	if c.err != nil || c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Current() bson.Raw { return c.docs[c.pos-1] }
func (c *fakeCursor) Err() error        { return c.err }

func (c *fakeCursor) Close(context.Context) error {
	c.closed = true
	return nil
}

// fakeInspector records which session operations were invoked so policy tests
// can assert that rejected calls never reach the database.
type fakeInspector struct {
	version      string
	databases    mongodb.ListDatabasesResult
	collections  map[string][]string
	findCursor   *fakeCursor
	findErr      error
	aggCursor    *fakeCursor
	aggErr       error
	countResult  int64
	countErr     error
	indexCursor  *fakeCursor
	runCommandFn func(database string, command any) (bson.Raw, error)
	explainFn    func(database string, command bson.D, verbosity string) (bson.Raw, error)
	calls        []string
}

func (f *fakeInspector) record(op string) { f.calls = append(f.calls, op) }

func (f *fakeInspector) ServerVersion() string {
	if f.version == "" {
		return "3.6.23"
	}
	return f.version
}

func (f *fakeInspector) ListDatabases(context.Context) (mongodb.ListDatabasesResult, error) {
	f.record("listDatabases")
	return f.databases, nil
}

func (f *fakeInspector) ListCollectionNames(_ context.Context, database string) ([]string, error) {
	f.record("listCollections")
	return f.collections[database], nil
}

func (f *fakeInspector) Find(_ context.Context, _, _ string, _ mongodb.FindQuery) (mongodb.Cursor, error) {
	f.record("find")
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.findCursor == nil {
		return &fakeCursor{}, nil
	}
	return f.findCursor, nil
}

func (f *fakeInspector) Aggregate(_ context.Context, _, _ string, _ []map[string]any) (mongodb.Cursor, error) {
	f.record("aggregate")
	if f.aggErr != nil {
		return nil, f.aggErr
	}
	if f.aggCursor == nil {
		return &fakeCursor{}, nil
	}
	return f.aggCursor, nil
}

func (f *fakeInspector) Count(_ context.Context, _, _ string, _ map[string]any) (int64, error) {
	f.record("count")
	return f.countResult, f.countErr
}

func (f *fakeInspector) ListIndexes(_ context.Context, _, _ string) (mongodb.Cursor, error) {
	f.record("listIndexes")
	if f.indexCursor == nil {
		return &fakeCursor{}, nil
	}
	return f.indexCursor, nil
}

func (f *fakeInspector) RunCommand(_ context.Context, database string, command any) (bson.Raw, error) {
	f.record("runCommand")
	if f.runCommandFn != nil {
		return f.runCommandFn(database, command)
	}
	return nil, &mongodb.Error{Op: "runCommand", Err: context.Canceled}
}

func (f *fakeInspector) Explain(_ context.Context, database string, command bson.D, verbosity string) (bson.Raw, error) {
	f.record("explain")
	if f.explainFn != nil {
		return f.explainFn(database, command, verbosity)
	}
	return nil, &mongodb.Error{Op: "explain", Err: context.Canceled}
}

func (f *fakeInspector) Close(context.Context) error { return nil }

func (f *fakeInspector) called(op string) bool {
	for _, call := range f.calls {
		if call == op {
			return true
		}
	}
	return false
}

func newTestServer(t *testing.T, cfg Config, session *fakeInspector) *server {
	t.Helper()
	cfg.ReadOnly = true
	applyDefaults(&cfg)
	logger := pslog.NoopLogger()
	return &server{
		cfg:          cfg,
		logger:       logger,
		lifecycleLog: logger,
		toolLog:      logger,
		transportLog: logger,
		session:      session,
		limits: QueryLimits{
			MaxDocuments: cfg.MaxDocumentsPerQuery,
			MaxBytes:     cfg.MaxBytesPerQuery,
		},
		mcpHTTPPath: cleanHTTPPath(cfg.MCPPath),
	}
}
