// Package mongodb wraps the single long-lived MongoDB session used by the
// MCP facade. It exposes only the read-only primitive surface the tools need
// (find/aggregate/count/explain/stats/log retrieval) behind the Inspector
// interface so the tool layer can be exercised against fakes.
package mongodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"pkt.systems/pslog"

	"pkt.systems/mongomcp/internal/svcfields"
)

// Error wraps a driver failure with the operation that triggered it. The tool
// layer classifies these as upstream (collaborator) errors.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mongodb %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Cursor is the incremental document stream consumed by the result bounder.
// Implemented by the driver cursor adapter and by test fakes.
type Cursor interface {
	Next(ctx context.Context) bool
	Current() bson.Raw
	Err() error
	Close(ctx context.Context) error
}

type driverCursor struct {
	cur *mongo.Cursor
	op  string
}

func (c *driverCursor) Next(ctx context.Context) bool { return c.cur.Next(ctx) }
func (c *driverCursor) Current() bson.Raw             { return c.cur.Current }

func (c *driverCursor) Err() error {
	return wrap(c.op, c.cur.Err())
}

func (c *driverCursor) Close(ctx context.Context) error {
	return wrap(c.op, c.cur.Close(ctx))
}

// DatabaseInfo describes one database in a ListDatabases result.
type DatabaseInfo struct {
	Name       string
	SizeOnDisk int64
	Empty      bool
}

// ListDatabasesResult mirrors the listDatabases server reply.
type ListDatabasesResult struct {
	Databases []DatabaseInfo
	TotalSize int64
}

// FindQuery carries the read-only find parameters accepted by the facade.
type FindQuery struct {
	Filter     map[string]any
	Projection map[string]any
	Sort       map[string]any
	Limit      int64
}

// Inspector is the read-only session contract consumed by the MCP tool layer.
type Inspector interface {
	ServerVersion() string
	ListDatabases(ctx context.Context) (ListDatabasesResult, error)
	ListCollectionNames(ctx context.Context, database string) ([]string, error)
	Find(ctx context.Context, database, collection string, query FindQuery) (Cursor, error)
	Aggregate(ctx context.Context, database, collection string, pipeline []map[string]any) (Cursor, error)
	Count(ctx context.Context, database, collection string, filter map[string]any) (int64, error)
	ListIndexes(ctx context.Context, database, collection string) (Cursor, error)
	RunCommand(ctx context.Context, database string, command any) (bson.Raw, error)
	Explain(ctx context.Context, database string, command bson.D, verbosity string) (bson.Raw, error)
	Close(ctx context.Context) error
}

// Config controls session establishment.
type Config struct {
	// URI is the MongoDB connection string. Required.
	URI string
	// ConnectTimeout bounds the initial TCP/TLS handshake. Defaults to 10s.
	ConnectTimeout time.Duration
	// ServerSelectionTimeout bounds topology discovery. Defaults to 10s.
	ServerSelectionTimeout time.Duration
	// OperationTimeout is the client-wide per-operation ceiling. Defaults to 30s.
	OperationTimeout time.Duration
	Logger           pslog.Logger
}

// Session is the Inspector implementation backed by the official driver.
type Session struct {
	client  *mongo.Client
	version string
	logger  pslog.Logger
}

// Dial establishes the session, verifies connectivity with a ping, and probes
// the server version via buildInfo. The facade targets legacy servers; a
// warning is logged when the server is 4.0 or newer.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("mongodb connection string required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ServerSelectionTimeout <= 0 {
		cfg.ServerSelectionTimeout = 10 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	logger = svcfields.WithSubsystem(logger, "mongodb.session")

	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetTimeout(cfg.OperationTimeout))
	if err != nil {
		return nil, wrap("connect", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, wrap("ping", err)
	}

	s := &Session{client: client, logger: logger}
	s.version = s.probeVersion(ctx)
	logger.Info("connected", "server_version", s.version)
	if s.version != "unknown" && !strings.HasPrefix(s.version, "2.") && !strings.HasPrefix(s.version, "3.") {
		logger.Warn("server is not a legacy release; this facade is tuned for MongoDB < 4.0",
			"server_version", s.version)
	}
	return s, nil
}

func (s *Session) probeVersion(ctx context.Context) string {
	raw, err := s.RunCommand(ctx, "admin", bson.D{{Key: "buildInfo", Value: 1}})
	if err != nil {
		s.logger.Warn("buildInfo probe failed", "error", err)
		return "unknown"
	}
	if v, ok := raw.Lookup("version").StringValueOK(); ok {
		return v
	}
	return "unknown"
}

// ServerVersion reports the version captured at dial time.
func (s *Session) ServerVersion() string { return s.version }

// Close tears down the session.
func (s *Session) Close(ctx context.Context) error {
	return wrap("disconnect", s.client.Disconnect(ctx))
}

// ListDatabases runs listDatabases against the admin database.
func (s *Session) ListDatabases(ctx context.Context) (ListDatabasesResult, error) {
	res, err := s.client.ListDatabases(ctx, bson.D{})
	if err != nil {
		return ListDatabasesResult{}, wrap("listDatabases", err)
	}
	out := ListDatabasesResult{
		Databases: make([]DatabaseInfo, 0, len(res.Databases)),
		TotalSize: res.TotalSize,
	}
	for _, db := range res.Databases {
		out.Databases = append(out.Databases, DatabaseInfo{
			Name:       db.Name,
			SizeOnDisk: db.SizeOnDisk,
			Empty:      db.Empty,
		})
	}
	return out, nil
}

// ListCollectionNames enumerates collections in one database.
func (s *Session) ListCollectionNames(ctx context.Context, database string) ([]string, error) {
	names, err := s.client.Database(database).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, wrap("listCollections", err)
	}
	return names, nil
}

// Find opens a read-only find cursor.
func (s *Session) Find(ctx context.Context, database, collection string, query FindQuery) (Cursor, error) {
	opts := options.Find()
	if query.Projection != nil {
		opts = opts.SetProjection(query.Projection)
	}
	if query.Sort != nil {
		opts = opts.SetSort(query.Sort)
	}
	if query.Limit > 0 {
		opts = opts.SetLimit(query.Limit)
	}
	cur, err := s.client.Database(database).Collection(collection).Find(ctx, orEmptyFilter(query.Filter), opts)
	if err != nil {
		return nil, wrap("find", err)
	}
	return &driverCursor{cur: cur, op: "find"}, nil
}

// Aggregate opens a read-only aggregation cursor. Pipeline policy checks
// happen in the tool layer before this is called.
func (s *Session) Aggregate(ctx context.Context, database, collection string, pipeline []map[string]any) (Cursor, error) {
	if pipeline == nil {
		pipeline = []map[string]any{}
	}
	cur, err := s.client.Database(database).Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrap("aggregate", err)
	}
	return &driverCursor{cur: cur, op: "aggregate"}, nil
}

// Count counts documents matching filter.
func (s *Session) Count(ctx context.Context, database, collection string, filter map[string]any) (int64, error) {
	n, err := s.client.Database(database).Collection(collection).CountDocuments(ctx, orEmptyFilter(filter))
	if err != nil {
		return 0, wrap("count", err)
	}
	return n, nil
}

// ListIndexes opens a cursor over the collection's index specifications.
func (s *Session) ListIndexes(ctx context.Context, database, collection string) (Cursor, error) {
	cur, err := s.client.Database(database).Collection(collection).Indexes().List(ctx)
	if err != nil {
		return nil, wrap("listIndexes", err)
	}
	return &driverCursor{cur: cur, op: "listIndexes"}, nil
}

// RunCommand executes a single read-only database command and returns the raw
// reply document.
func (s *Session) RunCommand(ctx context.Context, database string, command any) (bson.Raw, error) {
	raw, err := s.client.Database(database).RunCommand(ctx, command).Raw()
	if err != nil {
		return nil, wrap("runCommand", err)
	}
	return raw, nil
}

// Explain wraps command in an explain envelope at the requested verbosity.
// Both the explain tool and the index-check pre-flight go through this single
// path so the plan the guard inspects is the plan the server would select for
// the real query.
func (s *Session) Explain(ctx context.Context, database string, command bson.D, verbosity string) (bson.Raw, error) {
	raw, err := s.RunCommand(ctx, database, bson.D{
		{Key: "explain", Value: command},
		{Key: "verbosity", Value: verbosity},
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func orEmptyFilter(filter map[string]any) any {
	if filter == nil {
		return bson.D{}
	}
	return filter
}
