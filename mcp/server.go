package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"pkt.systems/pslog"

	"pkt.systems/mongomcp/internal/mongodb"
	"pkt.systems/mongomcp/internal/svcfields"
)

// Config controls MCP facade runtime behavior. Zero values fall back to the
// defaults applied by NewServer.
type Config struct {
	// ConnectionString is the MongoDB URI of the legacy instance to inspect.
	ConnectionString string
	// Listen is the streamable-HTTP listen address. Empty selects the stdio
	// transport.
	Listen string
	// MCPPath is the HTTP path serving the MCP endpoint. Defaults to /mcp.
	MCPPath string
	// MetricsListen optionally serves Prometheus metrics on a separate
	// listener. Empty disables the metrics endpoint.
	MetricsListen string
	// ReadOnly must stay true; the facade refuses to start otherwise.
	// Present so operators see the policy in rendered configuration.
	ReadOnly bool
	// IndexCheck rejects find/count/aggregate operations whose winning plan
	// scans the whole collection.
	IndexCheck bool
	// MaxDocumentsPerQuery caps every result set. Defaults to 100.
	MaxDocumentsPerQuery int
	// MaxBytesPerQuery caps the serialized size of every result set.
	// Defaults to 16 MiB.
	MaxBytesPerQuery int64
	// DefaultFindLimit applies when a find call omits limit. Defaults to 10.
	DefaultFindLimit int
	// DefaultSampleSize applies when collection_schema omits sampleSize.
	// Defaults to 50.
	DefaultSampleSize int
	// ExportDir receives export_data output files. Defaults to ./exports.
	ExportDir string

	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	OperationTimeout       time.Duration
}

// Server is the MCP facade service contract.
type Server interface {
	Run(context.Context) error
}

// NewServerRequest wraps constructor inputs. Session is optional; when nil the
// facade dials ConnectionString itself at Run time.
type NewServerRequest struct {
	Config  Config
	Logger  pslog.Logger
	Session mongodb.Inspector
}

type server struct {
	cfg          Config
	logger       pslog.Logger
	lifecycleLog pslog.Logger
	toolLog      pslog.Logger
	transportLog pslog.Logger
	session      mongodb.Inspector
	limits       QueryLimits
	metrics      *facadeMetrics
	mcpHTTPPath  string
	httpServer   *http.Server
}

// NewServer constructs the MongoDB MCP facade service.
func NewServer(req NewServerRequest) (Server, error) {
	cfg := req.Config
	applyDefaults(&cfg)
	if err := validateConfig(cfg, req.Session); err != nil {
		return nil, err
	}

	logger := req.Logger
	if logger == nil {
		logger = pslog.NewStructured(context.Background(), os.Stderr).With("app", "mongomcp")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		lifecycleLog: svcfields.WithSubsystem(logger, "server.lifecycle.mcp"),
		toolLog:      svcfields.WithSubsystem(logger, "mcp.tools"),
		transportLog: svcfields.WithSubsystem(logger, "mcp.transport"),
		session:      req.Session,
		limits: QueryLimits{
			MaxDocuments: cfg.MaxDocumentsPerQuery,
			MaxBytes:     cfg.MaxBytesPerQuery,
		},
		metrics:     newFacadeMetrics(),
		mcpHTTPPath: cleanHTTPPath(cfg.MCPPath),
	}
	return s, nil
}

func (s *server) Run(ctx context.Context) error {
	if s.session == nil {
		session, err := mongodb.Dial(ctx, mongodb.Config{
			URI:                    s.cfg.ConnectionString,
			ConnectTimeout:         s.cfg.ConnectTimeout,
			ServerSelectionTimeout: s.cfg.ServerSelectionTimeout,
			OperationTimeout:       s.cfg.OperationTimeout,
			Logger:                 s.logger,
		})
		if err != nil {
			return err
		}
		s.session = session
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.session.Close(closeCtx)
	}()

	s.lifecycleLog.Info("starting mongodb MCP facade",
		"connection_string", RedactConnectionString(s.cfg.ConnectionString),
		"server_version", s.session.ServerVersion(),
		"transport", s.transportName(),
		"index_check", s.cfg.IndexCheck,
		"max_documents", s.cfg.MaxDocumentsPerQuery,
		"max_bytes", s.cfg.MaxBytesPerQuery,
	)

	var metricsServer *http.Server
	if strings.TrimSpace(s.cfg.MetricsListen) != "" {
		srv, _, err := startMetricsServer(s.cfg.MetricsListen, s.metrics.handler(), s.transportLog)
		if err != nil {
			return fmt.Errorf("metrics listen %s: %w", s.cfg.MetricsListen, err)
		}
		metricsServer = srv
		s.lifecycleLog.Info("metrics endpoint enabled", "listen", s.cfg.MetricsListen)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	mcpSrv := s.buildMCPServer()

	if strings.TrimSpace(s.cfg.Listen) == "" {
		return mcpSrv.Run(ctx, &mcpsdk.StdioTransport{})
	}

	streamable := mcpsdk.NewStreamableHTTPHandler(func(_ *http.Request) *mcpsdk.Server {
		return mcpSrv
	}, nil)
	mux := http.NewServeMux()
	mux.Handle(s.mcpHTTPPath, streamable)
	s.httpServer = &http.Server{
		Addr:    s.cfg.Listen,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *server) transportName() string {
	if strings.TrimSpace(s.cfg.Listen) == "" {
		return "stdio"
	}
	return "http:" + s.cfg.Listen
}

func (s *server) buildMCPServer() *mcpsdk.Server {
	mcpSrv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "mongomcp",
		Version: "0.1.0",
	}, &mcpsdk.ServerOptions{
		Instructions: serverInstructions(s.cfg),
	})
	s.registerTools(mcpSrv)
	return mcpSrv
}

func serverInstructions(cfg Config) string {
	return strings.Join([]string{
		"Read-only MCP access to a legacy MongoDB instance. No tool on this server can write, update, or delete data.",
		fmt.Sprintf("Results are bounded at %d documents and %d bytes per call; check the truncated flag on query results.", cfg.MaxDocumentsPerQuery, cfg.MaxBytesPerQuery),
		"Start with list_databases and list_collections, then collection_schema before writing filters.",
	}, "\n")
}

func (s *server) registerTools(srv *mcpsdk.Server) {
	descriptions := buildToolDescriptions(s.cfg)
	desc := func(name string) string {
		description, ok := descriptions[name]
		if !ok {
			panic(fmt.Sprintf("missing MCP tool description for %q", name))
		}
		return description
	}

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolListDatabases,
		Description: desc(toolListDatabases),
	}, withStructuredToolErrors(toolListDatabases, s.metrics, s.handleListDatabasesTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolListCollections,
		Description: desc(toolListCollections),
	}, withStructuredToolErrors(toolListCollections, s.metrics, s.handleListCollectionsTool))

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolFind,
		Description: desc(toolFind),
	}, withStructuredToolErrors(toolFind, s.metrics, s.handleFindTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolCount,
		Description: desc(toolCount),
	}, withStructuredToolErrors(toolCount, s.metrics, s.handleCountTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolAggregate,
		Description: desc(toolAggregate),
	}, withStructuredToolErrors(toolAggregate, s.metrics, s.handleAggregateTool))

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolCollectionIndexes,
		Description: desc(toolCollectionIndexes),
	}, withStructuredToolErrors(toolCollectionIndexes, s.metrics, s.handleCollectionIndexesTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolCollectionSchema,
		Description: desc(toolCollectionSchema),
	}, withStructuredToolErrors(toolCollectionSchema, s.metrics, s.handleCollectionSchemaTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolCollectionStorageSize,
		Description: desc(toolCollectionStorageSize),
	}, withStructuredToolErrors(toolCollectionStorageSize, s.metrics, s.handleCollectionStorageSizeTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolDBStats,
		Description: desc(toolDBStats),
	}, withStructuredToolErrors(toolDBStats, s.metrics, s.handleDBStatsTool))

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolExplain,
		Description: desc(toolExplain),
	}, withStructuredToolErrors(toolExplain, s.metrics, s.handleExplainTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolExportData,
		Description: desc(toolExportData),
	}, withStructuredToolErrors(toolExportData, s.metrics, s.handleExportDataTool))

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolMongoDBLogs,
		Description: desc(toolMongoDBLogs),
	}, withStructuredToolErrors(toolMongoDBLogs, s.metrics, s.handleMongoDBLogsTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolGetServerConfig,
		Description: desc(toolGetServerConfig),
	}, withStructuredToolErrors(toolGetServerConfig, s.metrics, s.handleGetServerConfigTool))
}

func applyDefaults(cfg *Config) {
	if cfg.MaxDocumentsPerQuery <= 0 {
		cfg.MaxDocumentsPerQuery = 100
	}
	if cfg.MaxBytesPerQuery <= 0 {
		cfg.MaxBytesPerQuery = 16 * 1024 * 1024
	}
	if cfg.DefaultFindLimit <= 0 {
		cfg.DefaultFindLimit = 10
	}
	if cfg.DefaultFindLimit > cfg.MaxDocumentsPerQuery {
		cfg.DefaultFindLimit = cfg.MaxDocumentsPerQuery
	}
	if cfg.DefaultSampleSize <= 0 {
		cfg.DefaultSampleSize = 50
	}
	if strings.TrimSpace(cfg.ExportDir) == "" {
		cfg.ExportDir = "./exports"
	}
	if strings.TrimSpace(cfg.MCPPath) == "" {
		cfg.MCPPath = "/mcp"
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
}

func validateConfig(cfg Config, session mongodb.Inspector) error {
	if !cfg.ReadOnly {
		return fmt.Errorf("read-only mode cannot be disabled; this facade never writes")
	}
	if session == nil && strings.TrimSpace(cfg.ConnectionString) == "" {
		return fmt.Errorf("mongodb connection string required")
	}
	return nil
}

func cleanHTTPPath(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "/mcp"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
