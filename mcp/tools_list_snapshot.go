package mcp

import (
	"context"
	"encoding/json"
	"io"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"pkt.systems/pslog"
)

// ToolsListResponse mirrors a canonical JSON-RPC tools/list result payload.
type ToolsListResponse struct {
	ID      int                 `json:"id"`
	JSONRPC string              `json:"jsonrpc"`
	Result  ToolsListResultBody `json:"result"`
}

// ToolsListResultBody is the JSON-RPC "result" object for tools/list.
type ToolsListResultBody struct {
	Tools      []*mcpsdk.Tool `json:"tools"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// BuildToolsListResponse builds a canonical tools/list payload in-process.
//
// This does not start a listener and does not connect to MongoDB. It only
// materializes the MCP tool registry.
func BuildToolsListResponse(ctx context.Context, cfg Config) (ToolsListResponse, error) {
	applyDefaults(&cfg)

	logger := pslog.NewStructured(context.Background(), io.Discard).With("app", "mongomcp")
	s := &server{
		cfg:          cfg,
		logger:       logger,
		lifecycleLog: logger,
		toolLog:      logger,
		transportLog: logger,
		limits: QueryLimits{
			MaxDocuments: cfg.MaxDocumentsPerQuery,
			MaxBytes:     cfg.MaxBytesPerQuery,
		},
		mcpHTTPPath: cleanHTTPPath(cfg.MCPPath),
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "mongomcp-tools-list",
		Version: "0.1.0",
	}, nil)
	mcpSrv := s.buildMCPServer()

	t1, t2 := mcpsdk.NewInMemoryTransports()
	ss, err := mcpSrv.Connect(ctx, t1, nil)
	if err != nil {
		return ToolsListResponse{}, err
	}
	defer ss.Close()

	cs, err := client.Connect(ctx, t2, nil)
	if err != nil {
		return ToolsListResponse{}, err
	}
	defer cs.Close()

	list, err := cs.ListTools(ctx, &mcpsdk.ListToolsParams{})
	if err != nil {
		return ToolsListResponse{}, err
	}

	return ToolsListResponse{
		ID:      1,
		JSONRPC: "2.0",
		Result: ToolsListResultBody{
			Tools:      list.Tools,
			NextCursor: list.NextCursor,
		},
	}, nil
}

// BuildToolsListResponseJSON returns pretty-printed tools/list JSON payload.
func BuildToolsListResponseJSON(ctx context.Context, cfg Config) ([]byte, error) {
	resp, err := BuildToolsListResponse(ctx, cfg)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
