// Package mcp exposes the instance registry and the editor context
// aggregator as MCP tools over stdio.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/termpilot/internal/editorctx"
	"github.com/1broseidon/termpilot/internal/registry"
)

const (
	ServerName    = "termpilot"
	ServerVersion = "0.1.0"
)

// Registry is the part of *registry.Registry the tools use.
type Registry interface {
	List(ctx context.Context) ([]registry.Instance, error)
	Get(ctx context.Context, id string) (registry.Instance, error)
	Spawn(ctx context.Context, req registry.SpawnRequest) (registry.Instance, error)
}

// ContextExtractor is the part of *editorctx.Aggregator the tools use.
type ContextExtractor interface {
	Extract(ctx context.Context, instanceID string, opts editorctx.Options) (*editorctx.Snapshot, error)
}

// Server is the termpilot MCP server.
type Server struct {
	mcpServer *mcpsdk.Server
	registry  Registry
	extractor ContextExtractor
	defaults  editorctx.Options
	logger    *slog.Logger
}

// NewServer registers the tools. defaults supplies the context options a
// call does not override.
func NewServer(reg Registry, extractor ContextExtractor, defaults editorctx.Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry:  reg,
		extractor: extractor,
		defaults:  defaults,
		logger:    logger,
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP on stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Connect serves a single session over t; used by tests.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_instances",
		Description: "List running terminal instances. Runs a reconciliation pass first, so closed windows disappear and externally opened terminals appear with fresh ids.",
	}, s.handleListInstances)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_instance",
		Description: "Look up one terminal instance by id. Fails for ids that were never issued, have been reaped, or belong to a spawn that is not yet confirmed.",
	}, s.handleGetInstance)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "spawn_instance",
		Description: "Spawn a new terminal window and wait until it is visible. Returns the new instance, whose id stays stable for its lifetime.",
	}, s.handleSpawnInstance)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_neovim_context",
		Description: "Extract Neovim context from the editor running in a terminal instance: current buffer with the lines around the cursor, cursor, mode, working directory, diagnostics, open buffers and LSP clients. Facets that fail are reported in completeness instead of failing the call.",
	}, s.handleGetNeovimContext)
}
