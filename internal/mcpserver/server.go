// Package mcpserver exposes the resolved connection over the Model Context
// Protocol stdio transport. Every diagnostic it reports is safe to surface
// to a model: credential values never appear in tool output.
package mcpserver

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"

	"github.com/vvka-141/redismcp/internal/auth"
	"github.com/vvka-141/redismcp/internal/logging"
	"github.com/vvka-141/redismcp/pkg/redismcp"
)

// CredentialReporter exposes the live credential state for diagnostics.
// auth.Refresher implements it.
type CredentialReporter interface {
	State() auth.State
	Current() (*redismcp.Credential, error)
}

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Profile *redismcp.ConnectionProfile
	Flow    *redismcp.AuthFlowSelection
	Client  redis.UniversalClient
	Creds   CredentialReporter
	Logger  redismcp.Logger
	Version string
}

// Server wraps an MCP server with connection diagnostic tool handlers.
type Server struct {
	profile *redismcp.ConnectionProfile
	flow    *redismcp.AuthFlowSelection
	client  redis.UniversalClient
	creds   CredentialReporter
	logger  redismcp.Logger

	// connectionID identifies this process lifetime in tool output, so a
	// client can tell reconnects of the same server apart from restarts.
	connectionID string

	mcpServer *server.MCPServer
}

// NewServer creates a Server with the connection tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		profile:      deps.Profile,
		flow:         deps.Flow,
		client:       deps.Client,
		creds:        deps.Creds,
		logger:       logger,
		connectionID: uuid.New().String(),
	}

	mcpSrv := server.NewMCPServer(
		"redismcp",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("redismcp maintains an authenticated Redis connection. Use connection.status to inspect the resolved configuration and credential state, and connection.ping to verify the server is reachable."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes. The transport owns stdout; all logging goes to stderr.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Verbose("MCP server listening on stdio (connection_id=%s)", s.connectionID)
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ConnectionID returns the identifier reported by connection.status.
func (s *Server) ConnectionID() string {
	return s.connectionID
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: pingTool(), Handler: s.handlePing},
	}
}

func statusTool() mcp.Tool {
	return mcp.NewTool("connection.status",
		mcp.WithDescription("Report the resolved Redis connection configuration, the active auth flow and the credential lifecycle state. Never includes secret values."),
	)
}

func pingTool() mcp.Tool {
	return mcp.NewTool("connection.ping",
		mcp.WithDescription("Verify the Redis server is reachable and report the round-trip latency."),
	)
}
