// Package mcp exposes pipelines and executions as Model Context Protocol
// tools, so an MCP-capable client can invoke pipelines, submit plans and
// act as the human reviewer for suspended executions.
package mcp

import (
	"context"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/execution"
	"github.com/Strob0t/agentrelay/internal/domain/pipeline"
	"github.com/Strob0t/agentrelay/internal/domain/plan"
)

// PipelineRunner lists and invokes static pipelines.
type PipelineRunner interface {
	Pipelines() []pipeline.Pipeline
	Invoke(ctx context.Context, name string, initial agent.Context) ([]agent.Result, error)
}

// ExecutionSubmitter submits dynamic plans and reads their state.
type ExecutionSubmitter interface {
	Submit(ctx context.Context, p plan.Plan, initial agent.Context) (*execution.State, error)
	Get(ctx context.Context, id string) (*execution.State, error)
	List(ctx context.Context, f execution.Filter) ([]execution.State, error)
}

// Reviewer records approval decisions on suspended executions.
type Reviewer interface {
	Approve(ctx context.Context, id string) (*execution.State, error)
	Reject(ctx context.Context, id, reason string) (*execution.State, error)
}

// ServerConfig holds the MCP server identity.
type ServerConfig struct {
	Name    string
	Version string
	Path    string        // endpoint path for the streamable HTTP transport
	APIKey  func() string // current API key; nil or empty disables auth
}

// ServerDeps holds the services the tools call into. A nil dependency makes
// its tools report "not configured" instead of failing the session.
type ServerDeps struct {
	Pipelines  PipelineRunner
	Executions ExecutionSubmitter
	Reviewer   Reviewer
}

// Server wraps an mcp-go server with the AgentRelay tools and resources.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
}

// NewServer builds the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	if cfg.Path == "" {
		cfg.Path = "/mcp"
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(
			cfg.Name,
			cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Handler returns the streamable HTTP transport for mounting on the main
// router at the configured path, guarded by AuthMiddleware.
func (s *Server) Handler() http.Handler {
	h := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath(s.cfg.Path),
		mcpserver.WithStateLess(true),
	)
	return AuthMiddleware(s.cfg.APIKey, h)
}

// Path is the endpoint path the handler serves.
func (s *Server) Path() string { return s.cfg.Path }
