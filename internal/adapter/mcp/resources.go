package mcp

import (
	"context"
	"encoding/json"
	"errors"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/agentrelay/internal/domain/execution"
)

const (
	pipelinesURI = "agentrelay://pipelines"
	pendingURI   = "agentrelay://executions/pending"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			pipelinesURI,
			"Pipeline Catalog",
			mcplib.WithResourceDescription("Static pipelines available for invocation"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePipelinesResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			pendingURI,
			"Pending Approvals",
			mcplib.WithResourceDescription("Executions suspended at an approval gate"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePendingResource,
	)
}

func (s *Server) handlePipelinesResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Pipelines == nil {
		return jsonResource(req.Params.URI, map[string]string{"error": "pipelines not configured"})
	}
	return jsonResource(req.Params.URI, s.deps.Pipelines.Pipelines())
}

func (s *Server) handlePendingResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Executions == nil {
		return nil, errors.New("executor not configured")
	}
	list, err := s.deps.Executions.List(ctx, execution.Filter{Status: execution.StatusPendingApproval})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []execution.State{}
	}
	return jsonResource(req.Params.URI, list)
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
