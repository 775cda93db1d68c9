package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/execution"
	"github.com/Strob0t/agentrelay/internal/domain/plan"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listPipelinesTool(),
		s.invokePipelineTool(),
		s.submitPlanTool(),
		s.getExecutionTool(),
		s.listPendingTool(),
		s.approveExecutionTool(),
		s.rejectExecutionTool(),
	)
}

func (s *Server) listPipelinesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_pipelines",
		mcplib.WithDescription("List the static pipelines in the catalog"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListPipelines}
}

func (s *Server) invokePipelineTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("invoke_pipeline",
		mcplib.WithDescription("Run a static pipeline to completion and return every agent result"),
		mcplib.WithString("name",
			mcplib.Required(),
			mcplib.Description("Pipeline name"),
		),
		mcplib.WithObject("context",
			mcplib.Description("Initial shared context"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleInvokePipeline}
}

func (s *Server) submitPlanTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("submit_plan",
		mcplib.WithDescription("Submit a dynamic execution plan. The run stops at the first approval gate and returns PENDING_APPROVAL"),
		mcplib.WithObject("plan",
			mcplib.Required(),
			mcplib.Description(`Plan document: {"goal": "...", "steps": [{"id": "...", "agent": "...", "group": "...", "args": {}}]}`),
		),
		mcplib.WithObject("context",
			mcplib.Description("Initial shared context"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleSubmitPlan}
}

func (s *Server) getExecutionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_execution",
		mcplib.WithDescription("Get the current state of an execution"),
		mcplib.WithString("execution_id",
			mcplib.Required(),
			mcplib.Description("The execution ID"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetExecution}
}

func (s *Server) listPendingTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_pending_executions",
		mcplib.WithDescription("List executions waiting for a reviewer decision"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListPending}
}

func (s *Server) approveExecutionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("approve_execution",
		mcplib.WithDescription("Approve a suspended execution; it resumes in the background"),
		mcplib.WithString("execution_id",
			mcplib.Required(),
			mcplib.Description("The execution ID"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleApprove}
}

func (s *Server) rejectExecutionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("reject_execution",
		mcplib.WithDescription("Reject a suspended execution; this is terminal"),
		mcplib.WithString("execution_id",
			mcplib.Required(),
			mcplib.Description("The execution ID"),
		),
		mcplib.WithString("reason",
			mcplib.Description("Why the execution was rejected"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleReject}
}

func (s *Server) handleListPipelines(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Pipelines == nil {
		return mcplib.NewToolResultError("pipelines not configured"), nil
	}
	return jsonResult(s.deps.Pipelines.Pipelines())
}

func (s *Server) handleInvokePipeline(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Pipelines == nil {
		return mcplib.NewToolResultError("pipelines not configured"), nil
	}
	args := req.GetArguments()
	name, ok := args["name"].(string)
	if !ok || name == "" {
		return mcplib.NewToolResultError("name is required"), nil
	}
	initial, err := objectArg(args, "context")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}

	results, err := s.deps.Pipelines.Invoke(ctx, name, agent.NewContext(initial))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to invoke pipeline %s", name), err), nil
	}
	return jsonResult(results)
}

func (s *Server) handleSubmitPlan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Executions == nil {
		return mcplib.NewToolResultError("executor not configured"), nil
	}
	args := req.GetArguments()
	raw, ok := args["plan"]
	if !ok || raw == nil {
		return mcplib.NewToolResultError("plan is required"), nil
	}
	var p plan.Plan
	if err := remarshal(raw, &p); err != nil {
		return mcplib.NewToolResultErrorFromErr("invalid plan", err), nil
	}
	initial, err := objectArg(args, "context")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}

	st, err := s.deps.Executions.Submit(ctx, p, agent.NewContext(initial))
	if err != nil {
		if st != nil {
			// The failed execution is still persisted and worth returning.
			res, _ := jsonResult(st)
			res.IsError = true
			return res, nil
		}
		return mcplib.NewToolResultErrorFromErr("failed to submit plan", err), nil
	}
	return jsonResult(st)
}

func (s *Server) handleGetExecution(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Executions == nil {
		return mcplib.NewToolResultError("executor not configured"), nil
	}
	id, ok := req.GetArguments()["execution_id"].(string)
	if !ok || id == "" {
		return mcplib.NewToolResultError("execution_id is required"), nil
	}
	st, err := s.deps.Executions.Get(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get execution %s", id), err), nil
	}
	return jsonResult(st)
}

func (s *Server) handleListPending(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Executions == nil {
		return mcplib.NewToolResultError("executor not configured"), nil
	}
	list, err := s.deps.Executions.List(ctx, execution.Filter{Status: execution.StatusPendingApproval})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list executions", err), nil
	}
	if list == nil {
		list = []execution.State{}
	}
	return jsonResult(list)
}

func (s *Server) handleApprove(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	return s.decide(req, func(id string) (*execution.State, error) {
		return s.deps.Reviewer.Approve(ctx, id)
	})
}

func (s *Server) handleReject(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	reason, _ := req.GetArguments()["reason"].(string)
	return s.decide(req, func(id string) (*execution.State, error) {
		return s.deps.Reviewer.Reject(ctx, id, reason)
	})
}

func (s *Server) decide(req mcplib.CallToolRequest, fn func(id string) (*execution.State, error)) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go request type
	if s.deps.Reviewer == nil {
		return mcplib.NewToolResultError("reviewer not configured"), nil
	}
	id, ok := req.GetArguments()["execution_id"].(string)
	if !ok || id == "" {
		return mcplib.NewToolResultError("execution_id is required"), nil
	}
	st, err := fn(id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("decision on execution %s failed", id), err), nil
	}
	return jsonResult(st)
}

// objectArg returns the named object argument, or nil when absent.
func objectArg(args map[string]any, name string) (map[string]any, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object", name)
	}
	return m, nil
}

// remarshal converts a decoded JSON argument into a typed value.
func remarshal(v, dst any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return toolResultJSON(string(data)), nil
}

// toolResultJSON wraps a JSON document as a text tool result.
func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}
