package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	relayhttp "github.com/Strob0t/agentrelay/internal/adapter/http"
	"github.com/Strob0t/agentrelay/internal/adapter/memory"
	"github.com/Strob0t/agentrelay/internal/config"
	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/execution"
	"github.com/Strob0t/agentrelay/internal/domain/pipeline"
	"github.com/Strob0t/agentrelay/internal/domain/plan"
	"github.com/Strob0t/agentrelay/internal/port/agentkind"
	"github.com/Strob0t/agentrelay/internal/service"

	_ "github.com/Strob0t/agentrelay/internal/adapter/approvalagent"
	_ "github.com/Strob0t/agentrelay/internal/adapter/staticagent"
)

// fakePlanner returns a fixed plan or error.
type fakePlanner struct {
	plan *plan.Plan
	err  error
	goal string
}

func (f *fakePlanner) CreatePlan(_ context.Context, goal string, _ []agent.Definition, _ map[string]any) (*plan.Plan, error) {
	f.goal = goal
	if f.err != nil {
		return nil, f.err
	}
	p := *f.plan
	return &p, nil
}

type invokeBody struct {
	Results []agent.Result `json:"results"`
}

type submitErrorBody struct {
	Error     string           `json:"error"`
	Execution *execution.State `json:"execution"`
}

type testServer struct {
	router   chi.Router
	executor *service.ExecutorService
	planner  *fakePlanner
}

var changeRequestPlan = plan.Plan{Steps: []plan.Step{
	{ID: "fetch", Agent: "fetch-data"},
	{ID: "gate", Agent: "needs-approval"},
	{ID: "apply", Agent: "apply-change"},
}}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	registry := service.NewAgentRegistry(agentkind.Deps{})
	for _, def := range agent.BuiltinDefinitions() {
		if def.Kind != agent.KindStatic && def.Kind != agent.KindApproval {
			continue
		}
		if _, err := registry.Register(def); err != nil {
			t.Fatalf("register %s: %v", def.Name, err)
		}
	}

	catalog, err := pipeline.NewCatalog(append(pipeline.BuiltinPipelines(), pipeline.Pipeline{
		Name:   "change-request-lite",
		Agents: []string{"fetch-data", "needs-approval", "apply-change"},
	})...)
	if err != nil {
		t.Fatal(err)
	}

	store := memory.NewStore()
	executor := service.NewExecutorService(store, registry, &config.Executor{FailurePolicy: config.FailurePolicyHalt, StepTimeout: time.Second})
	fp := &fakePlanner{plan: &changeRequestPlan}

	h := &relayhttp.Handlers{
		Orchestrator: service.NewOrchestratorService(catalog, registry),
		Executor:     executor,
		Review:       service.NewReviewService(store, executor),
		Agents:       registry,
		Planner:      fp,
	}

	r := chi.NewRouter()
	relayhttp.MountRoutes(r, h)
	t.Cleanup(executor.Wait)
	return &testServer{router: r, executor: executor, planner: fp}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func submitChangeRequest(t *testing.T, s *testServer) execution.State {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/executions", map[string]any{
		"plan":    changeRequestPlan,
		"context": map[string]any{"ticket_id": "T-1"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[execution.State](t, rec)
}

func TestVersionEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "version") {
		t.Fatalf("unexpected version response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestListPipelines(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/pipelines", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	list := decode[[]pipeline.Pipeline](t, rec)
	names := make(map[string]bool)
	for _, p := range list {
		names[p.Name] = true
	}
	for _, want := range []string{"triage", "change-request", "change-request-lite"} {
		if !names[want] {
			t.Errorf("missing pipeline %q", want)
		}
	}
}

func TestInvokePipeline(t *testing.T) {
	tests := []struct {
		name       string
		pipeline   string
		wantStatus int
		wantAgents []string
	}{
		{"runs all agents in order", "change-request-lite", http.StatusOK, []string{"fetch-data", "needs-approval", "apply-change"}},
		{"unknown pipeline", "nope", http.StatusNotFound, nil},
		{"pipeline with unregistered agent", "triage", http.StatusNotFound, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, http.MethodPost, "/api/v1/pipelines/"+tt.pipeline+"/invoke", map[string]any{
				"context": map[string]any{"ticket_id": "T-1"},
			})
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantAgents == nil {
				return
			}
			resp := decode[invokeBody](t, rec)
			if len(resp.Results) != len(tt.wantAgents) {
				t.Fatalf("expected %d results, got %+v", len(tt.wantAgents), resp.Results)
			}
			for i, want := range tt.wantAgents {
				if resp.Results[i].AgentName != want {
					t.Errorf("result %d: expected %s, got %s", i, want, resp.Results[i].AgentName)
				}
			}
		})
	}
}

func TestInvokePipelineWithoutBody(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/pipelines/change-request-lite/invoke", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("empty body should mean empty context, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitApproveFlow(t *testing.T) {
	s := newTestServer(t)

	st := submitChangeRequest(t, s)
	if st.Status != execution.StatusPendingApproval {
		t.Fatalf("expected PENDING_APPROVAL, got %s", st.Status)
	}
	if len(st.Results) != 2 {
		t.Fatalf("expected 2 results before the gate, got %d", len(st.Results))
	}

	rec := s.do(t, http.MethodPost, "/api/v1/executions/"+st.ID+"/approve", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("approve: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	s.executor.Wait()

	rec = s.do(t, http.MethodGet, "/api/v1/executions/"+st.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	final := decode[execution.State](t, rec)
	if final.Status != execution.StatusCompleted || len(final.Results) != 3 {
		t.Fatalf("expected COMPLETED with 3 results, got %s with %d", final.Status, len(final.Results))
	}
	if final.Context.String("change_applied") != "true" || final.Context.String("ticket_id") != "T-1" {
		t.Errorf("unexpected final context: %v", final.Context.Values())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/executions/"+st.ID+"/approve", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second approve: expected 409, got %d", rec.Code)
	}
}

func TestRejectFlow(t *testing.T) {
	s := newTestServer(t)
	st := submitChangeRequest(t, s)

	rec := s.do(t, http.MethodPost, "/api/v1/executions/"+st.ID+"/reject", map[string]string{"reason": "change freeze"})
	if rec.Code != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rejected := decode[execution.State](t, rec)
	if rejected.Status != execution.StatusRejected || rejected.Error != "change freeze" {
		t.Fatalf("unexpected rejected execution: %+v", rejected)
	}

	if rec := s.do(t, http.MethodPost, "/api/v1/executions/"+st.ID+"/approve", nil); rec.Code != http.StatusConflict {
		t.Fatalf("approve after reject: expected 409, got %d", rec.Code)
	}
}

func TestDecisionNotFound(t *testing.T) {
	s := newTestServer(t)
	for _, action := range []string{"approve", "reject"} {
		rec := s.do(t, http.MethodPost, "/api/v1/executions/missing/"+action, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", action, rec.Code)
		}
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"malformed json", `{"plan":`, http.StatusBadRequest},
		{"empty plan", map[string]any{"plan": map[string]any{"steps": []any{}}}, http.StatusBadRequest},
		{"step without agent", map[string]any{"plan": map[string]any{"steps": []any{map[string]any{"id": "x"}}}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, http.MethodPost, "/api/v1/executions", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSubmitUnknownAgentReturnsFailedExecution(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/executions", map[string]any{
		"plan": plan.Plan{Steps: []plan.Step{{Agent: "fetch-data"}, {Agent: "ghost"}}},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[submitErrorBody](t, rec)
	if resp.Execution == nil || resp.Execution.Status != execution.StatusFailed {
		t.Fatalf("expected the FAILED execution in the body, got %+v", resp)
	}
	if !strings.Contains(resp.Error, "ghost") {
		t.Errorf("error should name the agent, got %q", resp.Error)
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(t, http.MethodGet, "/api/v1/executions/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListExecutions(t *testing.T) {
	s := newTestServer(t)
	pending := submitChangeRequest(t, s)
	s.do(t, http.MethodPost, "/api/v1/executions", map[string]any{
		"plan": plan.Plan{Steps: []plan.Step{{Agent: "fetch-data"}}},
	})

	rec := s.do(t, http.MethodGet, "/api/v1/executions?status=PENDING_APPROVAL", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	list := decode[[]execution.State](t, rec)
	if len(list) != 1 || list[0].ID != pending.ID {
		t.Fatalf("expected only the pending execution, got %+v", list)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/executions?limit=1", nil)
	if list := decode[[]execution.State](t, rec); len(list) != 1 {
		t.Fatalf("limit not applied, got %d", len(list))
	}

	for _, q := range []string{"status=SLEEPING", "limit=-1", "limit=abc"} {
		if rec := s.do(t, http.MethodGet, "/api/v1/executions?"+q, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestPlanAndSubmit(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/executions/plan", map[string]any{
		"goal":    "apply ticket T-1",
		"context": map[string]any{"ticket_id": "T-1"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if s.planner.goal != "apply ticket T-1" {
		t.Errorf("planner got goal %q", s.planner.goal)
	}
	if st := decode[execution.State](t, rec); st.Status != execution.StatusPendingApproval {
		t.Fatalf("expected PENDING_APPROVAL, got %s", st.Status)
	}

	if rec := s.do(t, http.MethodPost, "/api/v1/executions/plan", map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing goal: expected 400, got %d", rec.Code)
	}

	s.planner.err = errors.Join(domain.ErrValidation, errors.New("planner returned no steps"))
	if rec := s.do(t, http.MethodPost, "/api/v1/executions/plan", map[string]any{"goal": "x"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid plan: expected 400, got %d", rec.Code)
	}
}

func TestPlanAndSubmitWithoutPlanner(t *testing.T) {
	r := chi.NewRouter()
	relayhttp.MountRoutes(r, &relayhttp.Handlers{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions/plan", strings.NewReader(`{"goal":"x"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAgentRegistryEndpoints(t *testing.T) {
	s := newTestServer(t)

	def := agent.Definition{Name: "stamp", Kind: agent.KindStatic, Config: map[string]string{"stamped": "yes"}}
	if rec := s.do(t, http.MethodPost, "/api/v1/agents", def); rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodGet, "/api/v1/agents", nil)
	defs := decode[[]agent.Definition](t, rec)
	found := false
	for _, d := range defs {
		if d.Name == "stamp" {
			found = true
		}
	}
	if !found {
		t.Fatal("registered agent missing from list")
	}

	bad := []agent.Definition{
		{Name: "x", Kind: "quantum"},
		{Kind: agent.KindStatic},
	}
	for _, d := range bad {
		if rec := s.do(t, http.MethodPost, "/api/v1/agents", d); rec.Code != http.StatusBadRequest {
			t.Errorf("register %+v: expected 400, got %d", d, rec.Code)
		}
	}

	if rec := s.do(t, http.MethodDelete, "/api/v1/agents/stamp", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/v1/agents/stamp", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]relayhttp.HealthCheck
		wantStatus int
	}{
		{"no checks", nil, http.StatusOK},
		{"all ok", map[string]relayhttp.HealthCheck{"store": func(context.Context) error { return nil }}, http.StatusOK},
		{"one failing", map[string]relayhttp.HealthCheck{
			"store": func(context.Context) error { return nil },
			"nats":  func(context.Context) error { return errors.New("disconnected") },
		}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			relayhttp.Health(tt.checks)(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}
