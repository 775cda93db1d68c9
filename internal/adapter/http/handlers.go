package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/execution"
	"github.com/Strob0t/agentrelay/internal/domain/plan"
	"github.com/Strob0t/agentrelay/internal/port/planner"
	"github.com/Strob0t/agentrelay/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Orchestrator *service.OrchestratorService
	Executor     *service.ExecutorService
	Review       *service.ReviewService
	Agents       *service.AgentRegistry
	Planner      planner.Planner // nil disables POST /executions/plan
}

type invokeRequest struct {
	Context map[string]any `json:"context"`
}

type invokeResponse struct {
	Pipeline string         `json:"pipeline"`
	Results  []agent.Result `json:"results"`
}

type submitRequest struct {
	Plan    plan.Plan      `json:"plan"`
	Context map[string]any `json:"context"`
}

type planRequest struct {
	Goal    string         `json:"goal"`
	Hints   map[string]any `json:"hints,omitempty"`
	Context map[string]any `json:"context"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// executionErrorResponse reports a failed submission that still produced
// an inspectable execution.
type executionErrorResponse struct {
	Error     string           `json:"error"`
	Execution *execution.State `json:"execution"`
}

// --- Static pipelines ---

// ListPipelines handles GET /api/v1/pipelines.
func (h *Handlers) ListPipelines(w http.ResponseWriter, r *http.Request) {
	handleList(h.Orchestrator.Pipelines)(w, r)
}

// InvokePipeline handles POST /api/v1/pipelines/{name}/invoke.
func (h *Handlers) InvokePipeline(w http.ResponseWriter, r *http.Request) {
	name := urlParam(r, "name")
	req, ok := readOptionalJSON[invokeRequest](w, r)
	if !ok {
		return
	}

	results, err := h.Orchestrator.Invoke(r.Context(), name, agent.NewContext(req.Context))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if results == nil {
		results = []agent.Result{}
	}
	writeJSON(w, http.StatusOK, invokeResponse{Pipeline: name, Results: results})
}

// --- Dynamic executions ---

// SubmitPlan handles POST /api/v1/executions.
func (h *Handlers) SubmitPlan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[submitRequest](w, r)
	if !ok {
		return
	}
	h.submit(w, r, req.Plan, req.Context)
}

// PlanAndSubmit handles POST /api/v1/executions/plan: the planner turns a
// goal into a plan over the registered agents, which is then submitted.
func (h *Handlers) PlanAndSubmit(w http.ResponseWriter, r *http.Request) {
	if h.Planner == nil {
		writeError(w, http.StatusServiceUnavailable, "planner not configured")
		return
	}
	req, ok := readJSON[planRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Goal, "goal") {
		return
	}

	p, err := h.Planner.CreatePlan(r.Context(), req.Goal, h.Agents.Definitions(), req.Hints)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.submit(w, r, *p, req.Context)
}

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request, p plan.Plan, initial map[string]any) {
	st, err := h.Executor.Submit(r.Context(), p, agent.NewContext(initial))
	if err != nil {
		status := domainStatus(err)
		if st != nil {
			writeJSON(w, status, executionErrorResponse{Error: domainMessage(err, status), Execution: st})
			return
		}
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/executions/"+st.ID)
	writeJSON(w, http.StatusCreated, st)
}

// ListExecutions handles GET /api/v1/executions?status=&limit=.
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := execution.Filter{Status: execution.Status(r.URL.Query().Get("status")), Limit: limit}

	list, err := h.Executor.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []execution.State{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetExecution handles GET /api/v1/executions/{id}.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	handleGet("id", h.Executor.Get)(w, r)
}

// ApproveExecution handles POST /api/v1/executions/{id}/approve. The
// resumption runs after the response, hence 202.
func (h *Handlers) ApproveExecution(w http.ResponseWriter, r *http.Request) {
	handleDecision(http.StatusAccepted, func(ctx context.Context, id string, _ struct{}) (*execution.State, error) {
		return h.Review.Approve(ctx, id)
	})(w, r)
}

// RejectExecution handles POST /api/v1/executions/{id}/reject.
func (h *Handlers) RejectExecution(w http.ResponseWriter, r *http.Request) {
	handleDecision(http.StatusOK, func(ctx context.Context, id string, req rejectRequest) (*execution.State, error) {
		return h.Review.Reject(ctx, id, req.Reason)
	})(w, r)
}

// --- Agents ---

// ListAgents handles GET /api/v1/agents.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	handleList(h.Agents.Definitions)(w, r)
}

// RegisterAgent handles POST /api/v1/agents. A definition with an existing
// name replaces that agent.
func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	def, ok := readJSON[agent.Definition](w, r)
	if !ok {
		return
	}
	if _, err := h.Agents.Register(def); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

// DeleteAgent handles DELETE /api/v1/agents/{name}.
func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	name := urlParam(r, "name")
	if !h.Agents.Unregister(name) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Health ---

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health returns a handler that runs every check with a short deadline and
// answers 503 when any of them fails.
func Health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, code, resp)
	}
}
