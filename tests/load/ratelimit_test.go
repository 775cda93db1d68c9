//go:build load

// Package load contains load tests that are excluded from regular CI runs.
// Run with: go test -tags load -count=1 -timeout 60s ./tests/load/
package load

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	relayhttp "github.com/Strob0t/agentrelay/internal/adapter/http"
	"github.com/Strob0t/agentrelay/internal/adapter/memory"
	"github.com/Strob0t/agentrelay/internal/adapter/ristretto"
	"github.com/Strob0t/agentrelay/internal/config"
	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/execution"
	"github.com/Strob0t/agentrelay/internal/domain/pipeline"
	"github.com/Strob0t/agentrelay/internal/domain/plan"
	"github.com/Strob0t/agentrelay/internal/middleware"
	"github.com/Strob0t/agentrelay/internal/port/agentkind"
	"github.com/Strob0t/agentrelay/internal/service"

	_ "github.com/Strob0t/agentrelay/internal/adapter/approvalagent"
	_ "github.com/Strob0t/agentrelay/internal/adapter/staticagent"
)

var changeRequestPlan = plan.Plan{Steps: []plan.Step{
	{ID: "fetch", Agent: "fetch-data"},
	{ID: "gate", Agent: "needs-approval"},
	{ID: "apply", Agent: "apply-change"},
}}

// stack is the API router wired the way the server wires it: rate limiter
// first, then idempotency over the in-process cache.
type stack struct {
	router   http.Handler
	store    *memory.Store
	executor *service.ExecutorService
	cache    *ristretto.Cache
}

func newStack(t *testing.T, rps float64, burst int) *stack {
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
	catalog, err := pipeline.NewCatalog(pipeline.BuiltinPipelines()...)
	if err != nil {
		t.Fatal(err)
	}

	store := memory.NewStore()
	executor := service.NewExecutorService(store, registry, &config.Executor{FailurePolicy: config.FailurePolicyHalt, StepTimeout: 5 * time.Second})
	cache, err := ristretto.New(16)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cache.Close)
	t.Cleanup(executor.Wait)

	h := &relayhttp.Handlers{
		Orchestrator: service.NewOrchestratorService(catalog, registry),
		Executor:     executor,
		Review:       service.NewReviewService(store, executor),
		Agents:       registry,
	}
	limiter := middleware.NewRateLimiter(rps, burst)

	r := chi.NewRouter()
	relayhttp.MountRoutes(r, h, limiter.Handler, middleware.Idempotency(cache, time.Hour))
	return &stack{router: r, store: store, executor: executor, cache: cache}
}

func (s *stack) post(path, clientAddr, idemKey string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = clientAddr
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// suspend submits n change requests directly and returns their ids, all
// waiting at the approval gate.
func (s *stack) suspend(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range n {
		st, err := s.executor.Submit(context.Background(), changeRequestPlan,
			agent.NewContext(map[string]any{"ticket_id": fmt.Sprintf("T-%d", i)}))
		if err != nil {
			t.Fatal(err)
		}
		if st.Status != execution.StatusPendingApproval {
			t.Fatalf("expected PENDING_APPROVAL, got %s", st.Status)
		}
		ids[i] = st.ID
	}
	return ids
}

// TestApproveStorm sends many concurrent approvals for every suspended
// execution from distinct clients. Exactly one approval per execution may
// win; the rest conflict, and every execution resumes exactly once.
func TestApproveStorm(t *testing.T) {
	const executions = 50
	const approvalsEach = 20

	s := newStack(t, 100, 100)
	ids := s.suspend(t, executions)

	accepted := make([]atomic.Int32, executions)
	var conflicts, other atomic.Int64
	var wg sync.WaitGroup
	for i, id := range ids {
		for j := range approvalsEach {
			wg.Add(1)
			go func() {
				defer wg.Done()
				addr := fmt.Sprintf("10.%d.%d.1:5000", i, j)
				rec := s.post("/api/v1/executions/"+id+"/approve", addr, "", nil)
				switch rec.Code {
				case http.StatusAccepted:
					accepted[i].Add(1)
				case http.StatusConflict:
					conflicts.Add(1)
				default:
					other.Add(1)
				}
			}()
		}
	}
	wg.Wait()
	s.executor.Wait()

	t.Logf("executions=%d approvals=%d conflicts=%d other=%d",
		executions, executions*approvalsEach, conflicts.Load(), other.Load())

	if other.Load() != 0 {
		t.Errorf("expected only 202 or 409, got %d other responses", other.Load())
	}
	for i, id := range ids {
		if n := accepted[i].Load(); n != 1 {
			t.Errorf("execution %s: %d approvals accepted, want 1", id, n)
		}
		st, err := s.store.GetExecution(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if st.Status != execution.StatusCompleted || len(st.Results) != 3 {
			t.Errorf("execution %s: %s with %d results, want COMPLETED with 3", id, st.Status, len(st.Results))
		}
	}
}

// TestApproveRetriesReplayed retries one approval with the same
// Idempotency-Key under concurrency. Every retry replays the original 202
// instead of surfacing a 409.
func TestApproveRetriesReplayed(t *testing.T) {
	const retries = 100

	s := newStack(t, 1000, 1000)
	id := s.suspend(t, 1)[0]
	path := "/api/v1/executions/" + id + "/approve"

	first := s.post(path, "10.0.0.1:5000", "approve-"+id, nil)
	if first.Code != http.StatusAccepted {
		t.Fatalf("first approval: expected 202, got %d: %s", first.Code, first.Body.String())
	}
	s.cache.Wait()

	var replayed, mismatched atomic.Int64
	var wg sync.WaitGroup
	wg.Add(retries)
	for range retries {
		go func() {
			defer wg.Done()
			rec := s.post(path, "10.0.0.1:5000", "approve-"+id, nil)
			if rec.Code == http.StatusAccepted && rec.Header().Get("Idempotent-Replayed") == "true" &&
				rec.Body.String() == first.Body.String() {
				replayed.Add(1)
				return
			}
			mismatched.Add(1)
		}()
	}
	wg.Wait()
	s.executor.Wait()

	if replayed.Load() != retries {
		t.Errorf("expected %d replays, got %d (%d mismatched)", retries, replayed.Load(), mismatched.Load())
	}
	st, err := s.store.GetExecution(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != execution.StatusCompleted || len(st.Results) != 3 {
		t.Errorf("expected one resumed run, got %s with %d results", st.Status, len(st.Results))
	}
}

// TestSubmitFloodLimitedPerClient floods plan submissions from one client
// at a rate=1 burst=10 limiter. Only about a burst's worth may be created,
// and a second client is unaffected.
func TestSubmitFloodLimitedPerClient(t *testing.T) {
	const goroutines = 10
	const reqsPerGoroutine = 20
	const burst = 10

	s := newStack(t, 1, burst)
	body := map[string]any{"plan": changeRequestPlan, "context": map[string]any{"ticket_id": "T-1"}}

	var created, limited atomic.Int64
	var wg sync.WaitGroup
	wg.Add(goroutines)
	start := time.Now()
	for range goroutines {
		go func() {
			defer wg.Done()
			for range reqsPerGoroutine {
				rec := s.post("/api/v1/executions", "10.0.0.1:5000", "", body)
				switch rec.Code {
				case http.StatusCreated:
					created.Add(1)
				case http.StatusTooManyRequests:
					limited.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	total := created.Load() + limited.Load()
	t.Logf("total=%d created=%d limited=%d in %v", total, created.Load(), limited.Load(), elapsed)

	if total != goroutines*reqsPerGoroutine {
		t.Fatalf("expected every request to be created or limited, got %d", total)
	}
	maxCreated := int64(burst) + int64(elapsed.Seconds()) + 1
	if created.Load() < burst || created.Load() > maxCreated {
		t.Errorf("expected %d..%d created, got %d", burst, maxCreated, created.Load())
	}

	list, err := s.store.ListExecutions(context.Background(), execution.Filter{Limit: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(list)) != created.Load() {
		t.Errorf("store holds %d executions, %d were acknowledged", len(list), created.Load())
	}

	if rec := s.post("/api/v1/executions", "10.0.0.2:5000", "", body); rec.Code != http.StatusCreated {
		t.Errorf("second client should not be limited, got %d", rec.Code)
	}
}
