package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	relayotel "github.com/Strob0t/agentrelay/internal/adapter/otel"
	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/pipeline"
	"github.com/Strob0t/agentrelay/internal/workpool"
)

// AgentResolver looks up live agents by name.
type AgentResolver interface {
	Resolve(name string) (agent.Agent, error)
}

// OrchestratorService runs static pipelines from the catalog in a single
// call. There is no persistence and no suspension on this path.
type OrchestratorService struct {
	catalog  *pipeline.Catalog
	agents   AgentResolver
	pool     *workpool.Pool
	metrics  *relayotel.Metrics
	stepWait time.Duration
}

// NewOrchestratorService creates an OrchestratorService.
func NewOrchestratorService(catalog *pipeline.Catalog, agents AgentResolver) *OrchestratorService {
	return &OrchestratorService{catalog: catalog, agents: agents}
}

// SetPool bounds agent invocations with a shared worker pool.
func (s *OrchestratorService) SetPool(p *workpool.Pool) { s.pool = p }

// SetMetrics attaches metric instruments.
func (s *OrchestratorService) SetMetrics(m *relayotel.Metrics) { s.metrics = m }

// SetStepTimeout bounds every agent invocation; zero disables the bound.
func (s *OrchestratorService) SetStepTimeout(d time.Duration) { s.stepWait = d }

// Pipelines returns the catalog in name order.
func (s *OrchestratorService) Pipelines() []pipeline.Pipeline { return s.catalog.List() }

// Invoke runs the named pipeline over initial and returns one result per
// agent that could handle the context, in declaration order.
//
// Every agent is resolved before the first one runs, so an unknown pipeline
// or agent name fails with domain.ErrNotFound without doing any work. If an
// agent returns an error the whole call fails and no results are returned;
// a FAILURE result does not stop the pipeline.
func (s *OrchestratorService) Invoke(ctx context.Context, name string, initial agent.Context) ([]agent.Result, error) {
	p, ok := s.catalog.Get(name)
	if !ok {
		return nil, fmt.Errorf("pipeline %q: %w", name, domain.ErrNotFound)
	}

	agents := make([]agent.Agent, len(p.Agents))
	for i, agentName := range p.Agents {
		a, err := s.agents.Resolve(agentName)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", name, err)
		}
		agents[i] = a
	}

	ctx, span := relayotel.StartPipelineSpan(ctx, name)
	defer span.End()

	current := initial
	results := make([]agent.Result, 0, len(agents))
	for _, a := range agents {
		if !a.CanHandle(current) {
			s.metrics.RecordStep(ctx, a.Name(), relayotel.StepSkipped, 0)
			slog.DebugContext(ctx, "pipeline step skipped", "pipeline", name, "agent", a.Name())
			continue
		}

		started := time.Now()
		res, err := s.execute(ctx, a, current)
		if err != nil {
			s.metrics.RecordStep(ctx, a.Name(), relayotel.StepFailed, time.Since(started))
			span.RecordError(err)
			slog.WarnContext(ctx, "pipeline aborted", "pipeline", name, "agent", a.Name(), "error", err)
			return nil, fmt.Errorf("pipeline %s: agent %s: %w", name, a.Name(), err)
		}

		outcome := relayotel.StepSucceeded
		if !res.Succeeded() {
			outcome = relayotel.StepFailed
		}
		s.metrics.RecordStep(ctx, a.Name(), outcome, time.Since(started))

		results = append(results, res)
		current = current.Merge(res.Details)
	}

	slog.InfoContext(ctx, "pipeline invoked", "pipeline", name, "results", len(results))
	return results, nil
}

// execute runs one agent inside the pool with the step timeout applied.
// Panics are returned as errors so they abort the pipeline like any other
// execution error.
func (s *OrchestratorService) execute(ctx context.Context, a agent.Agent, in agent.Context) (res agent.Result, err error) {
	if s.stepWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.stepWait)
		defer cancel()
	}
	err = s.pool.Run(ctx, func() (runErr error) {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("agent panicked: %v", r)
			}
		}()
		res, runErr = a.Execute(ctx, in)
		return runErr
	})
	if err != nil {
		return agent.Result{}, err
	}
	if res.AgentName == "" {
		res.AgentName = a.Name()
	}
	return res, nil
}
