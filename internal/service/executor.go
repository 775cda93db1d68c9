package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	relayotel "github.com/Strob0t/agentrelay/internal/adapter/otel"
	"github.com/Strob0t/agentrelay/internal/config"
	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/execution"
	"github.com/Strob0t/agentrelay/internal/domain/plan"
	"github.com/Strob0t/agentrelay/internal/logger"
	"github.com/Strob0t/agentrelay/internal/port/executionstore"
	"github.com/Strob0t/agentrelay/internal/port/messagequeue"
	"github.com/Strob0t/agentrelay/internal/workpool"
)

// recoverBatch caps how many approved executions are resumed at start-up.
const recoverBatch = 1000

// ExecutorService runs dynamic plans group by group, persisting the
// execution after every group and suspending when an executed agent
// requires approval. Any process sharing the store can resume any
// execution; nothing is kept in memory between calls.
type ExecutorService struct {
	store     executionstore.Store
	agents    AgentResolver
	queue     messagequeue.Queue
	observers []StatusObserver
	pool      *workpool.Pool
	metrics   *relayotel.Metrics
	policy    string
	stepWait  time.Duration
	newID     func() string

	bg sync.WaitGroup // in-process resumes scheduled without a queue
}

// NewExecutorService creates an ExecutorService.
func NewExecutorService(store executionstore.Store, agents AgentResolver, cfg *config.Executor) *ExecutorService {
	return &ExecutorService{
		store:    store,
		agents:   agents,
		policy:   cfg.FailurePolicy,
		stepWait: cfg.StepTimeout,
		newID:    uuid.NewString,
	}
}

// SetQueue enables resume triggers and status events over the message queue.
func (s *ExecutorService) SetQueue(q messagequeue.Queue) { s.queue = q }

// AddObserver registers an observer of status changes, such as reviewer
// notifications or the live status stream. Call before submitting.
func (s *ExecutorService) AddObserver(o StatusObserver) { s.observers = append(s.observers, o) }

// SetPool bounds agent invocations with a shared worker pool.
func (s *ExecutorService) SetPool(p *workpool.Pool) { s.pool = p }

// SetMetrics attaches metric instruments.
func (s *ExecutorService) SetMetrics(m *relayotel.Metrics) { s.metrics = m }

// Get returns the execution with the given id.
func (s *ExecutorService) Get(ctx context.Context, id string) (*execution.State, error) {
	return s.store.GetExecution(ctx, id)
}

// List returns executions matching f, newest first.
func (s *ExecutorService) List(ctx context.Context, f execution.Filter) ([]execution.State, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, f.Status)
	}
	return s.store.ListExecutions(ctx, f)
}

// Submit validates p, persists a new RUNNING execution and runs it until
// it completes, fails or suspends for approval.
//
// A plan that references an unknown agent yields the FAILED execution
// together with an error wrapping domain.ErrNotFound. Storage failures are
// returned as plain errors. Step failures are reported in the returned
// state, not as errors.
func (s *ExecutorService) Submit(ctx context.Context, p plan.Plan, initial agent.Context) (*execution.State, error) {
	p.Steps = slices.Clone(p.Steps)
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	// Values enter the execution in their stored form so a run that
	// suspends and resumes sees exactly what an uninterrupted run sees.
	for i := range p.Steps {
		args, err := agent.Canonical(p.Steps[i].Args)
		if err != nil {
			return nil, fmt.Errorf("%w: step %s args: %w", domain.ErrValidation, p.Steps[i].ID, err)
		}
		p.Steps[i].Args = args
	}
	initial, err := initial.Canonical()
	if err != nil {
		return nil, fmt.Errorf("%w: initial context: %w", domain.ErrValidation, err)
	}

	st := execution.New(s.newID(), p, initial)
	if err := s.store.CreateExecution(ctx, st); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	s.metrics.RecordExecution(ctx, string(st.Status))
	s.publishStatus(ctx, st)

	slog.InfoContext(logger.WithExecutionID(ctx, st.ID), "execution started",
		"steps", len(p.Steps), "groups", st.GroupCount())
	return s.run(ctx, st)
}

// Resume continues an execution that a reviewer approved. It is a no-op
// that returns the current state unless the execution is
// RESUMED_AFTER_APPROVAL, so duplicate triggers are harmless. When two
// processes race, the optimistic version check lets exactly one proceed.
func (s *ExecutorService) Resume(ctx context.Context, id string) (*execution.State, error) {
	ctx = logger.WithExecutionID(ctx, id)

	st, err := s.store.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Status != execution.StatusResumedAfterApproval {
		slog.DebugContext(ctx, "resume ignored", "status", st.Status)
		return st, nil
	}

	st.Cursor++
	if err := st.Transition(execution.StatusRunning); err != nil {
		return nil, err
	}
	if err := s.store.UpdateExecution(ctx, st); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			slog.InfoContext(ctx, "resume already claimed by another worker")
			return s.store.GetExecution(ctx, id)
		}
		return nil, fmt.Errorf("resume execution %s: %w", id, err)
	}
	s.publishStatus(ctx, st)

	slog.InfoContext(ctx, "execution resumed", "cursor", st.Cursor)
	return s.run(ctx, st)
}

// ScheduleResume arranges for Resume(id) to run without blocking the
// caller. With a connected queue the trigger is published so any instance
// may pick it up; otherwise, or if publishing fails, it runs in a
// background goroutine of this process.
func (s *ExecutorService) ScheduleResume(ctx context.Context, id string) {
	if s.queue != nil && s.queue.IsConnected() {
		data, err := json.Marshal(messagequeue.ResumeRequestedPayload{ExecutionID: id, RequestedAt: time.Now().UTC()})
		if err == nil {
			err = s.queue.Publish(ctx, messagequeue.SubjectExecutionResume, data)
		}
		if err == nil {
			return
		}
		slog.WarnContext(ctx, "resume trigger publish failed, resuming locally", "execution_id", id, "error", err)
	}

	bgCtx := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if _, err := s.Resume(bgCtx, id); err != nil {
			slog.ErrorContext(bgCtx, "background resume failed", "execution_id", id, "error", err)
		}
	}()
}

// Wait blocks until every in-process resume scheduled so far has returned.
func (s *ExecutorService) Wait() { s.bg.Wait() }

// StartResumeSubscriber consumes resume triggers from the queue. The
// returned function stops the subscription.
func (s *ExecutorService) StartResumeSubscriber(ctx context.Context) (func(), error) {
	if s.queue == nil {
		return func() {}, nil
	}
	return s.queue.Subscribe(ctx, messagequeue.SubjectExecutionResume, s.handleResume)
}

func (s *ExecutorService) handleResume(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.ResumeRequestedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode resume request: %w", err)
	}
	if _, err := s.Resume(ctx, p.ExecutionID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.WarnContext(ctx, "resume requested for unknown execution", "execution_id", p.ExecutionID)
			return nil
		}
		return err
	}
	return nil
}

// RecoverPending resumes executions that were approved but never resumed,
// for instance because the process stopped in between. It returns how many
// were resumed.
func (s *ExecutorService) RecoverPending(ctx context.Context) (int, error) {
	pending, err := s.store.ListExecutions(ctx, execution.Filter{
		Status: execution.StatusResumedAfterApproval,
		Limit:  recoverBatch,
	})
	if err != nil {
		return 0, fmt.Errorf("list approved executions: %w", err)
	}

	n := 0
	for i := range pending {
		if _, err := s.Resume(ctx, pending[i].ID); err != nil {
			slog.ErrorContext(ctx, "recover execution failed", "execution_id", pending[i].ID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		slog.InfoContext(ctx, "recovered approved executions", "count", n)
	}
	return n, nil
}

// run advances st from its cursor until it suspends or terminates. Once
// started, a run is not bound to the caller's cancellation: it always ends
// in a persisted state.
func (s *ExecutorService) run(ctx context.Context, st *execution.State) (*execution.State, error) {
	ctx = logger.WithExecutionID(context.WithoutCancel(ctx), st.ID)
	ctx, span := relayotel.StartExecutionSpan(ctx, st.ID, st.Cursor)
	defer span.End()

	groups := st.Plan.Groups()
	for st.Cursor < len(groups) {
		g := groups[st.Cursor]

		members, err := s.resolveGroup(g)
		if err != nil {
			var missing *unknownAgentError
			if errors.As(err, &missing) {
				st.Results = append(st.Results, s.stamp(st, missing.step, agent.Failure(missing.step.Agent, err)))
			}
			st.Fail(err)
			if perr := s.save(ctx, st); perr != nil {
				return nil, perr
			}
			span.RecordError(err)
			slog.WarnContext(ctx, "execution failed", "group", st.Cursor, "error", err)
			return st, err
		}

		out := s.runGroup(ctx, st, st.Cursor, g, members)
		st.Results = append(st.Results, out.results...)
		st.Context = out.context

		if len(out.failed) > 0 {
			if s.policy != config.FailurePolicyContinue {
				st.Fail(fmt.Errorf("group %d: agent(s) %s returned FAILURE", st.Cursor, strings.Join(out.failed, ", ")))
				if err := s.save(ctx, st); err != nil {
					return nil, err
				}
				slog.WarnContext(ctx, "execution failed", "group", st.Cursor, "agents", out.failed)
				return st, nil
			}
			st.Degraded = true
			slog.WarnContext(ctx, "group degraded, continuing", "group", st.Cursor, "agents", out.failed)
		}

		if out.gated {
			if err := st.Transition(execution.StatusPendingApproval); err != nil {
				return nil, err
			}
			if err := s.save(ctx, st); err != nil {
				return nil, err
			}
			slog.InfoContext(ctx, "execution awaiting approval", "group", st.Cursor)
			return st, nil
		}

		st.Cursor++
		if st.Cursor == len(groups) {
			break
		}
		if err := s.save(ctx, st); err != nil {
			return nil, err
		}
	}

	if err := st.Transition(execution.StatusCompleted); err != nil {
		return nil, err
	}
	if err := s.save(ctx, st); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "execution completed", "results", len(st.Results), "degraded", st.Degraded)
	return st, nil
}

// unknownAgentError reports a plan step whose agent is not registered.
type unknownAgentError struct {
	step plan.Step
	err  error
}

func (e *unknownAgentError) Error() string {
	return fmt.Sprintf("step %s: %v", e.step.ID, e.err)
}

func (e *unknownAgentError) Unwrap() error { return e.err }

// resolveGroup looks up every member before any of them runs.
func (s *ExecutorService) resolveGroup(g plan.Group) ([]agent.Agent, error) {
	members := make([]agent.Agent, len(g.Steps))
	for i := range g.Steps {
		a, err := s.agents.Resolve(g.Steps[i].Agent)
		if err != nil {
			return nil, &unknownAgentError{step: g.Steps[i], err: err}
		}
		members[i] = a
	}
	return members, nil
}

// groupOutcome is the settled result of one group.
type groupOutcome struct {
	results []agent.Result // executed members, declaration order
	context agent.Context  // context after merging all results
	failed  []string       // agents that returned FAILURE
	gated   bool           // an executed member requires approval
}

// runGroup executes the members of g concurrently. Every member sees the
// context as it was before the group plus its own step args. A failing
// member does not cancel its siblings. Results keep declaration order no
// matter which member finishes first.
func (s *ExecutorService) runGroup(ctx context.Context, st *execution.State, index int, g plan.Group, members []agent.Agent) groupOutcome {
	ctx, span := relayotel.StartGroupSpan(ctx, index, len(g.Steps))
	defer span.End()

	base := st.Context
	slots := make([]*agent.Result, len(g.Steps))

	var eg errgroup.Group
	for i := range g.Steps {
		step, a := g.Steps[i], members[i]
		in := base.Merge(step.Args)
		if !a.CanHandle(in) {
			s.metrics.RecordStep(ctx, a.Name(), relayotel.StepSkipped, 0)
			slog.DebugContext(ctx, "step skipped", "step", step.ID, "agent", a.Name())
			continue
		}
		eg.Go(func() error {
			res := s.runStep(ctx, step, a, in)
			slots[i] = &res
			return nil
		})
	}
	_ = eg.Wait()

	out := groupOutcome{context: base}
	for i, res := range slots {
		if res == nil {
			continue
		}
		r := s.stamp(st, g.Steps[i], *res)
		out.results = append(out.results, r)
		out.context = out.context.Merge(r.Details)
		if !r.Succeeded() {
			out.failed = append(out.failed, r.AgentName)
		}
		if agent.RequiresApproval(members[i]) {
			out.gated = true
		}
	}
	return out
}

// runStep invokes one agent. Errors, timeouts, panics and details that
// cannot be stored become FAILURE results so they go through the group
// failure policy.
func (s *ExecutorService) runStep(ctx context.Context, step plan.Step, a agent.Agent, in agent.Context) agent.Result {
	ctx, span := relayotel.StartStepSpan(ctx, step.ID, a.Name())
	defer span.End()

	if s.stepWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.stepWait)
		defer cancel()
	}

	started := time.Now()
	var res agent.Result
	err := s.pool.Run(ctx, func() (runErr error) {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("agent panicked: %v", r)
			}
		}()
		res, runErr = a.Execute(ctx, in)
		return runErr
	})
	if err != nil {
		span.RecordError(err)
		slog.WarnContext(ctx, "step error", "step", step.ID, "agent", a.Name(), "error", err)
		res = agent.Failure(a.Name(), err)
	}
	if res.AgentName == "" {
		res.AgentName = a.Name()
	}
	details, err := agent.Canonical(res.Details)
	if err != nil {
		slog.WarnContext(ctx, "step details not storable", "step", step.ID, "agent", a.Name(), "error", err)
		res = agent.Failure(a.Name(), fmt.Errorf("result details: %w", err))
	} else {
		res.Details = details
	}

	outcome := relayotel.StepSucceeded
	if !res.Succeeded() {
		outcome = relayotel.StepFailed
	}
	s.metrics.RecordStep(ctx, a.Name(), outcome, time.Since(started))
	return res
}

// stamp ties a result to its step and execution.
func (s *ExecutorService) stamp(st *execution.State, step plan.Step, r agent.Result) agent.Result {
	r.StepID = step.ID
	r.ExecutionID = st.ID
	return r
}

// save persists st. On failure it tries to leave the stored record FAILED
// so the execution does not look alive, then reports the original error.
func (s *ExecutorService) save(ctx context.Context, st *execution.State) error {
	err := s.store.UpdateExecution(ctx, st)
	if err == nil {
		if st.Status != execution.StatusRunning {
			s.metrics.RecordExecution(ctx, string(st.Status))
		}
		s.publishStatus(ctx, st)
		return nil
	}

	slog.ErrorContext(ctx, "persist execution failed", "status", st.Status, "error", err)
	if latest, gerr := s.store.GetExecution(ctx, st.ID); gerr == nil && !latest.Status.IsTerminal() {
		latest.Fail(fmt.Errorf("persist execution: %w", err))
		if uerr := s.store.UpdateExecution(ctx, latest); uerr == nil {
			s.metrics.RecordExecution(ctx, string(latest.Status))
			s.publishStatus(ctx, latest)
		}
	}
	return fmt.Errorf("persist execution %s: %w", st.ID, err)
}

// StatusObserver is told about every persisted status change.
type StatusObserver interface {
	ExecutionChanged(ctx context.Context, st *execution.State)
}

// publishStatus tells the observers and emits an executions.status event.
// Failures are logged only.
func (s *ExecutorService) publishStatus(ctx context.Context, st *execution.State) {
	for _, o := range s.observers {
		o.ExecutionChanged(ctx, st)
	}
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.ExecutionStatusPayload{
		ExecutionID: st.ID,
		Status:      string(st.Status),
		Cursor:      st.Cursor,
		Groups:      st.GroupCount(),
		Degraded:    st.Degraded,
		Error:       st.Error,
	})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectExecutionStatus, data); err != nil {
		slog.WarnContext(ctx, "status event publish failed", "execution_id", st.ID, "error", err)
	}
}
