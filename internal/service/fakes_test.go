package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Strob0t/agentrelay/internal/adapter/memory"
	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/execution"
	"github.com/Strob0t/agentrelay/internal/port/agentkind"
	"github.com/Strob0t/agentrelay/internal/port/messagequeue"
)

// fakeAgent is a scriptable agent. Its zero value succeeds with no details.
type fakeAgent struct {
	name     string
	approval bool
	requires []string
	when     func(agent.Context) bool // extra CanHandle condition
	details  map[string]any
	status   agent.Status
	err      error
	panics   bool
	delay    time.Duration
	block    chan struct{} // when set, Execute waits for it to close

	calls atomic.Int32
	mu    sync.Mutex
	seen  []agent.Context
}

func (f *fakeAgent) Name() string                   { return f.name }
func (f *fakeAgent) Description() string            { return "fake " + f.name }
func (f *fakeAgent) CanHandle(c agent.Context) bool {
	return c.Has(f.requires...) && (f.when == nil || f.when(c))
}
func (f *fakeAgent) RequiresApproval() bool         { return f.approval }

func (f *fakeAgent) Execute(ctx context.Context, c agent.Context) (agent.Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, c)
	f.mu.Unlock()

	if f.panics {
		panic("boom")
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return agent.Result{}, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return agent.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return agent.Result{}, f.err
	}
	status := f.status
	if status == "" {
		status = agent.StatusSuccess
	}
	return agent.Result{AgentName: f.name, Status: status, Summary: f.name + " ran", Details: f.details}, nil
}

func (f *fakeAgent) lastInput() agent.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.seen) == 0 {
		return agent.Context{}
	}
	return f.seen[len(f.seen)-1]
}

// newTestRegistry returns a registry holding agents.
func newTestRegistry(agents ...agent.Agent) *AgentRegistry {
	r := NewAgentRegistry(agentkind.Deps{})
	for _, a := range agents {
		r.Add(a)
	}
	return r
}

// flakyStore wraps the in-memory store and fails UpdateExecution a
// configurable number of times.
type flakyStore struct {
	*memory.Store
	failUpdates atomic.Int32
}

var errStoreDown = errors.New("connection refused")

func (s *flakyStore) UpdateExecution(ctx context.Context, st *execution.State) error {
	if s.failUpdates.Load() > 0 {
		s.failUpdates.Add(-1)
		return errStoreDown
	}
	return s.Store.UpdateExecution(ctx, st)
}

type queuedMsg struct {
	subject string
	data    []byte
}

// fakeQueue records published messages and delivers them synchronously to
// subscribers of the exact subject.
type fakeQueue struct {
	mu        sync.Mutex
	msgs      []queuedMsg
	handlers  map[string]messagequeue.Handler
	connected bool
	pubErr    error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{handlers: make(map[string]messagequeue.Handler), connected: true}
}

func (q *fakeQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		return err
	}
	q.mu.Lock()
	if q.pubErr != nil {
		q.mu.Unlock()
		return q.pubErr
	}
	q.msgs = append(q.msgs, queuedMsg{subject, data})
	h := q.handlers[subject]
	q.mu.Unlock()

	if h != nil {
		return h(ctx, subject, data)
	}
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = handler
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.handlers, subject)
	}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return q.connected }

func (q *fakeQueue) statuses(executionID string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, m := range q.msgs {
		if m.subject != messagequeue.SubjectExecutionStatus {
			continue
		}
		var p messagequeue.ExecutionStatusPayload
		if json.Unmarshal(m.data, &p) == nil && p.ExecutionID == executionID {
			out = append(out, p.Status)
		}
	}
	return out
}

func (q *fakeQueue) count(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, m := range q.msgs {
		if m.subject == subject {
			n++
		}
	}
	return n
}
