package service

import (
	"context"
	"fmt"
	"log/slog"

	relayotel "github.com/Strob0t/agentrelay/internal/adapter/otel"
	"github.com/Strob0t/agentrelay/internal/domain/execution"
	"github.com/Strob0t/agentrelay/internal/logger"
	"github.com/Strob0t/agentrelay/internal/port/executionstore"
)

// ReviewService is the gateway through which humans approve or reject
// executions waiting at an approval gate.
type ReviewService struct {
	store    executionstore.Store
	executor *ExecutorService
	metrics  *relayotel.Metrics
}

// NewReviewService creates a ReviewService. Approved executions are handed
// to executor for resumption.
func NewReviewService(store executionstore.Store, executor *ExecutorService) *ReviewService {
	return &ReviewService{store: store, executor: executor}
}

// SetMetrics attaches metric instruments.
func (s *ReviewService) SetMetrics(m *relayotel.Metrics) { s.metrics = m }

// Approve marks a PENDING_APPROVAL execution as RESUMED_AFTER_APPROVAL and
// schedules its resumption without waiting for it. It fails with
// domain.ErrNotFound for an unknown id and domain.ErrConflict when the
// execution is not pending, including when a concurrent call won the race.
func (s *ReviewService) Approve(ctx context.Context, id string) (*execution.State, error) {
	ctx = logger.WithExecutionID(ctx, id)

	st, err := s.decide(ctx, id, execution.StatusResumedAfterApproval, "")
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "execution approved", "cursor", st.Cursor)
	s.executor.publishStatus(ctx, st)

	s.executor.ScheduleResume(ctx, id)
	return st, nil
}

// Reject ends a PENDING_APPROVAL execution as REJECTED. reason, if given,
// is kept in the record's error field. Preconditions match Approve.
func (s *ReviewService) Reject(ctx context.Context, id, reason string) (*execution.State, error) {
	ctx = logger.WithExecutionID(ctx, id)

	st, err := s.decide(ctx, id, execution.StatusRejected, reason)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordExecution(ctx, string(st.Status))
	s.executor.publishStatus(ctx, st)

	slog.InfoContext(ctx, "execution rejected", "reason", reason)
	return st, nil
}

// decide applies a reviewer decision with an optimistic update so that at
// most one decision per gate is ever persisted.
func (s *ReviewService) decide(ctx context.Context, id string, next execution.Status, reason string) (*execution.State, error) {
	st, err := s.store.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := st.Transition(next); err != nil {
		return nil, err
	}
	if reason != "" {
		st.Error = reason
	}
	if err := s.store.UpdateExecution(ctx, st); err != nil {
		return nil, fmt.Errorf("record decision for execution %s: %w", id, err)
	}
	return st, nil
}
