// Package executionstore defines the persistence port for plan executions.
package executionstore

import (
	"context"

	"github.com/Strob0t/agentrelay/internal/domain/execution"
)

// Store persists execution state. Records are never deleted.
//
// UpdateExecution is an optimistic compare-and-swap: it succeeds only when
// the stored version equals s.Version, then increments s.Version. A stale
// version yields domain.ErrConflict; a missing record domain.ErrNotFound.
type Store interface {
	CreateExecution(ctx context.Context, s *execution.State) error
	GetExecution(ctx context.Context, id string) (*execution.State, error)
	UpdateExecution(ctx context.Context, s *execution.State) error
	ListExecutions(ctx context.Context, f execution.Filter) ([]execution.State, error)
}
