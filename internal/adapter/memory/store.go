// Package memory provides an in-process execution store for tests, demos and
// single-node deployments without PostgreSQL.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/execution"
	"github.com/Strob0t/agentrelay/internal/port/executionstore"
)

const defaultListLimit = 100

// Store keeps execution records in memory with optimistic version checks.
// Records are stored in their JSON form so callers never share maps with
// the store and loaded state looks exactly like state read from Postgres.
type Store struct {
	mu      sync.RWMutex
	records map[string][]byte
	now     func() time.Time
}

var _ executionstore.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string][]byte), now: time.Now}
}

// CreateExecution inserts s at version 1.
func (m *Store) CreateExecution(_ context.Context, s *execution.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[s.ID]; exists {
		return fmt.Errorf("create execution %s: %w", s.ID, domain.ErrConflict)
	}
	now := m.now().UTC()
	next := *s
	next.Version = 1
	next.CreatedAt = now
	next.UpdatedAt = now
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode execution %s: %w", s.ID, err)
	}
	m.records[s.ID] = data
	s.Version, s.CreatedAt, s.UpdatedAt = next.Version, next.CreatedAt, next.UpdatedAt
	return nil
}

// GetExecution returns a private copy of the stored record.
func (m *Store) GetExecution(_ context.Context, id string) (*execution.State, error) {
	m.mu.RLock()
	data, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get execution %s: %w", id, domain.ErrNotFound)
	}
	return decode(data)
}

// UpdateExecution replaces the record if s.Version matches, then bumps it.
func (m *Store) UpdateExecution(_ context.Context, s *execution.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.records[s.ID]
	if !ok {
		return fmt.Errorf("update execution %s: %w", s.ID, domain.ErrNotFound)
	}
	current, err := decode(data)
	if err != nil {
		return err
	}
	if current.Version != s.Version {
		return fmt.Errorf("update execution %s (version %d, stored %d): %w",
			s.ID, s.Version, current.Version, domain.ErrConflict)
	}

	next := *s
	next.Version = current.Version + 1
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = m.now().UTC()
	out, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode execution %s: %w", s.ID, err)
	}
	m.records[s.ID] = out
	s.Version, s.UpdatedAt = next.Version, next.UpdatedAt
	return nil
}

// ListExecutions returns matching records newest first.
func (m *Store) ListExecutions(_ context.Context, f execution.Filter) ([]execution.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]execution.State, 0, len(m.records))
	for _, data := range m.records {
		s, err := decode(data)
		if err != nil {
			return nil, err
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func decode(data []byte) (*execution.State, error) {
	var s execution.State
	if err := agent.DecodeJSON(data, &s); err != nil {
		return nil, fmt.Errorf("decode execution: %w", err)
	}
	if s.Results == nil {
		s.Results = []agent.Result{}
	}
	return &s, nil
}
