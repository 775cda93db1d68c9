package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/execution"
)

const defaultListLimit = 100

// Store implements executionstore.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const executionColumns = `id, schema_version, plan, group_cursor, status, context, results,
	error, degraded, version, created_at, updated_at`

// CreateExecution inserts a new execution record and fills in its version
// and timestamps.
func (s *Store) CreateExecution(ctx context.Context, e *execution.State) error {
	planJSON, ctxJSON, resultsJSON, err := encodeState(e)
	if err != nil {
		return err
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO executions (id, schema_version, goal, plan, group_cursor, status, context, results, error, degraded)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING version, created_at, updated_at`,
		e.ID, e.SchemaVersion, e.Plan.Goal, planJSON, e.Cursor, string(e.Status),
		ctxJSON, resultsJSON, e.Error, e.Degraded,
	).Scan(&e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create execution %s: %w", e.ID, err)
	}
	return nil
}

// GetExecution loads an execution by id.
func (s *Store) GetExecution(ctx context.Context, id string) (*execution.State, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	e, err := scanExecution(row)
	if err != nil {
		return nil, notFoundWrap(err, "get execution %s", id)
	}
	return e, nil
}

// UpdateExecution writes e if the stored version still equals e.Version,
// then bumps e.Version.
func (s *Store) UpdateExecution(ctx context.Context, e *execution.State) error {
	planJSON, ctxJSON, resultsJSON, err := encodeState(e)
	if err != nil {
		return err
	}

	err = s.pool.QueryRow(ctx,
		`UPDATE executions SET
			schema_version = $2, plan = $3, group_cursor = $4, status = $5, context = $6,
			results = $7, error = $8, degraded = $9, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $10
		 RETURNING version, updated_at`,
		e.ID, e.SchemaVersion, planJSON, e.Cursor, string(e.Status), ctxJSON,
		resultsJSON, e.Error, e.Degraded, e.Version,
	).Scan(&e.Version, &e.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update execution %s: %w", e.ID, err)
	}

	// No row matched: either the record is gone or another writer won.
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM executions WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
		return fmt.Errorf("update execution %s: %w", e.ID, err)
	}
	if !exists {
		return fmt.Errorf("update execution %s: %w", e.ID, domain.ErrNotFound)
	}
	return fmt.Errorf("update execution %s (version %d): %w", e.ID, e.Version, domain.ErrConflict)
}

// ListExecutions returns executions newest first, optionally filtered by status.
func (s *Store) ListExecutions(ctx context.Context, f execution.Filter) ([]execution.State, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+executionColumns+` FROM executions
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY created_at DESC
		 LIMIT $2`,
		string(f.Status), limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var result []execution.State
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		result = append(result, *e)
	}
	return orEmpty(result), rows.Err()
}

func encodeState(e *execution.State) (planJSON, ctxJSON, resultsJSON []byte, err error) {
	if planJSON, err = marshalJSONB("plan", e.Plan); err != nil {
		return nil, nil, nil, err
	}
	if ctxJSON, err = marshalJSONB("context", e.Context); err != nil {
		return nil, nil, nil, err
	}
	if resultsJSON, err = marshalJSONB("results", orEmpty(e.Results)); err != nil {
		return nil, nil, nil, err
	}
	return planJSON, ctxJSON, resultsJSON, nil
}

func scanExecution(row scannable) (*execution.State, error) {
	var e execution.State
	var status string
	var planJSON, ctxJSON, resultsJSON []byte
	if err := row.Scan(
		&e.ID, &e.SchemaVersion, &planJSON, &e.Cursor, &status, &ctxJSON, &resultsJSON,
		&e.Error, &e.Degraded, &e.Version, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Status = execution.Status(status)

	if err := unmarshalJSONB("plan", planJSON, &e.Plan); err != nil {
		return nil, err
	}
	var c agent.Context
	if err := unmarshalJSONB("context", ctxJSON, &c); err != nil {
		return nil, err
	}
	e.Context = c
	if err := unmarshalJSONB("results", resultsJSON, &e.Results); err != nil {
		return nil, err
	}
	e.Results = orEmpty(e.Results)
	return &e, nil
}
