// Package execution defines the persisted state of a dynamic plan execution.
package execution

import (
	"fmt"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/plan"
)

// SchemaVersion is written with every record so older rows can be migrated
// when the layout of plan, context or results changes.
const SchemaVersion = 1

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusRunning              Status = "RUNNING"
	StatusPendingApproval      Status = "PENDING_APPROVAL"
	StatusResumedAfterApproval Status = "RESUMED_AFTER_APPROVAL"
	StatusCompleted            Status = "COMPLETED"
	StatusFailed               Status = "FAILED"
	StatusRejected             Status = "REJECTED"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRejected:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusPendingApproval, StatusResumedAfterApproval,
		StatusCompleted, StatusFailed, StatusRejected:
		return true
	default:
		return false
	}
}

// State is the durable record of one plan execution. Cursor is the index
// of the next group to run; while PENDING_APPROVAL it points at the group
// that is awaiting approval.
type State struct {
	ID            string         `json:"id"`
	SchemaVersion int            `json:"schema_version"`
	Plan          plan.Plan      `json:"plan"`
	Cursor        int            `json:"cursor"`
	Status        Status         `json:"status"`
	Context       agent.Context  `json:"context"`
	Results       []agent.Result `json:"results"`
	Error         string         `json:"error,omitempty"`
	Degraded      bool           `json:"degraded,omitempty"`
	Version       int            `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// New returns a RUNNING state at cursor 0.
func New(id string, p plan.Plan, initial agent.Context) *State {
	return &State{
		ID:            id,
		SchemaVersion: SchemaVersion,
		Plan:          p,
		Status:        StatusRunning,
		Context:       initial,
		Results:       []agent.Result{},
	}
}

// transitions lists the allowed status changes.
var transitions = map[Status][]Status{
	StatusRunning:              {StatusPendingApproval, StatusCompleted, StatusFailed},
	StatusPendingApproval:      {StatusResumedAfterApproval, StatusRejected},
	StatusResumedAfterApproval: {StatusRunning, StatusFailed},
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition moves the state to next, returning domain.ErrConflict when the
// change is not allowed from the current status.
func (s *State) Transition(next Status) error {
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("execution %s is %s, cannot become %s: %w", s.ID, s.Status, next, domain.ErrConflict)
	}
	s.Status = next
	return nil
}

// Fail marks the state FAILED with the given cause. Allowed from any
// non-terminal status.
func (s *State) Fail(cause error) {
	if s.Status.IsTerminal() {
		return
	}
	s.Status = StatusFailed
	if cause != nil {
		s.Error = cause.Error()
	}
}

// GroupCount returns the number of execution groups in the plan.
func (s *State) GroupCount() int { return len(s.Plan.Groups()) }

// Filter narrows ListExecutions.
type Filter struct {
	Status Status
	Limit  int
}
