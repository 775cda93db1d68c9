// Package agent defines the unit of work executed by pipelines and plans.
package agent

import (
	"context"
	"errors"
	"fmt"
)

// Status is the outcome of a single agent invocation.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Result is what an agent produced. Details are merged into the context
// seen by the following steps.
type Result struct {
	AgentName   string         `json:"agent_name"`
	Status      Status         `json:"status"`
	Summary     string         `json:"summary"`
	Details     map[string]any `json:"details,omitempty"`
	StepID      string         `json:"step_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
}

// Succeeded reports whether the result has SUCCESS status.
func (r Result) Succeeded() bool { return r.Status == StatusSuccess }

// Failure builds a FAILURE result for name carrying err as summary.
func Failure(name string, err error) Result {
	return Result{
		AgentName: name,
		Status:    StatusFailure,
		Summary:   err.Error(),
		Details:   map[string]any{name + ".error": err.Error()},
	}
}

// Agent is a named unit of work. Implementations must be safe for
// concurrent use; the same instance may run in parallel groups.
type Agent interface {
	Name() string
	Description() string
	// CanHandle reports whether the agent applies to c. Steps whose agent
	// cannot handle the context are skipped silently.
	CanHandle(c Context) bool
	Execute(ctx context.Context, c Context) (Result, error)
}

// ApprovalGate is implemented by agents whose results need human approval
// before an execution may continue past them.
type ApprovalGate interface {
	RequiresApproval() bool
}

// RequiresApproval reports whether a needs approval. Agents that do not
// implement ApprovalGate never do.
func RequiresApproval(a Agent) bool {
	g, ok := a.(ApprovalGate)
	return ok && g.RequiresApproval()
}

var (
	ErrNameRequired = errors.New("agent name is required")
	ErrKindRequired = errors.New("agent kind is required")
)

// Definition is the declarative form of an agent, loaded from YAML or
// registered over the API. Kind selects the factory that builds it.
type Definition struct {
	Name             string            `json:"name" yaml:"name"`
	Kind             string            `json:"kind" yaml:"kind"`
	Description      string            `json:"description,omitempty" yaml:"description,omitempty"`
	RequiresApproval bool              `json:"requires_approval,omitempty" yaml:"requires_approval,omitempty"`
	Requires         []string          `json:"requires,omitempty" yaml:"requires,omitempty"`
	Config           map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// Validate checks the definition for structural correctness.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return ErrNameRequired
	}
	if d.Kind == "" {
		return fmt.Errorf("agent %s: %w", d.Name, ErrKindRequired)
	}
	return nil
}

// Base implements the descriptive half of Agent from a Definition.
// Concrete kinds embed it and supply Execute.
type Base struct {
	Def Definition
}

// Name returns the agent name.
func (b *Base) Name() string { return b.Def.Name }

// Description returns the human-readable description.
func (b *Base) Description() string { return b.Def.Description }

// CanHandle reports whether every required key is present in c.
func (b *Base) CanHandle(c Context) bool { return c.Has(b.Def.Requires...) }

// RequiresApproval reports the definition's approval flag.
func (b *Base) RequiresApproval() bool { return b.Def.RequiresApproval }

// Success builds a SUCCESS result for this agent.
func (b *Base) Success(summary string, details map[string]any) Result {
	return Result{AgentName: b.Def.Name, Status: StatusSuccess, Summary: summary, Details: details}
}
