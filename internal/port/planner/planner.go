// Package planner defines the port that turns a goal into an execution plan.
package planner

import (
	"context"

	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/plan"
)

// Planner produces a plan for goal using the available agents.
// Hints are free-form caller context (e.g. the initial execution context).
type Planner interface {
	CreatePlan(ctx context.Context, goal string, agents []agent.Definition, hints map[string]any) (*plan.Plan, error)
}
