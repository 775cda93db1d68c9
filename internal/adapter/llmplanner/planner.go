// Package llmplanner implements planner.Planner by asking an LLM to lay out
// the agents needed for a goal.
package llmplanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/plan"
	"github.com/Strob0t/agentrelay/internal/port/llm"
	"github.com/Strob0t/agentrelay/internal/port/planner"
)

// ErrInvalidPlan is returned when the model answers with something that is
// not a usable plan.
var ErrInvalidPlan = errors.New("planner returned an invalid plan")

const systemPrompt = `You are a planner for an agent execution engine.
Given a goal and the list of available agents, answer with a JSON object:
{"goal": "<goal>", "steps": [{"id": "<unique id>", "agent": "<agent name>", "group": "<optional>", "args": {}}]}
Steps run in order. Consecutive steps with the same non-empty group run concurrently.
Only use agents from the list. Put agents that need human approval where a reviewer should look.`

// Planner asks an LLM for a plan.
type Planner struct {
	llm       llm.Completer
	model     string
	maxTokens int
}

var _ planner.Planner = (*Planner)(nil)

// New creates a Planner using the given model.
func New(c llm.Completer, model string, maxTokens int) *Planner {
	return &Planner{llm: c, model: model, maxTokens: maxTokens}
}

// CreatePlan requests, parses and validates a plan for goal.
func (p *Planner) CreatePlan(ctx context.Context, goal string, agents []agent.Definition, hints map[string]any) (*plan.Plan, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("%w: goal is required", domain.ErrValidation)
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w: no agents available for planning", domain.ErrValidation)
	}

	user, err := userPrompt(goal, agents, hints)
	if err != nil {
		return nil, err
	}
	resp, err := p.llm.ChatCompletion(ctx, llm.ChatRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		JSONMode:  true,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("plan %q: %w", goal, err)
	}

	var out plan.Plan
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &out); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", domain.ErrValidation, ErrInvalidPlan, err)
	}
	if out.Goal == "" {
		out.Goal = goal
	}
	out.Normalize()
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", domain.ErrValidation, ErrInvalidPlan, err)
	}

	known := make(map[string]struct{}, len(agents))
	for i := range agents {
		known[agents[i].Name] = struct{}{}
	}
	for _, name := range out.AgentNames() {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("%w: %w: unknown agent %q", domain.ErrValidation, ErrInvalidPlan, name)
		}
	}
	return &out, nil
}

type agentSpec struct {
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Requires         []string `json:"requires,omitempty"`
	RequiresApproval bool     `json:"requires_approval,omitempty"`
}

func userPrompt(goal string, agents []agent.Definition, hints map[string]any) (string, error) {
	specs := make([]agentSpec, 0, len(agents))
	for i := range agents {
		d := &agents[i]
		specs = append(specs, agentSpec{
			Name:             d.Name,
			Description:      d.Description,
			Requires:         d.Requires,
			RequiresApproval: d.RequiresApproval || d.Kind == agent.KindApproval,
		})
	}
	agentsJSON, err := json.Marshal(specs)
	if err != nil {
		return "", fmt.Errorf("marshal agents: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\nAvailable agents: %s\n", goal, agentsJSON)
	if len(hints) > 0 {
		hintsJSON, err := json.Marshal(hints)
		if err != nil {
			return "", fmt.Errorf("marshal hints: %w", err)
		}
		fmt.Fprintf(&b, "\nContext: %s\n", hintsJSON)
	}
	return b.String(), nil
}

// stripFences removes a surrounding ```json fence some models add even in
// JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
