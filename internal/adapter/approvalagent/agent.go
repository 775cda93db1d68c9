// Package approvalagent implements the "approval" agent kind: a human gate.
// It records that approval was requested and always requires approval, so a
// dynamic execution suspends right after the group containing it.
package approvalagent

import (
	"context"

	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/port/agentkind"
)

func init() {
	agentkind.Register(agent.KindApproval, New)
}

// Agent is a human-in-the-loop checkpoint.
type Agent struct {
	agent.Base
}

// New builds an approval agent. The definition's requires_approval flag is
// forced on.
func New(def agent.Definition, _ agentkind.Deps) (agent.Agent, error) {
	def.RequiresApproval = true
	return &Agent{Base: agent.Base{Def: def}}, nil
}

// Execute marks the context as awaiting approval. The optional "reason"
// config entry is carried along for reviewers.
func (a *Agent) Execute(_ context.Context, _ agent.Context) (agent.Result, error) {
	details := map[string]any{a.Def.Name + ".approval_requested": true}
	if reason := a.Def.Config["reason"]; reason != "" {
		details[a.Def.Name+".reason"] = reason
	}
	return a.Success("approval requested", details), nil
}
