// Package staticagent implements the "static" agent kind: it emits its
// configured values as result details. Useful for fixed enrichment steps.
package staticagent

import (
	"context"
	"maps"

	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/port/agentkind"
)

// summaryKey is the config entry used as the result summary rather than a detail.
const summaryKey = "summary"

func init() {
	agentkind.Register(agent.KindStatic, New)
}

// Agent returns its configuration as details on every run.
type Agent struct {
	agent.Base
	summary string
	details map[string]string
}

// New builds a static agent from def. It needs no dependencies.
func New(def agent.Definition, _ agentkind.Deps) (agent.Agent, error) {
	details := maps.Clone(def.Config)
	delete(details, summaryKey)

	summary := def.Config[summaryKey]
	if summary == "" {
		summary = def.Name + " done"
	}
	return &Agent{Base: agent.Base{Def: def}, summary: summary, details: details}, nil
}

// Execute emits the configured details. It never fails.
func (a *Agent) Execute(_ context.Context, _ agent.Context) (agent.Result, error) {
	out := make(map[string]any, len(a.details))
	for k, v := range a.details {
		out[k] = v
	}
	return a.Success(a.summary, out), nil
}
