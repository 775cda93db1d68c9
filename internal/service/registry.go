package service

import (
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/port/agentkind"
)

// registryEntry pairs a live agent with the definition it was built from.
// Agents added directly (not from a definition) carry a synthesized one.
type registryEntry struct {
	agent agent.Agent
	def   agent.Definition
}

// AgentRegistry maps agent names to live instances. Lookups read an
// immutable snapshot and never block; writers copy the map under a mutex
// and publish the new snapshot atomically.
type AgentRegistry struct {
	mu      sync.Mutex // serializes writers
	entries atomic.Pointer[map[string]registryEntry]
	deps    agentkind.Deps
}

// NewAgentRegistry creates an empty registry. deps are handed to every
// agent kind factory on Register.
func NewAgentRegistry(deps agentkind.Deps) *AgentRegistry {
	r := &AgentRegistry{deps: deps}
	empty := make(map[string]registryEntry)
	r.entries.Store(&empty)
	return r
}

// Register builds the agent described by def and stores it under def.Name,
// replacing any previous agent with that name. An identical definition
// keeps the running instance. Construction errors are returned and leave
// the registry unchanged.
func (r *AgentRegistry) Register(def agent.Definition) (agent.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.entries.Load()
	if e, ok := current[def.Name]; ok && reflect.DeepEqual(e.def, def) {
		return e.agent, nil
	}

	a, err := agentkind.New(def, r.deps)
	if err != nil {
		return nil, err
	}
	if a.Name() != def.Name {
		return nil, fmt.Errorf("%w: agent kind %s built %q for definition %q",
			domain.ErrValidation, def.Kind, a.Name(), def.Name)
	}

	r.publish(current, def.Name, &registryEntry{agent: a, def: def})
	slog.Info("agent registered", "agent", def.Name, "kind", def.Kind)
	return a, nil
}

// RegisterAll registers every definition, stopping at the first failure.
func (r *AgentRegistry) RegisterAll(defs []agent.Definition) error {
	for i := range defs {
		if _, err := r.Register(defs[i]); err != nil {
			return fmt.Errorf("register agent %s: %w", defs[i].Name, err)
		}
	}
	return nil
}

// Add stores a ready-made agent under its name, replacing any previous one.
func (r *AgentRegistry) Add(a agent.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def := agent.Definition{
		Name:             a.Name(),
		Description:      a.Description(),
		RequiresApproval: agent.RequiresApproval(a),
	}
	r.publish(*r.entries.Load(), a.Name(), &registryEntry{agent: a, def: def})
}

// Unregister removes the agent called name. It reports whether one existed.
func (r *AgentRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.entries.Load()
	if _, ok := current[name]; !ok {
		return false
	}
	r.publish(current, name, nil)
	slog.Info("agent unregistered", "agent", name)
	return true
}

// publish installs a copy of current with name set to e, or removed when e
// is nil. Callers hold r.mu.
func (r *AgentRegistry) publish(current map[string]registryEntry, name string, e *registryEntry) {
	next := maps.Clone(current)
	if e == nil {
		delete(next, name)
	} else {
		next[name] = *e
	}
	r.entries.Store(&next)
}

// Get returns the agent called name. A missing name is not an error.
func (r *AgentRegistry) Get(name string) (agent.Agent, bool) {
	e, ok := (*r.entries.Load())[name]
	return e.agent, ok
}

// Resolve returns the agent called name or an error wrapping
// domain.ErrNotFound.
func (r *AgentRegistry) Resolve(name string) (agent.Agent, error) {
	a, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("agent %q: %w", name, domain.ErrNotFound)
	}
	return a, nil
}

// Names returns the registered names in sorted order.
func (r *AgentRegistry) Names() []string {
	return slices.Sorted(maps.Keys(*r.entries.Load()))
}

// Definitions returns the definitions of all registered agents sorted by name.
func (r *AgentRegistry) Definitions() []agent.Definition {
	snapshot := *r.entries.Load()
	defs := make([]agent.Definition, 0, len(snapshot))
	for _, e := range snapshot {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Len returns the number of registered agents.
func (r *AgentRegistry) Len() int { return len(*r.entries.Load()) }
