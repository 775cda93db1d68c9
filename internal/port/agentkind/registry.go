// Package agentkind is the registry of agent kinds. Each kind is a factory
// that turns an agent.Definition into a live agent.Agent.
package agentkind

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/port/cache"
	"github.com/Strob0t/agentrelay/internal/port/llm"
	"github.com/Strob0t/agentrelay/internal/port/messagequeue"
)

// Deps are the shared collaborators handed to every factory. Any field may
// be nil; factories that need a missing dependency must return an error.
type Deps struct {
	LLM    llm.Completer
	Cache  cache.Cache
	Queue  messagequeue.Queue
	Logger *slog.Logger
}

// Factory builds an agent from its definition.
type Factory func(def agent.Definition, deps Deps) (agent.Agent, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes an agent kind available by name.
// It is typically called from an init() function in the adapter package.
func Register(kind string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("agentkind: duplicate registration for %q", kind))
	}
	factories[kind] = factory
}

// New builds an agent from def using the factory registered for def.Kind.
func New(def agent.Definition, deps Deps) (agent.Agent, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	mu.RLock()
	factory, ok := factories[def.Kind]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: agent %s: unknown kind %q", domain.ErrValidation, def.Name, def.Kind)
	}
	a, err := factory(def, deps)
	if err != nil {
		return nil, fmt.Errorf("%w: build agent %s (%s): %w", domain.ErrValidation, def.Name, def.Kind, err)
	}
	return a, nil
}

// Available returns the registered kinds in sorted order.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
