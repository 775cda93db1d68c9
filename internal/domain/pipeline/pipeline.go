// Package pipeline defines named, fixed sequences of agents and the
// immutable catalog they are looked up in.
package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	ErrNameRequired  = errors.New("pipeline name is required")
	ErrNoAgents      = errors.New("pipeline must list at least one agent")
	ErrEmptyAgent    = errors.New("pipeline agent name is empty")
	ErrDuplicateName = errors.New("pipeline name is defined more than once")
)

// Pipeline is a named ordered list of agent names run as a sequential fold.
type Pipeline struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Agents      []string `json:"agents" yaml:"agents"`
	Builtin     bool     `json:"builtin" yaml:"-"`
}

// Validate checks the pipeline for structural correctness.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return ErrNameRequired
	}
	if len(p.Agents) == 0 {
		return fmt.Errorf("pipeline %s: %w", p.Name, ErrNoAgents)
	}
	for i, a := range p.Agents {
		if a == "" {
			return fmt.Errorf("pipeline %s agent %d: %w", p.Name, i, ErrEmptyAgent)
		}
	}
	return nil
}

// Catalog is a read-only name → pipeline table built once at start-up.
type Catalog struct {
	byName map[string]Pipeline
	names  []string
}

// NewCatalog validates and indexes pipelines. Duplicate names are an error.
func NewCatalog(pipelines ...Pipeline) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Pipeline, len(pipelines))}
	for i := range pipelines {
		p := pipelines[i]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("pipeline %s: %w", p.Name, ErrDuplicateName)
		}
		p.Agents = slices.Clone(p.Agents)
		c.byName[p.Name] = p
		c.names = append(c.names, p.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Get returns the pipeline registered under name.
func (c *Catalog) Get(name string) (Pipeline, bool) {
	p, ok := c.byName[name]
	if !ok {
		return Pipeline{}, false
	}
	p.Agents = slices.Clone(p.Agents)
	return p, true
}

// List returns all pipelines sorted by name.
func (c *Catalog) List() []Pipeline {
	out := make([]Pipeline, 0, len(c.names))
	for _, n := range c.names {
		p, _ := c.Get(n)
		out = append(out, p)
	}
	return out
}
