// Package plan defines dynamically produced execution plans: an ordered list
// of agent steps where consecutive steps sharing a group id run concurrently.
package plan

// Plan is an ordered list of steps produced by a planner or submitted directly.
type Plan struct {
	Goal  string `json:"goal,omitempty" yaml:"goal,omitempty"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Step invokes one agent. Args are merged into the context seen by this
// step only.
type Step struct {
	ID    string         `json:"id" yaml:"id"`
	Agent string         `json:"agent" yaml:"agent"`
	Group string         `json:"group,omitempty" yaml:"group,omitempty"`
	Args  map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// Group is a run of consecutive steps executed together. A step without a
// group id forms a group of one.
type Group struct {
	ID    string `json:"id,omitempty"`
	Steps []Step `json:"steps"`
}

// Parallel reports whether the group has more than one member.
func (g Group) Parallel() bool { return len(g.Steps) > 1 }

// Groups splits the plan into its execution groups, preserving order.
// Callers should Validate first; Groups does not check id reuse.
func (p *Plan) Groups() []Group {
	var groups []Group
	for _, s := range p.Steps {
		n := len(groups)
		if s.Group != "" && n > 0 && groups[n-1].ID == s.Group {
			groups[n-1].Steps = append(groups[n-1].Steps, s)
			continue
		}
		groups = append(groups, Group{ID: s.Group, Steps: []Step{s}})
	}
	return groups
}

// AgentNames returns the distinct agent names referenced by the plan in
// first-use order.
func (p *Plan) AgentNames() []string {
	seen := make(map[string]struct{}, len(p.Steps))
	names := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		if _, ok := seen[s.Agent]; ok {
			continue
		}
		seen[s.Agent] = struct{}{}
		names = append(names, s.Agent)
	}
	return names
}
