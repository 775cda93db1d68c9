package plan

import (
	"errors"
	"fmt"
)

var (
	ErrNoSteps            = errors.New("at least one step is required")
	ErrStepMissingAgent   = errors.New("step agent is required")
	ErrDuplicateStepID    = errors.New("step id is used more than once")
	ErrGroupNotContiguous = errors.New("group id reappears after a different group")
)

// Normalize fills in missing step ids as "step-<n>" (1-based position).
func (p *Plan) Normalize() {
	for i := range p.Steps {
		if p.Steps[i].ID == "" {
			p.Steps[i].ID = fmt.Sprintf("step-%d", i+1)
		}
	}
}

// Validate checks the plan for structural correctness. It expects
// Normalize to have been called when step ids may be empty.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return ErrNoSteps
	}

	ids := make(map[string]struct{}, len(p.Steps))
	closed := make(map[string]struct{})
	prevGroup := ""

	for i, s := range p.Steps {
		if s.Agent == "" {
			return fmt.Errorf("step %d: %w", i, ErrStepMissingAgent)
		}
		if s.ID != "" {
			if _, dup := ids[s.ID]; dup {
				return fmt.Errorf("step %d (%s): %w", i, s.ID, ErrDuplicateStepID)
			}
			ids[s.ID] = struct{}{}
		}

		if s.Group != prevGroup {
			if prevGroup != "" {
				closed[prevGroup] = struct{}{}
			}
			if _, reused := closed[s.Group]; reused {
				return fmt.Errorf("step %d group %q: %w", i, s.Group, ErrGroupNotContiguous)
			}
			prevGroup = s.Group
		}
	}
	return nil
}
