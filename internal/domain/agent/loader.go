package agent

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// definitionsFile is the on-disk layout of an agents file.
type definitionsFile struct {
	Agents []Definition `yaml:"agents"`
}

// LoadDefinitions reads agent definitions from a YAML file of the form
// `agents: [...]`. A missing file yields no definitions and no error.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read agents file %s: %w", path, err)
	}

	var f definitionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agents file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(f.Agents))
	for i := range f.Agents {
		d := &f.Agents[i]
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("agents file %s entry %d: %w", path, i, err)
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("agents file %s: duplicate agent %q", path, d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return f.Agents, nil
}
