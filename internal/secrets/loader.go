package secrets

import (
	"bufio"
	"fmt"
	"maps"
	"os"
	"strings"
)

// Static returns a Loader that always yields a copy of values. Empty
// values are omitted.
func Static(values map[string]string) Loader {
	return func() (map[string]string, error) {
		out := make(map[string]string, len(values))
		for k, v := range values {
			if v != "" {
				out[k] = v
			}
		}
		return out, nil
	}
}

// FileLoader returns a Loader that reads KEY=VALUE lines from path, as
// written by a secret mount. Blank lines and lines starting with # are
// skipped; surrounding quotes on a value are removed.
func FileLoader(path string) Loader {
	return func() (map[string]string, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open secrets file: %w", err)
		}
		defer f.Close()

		vals := make(map[string]string)
		scanner := bufio.NewScanner(f)
		for line := 1; scanner.Scan(); line++ {
			text := strings.TrimSpace(scanner.Text())
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			key, value, ok := strings.Cut(text, "=")
			if !ok {
				return nil, fmt.Errorf("%s:%d: expected KEY=VALUE", path, line)
			}
			value = strings.TrimSpace(value)
			if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
				value = value[1 : len(value)-1]
			}
			vals[strings.TrimSpace(key)] = value
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
		return vals, nil
	}
}

// Layered merges loaders in order; later loaders override earlier ones.
// Any loader failing fails the whole load.
func Layered(loaders ...Loader) Loader {
	return func() (map[string]string, error) {
		out := make(map[string]string)
		for _, l := range loaders {
			vals, err := l()
			if err != nil {
				return nil, err
			}
			maps.Copy(out, vals)
		}
		return out, nil
	}
}
