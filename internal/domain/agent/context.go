package agent

import (
	"encoding/json"
	"maps"
	"slices"
)

// Context is the immutable key/value bag threaded through a pipeline or plan.
// Every step sees the context produced by the steps before it. Merge never
// mutates the receiver.
type Context struct {
	values map[string]any
}

// NewContext returns a Context holding a copy of values.
func NewContext(values map[string]any) Context {
	if len(values) == 0 {
		return Context{}
	}
	return Context{values: maps.Clone(values)}
}

// Get returns the value stored under key.
func (c Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Has reports whether every key is present.
func (c Context) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := c.values[k]; !ok {
			return false
		}
	}
	return true
}

// String returns the value under key if it is a string.
func (c Context) String(key string) string {
	s, _ := c.values[key].(string)
	return s
}

// Len returns the number of keys.
func (c Context) Len() int { return len(c.values) }

// Keys returns the keys in sorted order.
func (c Context) Keys() []string {
	return slices.Sorted(maps.Keys(c.values))
}

// Values returns a shallow copy of the underlying map.
func (c Context) Values() map[string]any {
	out := make(map[string]any, len(c.values))
	maps.Copy(out, c.values)
	return out
}

// Merge returns a new Context with details layered over the receiver.
// Keys in details override existing keys.
func (c Context) Merge(details map[string]any) Context {
	if len(details) == 0 {
		return c
	}
	out := make(map[string]any, len(c.values)+len(details))
	maps.Copy(out, c.values)
	maps.Copy(out, details)
	return Context{values: out}
}

// MarshalJSON encodes the context as a plain JSON object.
func (c Context) MarshalJSON() ([]byte, error) {
	if c.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.values)
}

// UnmarshalJSON decodes a JSON object into the context. Numbers decode
// as json.Number.
func (c *Context) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := DecodeJSON(data, &m); err != nil {
		return err
	}
	c.values = m
	return nil
}
