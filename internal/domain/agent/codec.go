package agent

import (
	"bytes"
	"encoding/json"
)

// DecodeJSON decodes data into dst with numbers kept as json.Number, so
// integers survive storage exactly.
func DecodeJSON(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}

// Canonical returns values in the form they take after being stored and
// read back: JSON types only, numbers as json.Number. Empty input yields
// nil, matching an omitted field.
func Canonical(values map[string]any) (map[string]any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := DecodeJSON(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Canonical returns the context in its stored form. See Canonical.
func (c Context) Canonical() (Context, error) {
	values, err := Canonical(c.values)
	if err != nil {
		return Context{}, err
	}
	return Context{values: values}, nil
}
