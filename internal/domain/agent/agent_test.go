package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Strob0t/agentrelay/internal/domain/agent"
)

func TestContextMerge_LaterKeysWin(t *testing.T) {
	base := agent.NewContext(map[string]any{"a": 1, "b": 2})
	merged := base.Merge(map[string]any{"b": 3, "c": 4})

	want := map[string]any{"a": 1, "b": 3, "c": 4}
	if !reflect.DeepEqual(merged.Values(), want) {
		t.Fatalf("merged = %v, want %v", merged.Values(), want)
	}
	// Receiver is unchanged.
	if v, _ := base.Get("b"); v != 2 {
		t.Errorf("base mutated: b = %v", v)
	}
	if base.Has("c") {
		t.Error("base mutated: c present")
	}
}

func TestNewContext_CopiesInput(t *testing.T) {
	in := map[string]any{"k": "v"}
	c := agent.NewContext(in)
	in["k"] = "changed"

	if got := c.String("k"); got != "v" {
		t.Errorf("context aliased caller map: k = %q", got)
	}
}

func TestContextValues_ReturnsCopy(t *testing.T) {
	c := agent.NewContext(map[string]any{"k": "v"})
	vals := c.Values()
	vals["k"] = "changed"

	if got := c.String("k"); got != "v" {
		t.Errorf("Values leaked internal map: k = %q", got)
	}
}

func TestContextJSONRoundTrip(t *testing.T) {
	c := agent.NewContext(map[string]any{"id": "42", "n": json.Number("3")})
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}

	var back agent.Context
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back.Values(), c.Values()) {
		t.Errorf("round trip = %v, want %v", back.Values(), c.Values())
	}

	empty, _ := json.Marshal(agent.Context{})
	if string(empty) != "{}" {
		t.Errorf("empty context = %s, want {}", empty)
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{"nil", nil, nil},
		{"empty", map[string]any{}, nil},
		{"int", map[string]any{"n": 3}, map[string]any{"n": json.Number("3")}},
		{"float", map[string]any{"f": 0.5}, map[string]any{"f": json.Number("0.5")}},
		{"large uint", map[string]any{"u": uint64(1<<60 + 1)}, map[string]any{"u": json.Number("1152921504606846977")}},
		{"nested", map[string]any{"m": map[string]int{"a": 1}, "l": []int{2}}, map[string]any{
			"m": map[string]any{"a": json.Number("1")},
			"l": []any{json.Number("2")},
		}},
		{"strings and bools", map[string]any{"s": "x", "b": true}, map[string]any{"s": "x", "b": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := agent.Canonical(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Canonical = %#v, want %#v", got, tt.want)
			}
		})
	}

	if _, err := agent.Canonical(map[string]any{"f": func() {}}); err == nil {
		t.Error("expected error for a value JSON cannot encode")
	}
}

func TestContextCanonicalMatchesStoredForm(t *testing.T) {
	c := agent.NewContext(map[string]any{"n": 7, "s": "x"})
	canon, err := c.Canonical()
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	var stored agent.Context
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(canon.Values(), stored.Values()) {
		t.Errorf("canonical %v differs from stored %v", canon.Values(), stored.Values())
	}
	if v, _ := c.Get("n"); v != 7 {
		t.Error("Canonical must not modify the receiver")
	}
}

func TestContextKeysSorted(t *testing.T) {
	c := agent.NewContext(map[string]any{"z": 1, "a": 2, "m": 3})
	if got := c.Keys(); !reflect.DeepEqual(got, []string{"a", "m", "z"}) {
		t.Errorf("Keys = %v", got)
	}
}

type plainAgent struct{ agent.Base }

func (p *plainAgent) Execute(_ context.Context, _ agent.Context) (agent.Result, error) {
	return p.Success("ok", nil), nil
}

type bareAgent struct{}

func (bareAgent) Name() string                 { return "bare" }
func (bareAgent) Description() string          { return "" }
func (bareAgent) CanHandle(agent.Context) bool { return true }
func (bareAgent) Execute(context.Context, agent.Context) (agent.Result, error) {
	return agent.Result{}, nil
}

func TestRequiresApproval(t *testing.T) {
	gated := &plainAgent{agent.Base{Def: agent.Definition{Name: "g", RequiresApproval: true}}}
	open := &plainAgent{agent.Base{Def: agent.Definition{Name: "o"}}}

	if !agent.RequiresApproval(gated) {
		t.Error("gated agent should require approval")
	}
	if agent.RequiresApproval(open) {
		t.Error("open agent should not require approval")
	}
	if agent.RequiresApproval(bareAgent{}) {
		t.Error("agents without ApprovalGate default to no approval")
	}
}

func TestBaseCanHandle(t *testing.T) {
	a := &plainAgent{agent.Base{Def: agent.Definition{Name: "a", Requires: []string{"ticket_id", "repo"}}}}

	if a.CanHandle(agent.NewContext(map[string]any{"ticket_id": "1"})) {
		t.Error("expected false when a required key is missing")
	}
	if !a.CanHandle(agent.NewContext(map[string]any{"ticket_id": "1", "repo": "r"})) {
		t.Error("expected true when all required keys are present")
	}
}

func TestFailureResult(t *testing.T) {
	r := agent.Failure("fetch", errors.New("boom"))
	if r.Succeeded() {
		t.Fatal("failure result reports success")
	}
	if r.Summary != "boom" || r.Details["fetch.error"] != "boom" {
		t.Errorf("unexpected failure result: %+v", r)
	}
}

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     agent.Definition
		wantErr error
	}{
		{"valid", agent.Definition{Name: "a", Kind: "static"}, nil},
		{"missing name", agent.Definition{Kind: "static"}, agent.ErrNameRequired},
		{"missing kind", agent.Definition{Name: "a"}, agent.ErrKindRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	content := `
agents:
  - name: fetch-data
    kind: static
    config:
      record: "loaded"
  - name: needs-approval
    kind: approval
    requires: [record]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	defs, err := agent.LoadDefinitions(path)
	if err != nil {
		t.Fatalf("LoadDefinitions: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[1].Requires[0] != "record" || defs[0].Config["record"] != "loaded" {
		t.Errorf("unexpected definitions: %+v", defs)
	}
}

func TestLoadDefinitions_Missing(t *testing.T) {
	defs, err := agent.LoadDefinitions(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil || defs != nil {
		t.Errorf("missing file should yield nil, nil; got %v, %v", defs, err)
	}
}

func TestLoadDefinitions_Duplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	content := "agents:\n  - {name: a, kind: static}\n  - {name: a, kind: static}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := agent.LoadDefinitions(path); err == nil {
		t.Fatal("expected duplicate error")
	}
}
