// Package llmagent implements the "llm" agent kind. The agent renders a
// prompt template over the execution context, asks the LLM for a completion
// and writes the reply back into the context.
//
// Recognised config entries:
//
//	prompt      text/template rendered with the context values (required)
//	system      optional system message
//	model       model name, defaults to DefaultModel
//	output_key  detail key for the reply, defaults to "<name>.output"
//	format      "text" (default) or "json"; json replies must be objects and
//	            their keys are merged into the details
//	max_tokens  completion limit
//	cache_ttl   how long identical prompts are served from cache (e.g. "1h");
//	            "0" disables caching
package llmagent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/port/agentkind"
	"github.com/Strob0t/agentrelay/internal/port/cache"
	"github.com/Strob0t/agentrelay/internal/port/llm"
)

// DefaultModel is used when the definition does not name a model.
const DefaultModel = "openai/gpt-4o-mini"

const (
	formatText = "text"
	formatJSON = "json"

	defaultCacheTTL = time.Hour
)

var (
	ErrPromptRequired = errors.New("llm agent: prompt is required")
	ErrNoCompleter    = errors.New("llm agent: no LLM client configured")
	ErrNotJSONObject  = errors.New("llm agent: reply is not a JSON object")
)

func init() {
	agentkind.Register(agent.KindLLM, New)
}

// Agent calls an LLM with a templated prompt.
type Agent struct {
	agent.Base
	llm       llm.Completer
	cache     cache.Cache
	log       *slog.Logger
	prompt    *template.Template
	system    string
	model     string
	outputKey string
	format    string
	maxTokens int
	cacheTTL  time.Duration
}

// New builds an llm agent. deps.LLM is required; deps.Cache is optional.
func New(def agent.Definition, deps agentkind.Deps) (agent.Agent, error) {
	if deps.LLM == nil {
		return nil, ErrNoCompleter
	}
	cfg := def.Config
	if cfg["prompt"] == "" {
		return nil, ErrPromptRequired
	}
	tmpl, err := template.New(def.Name).Option("missingkey=zero").Parse(cfg["prompt"])
	if err != nil {
		return nil, fmt.Errorf("llm agent %s: parse prompt: %w", def.Name, err)
	}

	a := &Agent{
		Base:      agent.Base{Def: def},
		llm:       deps.LLM,
		cache:     deps.Cache,
		log:       deps.Logger,
		prompt:    tmpl,
		system:    cfg["system"],
		model:     cfg["model"],
		outputKey: cfg["output_key"],
		format:    cfg["format"],
		cacheTTL:  defaultCacheTTL,
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.model == "" {
		a.model = DefaultModel
	}
	if a.outputKey == "" {
		a.outputKey = def.Name + ".output"
	}
	switch a.format {
	case "":
		a.format = formatText
	case formatText, formatJSON:
	default:
		return nil, fmt.Errorf("llm agent %s: unknown format %q", def.Name, a.format)
	}
	if v := cfg["max_tokens"]; v != "" {
		if a.maxTokens, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("llm agent %s: max_tokens: %w", def.Name, err)
		}
	}
	if v := cfg["cache_ttl"]; v != "" {
		if v == "0" {
			a.cacheTTL = 0
		} else if a.cacheTTL, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("llm agent %s: cache_ttl: %w", def.Name, err)
		}
	}
	return a, nil
}

// Execute renders the prompt, completes it and returns the reply as details.
func (a *Agent) Execute(ctx context.Context, c agent.Context) (agent.Result, error) {
	var prompt strings.Builder
	if err := a.prompt.Execute(&prompt, c.Values()); err != nil {
		return agent.Result{}, fmt.Errorf("render prompt: %w", err)
	}

	req := llm.ChatRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		JSONMode:  a.format == formatJSON,
	}
	if a.system != "" {
		req.Messages = append(req.Messages, llm.Message{Role: "system", Content: a.system})
	}
	req.Messages = append(req.Messages, llm.Message{Role: "user", Content: prompt.String()})

	reply, cached, err := a.complete(ctx, req)
	if err != nil {
		return agent.Result{}, err
	}

	details := map[string]any{a.outputKey: reply}
	if a.format == formatJSON {
		var obj map[string]any
		if err := json.Unmarshal([]byte(reply), &obj); err != nil || obj == nil {
			return agent.Result{}, fmt.Errorf("%w: %s", ErrNotJSONObject, truncate(reply, 200))
		}
		for k, v := range obj {
			details[k] = v
		}
	}

	summary := "completion received"
	if cached {
		summary = "completion served from cache"
	}
	return a.Success(summary, details), nil
}

// complete returns the reply for req, consulting the cache first. Cache
// failures are logged and never fail the step.
func (a *Agent) complete(ctx context.Context, req llm.ChatRequest) (reply string, cached bool, err error) {
	key := ""
	if a.cache != nil && a.cacheTTL > 0 {
		key = cacheKey(req)
		data, found, cerr := a.cache.Get(ctx, key)
		switch {
		case cerr != nil:
			a.log.WarnContext(ctx, "llm cache read failed", "agent", a.Def.Name, "error", cerr)
		case found:
			return string(data), true, nil
		}
	}

	resp, err := a.llm.ChatCompletion(ctx, req)
	if err != nil {
		return "", false, err
	}
	a.log.DebugContext(ctx, "llm completion", "agent", a.Def.Name, "model", resp.Model,
		"tokens_in", resp.TokensIn, "tokens_out", resp.TokensOut)

	if key != "" {
		if cerr := a.cache.Set(ctx, key, []byte(resp.Content), a.cacheTTL); cerr != nil {
			a.log.WarnContext(ctx, "llm cache write failed", "agent", a.Def.Name, "error", cerr)
		}
	}
	return resp.Content, false, nil
}

// cacheKey derives a stable key from everything that influences the reply.
func cacheKey(req llm.ChatRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%t", req.Model, req.MaxTokens, req.JSONMode)
	for _, m := range req.Messages {
		fmt.Fprintf(h, "\x00%s\x00%s", m.Role, m.Content)
	}
	return "llm." + hex.EncodeToString(h.Sum(nil))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
