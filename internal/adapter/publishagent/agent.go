// Package publishagent implements the "publish" agent kind. It sends selected
// context values to notify.<topic> so external systems can react to a run.
package publishagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/logger"
	"github.com/Strob0t/agentrelay/internal/port/agentkind"
	"github.com/Strob0t/agentrelay/internal/port/messagequeue"
)

var (
	ErrTopicRequired = errors.New("publish agent: topic is required")
	ErrNoQueue       = errors.New("publish agent: no message queue configured")
)

func init() {
	agentkind.Register(agent.KindPublish, New)
}

// Agent publishes a notification built from the context.
type Agent struct {
	agent.Base
	queue   messagequeue.Queue
	subject string
	keys    []string
}

// New builds a publish agent. Config "topic" names the subject suffix and
// "keys" is a comma-separated list of context keys to send; empty sends the
// whole context.
func New(def agent.Definition, deps agentkind.Deps) (agent.Agent, error) {
	if deps.Queue == nil {
		return nil, ErrNoQueue
	}
	topic := strings.TrimSpace(def.Config["topic"])
	if topic == "" {
		return nil, ErrTopicRequired
	}

	var keys []string
	for _, k := range strings.Split(def.Config["keys"], ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return &Agent{
		Base:    agent.Base{Def: def},
		queue:   deps.Queue,
		subject: messagequeue.SubjectNotify + "." + topic,
		keys:    keys,
	}, nil
}

// Execute publishes the selected values. Missing keys are left out.
func (a *Agent) Execute(ctx context.Context, c agent.Context) (agent.Result, error) {
	data := c.Values()
	if len(a.keys) > 0 {
		data = make(map[string]any, len(a.keys))
		for _, k := range a.keys {
			if v, ok := c.Get(k); ok {
				data[k] = v
			}
		}
	}

	payload, err := json.Marshal(messagequeue.NotifyPayload{
		Agent:       a.Def.Name,
		ExecutionID: logger.ExecutionID(ctx),
		Data:        data,
	})
	if err != nil {
		return agent.Result{}, fmt.Errorf("marshal notification: %w", err)
	}
	if err := a.queue.Publish(ctx, a.subject, payload); err != nil {
		return agent.Result{}, fmt.Errorf("publish %s: %w", a.subject, err)
	}

	return a.Success("published to "+a.subject, map[string]any{
		a.Def.Name + ".published": true,
		a.Def.Name + ".subject":   a.subject,
	}), nil
}
