// Package a2a exposes the static pipelines to other agents over the A2A
// protocol. Each pipeline is advertised as a skill on the agent card; a
// message names the pipeline in its metadata and carries the initial
// context as data parts.
package a2a

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	a2alib "github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/pipeline"
)

// Message metadata keys understood by the executor.
const (
	MetaPipeline = "pipeline" // name of the pipeline to invoke
	InputKey     = "input"    // context key that receives the message text
)

// PipelineRunner runs static pipelines.
type PipelineRunner interface {
	Pipelines() []pipeline.Pipeline
	Invoke(ctx context.Context, name string, initial agent.Context) ([]agent.Result, error)
}

// Executor implements a2asrv.AgentExecutor by invoking a static pipeline
// for each message and returning its results as one data artifact.
type Executor struct {
	runner PipelineRunner
}

// NewExecutor creates an Executor.
func NewExecutor(runner PipelineRunner) *Executor {
	return &Executor{runner: runner}
}

// Execute implements a2asrv.AgentExecutor.
func (e *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	msg := reqCtx.Message
	if msg == nil {
		return errors.New("message not provided")
	}

	if reqCtx.StoredTask == nil {
		if err := queue.Write(ctx, a2alib.NewStatusUpdateEvent(reqCtx, a2alib.TaskStateSubmitted, nil)); err != nil {
			return fmt.Errorf("write submitted event: %w", err)
		}
	}

	name, _ := msg.Metadata[MetaPipeline].(string)
	if name == "" {
		return writeFailed(ctx, reqCtx, queue, fmt.Errorf("%w: message metadata must name a %q", domain.ErrValidation, MetaPipeline))
	}

	if err := queue.Write(ctx, a2alib.NewStatusUpdateEvent(reqCtx, a2alib.TaskStateWorking, nil)); err != nil {
		return fmt.Errorf("write working event: %w", err)
	}

	slog.InfoContext(ctx, "a2a pipeline invoke", "pipeline", name, "task_id", string(reqCtx.TaskID))
	results, err := e.runner.Invoke(ctx, name, contextFrom(msg))
	if err != nil {
		return writeFailed(ctx, reqCtx, queue, err)
	}

	artifact := a2alib.NewArtifactEvent(reqCtx, resultParts(results)...)
	artifact.LastChunk = true
	if err := queue.Write(ctx, artifact); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}

	done := a2alib.NewStatusUpdateEvent(reqCtx, a2alib.TaskStateCompleted, nil)
	done.Final = true
	return queue.Write(ctx, done)
}

// Cancel implements a2asrv.AgentExecutor. Pipelines run to completion
// once started, so this only marks the task canceled.
func (e *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	ev := a2alib.NewStatusUpdateEvent(reqCtx, a2alib.TaskStateCanceled, nil)
	ev.Final = true
	return queue.Write(ctx, ev)
}

func writeFailed(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue, cause error) error {
	text := strings.TrimPrefix(cause.Error(), domain.ErrValidation.Error()+": ")
	msg := a2alib.NewMessageForTask(a2alib.MessageRoleAgent, reqCtx, a2alib.TextPart{Text: text})
	ev := a2alib.NewStatusUpdateEvent(reqCtx, a2alib.TaskStateFailed, msg)
	ev.Final = true
	return queue.Write(ctx, ev)
}

// contextFrom builds the initial pipeline context from the message: data
// parts are merged in order and text parts are joined under InputKey.
func contextFrom(msg *a2alib.Message) agent.Context {
	values := make(map[string]any)
	var text []string
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case a2alib.DataPart:
			maps.Copy(values, p.Data)
		case *a2alib.DataPart:
			maps.Copy(values, p.Data)
		case a2alib.TextPart:
			text = append(text, p.Text)
		case *a2alib.TextPart:
			text = append(text, p.Text)
		}
	}
	if len(text) > 0 {
		values[InputKey] = strings.Join(text, "\n")
	}
	return agent.NewContext(values)
}

func resultParts(results []agent.Result) []a2alib.Part {
	parts := make([]a2alib.Part, 0, len(results))
	for _, r := range results {
		data := map[string]any{
			"agent_name": r.AgentName,
			"status":     string(r.Status),
			"summary":    r.Summary,
		}
		if len(r.Details) > 0 {
			data["details"] = r.Details
		}
		parts = append(parts, a2alib.DataPart{Data: data})
	}
	return parts
}

var _ a2asrv.AgentExecutor = (*Executor)(nil)
