package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentrelay"

// StartExecutionSpan starts a span covering one advance of a plan execution,
// from submit or resume until it suspends or terminates.
func StartExecutionSpan(ctx context.Context, executionID string, cursor int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "execution",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.Int("execution.cursor", cursor),
		),
	)
}

// StartGroupSpan starts a span for one execution group.
func StartGroupSpan(ctx context.Context, index, size int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "group",
		trace.WithAttributes(
			attribute.Int("group.index", index),
			attribute.Int("group.size", size),
		),
	)
}

// StartStepSpan starts a span for one agent invocation.
func StartStepSpan(ctx context.Context, stepID, agentName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "step",
		trace.WithAttributes(
			attribute.String("step.id", stepID),
			attribute.String("agent.name", agentName),
		),
	)
}

// StartPipelineSpan starts a span for a static pipeline invocation.
func StartPipelineSpan(ctx context.Context, pipelineName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pipeline",
		trace.WithAttributes(attribute.String("pipeline.name", pipelineName)),
	)
}
