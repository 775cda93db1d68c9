package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentrelay"

// Step outcomes recorded by RecordStep.
const (
	StepSucceeded = "succeeded"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
)

// Metrics holds all AgentRelay metric instruments. A nil *Metrics records
// nothing.
type Metrics struct {
	ExecutionsStarted   metric.Int64Counter
	ExecutionsCompleted metric.Int64Counter
	ExecutionsFailed    metric.Int64Counter
	ExecutionsSuspended metric.Int64Counter
	ExecutionsRejected  metric.Int64Counter
	StepsExecuted       metric.Int64Counter
	StepsSkipped        metric.Int64Counter
	StepsFailed         metric.Int64Counter
	StepDuration        metric.Float64Histogram
}

// NewMetrics creates all metric instruments from the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFrom(otel.GetMeterProvider())
}

// NewMetricsFrom creates all metric instruments from mp.
func NewMetricsFrom(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.ExecutionsStarted, "agentrelay.executions.started", "Number of plan executions started"},
		{&m.ExecutionsCompleted, "agentrelay.executions.completed", "Number of plan executions completed"},
		{&m.ExecutionsFailed, "agentrelay.executions.failed", "Number of plan executions failed"},
		{&m.ExecutionsSuspended, "agentrelay.executions.suspended", "Number of times an execution stopped for approval"},
		{&m.ExecutionsRejected, "agentrelay.executions.rejected", "Number of executions rejected by a reviewer"},
		{&m.StepsExecuted, "agentrelay.steps.executed", "Number of agent steps executed"},
		{&m.StepsSkipped, "agentrelay.steps.skipped", "Number of agent steps skipped because the agent could not handle the context"},
		{&m.StepsFailed, "agentrelay.steps.failed", "Number of agent steps that returned FAILURE"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	var err error
	m.StepDuration, err = meter.Float64Histogram("agentrelay.step.duration_seconds",
		metric.WithDescription("Agent step duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordExecution counts a lifecycle event. status is the execution status
// the run moved to; RUNNING counts as started.
func (m *Metrics) RecordExecution(ctx context.Context, status string) {
	if m == nil {
		return
	}
	var c metric.Int64Counter
	switch status {
	case "RUNNING":
		c = m.ExecutionsStarted
	case "COMPLETED":
		c = m.ExecutionsCompleted
	case "FAILED":
		c = m.ExecutionsFailed
	case "PENDING_APPROVAL":
		c = m.ExecutionsSuspended
	case "REJECTED":
		c = m.ExecutionsRejected
	default:
		return
	}
	c.Add(ctx, 1)
}

// RecordStep counts one step outcome for agentName. Duration is recorded
// for steps that ran.
func (m *Metrics) RecordStep(ctx context.Context, agentName, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("agent", agentName))
	switch outcome {
	case StepSkipped:
		m.StepsSkipped.Add(ctx, 1, attrs)
		return
	case StepFailed:
		m.StepsFailed.Add(ctx, 1, attrs)
	}
	m.StepsExecuted.Add(ctx, 1, attrs)
	m.StepDuration.Record(ctx, d.Seconds(), attrs)
}
