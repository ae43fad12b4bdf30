package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the counters recorded while dispatching and waiting.
// A nil *Metrics records nothing.
type Metrics struct {
	dispatches       metric.Int64Counter
	transientRetries metric.Int64Counter
	runsCompleted    metric.Int64Counter
	notifyFailures   metric.Int64Counter
}

// NewMetrics creates the counters on mp, or on the global provider when mp
// is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(InstrumentationName)

	var m Metrics
	var err error
	if m.dispatches, err = meter.Int64Counter("dispatchwait.dispatches",
		metric.WithDescription("workflow_dispatch calls issued")); err != nil {
		return nil, fmt.Errorf("creating dispatches counter: %w", err)
	}
	if m.transientRetries, err = meter.Int64Counter("dispatchwait.transient_retries",
		metric.WithDescription("API calls retried after a transient failure")); err != nil {
		return nil, fmt.Errorf("creating transient_retries counter: %w", err)
	}
	if m.runsCompleted, err = meter.Int64Counter("dispatchwait.runs_completed",
		metric.WithDescription("tracked runs that reached a terminal state")); err != nil {
		return nil, fmt.Errorf("creating runs_completed counter: %w", err)
	}
	if m.notifyFailures, err = meter.Int64Counter("dispatchwait.notify_failures",
		metric.WithDescription("best-effort notifications that failed")); err != nil {
		return nil, fmt.Errorf("creating notify_failures counter: %w", err)
	}
	return &m, nil
}

// Dispatched records one dispatch call for workflow.
func (m *Metrics) Dispatched(ctx context.Context, workflow string) {
	if m == nil {
		return
	}
	m.dispatches.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow", workflow)))
}

// TransientRetry records one retried call; op names the loop.
func (m *Metrics) TransientRetry(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.transientRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RunCompleted records a run reaching a terminal state.
func (m *Metrics) RunCompleted(ctx context.Context, conclusion string) {
	if m == nil {
		return
	}
	m.runsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("conclusion", conclusion)))
}

// NotifyFailed records a failed best-effort notification for sink.
func (m *Metrics) NotifyFailed(ctx context.Context, sink string) {
	if m == nil {
		return
	}
	m.notifyFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}
