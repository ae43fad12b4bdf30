// Package dispatch fires workflow_dispatch events and resolves the runs they
// created.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/dispatchwait/internal/ghapi"
	"github.com/dwsmith1983/dispatchwait/internal/runid"
	"github.com/dwsmith1983/dispatchwait/internal/schedule"
	"github.com/dwsmith1983/dispatchwait/internal/telemetry"
	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// DispatchAPI is the subset of the GitHub client used to fire a dispatch.
type DispatchAPI interface {
	Dispatch(ctx context.Context, req types.DispatchRequest) error
}

// Dispatcher triggers a workflow and returns the identifiers of the runs the
// trigger produced.
type Dispatcher struct {
	api              DispatchAPI
	identifier       *runid.Identifier
	transient        schedule.Policy
	correlationInput string
	logger           *slog.Logger
	metrics          *telemetry.Metrics
	tracer           trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTransientPolicy bounds retries of a dispatch call that failed
// transiently.
func WithTransientPolicy(p schedule.Policy) Option {
	return func(d *Dispatcher) { d.transient = p }
}

// WithCorrelationInput embeds a fresh correlation token under key in every
// dispatch and uses it to narrow the resolved runs.
func WithCorrelationInput(key string) Option {
	return func(d *Dispatcher) { d.correlationInput = key }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics sets the counters.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a Dispatcher.
func New(api DispatchAPI, identifier *runid.Identifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		api:        api,
		identifier: identifier,
		transient:  schedule.DefaultTransientPolicy(),
		logger:     slog.Default(),
		tracer:     telemetry.Tracer(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Trigger snapshots existing runs, fires the dispatch and waits until the new
// run set can be resolved. A non-transient dispatch failure returns an error
// matching ghapi.ErrFatal.
func (d *Dispatcher) Trigger(ctx context.Context, req types.DispatchRequest) ([]types.RunID, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.Trigger", trace.WithAttributes(
		attribute.String("workflow", req.Workflow),
		attribute.String("ref", req.Ref),
	))
	defer span.End()

	ids, err := d.trigger(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("runs", len(ids)))
	return ids, nil
}

func (d *Dispatcher) trigger(ctx context.Context, req types.DispatchRequest) ([]types.RunID, error) {
	var token string
	if d.correlationInput != "" {
		token = runid.NewCorrelationToken()
		req = req.WithInput(d.correlationInput, token)
	}

	since := d.identifier.Since()
	old, err := d.identifier.Snapshot(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("pre-dispatch snapshot: %w", err)
	}
	d.logger.Debug("captured pre-dispatch snapshot",
		"workflow", req.Workflow, "since", since, "runs", old.Len())

	_, err = schedule.Retry(ctx, d.transient, ghapi.IsRetryable,
		func(attempt int, err error) {
			d.logger.Debug("retrying dispatch", "workflow", req.Workflow, "attempt", attempt, "error", err)
			d.metrics.TransientRetry(ctx, "dispatch")
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, d.api.Dispatch(ctx, req)
		})
	if err != nil {
		return nil, fmt.Errorf("dispatching %s: %w", req.Workflow, err)
	}
	d.metrics.Dispatched(ctx, req.Workflow)
	d.logger.Info("workflow dispatched", "workflow", req.Workflow, "ref", req.Ref)

	ids, err := d.identifier.ResolveNewRuns(ctx, old, since)
	if err != nil {
		return nil, err
	}
	if token != "" {
		ids, err = d.identifier.Correlate(ctx, ids, token)
		if err != nil {
			return nil, err
		}
	}
	d.logger.Info("resolved dispatched runs", "workflow", req.Workflow, "runIDs", ids)
	return ids, nil
}
