// Package runid discovers which workflow runs a dispatch created. The
// dispatch endpoint returns no identifier, so new runs are inferred by
// diffing snapshots of recent runs taken before and after the call.
package runid

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwsmith1983/dispatchwait/internal/ghapi"
	"github.com/dwsmith1983/dispatchwait/internal/schedule"
	"github.com/dwsmith1983/dispatchwait/internal/telemetry"
	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// DefaultSkew is subtracted from the local clock when bounding snapshot
// queries, so runs stamped by a remote clock running behind still fall
// inside the window.
const DefaultSkew = 2 * time.Minute

// RunsAPI is the subset of the GitHub client used for discovery.
type RunsAPI interface {
	ListRunIDs(ctx context.Context, workflow string, since time.Time, actor string) ([]types.RunID, error)
	GetRun(ctx context.Context, id types.RunID) (types.RunRecord, error)
}

// Identifier snapshots the runs of one workflow and resolves new ones.
type Identifier struct {
	api       RunsAPI
	workflow  string
	actor     string
	skew      time.Duration
	discovery schedule.Policy
	transient schedule.Policy
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// Option configures an Identifier.
type Option func(*Identifier)

// WithActor restricts snapshots to runs triggered by actor.
func WithActor(actor string) Option {
	return func(i *Identifier) { i.actor = actor }
}

// WithSkew overrides DefaultSkew.
func WithSkew(d time.Duration) Option {
	return func(i *Identifier) {
		if d > 0 {
			i.skew = d
		}
	}
}

// WithDiscoveryPolicy bounds the wait for new runs to appear.
func WithDiscoveryPolicy(p schedule.Policy) Option {
	return func(i *Identifier) { i.discovery = p }
}

// WithTransientPolicy bounds retries of a single failed listing call.
func WithTransientPolicy(p schedule.Policy) Option {
	return func(i *Identifier) { i.transient = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Identifier) { i.logger = l }
}

// WithMetrics sets the counters recorded on transient retries.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(i *Identifier) { i.metrics = m }
}

// WithClock replaces time.Now (useful for testing).
func WithClock(now func() time.Time) Option {
	return func(i *Identifier) { i.now = now }
}

// New creates an Identifier for workflow.
func New(api RunsAPI, workflow string, opts ...Option) *Identifier {
	i := &Identifier{
		api:       api,
		workflow:  workflow,
		skew:      DefaultSkew,
		discovery: schedule.DefaultDiscoveryPolicy(),
		transient: schedule.DefaultTransientPolicy(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// SinceTimestamp returns now minus skew.
func SinceTimestamp(now time.Time, skew time.Duration) time.Time {
	return now.Add(-skew)
}

// Since returns the lower bound for the next dispatch attempt. Call it once,
// before the pre-dispatch snapshot, and reuse the value.
func (i *Identifier) Since() time.Time {
	return SinceTimestamp(i.now(), i.skew)
}

// Snapshot lists the runs created at or after since. Transient failures are
// retried under the transient policy.
func (i *Identifier) Snapshot(ctx context.Context, since time.Time) (types.RunSnapshot, error) {
	ids, err := schedule.Retry(ctx, i.transient, ghapi.IsRetryable,
		func(attempt int, err error) {
			i.logger.Debug("retrying run listing", "workflow", i.workflow, "attempt", attempt, "error", err)
			i.metrics.TransientRetry(ctx, "snapshot")
		},
		func(ctx context.Context) ([]types.RunID, error) {
			return i.api.ListRunIDs(ctx, i.workflow, since, i.actor)
		})
	if err != nil {
		return types.RunSnapshot{}, fmt.Errorf("snapshot %s: %w", i.workflow, err)
	}
	return types.NewRunSnapshot(ids), nil
}

// ResolveNewRuns re-snapshots with the same since until a run not present in
// old shows up, and returns every such run in ascending order. More than one
// identifier means another dispatcher raced this one inside the window; all
// of them are returned and the ambiguity is logged.
func (i *Identifier) ResolveNewRuns(ctx context.Context, old types.RunSnapshot, since time.Time) ([]types.RunID, error) {
	loop := i.discovery.Start()
	for {
		snap, err := i.Snapshot(ctx, since)
		if err != nil {
			return nil, err
		}

		if !snap.Equal(old) {
			added := snap.Diff(old)
			if len(added) > 1 {
				i.logger.Warn("multiple new runs attributed to one dispatch",
					"workflow", i.workflow, "runIDs", added)
			}
			if len(added) > 0 {
				return added, nil
			}
			// Only removals: older runs dropped out of the listing.
		}

		if err := loop.Next(ctx); err != nil {
			return nil, fmt.Errorf("resolving new runs of %s: %w", i.workflow, err)
		}
	}
}
