// Package poll waits for a workflow run to reach a terminal state.
package poll

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/dispatchwait/internal/ghapi"
	"github.com/dwsmith1983/dispatchwait/internal/schedule"
	"github.com/dwsmith1983/dispatchwait/internal/telemetry"
	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// RunAPI fetches a run.
type RunAPI interface {
	GetRun(ctx context.Context, id types.RunID) (types.RunRecord, error)
}

// PullsAPI lists open pull requests.
type PullsAPI interface {
	ListOpenPulls(ctx context.Context) ([]types.PullRequest, error)
}

// Notifier is told once about every run that reaches a terminal state.
type Notifier interface {
	Notify(ctx context.Context, rec types.RunRecord, state types.PollState) error
}

// Output receives the identifier and URL of every finished run.
type Output interface {
	RunFinished(rec types.RunRecord) error
}

// Result is the terminal observation of one run.
type Result struct {
	Run   types.RunRecord
	State types.PollState
	Pulls []types.PullRequest
}

// Poller drives the PENDING -> COMPLETED_* state machine for a run.
type Poller struct {
	api          RunAPI
	pulls        PullsAPI
	notifier     Notifier
	output       Output
	policy       schedule.Policy
	maxTransient int
	logger       *slog.Logger
	metrics      *telemetry.Metrics
	tracer       trace.Tracer
}

// Option configures a Poller.
type Option func(*Poller)

// WithPolicy sets the spacing and bounds of polling ticks.
func WithPolicy(p schedule.Policy) Option {
	return func(pl *Poller) { pl.policy = p }
}

// WithMaxTransient caps consecutive transient failures; zero is unlimited.
func WithMaxTransient(n int) Option {
	return func(pl *Poller) { pl.maxTransient = n }
}

// WithPullsAPI enables listing open pull requests after a successful run.
func WithPullsAPI(api PullsAPI) Option {
	return func(pl *Poller) { pl.pulls = api }
}

// WithNotifier sets the best-effort downstream notifier.
func WithNotifier(n Notifier) Option {
	return func(pl *Poller) { pl.notifier = n }
}

// WithOutput sets where finished runs are emitted.
func WithOutput(o Output) Option {
	return func(pl *Poller) { pl.output = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(pl *Poller) { pl.logger = l }
}

// WithMetrics sets the counters.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(pl *Poller) { pl.metrics = m }
}

// New creates a Poller.
func New(api RunAPI, opts ...Option) *Poller {
	p := &Poller{
		api:          api,
		policy:       schedule.DefaultPollPolicy(),
		maxTransient: schedule.DefaultTransientPolicy().MaxAttempts,
		logger:       slog.Default(),
		tracer:       telemetry.Tracer(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Wait polls run id until it completes. Transient errors keep the state at
// PENDING and are retried on the next tick; any other error aborts at once.
func (p *Poller) Wait(ctx context.Context, id types.RunID) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "poll.Wait", trace.WithAttributes(attribute.String("runID", id.String())))
	defer span.End()

	res, err := p.wait(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.String("state", string(res.State)))
	return res, nil
}

func (p *Poller) wait(ctx context.Context, id types.RunID) (Result, error) {
	state := types.PollPending
	loop := p.policy.Start()
	transient := 0

	for {
		rec, err := p.api.GetRun(ctx, id)
		switch {
		case err == nil:
			transient = 0
			next := Classify(rec)
			if err := Transition(state, next); err != nil {
				return Result{}, fmt.Errorf("run %s: %w", id, err)
			}
			state = next
			if IsTerminal(state) {
				return p.finish(ctx, rec, state), nil
			}
			p.logger.Debug("run not finished", "runID", id, "status", rec.Status)
		case ghapi.IsRetryable(err):
			transient++
			p.metrics.TransientRetry(ctx, "poll")
			p.logger.Debug("transient error polling run", "runID", id, "consecutive", transient, "error", err)
			if p.maxTransient > 0 && transient > p.maxTransient {
				return Result{}, fmt.Errorf("polling run %s: %w: %d consecutive transient errors: %w",
					id, schedule.ErrTimeout, transient, err)
			}
		default:
			return Result{}, fmt.Errorf("polling run %s: %w", id, err)
		}

		if err := loop.Next(ctx); err != nil {
			return Result{}, fmt.Errorf("polling run %s: %w", id, err)
		}
	}
}

func (p *Poller) finish(ctx context.Context, rec types.RunRecord, state types.PollState) Result {
	res := Result{Run: rec, State: state}
	p.metrics.RunCompleted(ctx, string(rec.Conclusion))
	p.logger.Info("run finished",
		"runID", rec.ID, "conclusion", rec.Conclusion, "state", state, "url", rec.HTMLURL)

	if p.output != nil {
		if err := p.output.RunFinished(rec); err != nil {
			p.logger.Warn("failed to write run outputs", "runID", rec.ID, "error", err)
		}
	}

	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, rec, state); err != nil {
			p.logger.Warn("downstream notification failed", "runID", rec.ID, "error", err)
		}
	}

	if state == types.PollCompletedSuccess && p.pulls != nil {
		pulls, err := p.pulls.ListOpenPulls(ctx)
		if err != nil {
			p.logger.Warn("failed to list open pull requests", "error", err)
		} else {
			res.Pulls = pulls
			for _, pr := range pulls {
				p.logger.Info("open pull request", "number", pr.Number, "url", pr.HTMLURL)
			}
		}
	}
	return res
}
