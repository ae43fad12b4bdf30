// Package watch runs the trigger, identify, wait and report sequence for a
// single configured workflow.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/dispatchwait/internal/dispatch"
	"github.com/dwsmith1983/dispatchwait/internal/ghapi"
	"github.com/dwsmith1983/dispatchwait/internal/poll"
	"github.com/dwsmith1983/dispatchwait/internal/report"
	"github.com/dwsmith1983/dispatchwait/internal/runid"
	"github.com/dwsmith1983/dispatchwait/internal/schedule"
	"github.com/dwsmith1983/dispatchwait/internal/telemetry"
	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// API is the primary-token GitHub surface the runner needs.
type API interface {
	dispatch.DispatchAPI
	runid.RunsAPI
}

// Outcome is what a run of the tool observed.
type Outcome struct {
	RunIDs   []types.RunID       `json:"runIds"`
	Verdicts []types.Verdict     `json:"verdicts,omitempty"`
	Pulls    []types.PullRequest `json:"pulls,omitempty"`
	OK       bool                `json:"ok"`
}

// Runner wires the dispatcher, poller and reporter according to a Config.
type Runner struct {
	cfg       *types.Config
	api       API
	pulls     poll.PullsAPI
	notifier  poll.Notifier
	output    poll.Output
	transient schedule.Policy
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithPullsAPI sets the secondary-token client used to list open pull requests.
func WithPullsAPI(p poll.PullsAPI) Option {
	return func(r *Runner) { r.pulls = p }
}

// WithNotifier sets the downstream notifier.
func WithNotifier(n poll.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithOutput sets where finished runs are emitted.
func WithOutput(o poll.Output) Option {
	return func(r *Runner) { r.output = o }
}

// WithTransientPolicy overrides the retry policy for single calls.
func WithTransientPolicy(p schedule.Policy) Option {
	return func(r *Runner) { r.transient = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics sets the counters.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates a Runner. cfg must already be validated.
func New(cfg *types.Config, api API, opts ...Option) *Runner {
	transient := schedule.DefaultTransientPolicy()
	transient.MaxAttempts = cfg.MaxTransientRetries
	if transient.MaxAttempts == 0 {
		transient.Deadline = cfg.DiscoveryTimeout
	}
	r := &Runner{
		cfg:       cfg,
		api:       api,
		transient: transient,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// PollPolicy derives the run polling policy from cfg.
func PollPolicy(cfg *types.Config) schedule.Policy {
	p := schedule.DefaultPollPolicy()
	p.Interval = cfg.WaitInterval
	p.MaxInterval = cfg.MaxWaitInterval
	p.Deadline = cfg.PollTimeout
	return p
}

// DiscoveryPolicy derives the run discovery policy from cfg.
func DiscoveryPolicy(cfg *types.Config) schedule.Policy {
	p := schedule.DefaultDiscoveryPolicy()
	p.Interval = cfg.WaitInterval
	if p.MaxInterval > cfg.MaxWaitInterval {
		p.MaxInterval = cfg.MaxWaitInterval
	}
	p.Deadline = cfg.DiscoveryTimeout
	return p
}

// Run triggers the workflow (unless disabled), waits for every run it
// produced (unless disabled) and combines their verdicts. The returned error
// is non-nil when a stage aborted or, with failure propagation on, when any
// run did not succeed.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	var out Outcome

	if !r.cfg.TriggerWorkflow {
		r.logger.Info("trigger disabled, nothing to dispatch", "workflow", r.cfg.WorkflowFile)
	} else {
		ids, err := r.trigger(ctx)
		if err != nil {
			r.logAPIError("dispatch failed", err)
			return out, fmt.Errorf("triggering %s: %w", r.cfg.WorkflowFile, err)
		}
		out.RunIDs = ids
	}

	if !r.cfg.WaitWorkflow {
		r.logger.Info("wait disabled, not polling", "runs", len(out.RunIDs))
		out.OK = true
		return out, nil
	}

	results, err := r.waitAll(ctx, out.RunIDs)
	if err != nil {
		r.logAPIError("waiting for runs failed", err)
		return out, err
	}

	summary := report.NewSummary(r.cfg.PropagateFailure)
	for _, res := range results {
		summary.Add(res.Run, res.State)
		out.Pulls = append(out.Pulls, res.Pulls...)
	}
	out.Verdicts = summary.Verdicts()
	out.OK = summary.OK()
	return out, summary.Err()
}

func (r *Runner) trigger(ctx context.Context) ([]types.RunID, error) {
	ident := runid.New(r.api, r.cfg.WorkflowFile,
		runid.WithActor(r.cfg.Actor),
		runid.WithSkew(r.cfg.SinceSkew),
		runid.WithDiscoveryPolicy(DiscoveryPolicy(r.cfg)),
		runid.WithTransientPolicy(r.transient),
		runid.WithLogger(r.logger),
		runid.WithMetrics(r.metrics))

	d := dispatch.New(r.api, ident,
		dispatch.WithTransientPolicy(r.transient),
		dispatch.WithCorrelationInput(r.cfg.CorrelationInput),
		dispatch.WithLogger(r.logger),
		dispatch.WithMetrics(r.metrics))

	req := types.NewDispatchRequest(r.cfg.WorkflowFile, r.cfg.Ref, r.cfg.ClientPayload)
	ids, err := d.Trigger(ctx, req)
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *Runner) poller() *poll.Poller {
	opts := []poll.Option{
		poll.WithPolicy(PollPolicy(r.cfg)),
		poll.WithMaxTransient(r.cfg.MaxTransientRetries),
		poll.WithLogger(r.logger),
		poll.WithMetrics(r.metrics),
	}
	if r.pulls != nil {
		opts = append(opts, poll.WithPullsAPI(r.pulls))
	}
	if r.notifier != nil {
		opts = append(opts, poll.WithNotifier(r.notifier))
	}
	if r.output != nil {
		opts = append(opts, poll.WithOutput(r.output))
	}
	return poll.New(r.api, opts...)
}

// waitAll returns one result per id, in the order of ids.
func (r *Runner) waitAll(ctx context.Context, ids []types.RunID) ([]poll.Result, error) {
	p := r.poller()
	results := make([]poll.Result, len(ids))

	if !r.cfg.ParallelWait || len(ids) < 2 {
		for i, id := range ids {
			res, err := p.Wait(ctx, id)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			res, err := p.Wait(gctx, id)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) logAPIError(msg string, err error) {
	var apiErr *ghapi.APIError
	if errors.As(err, &apiErr) {
		r.logger.Error(msg,
			"method", apiErr.Method,
			"path", apiErr.Path,
			"status", apiErr.StatusCode,
			"body", apiErr.Body,
			"error", err)
		return
	}
	r.logger.Error(msg, "error", err)
}
