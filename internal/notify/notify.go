// Package notify delivers best-effort notifications about finished runs.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/dispatchwait/internal/telemetry"
	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// Notification describes one finished run.
type Notification struct {
	Repository string              `json:"repository"`
	Workflow   string              `json:"workflow"`
	RunID      types.RunID         `json:"runId"`
	URL        string              `json:"url"`
	State      types.PollState     `json:"state"`
	Conclusion types.RunConclusion `json:"conclusion"`
	Timestamp  time.Time           `json:"timestamp"`
}

// Message renders the human readable summary posted to comment endpoints.
func (n Notification) Message() string {
	return fmt.Sprintf("Workflow run [%s #%d](%s) finished: %s", n.Workflow, n.RunID, n.URL, n.Conclusion)
}

// Sink is a notification destination.
type Sink interface {
	Send(ctx context.Context, n Notification) error
	Name() string
}

type guardedSink struct {
	sink    Sink
	breaker *gobreaker.CircuitBreaker
}

// Dispatcher fans a notification out to every sink. Each sink sits behind
// its own circuit breaker so a dead endpoint is skipped for later runs
// instead of being called again.
type Dispatcher struct {
	repository string
	workflow   string
	sinks      []guardedSink
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics sets the counters.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a dispatcher for runs of workflow in repository.
func NewDispatcher(repository, workflow string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		repository: repository,
		workflow:   workflow,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// breakerFailures is how many consecutive failures open a sink's breaker.
const breakerFailures = 3

// AddSink registers a sink.
func (d *Dispatcher) AddSink(s Sink) {
	logger := d.logger
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name(),
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("notification sink breaker changed state", "sink", name, "from", from.String(), "to", to.String())
		},
	})
	d.sinks = append(d.sinks, guardedSink{sink: s, breaker: cb})
}

// Len returns the number of registered sinks.
func (d *Dispatcher) Len() int { return len(d.sinks) }

// Notify sends one notification per sink. It never retries; failures are
// returned joined so the caller can log them.
func (d *Dispatcher) Notify(ctx context.Context, rec types.RunRecord, state types.PollState) error {
	n := Notification{
		Repository: d.repository,
		Workflow:   d.workflow,
		RunID:      rec.ID,
		URL:        rec.HTMLURL,
		State:      state,
		Conclusion: rec.Conclusion,
		Timestamp:  d.now().UTC(),
	}

	var errs []error
	for _, g := range d.sinks {
		_, err := g.breaker.Execute(func() (interface{}, error) {
			return nil, g.sink.Send(ctx, n)
		})
		if err != nil {
			d.metrics.NotifyFailed(ctx, g.sink.Name())
			errs = append(errs, fmt.Errorf("%s: %w", g.sink.Name(), err))
			continue
		}
		d.logger.Debug("notification delivered", "sink", g.sink.Name(), "runID", rec.ID)
	}
	return errors.Join(errs...)
}
