// Package schedule bounds the polling and retry loops with exponential
// backoff, an attempt budget and a deadline.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrTimeout is returned when a loop exhausts its attempts or deadline.
var ErrTimeout = errors.New("polling budget exhausted")

// Policy bounds one polling or retry loop. Zero MaxAttempts or Deadline
// means that dimension is unbounded.
type Policy struct {
	Interval    time.Duration
	Multiplier  float64
	MaxInterval time.Duration
	Jitter      float64
	MaxAttempts int
	Deadline    time.Duration
}

const defaultMultiplier = 1.5

// DefaultPollPolicy returns the policy used while waiting for a run.
func DefaultPollPolicy() Policy {
	return Policy{
		Interval:    10 * time.Second,
		Multiplier:  defaultMultiplier,
		MaxInterval: 2 * time.Minute,
		Jitter:      0.1,
		Deadline:    6 * time.Hour,
	}
}

// DefaultDiscoveryPolicy returns the policy used while waiting for a
// dispatched run to show up in the runs listing.
func DefaultDiscoveryPolicy() Policy {
	return Policy{
		Interval:    2 * time.Second,
		Multiplier:  defaultMultiplier,
		MaxInterval: 15 * time.Second,
		Jitter:      0.1,
		Deadline:    5 * time.Minute,
	}
}

// DefaultTransientPolicy returns the policy for retrying a single call that
// failed with a transient error.
func DefaultTransientPolicy() Policy {
	return Policy{
		Interval:    time.Second,
		Multiplier:  2.0,
		MaxInterval: 30 * time.Second,
		Jitter:      0.2,
		MaxAttempts: 10,
	}
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Interval
	b.Multiplier = p.Multiplier
	if b.Multiplier <= 0 {
		b.Multiplier = defaultMultiplier
	}
	b.MaxInterval = p.MaxInterval
	if b.MaxInterval < p.Interval {
		b.MaxInterval = p.Interval
	}
	b.RandomizationFactor = p.Jitter
	b.Reset()
	return b
}

// Loop tracks attempts and elapsed time for a single bounded loop.
type Loop struct {
	policy   Policy
	bo       *backoff.ExponentialBackOff
	started  time.Time
	attempts int
	now      func() time.Time
}

// Start begins a loop governed by p.
func (p Policy) Start() *Loop {
	return &Loop{policy: p, bo: p.newBackOff(), started: time.Now(), now: time.Now}
}

// Attempts returns how many times Next has let the loop continue.
func (l *Loop) Attempts() int { return l.attempts }

// Next sleeps for the next backoff interval. It returns ErrTimeout when the
// attempt budget is spent or the sleep would cross the deadline, and the
// context error when ctx is done first.
func (l *Loop) Next(ctx context.Context) error {
	if l.policy.MaxAttempts > 0 && l.attempts >= l.policy.MaxAttempts {
		return fmt.Errorf("%w: %d attempts", ErrTimeout, l.attempts)
	}

	wait := l.bo.NextBackOff()
	if wait < 0 {
		wait = l.policy.MaxInterval
	}
	if l.policy.Deadline > 0 {
		elapsed := l.now().Sub(l.started)
		if elapsed+wait > l.policy.Deadline {
			return fmt.Errorf("%w: deadline %s reached", ErrTimeout, l.policy.Deadline)
		}
	}

	if err := Sleep(ctx, wait); err != nil {
		return err
	}
	l.attempts++
	return nil
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
