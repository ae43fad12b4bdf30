package schedule

import (
	"context"
	"fmt"
)

// Retry runs op until it succeeds, fails with an error retryable rejects, or
// the policy is exhausted. onRetry, when non-nil, sees every retried error.
func Retry[T any](ctx context.Context, p Policy, retryable func(error) bool, onRetry func(attempt int, err error), op func(context.Context) (T, error)) (T, error) {
	loop := p.Start()
	for {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return v, err
		}
		if onRetry != nil {
			onRetry(loop.Attempts()+1, err)
		}
		if nextErr := loop.Next(ctx); nextErr != nil {
			var zero T
			return zero, fmt.Errorf("%w: last error: %w", nextErr, err)
		}
	}
}
