// Package retry runs calls against unreliable collaborators under an explicit
// policy and degrades to a fallback value once the policy is exhausted.
package retry

import (
	"context"
	"time"
)

// Backoff returns the wait before the given retry (1-based).
type Backoff func(retry int) time.Duration

// Linear waits base, 2*base, 3*base, ...
func Linear(base time.Duration) Backoff {
	return func(retry int) time.Duration {
		return base * time.Duration(retry)
	}
}

// Policy bounds how often a call is retried after its first attempt.
type Policy struct {
	MaxRetries int
	Backoff    Backoff
}

// DefaultPolicy allows two retries with a linear one-second step.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, Backoff: Linear(time.Second)}
}

// Attempts is the total number of calls the policy allows.
func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Observer is notified after every failed call. Attempt is 1-based.
type Observer func(attempt int, err error)

// Do calls fn until it succeeds or the policy is exhausted, returning the
// last error in the latter case. A cancelled context stops the loop early.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error), observe Observer) (T, error) {
	var zero T
	var lastErr error

	attempts := p.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if observe != nil {
			observe(attempt, err)
		}

		if attempt == attempts {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

// WithFallback is Do that never fails: on exhaustion it returns fallback(lastErr)
// and reports degraded=true.
func WithFallback[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error), fallback func(err error) T, observe Observer) (v T, degraded bool) {
	v, err := Do(ctx, p, fn, observe)
	if err != nil {
		return fallback(err), true
	}
	return v, false
}

func sleep(ctx context.Context, d time.Duration) error {
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
