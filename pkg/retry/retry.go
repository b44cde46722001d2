// Package retry wraps executor dispatch with a bounded number of attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// Strategy computes the delay before retry attempt n (1-indexed).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant always waits Interval.
type Constant struct {
	Interval time.Duration
}

func (c Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles Initial on each attempt, capped at Max when Max is positive and
// at the largest Duration otherwise.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func (e Exponential) Delay(attempt int) time.Duration {
	d := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}

	if d >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(d)
}

// Policy runs a call up to Attempts times. A zero Policy runs it once.
type Policy struct {
	Attempts int
	Strategy Strategy
}

// Once is the default single-attempt policy.
func Once() Policy {
	return Policy{Attempts: 1}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// Do calls fn until it succeeds, the attempts are exhausted, fn returns a Permanent
// error, or ctx is done. The last error is returned.
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	attempts := max(policy.Attempts, 1)

	var (
		result T
		err    error
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = fn(ctx, attempt)
		if err == nil {
			return result, nil
		}

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return result, permanent.err
		}

		if attempt == attempts {
			break
		}

		var delay time.Duration
		if policy.Strategy != nil {
			delay = policy.Strategy.Delay(attempt)
		}

		if delay <= 0 {
			if ctx.Err() != nil {
				return result, errors.Join(err, ctx.Err())
			}

			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()

			return result, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}

	return result, err
}
