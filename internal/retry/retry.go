// Package retry runs operations with exponential backoff. Only errors
// marked with Retryable are retried.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy controls the backoff.
type Policy struct {
	Attempts   int           // total attempts, 0 = until ctx is done
	Initial    time.Duration // wait after the first failure
	Max        time.Duration // cap for a single wait
	Multiplier float64
	Jitter     float64 // fraction of the wait, 0-1

	// OnRetry runs before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// MountPolicy retries a mount that failed because a stale mount was still
// present.
func MountPolicy() Policy {
	return Policy{
		Attempts:   5,
		Initial:    200 * time.Millisecond,
		Max:        3 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

// ReloadPolicy retries reading a file an editor may still be writing.
func ReloadPolicy() Policy {
	return Policy{
		Attempts:   4,
		Initial:    50 * time.Millisecond,
		Max:        500 * time.Millisecond,
		Multiplier: 2,
	}
}

type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Retryable marks err as worth another attempt.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var r retryableError
	return errors.As(err, &r)
}

// Wait returns the backoff before attempt+1, without jitter.
func (p Policy) Wait(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	w := float64(p.Initial) * math.Pow(mult, float64(attempt-1))
	if p.Max > 0 && w > float64(p.Max) {
		w = float64(p.Max)
	}
	return time.Duration(w)
}

func (p Policy) jittered(attempt int) time.Duration {
	w := float64(p.Wait(attempt))
	if p.Jitter > 0 {
		w += w * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(w)
}

// Do runs fn until it succeeds, returns an error not marked retryable, or
// the attempts run out. The last error is returned unwrapped.
func Do(ctx context.Context, p Policy, fn func() error) error {
	_, err := DoValue(ctx, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoValue is Do for functions that return a value.
func DoValue[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		if p.Attempts > 0 && attempt >= p.Attempts {
			return zero, errors.Unwrap(err)
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		wait := p.jittered(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}
}
