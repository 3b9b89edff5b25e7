// Package retry runs an operation again after transient failures
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy controls how Do retries
type Policy struct {
	// MaxAttempts includes the first attempt. Values below 1 mean one attempt
	MaxAttempts int
	Backoff     Backoff
	// Retryable reports whether err is worth another attempt. Nil retries
	// everything except Permanent errors
	Retryable func(err error) bool
	// OnRetry is called before waiting for the next attempt
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy retries three times over a short exponential backoff
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     NewExponentialBackoff(200*time.Millisecond, 2*time.Second, true),
	}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked by Permanent
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

func (p Policy) retryable(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. The returned error wraps the last failure
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return err
		}
		if attempt >= attempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff.NextDelay(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, errors.Join(ctx.Err(), err))
		case <-timer.C:
		}
	}
}
