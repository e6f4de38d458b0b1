package cache

import (
	"context"
	"time"
)

// BackoffPolicy bounds the retries that absorb read-after-write lag against a
// replicated store: a GetAttempt racing ahead of replication sees a transient
// not-found that resolves within a few hundred milliseconds.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:   300 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the pause before retry number attempt (0-based), doubling
// from BaseDelay up to MaxDelay.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget runs out. The last error is returned unwrapped so callers
// can match on it.
func (p BackoffPolicy) Retry(ctx context.Context, retryable func(error) bool, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(i)):
		}
	}
	return err
}
