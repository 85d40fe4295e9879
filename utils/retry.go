package utils

import (
	"context"
	"time"
)

// RetryPolicy bounds retries of transient failures. Backoff doubles
// after every failed attempt.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// Retry runs fn up to policy.Attempts times, retrying only while
// retryable(err) is true. The last error is returned unchanged.
func Retry(ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func() error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := policy.Backoff
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !retryable(err) {
			return err
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return err
}
