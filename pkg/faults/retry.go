package faults

import (
	"context"
	"math"
	"time"
)

// RetryPolicy controls the exponential backoff applied to retryable faults.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy matches the component-level policy: up to 3 attempts,
// 2s base delay, doubling, capped at 30s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   2 * time.Second,
	MaxDelay:    30 * time.Second,
	Multiplier:  2.0,
}

// Backoff returns the delay before the given attempt (1-based). Attempt 1
// waits BaseDelay, attempt 2 waits BaseDelay*Multiplier, and so on, capped
// at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Retry runs op, retrying while the returned error is retryable and attempts
// remain. Non-retryable errors and context cancellation end the loop
// immediately. The last error is returned.
func Retry(ctx context.Context, policy RetryPolicy, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == policy.MaxAttempts {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(policy.Backoff(attempt)):
		}
	}
	return lastErr
}
