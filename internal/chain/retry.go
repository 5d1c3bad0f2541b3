package chain

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// Sentinel errors for retry logic.
var (
	ErrRetryable = &suberr.SubpassError{
		Code:     "RETRYABLE_ERROR",
		Message:  "retryable error",
		ExitCode: suberr.ExitGeneral,
	}

	ErrRateLimited = &suberr.SubpassError{
		Code:     "RATE_LIMITED",
		Message:  "rate limited",
		ExitCode: suberr.ExitGeneral,
	}
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts (including initial)
	BaseDelay   time.Duration // Initial delay between retries
	MaxDelay    time.Duration // Maximum delay between retries
}

// ReadRetryConfig is used for ledger reads, which sit behind an interactive view.
// 3 attempts total with delays: 250ms, 500ms.
func ReadRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    time.Second,
	}
}

// RetryWithConfig executes the operation with the specified retry configuration.
func RetryWithConfig[T any](ctx context.Context, cfg RetryConfig, operation func() (T, error)) (T, error) {
	var result T
	var err error

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err = operation()
		if err == nil {
			return result, nil
		}

		if !IsRetryable(err) {
			return result, err
		}

		// Don't delay after the last attempt
		if attempt < attempts-1 {
			timer := time.NewTimer(calculateDelay(attempt, cfg.BaseDelay, cfg.MaxDelay))
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return result, fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}

// calculateDelay calculates the delay for the given attempt using exponential backoff with jitter.
func calculateDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := baseDelay * (1 << attempt) // 2^attempt * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}
	// Jitter in [delay/2, delay).
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + rand.N(half) //nolint:gosec // G404: Jitter does not require cryptographic randomness
}

// IsRetryable returns true if the error should trigger a retry.
// Transport failures are retryable; RPC-level errors returned by the node are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrRetryable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, suberr.ErrNetworkError) ||
		errors.Is(err, context.DeadlineExceeded)
}
