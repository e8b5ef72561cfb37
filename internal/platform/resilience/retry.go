package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      0.2,
	}
}

// RetryIfWithResult retries fn with exponential backoff for retryable errors
func RetryIfWithResult[T any](ctx context.Context, cfg RetryConfig, isRetryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return result, err
		}

		if ctx.Err() != nil {
			return result, fmt.Errorf("retry cancelled: %w", ctx.Err())
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := calculateBackoff(attempt, cfg.BaseDelay, cfg.MaxDelay, cfg.Jitter)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return result, fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
		}
	}

	return result, fmt.Errorf("max retry attempts reached: %w", lastErr)
}

// calculateBackoff calculates delay with exponential backoff and jitter
func calculateBackoff(attempt int, baseDelay, maxDelay time.Duration, jitter float64) time.Duration {
	delay := float64(baseDelay) * math.Pow(2, float64(attempt))

	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	if jitter > 0 {
		jitterAmount := delay * jitter
		delay = delay - jitterAmount + (rand.Float64() * jitterAmount * 2)
	}

	return time.Duration(delay)
}

// IsRetryable reports whether an error is worth another attempt.
// Reverts, bad requests and open breakers are terminal; transport-level
// failures and 429/5xx responses are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert") {
		return false
	}
	if strings.Contains(msg, "invalid argument") {
		return false
	}
	if strings.Contains(msg, "status code 4") && !strings.Contains(msg, "status code 429") {
		return false
	}

	return true
}
