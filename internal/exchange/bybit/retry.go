package bybit

import (
	"context"
	"math"
	"time"

	riskerrors "github.com/ducminhle1904/tpsl-guard/internal/errors"
)

// RetryConfig holds configuration for retrying read-only requests. Order
// mutations are never retried here; the executor decides what to resend.
type RetryConfig struct {
	MaxRetries    int           `json:"maxRetries"`
	InitialDelay  time.Duration `json:"initialDelay"`
	MaxDelay      time.Duration `json:"maxDelay"`
	BackoffFactor float64       `json:"backoffFactor"`
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

// delay returns the backoff before retry number attempt (0-based)
func (r RetryConfig) delay(attempt int) time.Duration {
	factor := r.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := time.Duration(float64(r.InitialDelay) * math.Pow(factor, float64(attempt)))
	if r.MaxDelay > 0 && d > r.MaxDelay {
		return r.MaxDelay
	}
	return d
}

// withRetry runs fn until it succeeds, returns a non-retryable error, or
// the retry budget is spent.
func withRetry(ctx context.Context, config RetryConfig, operation string, fn func() error) error {
	var lastErr *riskerrors.RiskError
	attempts := 0
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = wrapError(err, operation)
		if !lastErr.IsRetryable() || attempt == config.MaxRetries {
			break
		}

		timer := time.NewTimer(config.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if lastErr == nil {
		return nil
	}
	return lastErr.WithContext("attempts", attempts)
}
