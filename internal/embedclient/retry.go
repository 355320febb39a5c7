package embedclient

import (
	"context"
	"time"
)

// retryConfig configures exponential backoff for transient embedding
// failures, grounded on Aman-CERP-amanmcp/internal/embed/retry.go's
// DownloadWithRetry shape.
type retryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func defaultRetryConfig(maxRetries int) retryConfig {
	return retryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
}

// withRetry runs fn, retrying transient failures (fn returns true as its
// second result when an error is worth retrying) with exponential backoff.
// The context's cancellation is honored between attempts and during the
// backoff sleep, so an embedding batch aborts promptly on cancellation.
func withRetry(ctx context.Context, cfg retryConfig, fn func() (bool, error)) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		retryable, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || attempt >= cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
