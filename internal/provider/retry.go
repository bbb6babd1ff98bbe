package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eloquentai/eloquent-chat/internal/log"
)

// RetryConfig configures the retry behavior for provider calls.
//
// Retries apply only where no user-visible output has been emitted yet:
// embedding calls and the initial stream handshake. Once streaming has
// begun, failures surface immediately as terminal errors.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for provider API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// retryablePatterns groups error substrings by category.
// Matched case-insensitively against err.Error().
//
// NOTE: This uses string matching because provider SDKs do not expose
// typed/sentinel errors for transient failures. Re-evaluate if the SDK
// adds structured error types in a future version.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	for _, group := range retryablePatterns {
		if containsAny(errStr, group...) {
			return true
		}
	}
	return false
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// withRetry executes fn with exponential backoff retry for transient errors.
// Non-retryable errors fail immediately; context cancellation aborts the wait.
func withRetry[T any](ctx context.Context, cfg RetryConfig, logger log.Logger, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := cfg.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Debug("provider call succeeded after retry",
					"op", op,
					"attempts", attempt+1,
					"elapsed", time.Since(start),
				)
			}
			return result, nil
		}

		lastErr = err

		// Non-retryable error - fail immediately
		if !retryableError(err) {
			return zero, fmt.Errorf("%s: %w", op, err)
		}

		// Last attempt - don't sleep
		if attempt == cfg.MaxRetries {
			break
		}

		logger.Debug("retrying provider call",
			"op", op,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, cfg.MaxInterval)
		}
	}

	return zero, fmt.Errorf("%s after %d retries (elapsed: %v): %w",
		op, cfg.MaxRetries, time.Since(start), lastErr)
}
