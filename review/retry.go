package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrMaxRetries is returned when every attempt of a call failed.
var ErrMaxRetries = errors.New("max retries exceeded")

// Effort selects which attempts run in the higher-effort mode.
type Effort int

const (
	// EffortFirstAttempt runs only the first attempt in higher-effort mode.
	EffortFirstAttempt Effort = iota
	// EffortAlways runs every attempt in higher-effort mode.
	EffortAlways
)

const (
	// DefaultMaxAttempts is the total number of attempts per call.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is the initial delay between attempts (doubles each attempt).
	DefaultRetryDelay = 1 * time.Second
)

// Policy is a bounded retry policy shared by every review service call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Effort      Effort
}

// DefaultPolicy returns the policy used for per-file reviews.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultRetryDelay,
		Effort:      EffortFirstAttempt,
	}
}

// Attempt describes one try of a retried call.
type Attempt struct {
	// Index is zero for the first attempt.
	Index  int
	Genius bool
}

// Retry runs fn until it succeeds or the policy's attempts are used up.
// Every failure is retried; only cancellation of ctx stops early.
func Retry[T any](ctx context.Context, logger *slog.Logger, policy Policy, operation string, fn func(ctx context.Context, attempt Attempt) (T, error)) (T, error) {
	var result T
	var lastErr error

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		attempt := Attempt{
			Index:  i,
			Genius: i == 0 || policy.Effort == EffortAlways,
		}

		result, lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if i < attempts-1 {
			delay := policy.BaseDelay * time.Duration(1<<i)
			logger.Warn("retrying review call",
				"operation", operation,
				"attempt", i+1,
				"max_attempts", attempts,
				"delay", delay,
				"error", lastErr,
			)

			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return result, fmt.Errorf("%s: %w: %w", operation, ErrMaxRetries, lastErr)
}
