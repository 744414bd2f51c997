package coinalyze

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	appconfig "activeoi/config"
)

// statusError is a non-200 answer from the API.
type statusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("coinalyze status %d: %s", e.Code, e.Body)
}

// isRetryable reports whether a failed request is worth repeating. Transport
// errors, rate limiting and server errors are; other client errors are not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return true
}

// parseRetryAfter understands the delta-seconds form of Retry-After.
func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(h); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// withRetry runs fn until it succeeds, fails permanently or runs out of
// attempts. Waits grow exponentially with a little jitter and never exceed
// MaxDelay; a server supplied Retry-After replaces the computed wait.
func withRetry(ctx context.Context, cfg appconfig.RetryConfig, onRetry func(attempt int, wait time.Duration, err error), fn func(context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	factor := float64(cfg.BackoffMultiplier)
	if factor < 1 {
		factor = 2
	}

	wait := cfg.BaseDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == attempts {
			return fmt.Errorf("max retries exceeded: %w", err)
		}

		delay := time.Duration(float64(wait) * (1 + 0.1*(2*rand.Float64()-1)))
		var se *statusError
		if errors.As(err, &se) && se.RetryAfter > 0 {
			delay = se.RetryAfter
		}
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		wait = time.Duration(float64(wait) * factor)
	}
	return err
}
