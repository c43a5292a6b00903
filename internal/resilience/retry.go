package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
)

// ErrorClass drives how a failed call is handled: retry with backoff, wait
// out a rate limit, or abort. Classification, not the raw error type, is
// what call sites branch on.
type ErrorClass int

const (
	ClassRetryable   ErrorClass = iota // transient, retry with backoff
	ClassFatal                         // permanent, surface to caller
	ClassRateLimited                   // wait at least the rate-limit floor
	ClassCircuitOpen                   // breaker blocked the call
)

// String returns the string representation of ErrorClass
func (c ErrorClass) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassFatal:
		return "fatal"
	case ClassRateLimited:
		return "rate_limited"
	case ClassCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Classify maps an error to its handling class. Typed errors are checked
// first; the message heuristics below them cover upstream failures that
// arrive as bare strings (proxied response bodies, wrapped library errors).
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassRetryable
	}

	if errors.Is(err, domain.ErrCircuitOpen) {
		return ClassCircuitOpen
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return ClassRateLimited
	}
	if errors.Is(err, domain.ErrInsufficientFunds) {
		return ClassFatal
	}

	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimited():
			return ClassRateLimited
		case apiErr.StatusCode >= 500:
			return ClassRetryable
		case apiErr.StatusCode >= 400:
			return ClassFatal
		}
	}

	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		return ClassFatal
	}
	var cfgErr *domain.ConfigError
	if errors.As(err, &cfgErr) {
		return ClassFatal
	}
	var netErr *domain.NetworkError
	if errors.As(err, &netErr) {
		return ClassRetryable
	}
	var timeoutErr net.Error
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ClassRetryable
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "429"),
		strings.Contains(s, "rate limit"),
		strings.Contains(s, "too many requests"):
		return ClassRateLimited
	case strings.Contains(s, "500"),
		strings.Contains(s, "502"),
		strings.Contains(s, "503"),
		strings.Contains(s, "504"):
		return ClassRetryable
	case strings.Contains(s, "timeout"), strings.Contains(s, "timed out"):
		return ClassRetryable
	case strings.Contains(s, "connection") &&
		(strings.Contains(s, "refused") || strings.Contains(s, "reset") || strings.Contains(s, "error")):
		return ClassRetryable
	case strings.Contains(s, "400"),
		strings.Contains(s, "401"),
		strings.Contains(s, "403"),
		strings.Contains(s, "404"),
		strings.Contains(s, "422"):
		return ClassFatal
	case strings.Contains(s, "invalid"), strings.Contains(s, "validation"):
		return ClassFatal
	case strings.Contains(s, "insufficient"), strings.Contains(s, "balance"):
		return ClassFatal
	default:
		return ClassRetryable
	}
}

const (
	defaultMaxRetries     = 3
	defaultBaseDelay      = 1 * time.Second
	defaultMaxRetryDelay  = 30 * time.Second
	rateLimitedDelayFloor = 5 * time.Second
)

// RetryOptions configures Retry. Zero values take the defaults
// (3 retries, 1s base delay doubling to a 30s cap).
type RetryOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Breaker    *CircuitBreaker
	Limiter    *RateLimiter
}

// Retry runs fn with classification-driven retries. Fatal errors abort
// immediately; rate-limited failures wait at least the 5s floor; everything
// retryable backs off exponentially up to MaxDelay. When a breaker is set,
// Allow gates every attempt and the result is recorded; when a limiter is
// set, attempts wait for window room before firing.
func Retry(ctx context.Context, op string, opts RetryOptions, fn func(context.Context) error) error {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxRetryDelay
	}

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if opts.Limiter != nil {
			if err := waitForWindow(ctx, opts.Limiter); err != nil {
				return err
			}
		}

		if opts.Breaker != nil && !opts.Breaker.Allow() {
			return fmt.Errorf("%s: %w", op, domain.ErrCircuitOpen)
		}

		err := fn(ctx)
		if err == nil {
			if opts.Breaker != nil {
				opts.Breaker.RecordSuccess()
			}
			return nil
		}

		lastErr = err
		if opts.Breaker != nil {
			opts.Breaker.RecordFailure()
		}

		class := Classify(err)
		if class == ClassFatal || class == ClassCircuitOpen {
			return err
		}
		if attempt >= opts.MaxRetries {
			return err
		}

		delay := backoffDelay(opts.BaseDelay, opts.MaxDelay, attempt)
		if class == ClassRateLimited && delay < rateLimitedDelayFloor {
			delay = rateLimitedDelayFloor
		}

		slog.Warn("operation failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("class", class.String()),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// backoffDelay returns min(base * 2^attempt, max).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	// Cap the shift to keep the multiplication from overflowing.
	if attempt > 20 {
		return max
	}
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}

// waitForWindow blocks until the limiter admits a request or ctx ends.
func waitForWindow(ctx context.Context, limiter *RateLimiter) error {
	for !limiter.Allow() {
		wait := limiter.WaitTime()
		if wait > time.Second {
			wait = time.Second
		}
		if wait <= 0 {
			continue
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
	return nil
}

// sleepCtx sleeps for d unless ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
