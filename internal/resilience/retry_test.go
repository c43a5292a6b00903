package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"circuit open sentinel", domain.ErrCircuitOpen, ClassCircuitOpen},
		{"rate limited sentinel", domain.ErrRateLimited, ClassRateLimited},
		{"insufficient funds", domain.ErrInsufficientFunds, ClassFatal},
		{"api 500", &domain.APIError{Op: "x", StatusCode: 500}, ClassRetryable},
		{"api 503", &domain.APIError{Op: "x", StatusCode: 503}, ClassRetryable},
		{"api 429", &domain.APIError{Op: "x", StatusCode: 429}, ClassRateLimited},
		{"api 404", &domain.APIError{Op: "x", StatusCode: 404}, ClassFatal},
		{"api 422", &domain.APIError{Op: "x", StatusCode: 422}, ClassFatal},
		{"validation", domain.NewValidationError("parse", "price", errors.New("bad")), ClassFatal},
		{"network", domain.NewNetworkError("dial", errors.New("broken pipe")), ClassRetryable},
		{"timeout message", errors.New("request timed out"), ClassRetryable},
		{"rate limit message", errors.New("upstream said rate limit exceeded"), ClassRateLimited},
		{"connection reset message", errors.New("connection reset by peer"), ClassRetryable},
		{"invalid message", errors.New("invalid token id"), ClassFatal},
		{"unknown defaults retryable", errors.New("something odd"), ClassRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "fetch", RetryOptions{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
	}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return domain.NewNetworkError("fetch", errors.New("reset"))
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_FatalAbortsImmediately(t *testing.T) {
	calls := 0
	fatal := domain.NewValidationError("parse", "price", errors.New("negative"))

	err := Retry(context.Background(), "fetch", RetryOptions{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
	}, func(ctx context.Context) error {
		calls++
		return fatal
	})

	if !errors.Is(err, fatal) {
		t.Fatalf("Expected the fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Fatal error must not be retried, got %d calls", calls)
	}
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "fetch", RetryOptions{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
	}, func(ctx context.Context) error {
		calls++
		return domain.NewNetworkError("fetch", errors.New("reset"))
	})

	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if calls != 3 { // initial + 2 retries
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_OpenBreakerShortCircuits(t *testing.T) {
	cb := NewCircuitBreaker("api", BreakerConfig{FailureThreshold: 1, RecoveryTime: time.Minute})
	cb.RecordFailure() // open it

	calls := 0
	err := Retry(context.Background(), "fetch", RetryOptions{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Breaker:    cb,
	}, func(ctx context.Context) error {
		calls++
		return nil
	})

	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Errorf("Expected no calls through an open breaker, got %d", calls)
	}
}

func TestRetry_FeedsBreakerCounters(t *testing.T) {
	cb := NewCircuitBreaker("api", BreakerConfig{FailureThreshold: 3, RecoveryTime: time.Minute})

	_ = Retry(context.Background(), "fetch", RetryOptions{
		MaxRetries: 2, // initial + 2 retries = 3 failures = threshold
		BaseDelay:  time.Millisecond,
		Breaker:    cb,
	}, func(ctx context.Context) error {
		return domain.NewNetworkError("fetch", errors.New("reset"))
	})

	if cb.State() != StateOpen {
		t.Errorf("Expected breaker open after repeated failures, got %v", cb.State())
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, "fetch", RetryOptions{
			MaxRetries: 5,
			BaseDelay:  time.Hour, // cancellation must cut the backoff short
		}, func(ctx context.Context) error {
			calls++
			return domain.NewNetworkError("fetch", errors.New("reset"))
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Retry did not observe cancellation")
	}

	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", calls)
	}
}

func TestRetry_LimiterGatesAttempts(t *testing.T) {
	r := NewRateLimiter(2, 80*time.Millisecond)

	start := time.Now()
	calls := 0
	err := Retry(context.Background(), "fetch", RetryOptions{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Limiter:    r,
	}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return domain.NewNetworkError("fetch", errors.New("reset"))
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	// The third attempt had to wait for window room.
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected limiter to delay the third attempt, finished in %v", elapsed)
	}
}
