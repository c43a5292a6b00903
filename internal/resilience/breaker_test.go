package resilience

import (
	"testing"
	"time"
)

func newTestBreaker(recovery time.Duration) *CircuitBreaker {
	return NewCircuitBreaker("test_api", BreakerConfig{
		FailureThreshold: 5,
		RecoveryTime:     recovery,
		HalfOpenMaxCalls: 3,
	})
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := newTestBreaker(time.Minute)

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	if cb.State() != StateClosed {
		t.Fatalf("Expected closed after 4 failures, got %v", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("Expected Allow while closed")
	}

	cb.RecordFailure() // 5th consecutive failure
	if cb.State() != StateOpen {
		t.Fatalf("Expected open after threshold, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected Allow to return false while open")
	}
}

func TestCircuitBreaker_LazyRecovery(t *testing.T) {
	cb := newTestBreaker(30 * time.Millisecond)

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	if cb.Allow() {
		t.Fatal("Expected blocked while open")
	}

	time.Sleep(50 * time.Millisecond)

	// The read itself must trigger Open -> HalfOpen.
	if !cb.Allow() {
		t.Fatal("Expected first probe allowed after recovery window")
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("Expected half_open, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker(30 * time.Millisecond)

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	time.Sleep(50 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("Expected probe allowed")
	}
	cb.RecordFailure()

	if cb.State() != StateOpen {
		t.Fatalf("Expected open after half-open failure, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected blocked after reopening")
	}
}

func TestCircuitBreaker_HalfOpenSuccessesClose(t *testing.T) {
	cb := newTestBreaker(30 * time.Millisecond)

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if !cb.Allow() {
			t.Fatalf("Expected probe %d allowed", i)
		}
		cb.RecordSuccess()
	}

	if cb.State() != StateClosed {
		t.Fatalf("Expected closed after 3 half-open successes, got %v", cb.State())
	}
	if !cb.Allow() {
		t.Error("Expected Allow after closing")
	}
}

func TestCircuitBreaker_HalfOpenProbeBudget(t *testing.T) {
	cb := newTestBreaker(30 * time.Millisecond)

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if !cb.Allow() {
			t.Fatalf("Expected probe %d allowed", i)
		}
	}
	if cb.Allow() {
		t.Error("Expected 4th probe blocked before any result was recorded")
	}
}

func TestCircuitBreaker_SuccessWorksOffFailures(t *testing.T) {
	cb := newTestBreaker(time.Minute)

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	cb.RecordSuccess() // failures back to 3
	cb.RecordFailure() // 4, still under threshold

	if cb.State() != StateClosed {
		t.Errorf("Expected closed (4 < 5 failures), got %v", cb.State())
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	type change struct{ from, to CircuitState }
	var changes []change

	cb := NewCircuitBreaker("test_api", BreakerConfig{
		FailureThreshold: 2,
		RecoveryTime:     20 * time.Millisecond,
		HalfOpenMaxCalls: 1,
		OnStateChange: func(name string, from, to CircuitState) {
			changes = append(changes, change{from, to})
		},
	})

	cb.RecordFailure()
	cb.RecordFailure() // -> open
	time.Sleep(40 * time.Millisecond)
	cb.Allow() // -> half_open
	cb.RecordSuccess()

	want := []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(changes) != len(want) {
		t.Fatalf("Expected %d transitions, got %d: %v", len(want), len(changes), changes)
	}
	for i, w := range want {
		if changes[i] != w {
			t.Errorf("Transition %d = %v -> %v, want %v -> %v",
				i, changes[i].from, changes[i].to, w.from, w.to)
		}
	}
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := newTestBreaker(time.Minute)

	cb.Allow()
	cb.RecordFailure()

	stats := cb.Stats()
	if stats.Name != "test_api" {
		t.Errorf("Name = %q", stats.Name)
	}
	if stats.State != "closed" {
		t.Errorf("State = %q, want closed", stats.State)
	}
	if stats.TotalCalls != 1 || stats.TotalFailures != 1 {
		t.Errorf("TotalCalls=%d TotalFailures=%d, want 1/1", stats.TotalCalls, stats.TotalFailures)
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("x", BreakerConfig{})

	if cb.failureThreshold != 5 {
		t.Errorf("failureThreshold = %d, want 5", cb.failureThreshold)
	}
	if cb.recoveryTime != 60*time.Second {
		t.Errorf("recoveryTime = %v, want 60s", cb.recoveryTime)
	}
	if cb.halfOpenMaxCalls != 3 {
		t.Errorf("halfOpenMaxCalls = %d, want 3", cb.halfOpenMaxCalls)
	}
}
