package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a transport-level failure: timeouts, connection
// resets, refused connections. Always retriable.
type NetworkError struct {
	Op      string // Operation that failed (e.g., "get_market", "ws_read")
	Err     error  // Underlying error
	Timeout bool   // Whether the failure was a deadline/timeout
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return e.Op + ": timeout: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return true
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError wraps a transport failure
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

// NewTimeoutError wraps a deadline/timeout failure
func NewTimeoutError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Timeout: true}
}

// APIError represents a non-2xx response from an upstream API.
// 5xx and 429 are retriable (429 after a wait); other 4xx are not.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status=%d body=%s", e.Op, e.StatusCode, e.Body)
}

func (e *APIError) IsRetriable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsRateLimited reports whether the upstream rejected the call for rate.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// ValidationError represents malformed payloads or out-of-range values
// (bad price, missing token id). Never retriable; the offending input is
// dropped whole, not partially applied.
type ValidationError struct {
	Op    string
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return "validation error [" + e.Op + "/" + e.Field + "]: " + e.Err.Error()
}

func (e *ValidationError) IsRetriable() bool {
	return false
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error for a specific field
func NewValidationError(op, field string, err error) *ValidationError {
	return &ValidationError{Op: op, Field: field, Err: err}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrCircuitOpen is returned before any network call is attempted while
	// the breaker is open. Not retriable until the recovery window elapses.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrRateLimited is returned by the local limiter when the sliding
	// window is full. Callers should wait, not hammer.
	ErrRateLimited = errors.New("rate limited")

	// ErrInsufficientFunds is returned when the bankroll cannot cover a bet.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrMarketNotFound is returned when the window's market does not exist
	// (yet) on the venue.
	ErrMarketNotFound = errors.New("market not found")

	// ErrStaleBook is returned when neither the feed cache nor the REST
	// fallback produced a usable book.
	ErrStaleBook = errors.New("order book stale")

	// ErrTradeNotFound is returned when settling an unknown trade id.
	ErrTradeNotFound = errors.New("trade not found")

	// ErrAlreadySettled guards double settlement of the same trade.
	ErrAlreadySettled = errors.New("trade already settled")
)
