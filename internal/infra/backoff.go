package infra

import (
	"time"
)

const (
	backoffBase = 1 * time.Second
	backoffMax  = 30 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given retry
// count: min(base * 2^retry, max).
func CalculateBackoff(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	if retry > 10 {
		return backoffMax
	}
	delay := backoffBase << uint(retry)
	if delay > backoffMax {
		return backoffMax
	}
	return delay
}
