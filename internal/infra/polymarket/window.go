package polymarket

import (
	"fmt"
	"time"
)

// WindowSeconds is the length of one up/down market.
const WindowSeconds int64 = 300

// WindowStart floors a time to its 5-minute window boundary, the unix
// timestamp that keys the market slug.
func WindowStart(now time.Time) int64 {
	return (now.Unix() / WindowSeconds) * WindowSeconds
}

// NextWindow returns the start of the window after the one containing
// now.
func NextWindow(now time.Time) int64 {
	return WindowStart(now) + WindowSeconds
}

// TargetWindow picks the window worth betting on: the current one if it
// just opened (first minute, still accepting orders), otherwise the
// next.
func TargetWindow(now time.Time) int64 {
	current := WindowStart(now)
	if now.Unix()-current < 60 {
		return current
	}
	return current + WindowSeconds
}

// Slug formats the deterministic per-window market slug, e.g.
// "btc-updown-5m-1771051500".
func Slug(prefix string, windowStart int64) string {
	return fmt.Sprintf("%s-%d", prefix, windowStart)
}

// WindowClose returns when the window's market stops trading.
func WindowClose(windowStart int64) time.Time {
	return time.Unix(windowStart+WindowSeconds, 0)
}
