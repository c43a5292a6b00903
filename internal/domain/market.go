package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// resolvedPriceThreshold: an outcome trading above this is considered
// decided even before the oracle reports, matching how the venue
// settles near-certain windows.
var resolvedPriceThreshold = decimal.NewFromFloat(0.99)

// Market is the venue descriptor for one 5-minute up/down window.
type Market struct {
	Slug             string          `json:"slug"`
	ConditionID      string          `json:"condition_id"`
	Question         string          `json:"question,omitempty"`
	UpTokenID        string          `json:"up_token_id"`
	DownTokenID      string          `json:"down_token_id"`
	UpPrice          decimal.Decimal `json:"up_price"`
	DownPrice        decimal.Decimal `json:"down_price"`
	Closed           bool            `json:"closed"`
	AcceptingOrders  bool            `json:"accepting_orders"`
	ResolutionStatus string          `json:"resolution_status"` // e.g., "resolved"
	TakerFeeBps      int64           `json:"taker_fee_bps"`
	WindowStart      int64           `json:"window_start"` // unix seconds, market key
	EndDate          time.Time       `json:"end_date"`
}

// TokenID returns the clob token for the given side of the contract.
func (m *Market) TokenID(d Direction) string {
	if d == DirectionUp {
		return m.UpTokenID
	}
	return m.DownTokenID
}

// Resolved reports whether the window's outcome is known: either the
// oracle has reported, or one side already trades above 0.99.
func (m *Market) Resolved() bool {
	if m.ResolutionStatus == "resolved" {
		return true
	}
	return m.UpPrice.GreaterThan(resolvedPriceThreshold) ||
		m.DownPrice.GreaterThan(resolvedPriceThreshold)
}

// Outcome returns the winning direction once resolved. The bool is false
// while unresolved or on a dead heat (equal outcome prices).
func (m *Market) Outcome() (Direction, bool) {
	if !m.Resolved() {
		return "", false
	}
	switch {
	case m.UpPrice.GreaterThan(m.DownPrice):
		return DirectionUp, true
	case m.DownPrice.GreaterThan(m.UpPrice):
		return DirectionDown, true
	default:
		return "", false
	}
}

// Tradable reports whether new positions can still be opened.
func (m *Market) Tradable() bool {
	return !m.Closed && m.AcceptingOrders && !m.Resolved()
}
