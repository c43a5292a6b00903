package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeTick is a single executed trade reported by the feed's
// last-trade-price channel.
type TradeTick struct {
	AssetID   string          `json:"asset_id"`
	Market    string          `json:"market,omitempty"` // condition id
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Side      Side            `json:"side"`
	Timestamp time.Time       `json:"timestamp"`
}

// Notional returns price*size for the tick.
func (t *TradeTick) Notional() decimal.Decimal {
	return t.Price.Mul(t.Size)
}
