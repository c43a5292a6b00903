package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which half of the book a level or order belongs to.
// Values match the feed's wire format ("BUY"/"SELL").
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PriceLevel is a single resting price+size entry in an order book ladder.
// Price is the dedup key within a ladder: re-inserting an existing price
// replaces its size, and a size of zero removes the level.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Notional returns price*size, the quote-currency value resting at the level.
func (l PriceLevel) Notional() decimal.Decimal {
	return l.Price.Mul(l.Size)
}

// BookState is the reconstructed order book for a single token.
// Bids are sorted descending by price, asks ascending. Owned by the book
// cache; everything handed to readers is a deep copy, never a live reference.
type BookState struct {
	AssetID    string          `json:"asset_id"`
	Bids       []PriceLevel    `json:"bids"`
	Asks       []PriceLevel    `json:"asks"`
	BestBid    decimal.Decimal `json:"best_bid"`
	BestAsk    decimal.Decimal `json:"best_ask"`
	Mid        decimal.Decimal `json:"mid"`
	LastUpdate time.Time       `json:"last_update"`
	Source     string          `json:"source,omitempty"` // "websocket", "rest", or "midpoint"
}

// SortLadders restores ladder ordering (bids descending, asks ascending).
func (b *BookState) SortLadders() {
	sort.Slice(b.Bids, func(i, j int) bool {
		return b.Bids[i].Price.GreaterThan(b.Bids[j].Price)
	})
	sort.Slice(b.Asks, func(i, j int) bool {
		return b.Asks[i].Price.LessThan(b.Asks[j].Price)
	})
}

// Recalculate refreshes BestBid/BestAsk/Mid from the ladders.
// Ladders must already be sorted.
func (b *BookState) Recalculate() {
	b.BestBid = decimal.Zero
	b.BestAsk = decimal.Zero
	if len(b.Bids) > 0 {
		b.BestBid = b.Bids[0].Price
	}
	if len(b.Asks) > 0 {
		b.BestAsk = b.Asks[0].Price
	}
	if len(b.Bids) > 0 && len(b.Asks) > 0 {
		b.Mid = b.BestBid.Add(b.BestAsk).Div(decimal.NewFromInt(2))
	} else {
		b.Mid = decimal.Zero
	}
}

// Spread returns bestAsk - bestBid, or zero when either side is empty.
func (b *BookState) Spread() decimal.Decimal {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return decimal.Zero
	}
	return b.BestAsk.Sub(b.BestBid)
}

// IsCrossed reports bestBid > bestAsk. Venues can legitimately publish a
// crossed book for a moment; callers decide whether to act on it.
func (b *BookState) IsCrossed() bool {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return false
	}
	return b.BestBid.GreaterThan(b.BestAsk)
}

// Ladder returns the side consumed by a taker order: asks for a buy,
// bids for a sell.
func (b *BookState) Ladder(side Side) []PriceLevel {
	if side == SideBuy {
		return b.Asks
	}
	return b.Bids
}

// Clone returns a deep copy safe to read while the original keeps mutating.
func (b *BookState) Clone() *BookState {
	cp := *b
	cp.Bids = make([]PriceLevel, len(b.Bids))
	copy(cp.Bids, b.Bids)
	cp.Asks = make([]PriceLevel, len(b.Asks))
	copy(cp.Asks, b.Asks)
	return &cp
}

// Age returns how old the book is relative to now.
func (b *BookState) Age(now time.Time) time.Duration {
	return now.Sub(b.LastUpdate)
}
