// Package strategy holds the signal generators. A strategy sees a
// snapshot of the market and answers with at most one directional
// signal; sizing limits and execution belong to the caller.
package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
)

// Signal is one directional bet proposal. Confidence is in [0,1];
// Amount is the requested notional, before risk caps.
type Signal struct {
	Direction  domain.Direction
	Confidence decimal.Decimal
	Amount     decimal.Decimal
}

// MarketView is everything a strategy may look at for one decision:
// the target window's market, both token books, and recent history.
type MarketView struct {
	Market   *domain.Market
	UpBook   *domain.BookState
	DownBook *domain.BookState

	// RecentOutcomes lists resolved window outcomes, newest first.
	RecentOutcomes []domain.Direction

	// RecentTicks holds the latest last-trade prints for the up token,
	// newest first. May be empty when the archive is cold.
	RecentTicks []*domain.TradeTickRecord

	Now time.Time
}

// Strategy is the interface all signal generators implement. Evaluate
// returns (nil, nil) when the strategy has no opinion on this window.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, view *MarketView) (*Signal, error)
}
