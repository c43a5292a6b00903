// Package event defines the messages the feed worker hands to the
// book applier, plus object pools for the high-frequency ones.
package event

import (
	"github.com/shopspring/decimal"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
)

// Kind discriminates feed events without reflection.
type Kind int

const (
	KindBookSnapshot Kind = iota + 1
	KindPriceChange
	KindTradeTick
)

// Event is anything the feed worker can emit into the applier channel.
type Event interface {
	EventKind() Kind
}

// BookSnapshotEvent is a full ladder replacement for one token, sent on
// subscribe and after reconnects.
type BookSnapshotEvent struct {
	AssetID string
	Bids    []domain.PriceLevel
	Asks    []domain.PriceLevel
}

func (e *BookSnapshotEvent) EventKind() Kind { return KindBookSnapshot }

// LevelChange is one upsert/remove inside a price_change event.
type LevelChange struct {
	Side  domain.Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// PriceChangeEvent carries the deltas of one price_change message.
// These dominate feed volume, so they are pooled; the applier must
// release them after applying.
type PriceChangeEvent struct {
	AssetID string
	Changes []LevelChange
}

func (e *PriceChangeEvent) EventKind() Kind { return KindPriceChange }

// TradeTickEvent is a last_trade_price message.
type TradeTickEvent struct {
	Tick domain.TradeTick
}

func (e *TradeTickEvent) EventKind() Kind { return KindTradeTick }
