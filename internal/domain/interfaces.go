package domain

import (
	"context"
)

// FeedWorker defines the interface for market-data WebSocket connectors
type FeedWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	Subscribe(assetIDs ...string)
}

// MarketClient defines the venue's polled REST surface: market discovery
// by window, order-book snapshots by token, and the midpoint price used
// when no full book is available.
type MarketClient interface {
	GetMarket(ctx context.Context, windowStart int64) (*Market, error)
	GetOrderBook(ctx context.Context, tokenID string) (*BookState, error)
	GetMidpoint(ctx context.Context, tokenID string) (string, error)
}

// BookProvider hands out order books with freshness semantics: the cached
// feed view when recent enough, a polled snapshot otherwise.
type BookProvider interface {
	Orderbook(ctx context.Context, assetID string) (*BookState, error)
	ExecutionBook(ctx context.Context, assetID string) (*BookState, error)
}

// ArchiveRepository defines how market windows and ticks are persisted
// for lookback and offline analysis.
type ArchiveRepository interface {
	SaveMarketWindow(w *MarketWindow) error
	MarkWindowResolved(windowStart int64, outcome Direction, status string) error
	SaveTradeTick(t *TradeTick) error
	RecentTicks(assetID string, limit int) ([]*TradeTickRecord, error)
	RecentOutcomes(limit int) ([]*MarketWindow, error)
}
