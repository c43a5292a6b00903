// Package service composes the domain layers into the bot's running
// parts: the market-data view, the settlement watcher, and the trading
// runner that drives them.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hollowc2/polymarket-auto-trader/internal/book"
	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
	"github.com/hollowc2/polymarket-auto-trader/internal/event"
	"github.com/hollowc2/polymarket-auto-trader/internal/infra"
)

// MarketDataService serves order books with freshness guarantees. Reads
// prefer the feed-built cache; a cache miss or stale book falls back to
// a polled REST snapshot, which itself sits behind the client's breaker
// and limiter.
type MarketDataService struct {
	cache   *book.Cache
	client  domain.MarketClient
	archive domain.ArchiveRepository // optional, ticks only
	inbox   <-chan event.Event

	displayFreshness time.Duration
	execFreshness    time.Duration
	rejectCrossed    bool

	logger *slog.Logger
}

var _ domain.BookProvider = (*MarketDataService)(nil)

// NewMarketDataService wires the cache, the inbox the feed worker
// publishes into, and the REST fallback client. archive may be nil.
func NewMarketDataService(cfg *infra.Config, cache *book.Cache, client domain.MarketClient, archive domain.ArchiveRepository, inbox <-chan event.Event) *MarketDataService {
	return &MarketDataService{
		cache:            cache,
		client:           client,
		archive:          archive,
		inbox:            inbox,
		displayFreshness: time.Duration(cfg.MarketData.DisplayFreshnessMS) * time.Millisecond,
		execFreshness:    time.Duration(cfg.MarketData.ExecFreshnessMS) * time.Millisecond,
		rejectCrossed:    cfg.MarketData.RejectCrossedBooks,
		logger:           slog.Default().With("module", "market_data"),
	}
}

// Orderbook returns a book fresh enough for display and monitoring.
func (s *MarketDataService) Orderbook(ctx context.Context, assetID string) (*domain.BookState, error) {
	return s.book(ctx, assetID, s.displayFreshness)
}

// ExecutionBook returns a book fresh enough to price a fill against.
// The tighter window means more REST fallbacks, which is the right
// trade: betting on a stale ladder is worse than a slower read.
func (s *MarketDataService) ExecutionBook(ctx context.Context, assetID string) (*domain.BookState, error) {
	return s.book(ctx, assetID, s.execFreshness)
}

func (s *MarketDataService) book(ctx context.Context, assetID string, maxAge time.Duration) (*domain.BookState, error) {
	if cached, ok := s.cache.Get(assetID, maxAge); ok {
		if s.rejectCrossed && cached.IsCrossed() {
			s.logger.Warn("Cached book crossed, falling back to REST",
				slog.String("asset_id", assetID),
				slog.String("best_bid", cached.BestBid.String()),
				slog.String("best_ask", cached.BestAsk.String()),
			)
		} else {
			infra.GlobalMetrics.RecordCacheHit()
			return cached, nil
		}
	} else if _, tracked := s.cache.Age(assetID); tracked {
		infra.GlobalMetrics.RecordCacheStale()
	}

	infra.GlobalMetrics.RecordRESTFallback()
	polled, err := s.client.GetOrderBook(ctx, assetID)
	if err != nil {
		if mid := s.midpointBook(ctx, assetID); mid != nil {
			return mid, nil
		}
		return nil, fmt.Errorf("book fallback %s: %w", assetID, err)
	}
	if s.rejectCrossed && polled.IsCrossed() {
		return nil, fmt.Errorf("book %s crossed on both paths: %w", assetID, domain.ErrStaleBook)
	}
	return polled, nil
}

// midpointBook is the last resort when both the cache and the REST book
// fail: a ladderless book built from the midpoint endpoint. The
// simulator prices empty books at their midpoint, so fills still work.
// Returns nil when the midpoint is unavailable or unusable.
func (s *MarketDataService) midpointBook(ctx context.Context, assetID string) *domain.BookState {
	raw, err := s.client.GetMidpoint(ctx, assetID)
	if err != nil {
		return nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil || !price.IsPositive() {
		return nil
	}
	s.logger.Warn("Book unavailable, using midpoint",
		slog.String("asset_id", assetID),
		slog.String("midpoint", price.String()),
	)
	return &domain.BookState{
		AssetID:    assetID,
		Mid:        price,
		LastUpdate: time.Now(),
		Source:     "midpoint",
	}
}

// RunApplier drains the feed inbox and mutates the cache. A single
// goroutine runs this so per-token mutations apply in receive order.
// Blocks until ctx is cancelled.
func (s *MarketDataService) RunApplier(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.inbox:
			if !ok {
				return
			}
			s.apply(ev)
		}
	}
}

func (s *MarketDataService) apply(ev event.Event) {
	switch e := ev.(type) {
	case *event.BookSnapshotEvent:
		s.cache.ApplySnapshot(e.AssetID, e.Bids, e.Asks)

	case *event.PriceChangeEvent:
		for _, ch := range e.Changes {
			if !ch.Price.IsPositive() || ch.Size.IsNegative() {
				infra.GlobalMetrics.RecordMalformedDelta()
				continue
			}
			if !s.cache.ApplyDelta(e.AssetID, ch.Side, ch.Price, ch.Size) {
				infra.GlobalMetrics.RecordOrphanDelta()
			}
		}
		event.ReleasePriceChangeEvent(e)

	case *event.TradeTickEvent:
		if s.archive == nil {
			return
		}
		// Best effort: a failed tick write never touches the hot path.
		if err := s.archive.SaveTradeTick(&e.Tick); err != nil {
			s.logger.Warn("Tick archive failed", slog.Any("error", err))
		}
	}
}

// Drop forgets the books for expired window tokens.
func (s *MarketDataService) Drop(assetIDs ...string) {
	for _, id := range assetIDs {
		s.cache.Drop(id)
	}
}
