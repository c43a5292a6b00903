package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hollowc2/polymarket-auto-trader/internal/book"
	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
	"github.com/hollowc2/polymarket-auto-trader/internal/event"
	"github.com/hollowc2/polymarket-auto-trader/internal/infra"
)

type fakeClient struct {
	books    map[string]*domain.BookState
	markets  map[int64]*domain.Market
	bookErr  error
	mid      string
	getCalls int
}

func (f *fakeClient) GetMarket(ctx context.Context, windowStart int64) (*domain.Market, error) {
	m, ok := f.markets[windowStart]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return m, nil
}

func (f *fakeClient) GetOrderBook(ctx context.Context, tokenID string) (*domain.BookState, error) {
	f.getCalls++
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	b, ok := f.books[tokenID]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return b, nil
}

func (f *fakeClient) GetMidpoint(ctx context.Context, tokenID string) (string, error) {
	if f.mid == "" {
		return "", domain.ErrMarketNotFound
	}
	return f.mid, nil
}

func restBook(assetID, bid, ask string) *domain.BookState {
	b := &domain.BookState{
		AssetID: assetID,
		Bids:    []domain.PriceLevel{{Price: decimal.RequireFromString(bid), Size: decimal.NewFromInt(100)}},
		Asks:    []domain.PriceLevel{{Price: decimal.RequireFromString(ask), Size: decimal.NewFromInt(100)}},
		Source:  "rest",
	}
	b.SortLadders()
	b.Recalculate()
	return b
}

func newMDService(client domain.MarketClient, inbox chan event.Event, rejectCrossed bool) (*MarketDataService, *book.Cache) {
	cfg := &infra.Config{}
	cfg.MarketData.DisplayFreshnessMS = 5000
	cfg.MarketData.ExecFreshnessMS = 2000
	cfg.MarketData.RejectCrossedBooks = rejectCrossed
	cache := book.NewCache()
	return NewMarketDataService(cfg, cache, client, nil, inbox), cache
}

func TestOrderbookServesFromCache(t *testing.T) {
	client := &fakeClient{}
	svc, cache := newMDService(client, nil, false)

	cache.ApplySnapshot("111",
		[]domain.PriceLevel{{Price: decimal.RequireFromString("0.48"), Size: decimal.NewFromInt(50)}},
		[]domain.PriceLevel{{Price: decimal.RequireFromString("0.52"), Size: decimal.NewFromInt(50)}},
	)

	b, err := svc.Orderbook(context.Background(), "111")
	if err != nil {
		t.Fatalf("Orderbook: %v", err)
	}
	if b.Source != book.SourceWebsocket {
		t.Errorf("source = %q, want websocket", b.Source)
	}
	if client.getCalls != 0 {
		t.Errorf("REST calls = %d, want 0", client.getCalls)
	}
}

func TestOrderbookFallsBackOnMiss(t *testing.T) {
	client := &fakeClient{books: map[string]*domain.BookState{
		"111": restBook("111", "0.48", "0.52"),
	}}
	svc, _ := newMDService(client, nil, false)

	b, err := svc.Orderbook(context.Background(), "111")
	if err != nil {
		t.Fatalf("Orderbook: %v", err)
	}
	if b.Source != "rest" {
		t.Errorf("source = %q, want rest", b.Source)
	}
	if client.getCalls != 1 {
		t.Errorf("REST calls = %d, want 1", client.getCalls)
	}
}

func TestOrderbookFallbackErrorPropagates(t *testing.T) {
	client := &fakeClient{bookErr: domain.ErrCircuitOpen}
	svc, _ := newMDService(client, nil, false)

	_, err := svc.Orderbook(context.Background(), "111")
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestOrderbookMidpointLastResort(t *testing.T) {
	client := &fakeClient{bookErr: domain.ErrMarketNotFound, mid: "0.57"}
	svc, _ := newMDService(client, nil, false)

	b, err := svc.Orderbook(context.Background(), "111")
	if err != nil {
		t.Fatalf("Orderbook: %v", err)
	}
	if b.Source != "midpoint" {
		t.Errorf("source = %q, want midpoint", b.Source)
	}
	if b.Mid.String() != "0.57" {
		t.Errorf("mid = %s, want 0.57", b.Mid)
	}
	if len(b.Bids) != 0 || len(b.Asks) != 0 {
		t.Error("midpoint book must carry no ladders")
	}
}

func TestOrderbookMidpointRejectsBadQuote(t *testing.T) {
	client := &fakeClient{bookErr: domain.ErrCircuitOpen, mid: "0"}
	svc, _ := newMDService(client, nil, false)

	_, err := svc.Orderbook(context.Background(), "111")
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("err = %v, want the book error past a zero midpoint", err)
	}
}

func TestCrossedCacheBookRejectedWhenConfigured(t *testing.T) {
	client := &fakeClient{books: map[string]*domain.BookState{
		"111": restBook("111", "0.48", "0.52"),
	}}
	svc, cache := newMDService(client, nil, true)

	// Crossed: bid above ask.
	cache.ApplySnapshot("111",
		[]domain.PriceLevel{{Price: decimal.RequireFromString("0.55"), Size: decimal.NewFromInt(50)}},
		[]domain.PriceLevel{{Price: decimal.RequireFromString("0.52"), Size: decimal.NewFromInt(50)}},
	)

	b, err := svc.Orderbook(context.Background(), "111")
	if err != nil {
		t.Fatalf("Orderbook: %v", err)
	}
	if b.Source != "rest" {
		t.Errorf("source = %q, want REST fallback past crossed cache", b.Source)
	}
}

func TestCrossedBookPassedThroughByDefault(t *testing.T) {
	client := &fakeClient{}
	svc, cache := newMDService(client, nil, false)

	cache.ApplySnapshot("111",
		[]domain.PriceLevel{{Price: decimal.RequireFromString("0.55"), Size: decimal.NewFromInt(50)}},
		[]domain.PriceLevel{{Price: decimal.RequireFromString("0.52"), Size: decimal.NewFromInt(50)}},
	)

	b, err := svc.Orderbook(context.Background(), "111")
	if err != nil {
		t.Fatalf("Orderbook: %v", err)
	}
	if !b.IsCrossed() {
		t.Error("expected the crossed book unchanged")
	}
	if client.getCalls != 0 {
		t.Errorf("REST calls = %d, want 0", client.getCalls)
	}
}

func TestApplierBookSnapshot(t *testing.T) {
	inbox := make(chan event.Event, 4)
	svc, cache := newMDService(&fakeClient{}, inbox, false)

	svc.apply(&event.BookSnapshotEvent{
		AssetID: "111",
		Bids:    []domain.PriceLevel{{Price: decimal.RequireFromString("0.48"), Size: decimal.NewFromInt(10)}},
		Asks:    []domain.PriceLevel{{Price: decimal.RequireFromString("0.52"), Size: decimal.NewFromInt(10)}},
	})

	b, ok := cache.Get("111", 0)
	if !ok {
		t.Fatal("snapshot not applied")
	}
	if b.BestBid.String() != "0.48" {
		t.Errorf("best bid = %s", b.BestBid)
	}
}

func TestApplierPriceChange(t *testing.T) {
	svc, cache := newMDService(&fakeClient{}, nil, false)

	cache.ApplySnapshot("111",
		[]domain.PriceLevel{{Price: decimal.RequireFromString("0.48"), Size: decimal.NewFromInt(10)}},
		[]domain.PriceLevel{{Price: decimal.RequireFromString("0.52"), Size: decimal.NewFromInt(10)}},
	)

	ev := event.AcquirePriceChangeEvent()
	ev.AssetID = "111"
	ev.Changes = append(ev.Changes,
		event.LevelChange{Side: domain.SideBuy, Price: decimal.RequireFromString("0.49"), Size: decimal.NewFromInt(5)},
		event.LevelChange{Side: domain.SideSell, Price: decimal.RequireFromString("0.52"), Size: decimal.Zero},
	)
	svc.apply(ev)

	b, _ := cache.Get("111", 0)
	if b.BestBid.String() != "0.49" {
		t.Errorf("best bid = %s, want upserted 0.49", b.BestBid)
	}
	if len(b.Asks) != 0 {
		t.Errorf("asks = %d, want removed", len(b.Asks))
	}
}

func TestApplierOrphanDeltaDropped(t *testing.T) {
	svc, cache := newMDService(&fakeClient{}, nil, false)

	ev := event.AcquirePriceChangeEvent()
	ev.AssetID = "no-snapshot"
	ev.Changes = append(ev.Changes,
		event.LevelChange{Side: domain.SideBuy, Price: decimal.RequireFromString("0.49"), Size: decimal.NewFromInt(5)})
	svc.apply(ev)

	if _, ok := cache.Get("no-snapshot", 0); ok {
		t.Fatal("orphan delta must not create a book")
	}
}

func TestApplierCountsMalformedApartFromOrphans(t *testing.T) {
	infra.GlobalMetrics.Reset()
	svc, cache := newMDService(&fakeClient{}, nil, false)

	cache.ApplySnapshot("111",
		[]domain.PriceLevel{{Price: decimal.RequireFromString("0.48"), Size: decimal.NewFromInt(10)}},
		[]domain.PriceLevel{{Price: decimal.RequireFromString("0.52"), Size: decimal.NewFromInt(10)}},
	)

	// One bad-price delta on a tracked book, one valid delta on an
	// untracked one.
	ev := event.AcquirePriceChangeEvent()
	ev.AssetID = "111"
	ev.Changes = append(ev.Changes,
		event.LevelChange{Side: domain.SideBuy, Price: decimal.Zero, Size: decimal.NewFromInt(5)})
	svc.apply(ev)

	ev = event.AcquirePriceChangeEvent()
	ev.AssetID = "no-snapshot"
	ev.Changes = append(ev.Changes,
		event.LevelChange{Side: domain.SideBuy, Price: decimal.RequireFromString("0.49"), Size: decimal.NewFromInt(5)})
	svc.apply(ev)

	snap := infra.GlobalMetrics.Snapshot()
	if snap.MalformedDeltas != 1 {
		t.Errorf("malformed deltas = %d, want 1", snap.MalformedDeltas)
	}
	if snap.OrphanDeltas != 1 {
		t.Errorf("orphan deltas = %d, want 1", snap.OrphanDeltas)
	}
}

func TestRunApplierStopsOnCancel(t *testing.T) {
	inbox := make(chan event.Event, 1)
	svc, cache := newMDService(&fakeClient{}, inbox, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunApplier(ctx)
		close(done)
	}()

	inbox <- &event.BookSnapshotEvent{AssetID: "111"}
	deadline := time.After(time.Second)
	for cache.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("applier never processed the event")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("applier did not stop on cancel")
	}
}
