// Package book maintains the live order-book view per token, fed by the
// streaming ingestion path and read by execution pricing.
package book

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
)

// SourceWebsocket tags book state reconstructed from the streaming feed.
const SourceWebsocket = "websocket"

// Cache holds one BookState per tracked token. A single RWMutex guards the
// whole map: mutations hold the write lock for the short apply+resort
// section, readers always leave with a deep copy so an in-progress book
// walk can never observe a half-applied ladder.
type Cache struct {
	mu    sync.RWMutex
	books map[string]*domain.BookState
}

// NewCache creates an empty book cache.
func NewCache() *Cache {
	return &Cache{
		books: make(map[string]*domain.BookState),
	}
}

// ApplySnapshot replaces both ladders for a token wholesale, used on first
// subscribe and after every reconnect. Zero- and negative-size levels are
// filtered so ladders never carry empty levels.
func (c *Cache) ApplySnapshot(assetID string, bids, asks []domain.PriceLevel) {
	book := &domain.BookState{
		AssetID:    assetID,
		Bids:       filterLevels(bids),
		Asks:       filterLevels(asks),
		LastUpdate: time.Now(),
		Source:     SourceWebsocket,
	}
	book.SortLadders()
	book.Recalculate()

	c.mu.Lock()
	c.books[assetID] = book
	c.mu.Unlock()
}

// ApplyDelta upserts or removes a single level. Price is the dedup key:
// an existing price gets its size replaced, size zero removes the level.
//
// Deltas for a token with no prior snapshot are dropped, not buffered —
// the feed always opens a subscription with a full snapshot, so an orphan
// delta means we reconnected and the snapshot is about to arrive; patching
// an empty book would publish a one-sided ladder as if it were real depth.
// Malformed deltas (non-positive price, negative size) are dropped whole.
// Returns whether the delta was applied.
func (c *Cache) ApplyDelta(assetID string, side domain.Side, price, size decimal.Decimal) bool {
	if !price.IsPositive() || size.IsNegative() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	book, ok := c.books[assetID]
	if !ok {
		return false
	}

	if side == domain.SideBuy {
		book.Bids = upsertLevel(book.Bids, price, size)
	} else {
		book.Asks = upsertLevel(book.Asks, price, size)
	}
	book.SortLadders()
	book.Recalculate()
	book.LastUpdate = time.Now()
	book.Source = SourceWebsocket
	return true
}

// Get returns a deep copy of the token's book if it is fresher than
// maxAge. maxAge <= 0 skips the freshness check. The second return is
// false when the book is missing or stale; the caller falls back to a
// polled snapshot.
func (c *Cache) Get(assetID string, maxAge time.Duration) (*domain.BookState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	book, ok := c.books[assetID]
	if !ok {
		return nil, false
	}
	if maxAge > 0 && time.Since(book.LastUpdate) >= maxAge {
		return nil, false
	}
	return book.Clone(), true
}

// Age returns how stale the token's book is. The bool is false when the
// token has never received a snapshot.
func (c *Cache) Age(assetID string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	book, ok := c.books[assetID]
	if !ok {
		return 0, false
	}
	return time.Since(book.LastUpdate), true
}

// Drop removes a token's book, used when a window expires and its tokens
// are unsubscribed.
func (c *Cache) Drop(assetID string) {
	c.mu.Lock()
	delete(c.books, assetID)
	c.mu.Unlock()
}

// Tracked returns the tokens currently holding a book.
func (c *Cache) Tracked() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.books))
	for id := range c.books {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of tracked tokens.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.books)
}

// filterLevels copies levels, dropping empty ones.
func filterLevels(levels []domain.PriceLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, l := range levels {
		if l.Size.IsPositive() && l.Price.IsPositive() {
			out = append(out, l)
		}
	}
	return out
}

// upsertLevel applies one delta to a ladder. Removing an absent price is
// a no-op.
func upsertLevel(levels []domain.PriceLevel, price, size decimal.Decimal) []domain.PriceLevel {
	for i := range levels {
		if levels[i].Price.Equal(price) {
			if size.IsZero() {
				return append(levels[:i], levels[i+1:]...)
			}
			levels[i].Size = size
			return levels
		}
	}
	if size.IsZero() {
		return levels
	}
	return append(levels, domain.PriceLevel{Price: price, Size: size})
}
