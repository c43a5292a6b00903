package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Feed counters
	wsConnects      atomic.Uint64
	wsReconnects    atomic.Uint64
	feedEvents      atomic.Uint64
	feedDrops       atomic.Uint64 // inbox full, event discarded
	orphanDeltas    atomic.Uint64 // delta before any snapshot
	malformedDeltas atomic.Uint64 // non-positive price or negative size

	// Cache counters
	cacheHits     atomic.Uint64
	cacheStale    atomic.Uint64
	restFallbacks atomic.Uint64

	// Resilience counters
	rateLimited atomic.Uint64
	errorsTotal atomic.Uint64

	// Trading counters
	tradesExecuted atomic.Uint64
	tradesSettled  atomic.Uint64

	// Gauges
	wsConnected atomic.Int32 // 1 = connected
	circuitOpen atomic.Int32 // 1 = open, 0 = closed
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordWSConnect records a successful feed connection.
func (m *Metrics) RecordWSConnect(reconnect bool) {
	m.wsConnects.Add(1)
	if reconnect {
		m.wsReconnects.Add(1)
	}
	m.wsConnected.Store(1)
}

// RecordWSDisconnect marks the feed as down.
func (m *Metrics) RecordWSDisconnect() {
	m.wsConnected.Store(0)
}

// RecordFeedEvent records an event handed to the applier.
func (m *Metrics) RecordFeedEvent() {
	m.feedEvents.Add(1)
}

// RecordFeedDrop records an event discarded because the inbox was full.
func (m *Metrics) RecordFeedDrop() {
	m.feedDrops.Add(1)
}

// RecordOrphanDelta records a delta dropped for lack of a snapshot.
func (m *Metrics) RecordOrphanDelta() {
	m.orphanDeltas.Add(1)
}

// RecordMalformedDelta records a delta dropped for bad price or size.
func (m *Metrics) RecordMalformedDelta() {
	m.malformedDeltas.Add(1)
}

// RecordCacheHit records a fresh book served from the cache.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheStale records a stale/missing cache read.
func (m *Metrics) RecordCacheStale() {
	m.cacheStale.Add(1)
}

// RecordRESTFallback records a polled snapshot fetched after a stale read.
func (m *Metrics) RecordRESTFallback() {
	m.restFallbacks.Add(1)
}

// RecordRateLimited records a call rejected by the local limiter.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// RecordTradeExecuted records a simulated/placed fill.
func (m *Metrics) RecordTradeExecuted() {
	m.tradesExecuted.Add(1)
}

// RecordTradeSettled records a settled trade.
func (m *Metrics) RecordTradeSettled() {
	m.tradesSettled.Add(1)
}

// SetCircuitState sets the circuit breaker state (true = open).
func (m *Metrics) SetCircuitState(open bool) {
	if open {
		m.circuitOpen.Store(1)
	} else {
		m.circuitOpen.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	WSConnects      uint64
	WSReconnects    uint64
	WSConnected     bool
	FeedEvents      uint64
	FeedDrops       uint64
	OrphanDeltas    uint64
	MalformedDeltas uint64
	CacheHits       uint64
	CacheStale      uint64
	RESTFallbacks   uint64
	RateLimited     uint64
	ErrorsTotal     uint64
	TradesExecuted  uint64
	TradesSettled   uint64
	CircuitOpen     bool
	Timestamp       time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		WSConnects:      m.wsConnects.Load(),
		WSReconnects:    m.wsReconnects.Load(),
		WSConnected:     m.wsConnected.Load() == 1,
		FeedEvents:      m.feedEvents.Load(),
		FeedDrops:       m.feedDrops.Load(),
		OrphanDeltas:    m.orphanDeltas.Load(),
		MalformedDeltas: m.malformedDeltas.Load(),
		CacheHits:       m.cacheHits.Load(),
		CacheStale:      m.cacheStale.Load(),
		RESTFallbacks:   m.restFallbacks.Load(),
		RateLimited:     m.rateLimited.Load(),
		ErrorsTotal:     m.errorsTotal.Load(),
		TradesExecuted:  m.tradesExecuted.Load(),
		TradesSettled:   m.tradesSettled.Load(),
		CircuitOpen:     m.circuitOpen.Load() == 1,
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.wsConnects.Store(0)
	m.wsReconnects.Store(0)
	m.feedEvents.Store(0)
	m.feedDrops.Store(0)
	m.orphanDeltas.Store(0)
	m.malformedDeltas.Store(0)
	m.cacheHits.Store(0)
	m.cacheStale.Store(0)
	m.restFallbacks.Store(0)
	m.rateLimited.Store(0)
	m.errorsTotal.Store(0)
	m.tradesExecuted.Store(0)
	m.tradesSettled.Store(0)
	m.wsConnected.Store(0)
	m.circuitOpen.Store(0)
}
