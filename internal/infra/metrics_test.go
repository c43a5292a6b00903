package infra

import (
	"testing"
)

func TestMetrics_FeedCounters(t *testing.T) {
	m := &Metrics{}

	m.RecordFeedEvent()
	m.RecordFeedEvent()
	m.RecordFeedEvent()
	m.RecordFeedDrop()
	m.RecordOrphanDelta()

	snap := m.Snapshot()

	if snap.FeedEvents != 3 {
		t.Errorf("Expected 3 feed events, got %d", snap.FeedEvents)
	}
	if snap.FeedDrops != 1 {
		t.Errorf("Expected 1 drop, got %d", snap.FeedDrops)
	}
	if snap.OrphanDeltas != 1 {
		t.Errorf("Expected 1 orphan delta, got %d", snap.OrphanDeltas)
	}
}

func TestMetrics_WSConnectTracking(t *testing.T) {
	m := &Metrics{}

	m.RecordWSConnect(false)
	snap := m.Snapshot()
	if snap.WSConnects != 1 || snap.WSReconnects != 0 {
		t.Errorf("Expected 1 connect / 0 reconnects, got %d/%d", snap.WSConnects, snap.WSReconnects)
	}
	if !snap.WSConnected {
		t.Error("Expected connected gauge set")
	}

	m.RecordWSDisconnect()
	m.RecordWSConnect(true)
	snap = m.Snapshot()
	if snap.WSConnects != 2 || snap.WSReconnects != 1 {
		t.Errorf("Expected 2 connects / 1 reconnect, got %d/%d", snap.WSConnects, snap.WSReconnects)
	}
}

func TestMetrics_CacheCounters(t *testing.T) {
	m := &Metrics{}

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheStale()
	m.RecordRESTFallback()

	snap := m.Snapshot()
	if snap.CacheHits != 2 || snap.CacheStale != 1 || snap.RESTFallbacks != 1 {
		t.Errorf("Snapshot = hits:%d stale:%d fallbacks:%d",
			snap.CacheHits, snap.CacheStale, snap.RESTFallbacks)
	}
}

func TestMetrics_CircuitState(t *testing.T) {
	m := &Metrics{}

	snap := m.Snapshot()
	if snap.CircuitOpen {
		t.Error("Expected circuit closed initially")
	}

	m.SetCircuitState(true)
	snap = m.Snapshot()
	if !snap.CircuitOpen {
		t.Error("Expected circuit open")
	}

	m.SetCircuitState(false)
	snap = m.Snapshot()
	if snap.CircuitOpen {
		t.Error("Expected circuit closed")
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordFeedEvent()
	m.RecordError()
	m.RecordTradeExecuted()
	m.RecordWSConnect(false)

	m.Reset()
	snap := m.Snapshot()

	if snap.FeedEvents != 0 {
		t.Error("Expected 0 feed events after reset")
	}
	if snap.ErrorsTotal != 0 {
		t.Error("Expected 0 errors after reset")
	}
	if snap.TradesExecuted != 0 {
		t.Error("Expected 0 trades after reset")
	}
	if snap.WSConnected {
		t.Error("Expected disconnected after reset")
	}
}
