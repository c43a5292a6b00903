package event

import (
	"sync"
)

// Price-change events arrive at feed rate and die immediately after the
// applier patches the book, so they go through a sync.Pool to keep GC
// pressure off the hot path.
//
// Usage:
//
//	ev := AcquirePriceChangeEvent()
//	ev.AssetID = "..."
//	// ... send, apply ...
//	ReleasePriceChangeEvent(ev)
var priceChangePool = sync.Pool{
	New: func() interface{} {
		return &PriceChangeEvent{}
	},
}

// AcquirePriceChangeEvent gets a PriceChangeEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquirePriceChangeEvent() *PriceChangeEvent {
	return priceChangePool.Get().(*PriceChangeEvent)
}

// ReleasePriceChangeEvent returns an event to the pool after resetting
// it. The Changes backing array is kept to be reused by the next fill.
func ReleasePriceChangeEvent(ev *PriceChangeEvent) {
	if ev == nil {
		return
	}
	ev.AssetID = ""
	ev.Changes = ev.Changes[:0]

	priceChangePool.Put(ev)
}

// Warmup pre-allocates pooled events to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 256

	evs := make([]*PriceChangeEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquirePriceChangeEvent())
	}
	for _, ev := range evs {
		ReleasePriceChangeEvent(ev)
	}
}
