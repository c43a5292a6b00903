package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
	"github.com/hollowc2/polymarket-auto-trader/internal/event"
	"github.com/hollowc2/polymarket-auto-trader/internal/infra"
)

const (
	maxRetries   = 10
	pingInterval = 10 * time.Second
	readTimeout  = 60 * time.Second
)

// FeedWorker owns the streaming connection to the CLOB market channel.
// A dedicated goroutine runs the connect/read/reconnect loop; parsed
// events go to the inbox channel, where a single applier consumes them
// so per-asset book mutations apply in receive order. A full inbox
// drops the event rather than blocking the read loop.
type FeedWorker struct {
	url   string
	inbox chan<- event.Event

	mu        sync.RWMutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connDone  chan struct{} // closed with the connection it belongs to
	connected bool
	assets    map[string]struct{}

	everConnected bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

var _ domain.FeedWorker = (*FeedWorker)(nil)

// NewFeedWorker creates a feed worker publishing into inbox.
func NewFeedWorker(wsURL string, inbox chan<- event.Event) *FeedWorker {
	return &FeedWorker{
		url:    wsURL,
		inbox:  inbox,
		assets: make(map[string]struct{}),
	}
}

// Connect starts the connection loop in the background.
func (w *FeedWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *FeedWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Feed connection loop panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("Feed connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			w.readLoop(ctx)
			infra.GlobalMetrics.RecordWSDisconnect()
		}
	}
}

func (w *FeedWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, w.url, http.Header{})
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	done := make(chan struct{})

	w.mu.Lock()
	w.conn = conn
	w.connDone = done
	w.connected = true
	reconnect := w.everConnected
	w.everConnected = true
	subs := w.trackedLocked()
	w.mu.Unlock()

	// Resubscribe everything we were tracking; a fresh snapshot per
	// token follows, which replaces any stale cached state.
	if len(subs) > 0 {
		if err := w.sendSubscribe(subs); err != nil {
			w.closeConnection()
			return err
		}
	}

	w.wg.Add(1)
	go w.pingLoop(ctx, done)

	infra.GlobalMetrics.RecordWSConnect(reconnect)
	slog.Info("Feed connected", slog.Int("subs", len(subs)), slog.Bool("reconnect", reconnect))
	return nil
}

// Subscribe adds tokens to the tracked set and, when connected, opens
// their market-channel subscription immediately.
func (w *FeedWorker) Subscribe(assetIDs ...string) {
	w.mu.Lock()
	var fresh []string
	for _, id := range assetIDs {
		if _, ok := w.assets[id]; !ok {
			w.assets[id] = struct{}{}
			fresh = append(fresh, id)
		}
	}
	connected := w.connected
	w.mu.Unlock()

	if connected && len(fresh) > 0 {
		if err := w.sendSubscribe(fresh); err != nil {
			slog.Warn("Feed subscribe failed", slog.Any("error", err))
		}
	}
}

// Unsubscribe stops tracking tokens. The venue closes window markets
// quickly, so dropping the local set is enough; the connection is left
// alone.
func (w *FeedWorker) Unsubscribe(assetIDs ...string) {
	w.mu.Lock()
	for _, id := range assetIDs {
		delete(w.assets, id)
	}
	w.mu.Unlock()
}

// Tracked returns the currently tracked token ids.
func (w *FeedWorker) Tracked() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.trackedLocked()
}

func (w *FeedWorker) trackedLocked() []string {
	ids := make([]string, 0, len(w.assets))
	for id := range w.assets {
		ids = append(ids, id)
	}
	return ids
}

func (w *FeedWorker) sendSubscribe(assetIDs []string) error {
	msg := subscribeMessage{AssetIDs: assetIDs, Type: "market"}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *FeedWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

// pingLoop keeps one connection alive with the CLOB's text PING
// frames. done is that connection's channel; it closes when the
// connection does, so a loop never outlives its connection into the
// next one after a reconnect.
func (w *FeedWorker) pingLoop(ctx context.Context, done <-chan struct{}) {
	defer w.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := w.threadSafeWrite(websocket.TextMessage, []byte("PING")); err != nil {
				return
			}
		}
	}
}

func (w *FeedWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.handleMessage(msg)
	}
}

// handleMessage parses one raw frame and publishes the events it
// carries. The feed sends both single objects and arrays; PONG
// keepalives and unknown event types are ignored, malformed payloads
// dropped whole.
func (w *FeedWorker) handleMessage(raw []byte) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("PONG")) {
		return
	}

	var msgs []feedMessage
	if raw[0] == '[' {
		if json.Unmarshal(raw, &msgs) != nil {
			return
		}
	} else {
		var single feedMessage
		if json.Unmarshal(raw, &single) != nil {
			return
		}
		msgs = append(msgs, single)
	}

	for i := range msgs {
		w.dispatch(&msgs[i])
	}
}

func (w *FeedWorker) dispatch(msg *feedMessage) {
	switch msg.kind() {
	case "book":
		if msg.AssetID == "" {
			return
		}
		w.emit(&event.BookSnapshotEvent{
			AssetID: msg.AssetID,
			Bids:    parseLevels(msg.Bids),
			Asks:    parseLevels(msg.Asks),
		})

	case "price_change":
		if msg.AssetID == "" || len(msg.Changes) == 0 {
			return
		}
		ev := event.AcquirePriceChangeEvent()
		ev.AssetID = msg.AssetID
		for _, ch := range msg.Changes {
			price, err := decimal.NewFromString(ch.Price)
			if err != nil {
				continue
			}
			size, err := decimal.NewFromString(ch.Size)
			if err != nil {
				continue
			}
			ev.Changes = append(ev.Changes, event.LevelChange{
				Side:  domain.Side(ch.Side),
				Price: price,
				Size:  size,
			})
		}
		if len(ev.Changes) == 0 {
			event.ReleasePriceChangeEvent(ev)
			return
		}
		w.emit(ev)

	case "last_trade_price":
		if msg.AssetID == "" {
			return
		}
		price, err := decimal.NewFromString(msg.Price)
		if err != nil {
			return
		}
		size, _ := decimal.NewFromString(msg.Size)
		w.emit(&event.TradeTickEvent{
			Tick: domain.TradeTick{
				AssetID:   msg.AssetID,
				Market:    msg.Market,
				Price:     price,
				Size:      size,
				Side:      domain.Side(msg.Side),
				Timestamp: parseFeedTimestamp(msg.Timestamp),
			},
		})

	default:
		// subscription acks, tick_size_change, anything new: ignored.
	}
}

func (w *FeedWorker) emit(ev event.Event) {
	select {
	case w.inbox <- ev:
		infra.GlobalMetrics.RecordFeedEvent()
	default:
		infra.GlobalMetrics.RecordFeedDrop()
		if pc, ok := ev.(*event.PriceChangeEvent); ok {
			event.ReleasePriceChangeEvent(pc)
		}
	}
}

// parseFeedTimestamp handles the feed's unix timestamps, which arrive
// as strings in either seconds or milliseconds.
func parseFeedTimestamp(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Now()
	}
	if v > 1_000_000_000_000 { // milliseconds
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}

func (w *FeedWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	if w.connDone != nil {
		close(w.connDone)
		w.connDone = nil
	}
	w.connected = false
}

// IsConnected reports whether the feed currently holds a live
// connection.
func (w *FeedWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// Disconnect stops the loops and closes the connection.
func (w *FeedWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
