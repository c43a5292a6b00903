package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
	"github.com/hollowc2/polymarket-auto-trader/internal/execution"
	"github.com/hollowc2/polymarket-auto-trader/internal/infra"
	"github.com/hollowc2/polymarket-auto-trader/internal/infra/polymarket"
	"github.com/hollowc2/polymarket-auto-trader/internal/resilience"
	"github.com/hollowc2/polymarket-auto-trader/internal/strategy"
)

const (
	// pollInterval paces the control loop between windows.
	pollInterval = 2 * time.Second

	// heartbeatInterval paces the counter snapshot log line.
	heartbeatInterval = 60 * time.Second
)

// Runner drives the per-window trading cycle: wait for a window, gate
// on risk limits, subscribe its tokens, evaluate the strategy near the
// close, simulate the fill, record it. One iteration per window at
// most; a failed iteration is logged and the loop moves on.
type Runner struct {
	boot   *Bootstrap
	logger *slog.Logger

	// tokens of the previous window, dropped once it passes
	prevUpToken   string
	prevDownToken string
}

// NewRunner creates the control loop over a bootstrapped app.
func NewRunner(b *Bootstrap) *Runner {
	return &Runner{
		boot:   b,
		logger: slog.Default().With("module", "runner"),
	}
}

// Run executes the control loop until ctx is cancelled. On the way out
// every still-pending trade is marked force-exit and the ledger is
// persisted, even when cancellation lands mid-iteration.
func (r *Runner) Run(ctx context.Context) {
	defer func() {
		exited := r.boot.Ledger.MarkPendingForceExit("shutdown")
		if len(exited) > 0 {
			r.logger.Info("Pending trades force-exited", slog.Int("count", len(exited)))
		}
		if err := r.boot.Ledger.Save(); err != nil {
			r.logger.Error("Final ledger save failed", slog.Any("error", err))
		}
	}()

	go r.heartbeat(ctx, heartbeatInterval)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.iterate(ctx); err != nil && !errors.Is(err, context.Canceled) {
			class := resilience.Classify(err)
			infra.GlobalMetrics.RecordError()
			r.logger.Warn("Iteration failed",
				slog.String("class", class.String()),
				slog.Any("error", err),
			)
		}

		if err := sleepCtx(ctx, pollInterval); err != nil {
			return
		}
	}
}

// iterate runs one window cycle.
func (r *Runner) iterate(ctx context.Context) error {
	now := time.Now()

	ok, reason := r.boot.Ledger.CanTrade()
	if !ok {
		r.logger.Info("Trading gated", slog.String("reason", reason))
		// Limits reset at UTC midnight; no point polling hot.
		return sleepCtx(ctx, 30*time.Second)
	}

	windowStart := polymarket.TargetWindow(now)
	if r.boot.Ledger.HasTradeForWindow(windowStart) {
		return sleepCtx(ctx, pollInterval)
	}

	market, err := r.boot.Client.GetMarket(ctx, windowStart)
	if err != nil {
		if errors.Is(err, domain.ErrMarketNotFound) {
			// The venue lists windows moments before they open.
			return sleepCtx(ctx, pollInterval)
		}
		return err
	}
	if !market.Tradable() {
		return sleepCtx(ctx, pollInterval)
	}

	r.archiveWindow(market)
	r.trackTokens(market)

	// Strategy runs close to the window close, when the streak through
	// this window is all but decided.
	entryAt := polymarket.WindowClose(windowStart).
		Add(-time.Duration(r.boot.Config.Trading.EntrySecondsBefore) * time.Second)
	if wait := time.Until(entryAt); wait > 0 {
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}

	// Re-check the gates after the wait; settlement may have landed.
	if ok, reason := r.boot.Ledger.CanTrade(); !ok {
		r.logger.Info("Trading gated at entry", slog.String("reason", reason))
		return nil
	}

	view, err := r.buildView(ctx, market)
	if err != nil {
		return err
	}

	signal, err := r.boot.Strategy.Evaluate(ctx, view)
	if err != nil {
		return err
	}
	if signal == nil {
		return nil
	}

	return r.execute(ctx, market, view, signal)
}

// execute prices the signal against the live book and records the
// resulting trade.
func (r *Runner) execute(ctx context.Context, market *domain.Market, view *strategy.MarketView, signal *strategy.Signal) error {
	amount := r.clampAmount(signal.Amount)
	if !amount.IsPositive() {
		r.logger.Info("Signal skipped, amount below minimum",
			slog.String("requested", signal.Amount.String()))
		return nil
	}

	tokenID := market.TokenID(signal.Direction)
	bookState, err := r.boot.MarketData.ExecutionBook(ctx, tokenID)
	if err != nil {
		return err
	}

	fill, err := r.boot.Simulator.SimulateFill(bookState, domain.SideBuy, amount, 0, market.TakerFeeBps)
	if err != nil {
		return err
	}
	if !fill.FilledNotional.IsPositive() {
		r.logger.Warn("No liquidity for signal",
			slog.String("token", tokenID),
			slog.String("direction", string(signal.Direction)),
		)
		return nil
	}

	trade := buildTrade(market, signal, fill, amount, bookState)
	if err := r.boot.Ledger.RecordTrade(trade); err != nil {
		return err
	}
	infra.GlobalMetrics.RecordTradeExecuted()

	r.logger.Info("Trade recorded",
		slog.String("trade_id", trade.ID),
		slog.String("direction", string(signal.Direction)),
		slog.String("amount", fill.FilledNotional.String()),
		slog.String("execution_price", fill.ExecutionPrice.String()),
		slog.String("confidence", signal.Confidence.String()),
	)

	return r.boot.Ledger.Save()
}

// clampAmount fits the requested notional to the min bet and bankroll.
func (r *Runner) clampAmount(requested decimal.Decimal) decimal.Decimal {
	bankroll := r.boot.Ledger.Bankroll()
	amount := requested
	if amount.GreaterThan(bankroll) {
		amount = bankroll
	}
	if amount.LessThan(r.boot.Config.Trading.MinBet) {
		return decimal.Zero
	}
	return amount
}

// buildView assembles the strategy's market snapshot.
func (r *Runner) buildView(ctx context.Context, market *domain.Market) (*strategy.MarketView, error) {
	upBook, err := r.boot.MarketData.Orderbook(ctx, market.UpTokenID)
	if err != nil {
		return nil, err
	}
	downBook, err := r.boot.MarketData.Orderbook(ctx, market.DownTokenID)
	if err != nil {
		return nil, err
	}

	view := &strategy.MarketView{
		Market:   market,
		UpBook:   upBook,
		DownBook: downBook,
		Now:      time.Now(),
	}

	windows, err := r.boot.Storage.RecentOutcomes(24)
	if err != nil {
		r.logger.Warn("Outcome lookback failed", slog.Any("error", err))
	}
	for _, w := range windows {
		view.RecentOutcomes = append(view.RecentOutcomes, domain.Direction(w.Outcome))
	}

	if ticks, err := r.boot.Storage.RecentTicks(market.UpTokenID, 50); err == nil {
		view.RecentTicks = ticks
	}
	return view, nil
}

// archiveWindow records the window descriptor, best effort.
func (r *Runner) archiveWindow(market *domain.Market) {
	err := r.boot.Storage.SaveMarketWindow(&domain.MarketWindow{
		WindowStart: market.WindowStart,
		Slug:        market.Slug,
		ConditionID: market.ConditionID,
		UpTokenID:   market.UpTokenID,
		DownTokenID: market.DownTokenID,
		TakerFeeBps: market.TakerFeeBps,
	})
	if err != nil {
		r.logger.Warn("Window archive failed", slog.Any("error", err))
	}
}

// trackTokens subscribes the new window's tokens and drops the previous
// window's books once we move on.
func (r *Runner) trackTokens(market *domain.Market) {
	if r.prevUpToken != "" && r.prevUpToken != market.UpTokenID {
		r.boot.Feed.Unsubscribe(r.prevUpToken, r.prevDownToken)
		r.boot.MarketData.Drop(r.prevUpToken, r.prevDownToken)
	}
	r.boot.Feed.Subscribe(market.UpTokenID, market.DownTokenID)
	r.prevUpToken = market.UpTokenID
	r.prevDownToken = market.DownTokenID
}

// buildTrade maps a simulated fill onto the ledger's trade record.
func buildTrade(market *domain.Market, signal *strategy.Signal, fill *execution.Fill, requested decimal.Decimal, bookState *domain.BookState) *domain.Trade {
	now := time.Now()
	t := &domain.Trade{
		Market: domain.TradeMarket{
			Key:         market.WindowStart,
			Slug:        market.Slug,
			ConditionID: market.ConditionID,
			TokenID:     fill.AssetID,
			WindowStart: time.Unix(market.WindowStart, 0),
			WindowClose: polymarket.WindowClose(market.WindowStart),
		},
		Position: domain.TradePosition{
			Direction:       signal.Direction,
			RequestedAmount: requested,
			Amount:          fill.FilledNotional,
			Confidence:      signal.Confidence,
		},
		Execution: domain.TradeExecution{
			ExecutedAt:     now,
			EntryPrice:     fill.BestPrice,
			ExecutionPrice: fill.ExecutionPrice,
			Spread:         fill.Spread,
			SlippagePct:    fill.SlippagePct,
			FillPct:        fill.FillPct,
			DelayImpactPct: fill.DelayImpactPct,
			Impact:         fill.Impact,
		},
		Fees: domain.TradeFees{
			RateBps:      fill.FeeBps,
			EstimatedFee: fill.EstimatedFee,
		},
		Settlement: domain.TradeSettlement{Status: domain.TradeStatusPending},
		Context: domain.TradeContext{
			BestBid:    bookState.BestBid,
			BestAsk:    bookState.BestAsk,
			Mid:        bookState.Mid,
			BookSource: fill.BookSource,
		},
	}
	t.ComputeID()
	return t
}

// heartbeat periodically surfaces the metrics, breaker, limiter, and
// ledger counters in the log stream.
func (r *Runner) heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logHeartbeat()
		}
	}
}

func (r *Runner) logHeartbeat() {
	m := infra.GlobalMetrics.Snapshot()
	cb := r.boot.Breaker.Stats()
	rl := r.boot.Limiter.Stats()
	led := r.boot.Ledger.Snapshot()

	r.logger.Info("Heartbeat",
		slog.Bool("ws_connected", m.WSConnected),
		slog.Uint64("ws_reconnects", m.WSReconnects),
		slog.Uint64("feed_events", m.FeedEvents),
		slog.Uint64("feed_drops", m.FeedDrops),
		slog.Uint64("orphan_deltas", m.OrphanDeltas),
		slog.Uint64("malformed_deltas", m.MalformedDeltas),
		slog.Uint64("cache_hits", m.CacheHits),
		slog.Uint64("cache_stale", m.CacheStale),
		slog.Uint64("rest_fallbacks", m.RESTFallbacks),
		slog.Uint64("rate_limited", m.RateLimited),
		slog.Uint64("errors", m.ErrorsTotal),
		slog.Uint64("trades_executed", m.TradesExecuted),
		slog.Uint64("trades_settled", m.TradesSettled),
		slog.String("circuit", cb.State),
		slog.Uint64("circuit_blocked", cb.TotalBlocked),
		slog.Int("limiter_rate", rl.CurrentRate),
		slog.Uint64("limiter_limited", rl.TotalLimited),
		slog.String("bankroll", led.Bankroll.String()),
		slog.Int("daily_bets", led.DailyBets),
		slog.Int("pending", led.Pending),
	)
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
