// Package ledger owns the authoritative trade list and bankroll. All
// bankroll movement happens inside settlement, exactly once per trade;
// risk limits are enforced before any new trade is accepted.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
	"github.com/hollowc2/polymarket-auto-trader/internal/execution"
)

const (
	defaultStartingBankroll = 100.0
	defaultMinBet           = 1.0
	defaultMaxDailyBets     = 100
	defaultMaxDailyLoss     = 50.0
)

// Config tunes the risk limits. Zero values take the defaults
// (bankroll 100, min bet 1, 100 bets/day, 50 loss/day).
type Config struct {
	StartingBankroll decimal.Decimal
	MinBet           decimal.Decimal
	MaxDailyBets     int
	MaxDailyLoss     decimal.Decimal
}

// Ledger is the trade + bankroll state machine. One mutex covers the
// whole struct: settlement must be atomic with respect to the bankroll,
// and the control loop may run concurrently with the settlement watcher.
type Ledger struct {
	mu  sync.Mutex
	cfg Config

	trades []*domain.Trade
	byID   map[string]*domain.Trade

	bankroll      decimal.Decimal
	dailyBets     int
	dailyPnl      decimal.Decimal
	lastResetDate string // "2006-01-02" in UTC

	store *Store
}

// New creates a ledger with the given limits. store may be nil for a
// purely in-memory ledger (tests, backtests).
func New(cfg Config, store *Store) *Ledger {
	if cfg.StartingBankroll.IsZero() {
		cfg.StartingBankroll = decimal.NewFromFloat(defaultStartingBankroll)
	}
	if cfg.MinBet.IsZero() {
		cfg.MinBet = decimal.NewFromFloat(defaultMinBet)
	}
	if cfg.MaxDailyBets <= 0 {
		cfg.MaxDailyBets = defaultMaxDailyBets
	}
	if cfg.MaxDailyLoss.IsZero() {
		cfg.MaxDailyLoss = decimal.NewFromFloat(defaultMaxDailyLoss)
	}
	return &Ledger{
		cfg:      cfg,
		byID:     make(map[string]*domain.Trade),
		bankroll: cfg.StartingBankroll,
		store:    store,
	}
}

// resetDailyIfNeeded applies the lazy once-per-UTC-day counter reset.
// Caller holds mu.
func (l *Ledger) resetDailyIfNeeded() {
	today := time.Now().UTC().Format("2006-01-02")
	if l.lastResetDate != today {
		l.dailyBets = 0
		l.dailyPnl = decimal.Zero
		l.lastResetDate = today
	}
}

// CanTrade reports whether a new trade may be placed, with the blocking
// reason when it may not. Checked before every attempt.
func (l *Ledger) CanTrade() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetDailyIfNeeded()

	if l.dailyBets >= l.cfg.MaxDailyBets {
		return false, fmt.Sprintf("max daily bets reached (%d)", l.cfg.MaxDailyBets)
	}
	if l.dailyPnl.LessThanOrEqual(l.cfg.MaxDailyLoss.Neg()) {
		return false, fmt.Sprintf("max daily loss reached ($%s)", l.cfg.MaxDailyLoss.StringFixed(2))
	}
	if l.bankroll.LessThan(l.cfg.MinBet) {
		return false, fmt.Sprintf("bankroll too low ($%s < $%s)",
			l.bankroll.StringFixed(2), l.cfg.MinBet.StringFixed(2))
	}
	return true, "OK"
}

// RecordTrade appends a new pending trade and counts it against the
// daily budget. The trade's ID is computed here if unset.
func (l *Ledger) RecordTrade(t *domain.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetDailyIfNeeded()

	if t.ID == "" {
		t.ComputeID()
	}
	if _, exists := l.byID[t.ID]; exists {
		return fmt.Errorf("record trade %s: duplicate id", t.ID)
	}
	if t.Settlement.Status == "" {
		t.Settlement.Status = domain.TradeStatusPending
	}

	l.trades = append(l.trades, t)
	l.byID[t.ID] = t
	l.dailyBets++
	return nil
}

// Settle resolves a pending trade against the known market outcome and
// moves the bankroll by its net PnL, exactly once. A second call on the
// same trade returns ErrAlreadySettled without touching the bankroll.
//
// Binary contracts pay 1.0 per share on the winning side. The fee
// applies to realized profit only, never to losses or principal.
func (l *Ledger) Settle(tradeID string, outcome domain.Direction) (*domain.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetDailyIfNeeded()

	t, ok := l.byID[tradeID]
	if !ok {
		return nil, fmt.Errorf("settle %s: %w", tradeID, domain.ErrTradeNotFound)
	}
	if t.IsTerminal() {
		return t, fmt.Errorf("settle %s: %w", tradeID, domain.ErrAlreadySettled)
	}

	execPrice := t.Execution.ExecutionPrice
	if !execPrice.IsPositive() {
		execPrice = t.Execution.EntryPrice
	}

	s := &t.Settlement
	s.Outcome = outcome
	if execPrice.IsPositive() {
		s.Shares = t.Position.Amount.Div(execPrice)
	} else {
		s.Shares = decimal.Zero
	}

	if t.Position.Direction == outcome {
		s.GrossPayout = s.Shares
		s.GrossProfit = s.GrossPayout.Sub(t.Position.Amount)
		if s.GrossProfit.IsPositive() {
			feePct := execution.FeeRate(execPrice, t.Fees.RateBps)
			s.Fee = s.GrossProfit.Mul(feePct)
		} else {
			s.Fee = decimal.Zero
		}
		s.NetProfit = s.GrossProfit.Sub(s.Fee)
	} else {
		s.GrossPayout = decimal.Zero
		s.GrossProfit = t.Position.Amount.Neg()
		s.Fee = decimal.Zero
		s.NetProfit = t.Position.Amount.Neg()
	}

	now := time.Now()
	s.SettledAt = &now
	s.Status = domain.TradeStatusSettled

	l.bankroll = l.bankroll.Add(s.NetProfit)
	l.dailyPnl = l.dailyPnl.Add(s.NetProfit)
	return t, nil
}

// MarkPendingForceExit flips every still-pending trade to force_exit
// with the given reason. The outcome is unknown, so the bankroll does
// not move. Returns the trades that were flipped.
func (l *Ledger) MarkPendingForceExit(reason string) []*domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	var flipped []*domain.Trade
	for _, t := range l.trades {
		if t.IsPending() {
			t.Settlement.Status = domain.TradeStatusForceExit
			t.Settlement.ForceExitReason = reason
			flipped = append(flipped, t)
		}
	}
	return flipped
}

// Pending returns copies of the still-pending trades in ascending
// market-timestamp order, the order settlement must be processed in.
func (l *Ledger) Pending() []*domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*domain.Trade
	for _, t := range l.trades {
		if t.IsPending() {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Market.Key < out[j].Market.Key
	})
	return out
}

// Bankroll returns the current risk capital.
func (l *Ledger) Bankroll() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bankroll
}

// SetBankroll overrides the bankroll, used when the operator passes a
// starting balance on the command line.
func (l *Ledger) SetBankroll(amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bankroll = amount
}

// Stats is a point-in-time view of the ledger for heartbeat logging.
type Stats struct {
	Bankroll  decimal.Decimal
	DailyBets int
	DailyPnl  decimal.Decimal
	Trades    int
	Pending   int
	Settled   int
	Wins      int
}

// Snapshot returns current ledger stats.
func (l *Ledger) Snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		Bankroll:  l.bankroll,
		DailyBets: l.dailyBets,
		DailyPnl:  l.dailyPnl,
		Trades:    len(l.trades),
	}
	for _, t := range l.trades {
		switch {
		case t.IsPending():
			s.Pending++
		case t.Settlement.Status == domain.TradeStatusSettled:
			s.Settled++
			if t.Won() {
				s.Wins++
			}
		}
	}
	return s
}

// HasTradeForWindow reports whether a trade was already placed in the
// given market window, preventing a double bet on the same 5 minutes.
func (l *Ledger) HasTradeForWindow(windowStart int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range l.trades {
		if t.Market.Key == windowStart {
			return true
		}
	}
	return false
}

// Save persists the working snapshot, appends not-yet-saved trades to
// the full history, and patches settled trades into it. No-op without
// a store.
func (l *Ledger) Save() error {
	if l.store == nil {
		return nil
	}

	l.mu.Lock()
	l.resetDailyIfNeeded()
	ws := workingState{
		Bankroll:      l.bankroll,
		DailyBets:     l.dailyBets,
		DailyPnl:      l.dailyPnl,
		LastResetDate: l.lastResetDate,
	}
	start := 0
	if len(l.trades) > workingTradeLimit {
		start = len(l.trades) - workingTradeLimit
	}
	for _, t := range l.trades[start:] {
		cp := *t
		ws.Trades = append(ws.Trades, &cp)
	}
	all := make([]*domain.Trade, len(l.trades))
	for i, t := range l.trades {
		cp := *t
		all[i] = &cp
	}
	l.mu.Unlock()

	if err := l.store.SaveWorking(&ws); err != nil {
		return fmt.Errorf("save working state: %w", err)
	}
	if _, err := l.store.AppendHistory(all); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if _, err := l.store.PatchHistory(all); err != nil {
		return fmt.Errorf("patch history: %w", err)
	}
	return nil
}

// Load restores counters and recent trades from the working snapshot.
// Missing files are not an error; the ledger starts fresh.
func (l *Ledger) Load() error {
	if l.store == nil {
		return nil
	}
	ws, err := l.store.LoadWorking()
	if err != nil {
		return fmt.Errorf("load working state: %w", err)
	}
	if ws == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.bankroll = ws.Bankroll
	l.dailyBets = ws.DailyBets
	l.dailyPnl = ws.DailyPnl
	l.lastResetDate = ws.LastResetDate
	l.trades = l.trades[:0]
	l.byID = make(map[string]*domain.Trade)
	for _, t := range ws.Trades {
		if t.ID == "" {
			t.ComputeID()
		}
		l.trades = append(l.trades, t)
		l.byID[t.ID] = t
	}
	return nil
}
