package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a binary up/down contract.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Opposite returns the other side of the contract.
func (d Direction) Opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

// Trade lifecycle statuses. pending -> settled and pending -> force_exit
// are the only transitions; both targets are terminal.
const (
	TradeStatusPending   = "pending"
	TradeStatusSettled   = "settled"
	TradeStatusForceExit = "force_exit"
)

// TradeMarket identifies the market window the trade was placed in.
type TradeMarket struct {
	Key         int64     `json:"key"` // window start, unix seconds
	Slug        string    `json:"slug"`
	ConditionID string    `json:"condition_id,omitempty"`
	TokenID     string    `json:"token_id,omitempty"`
	WindowStart time.Time `json:"window_start"`
	WindowClose time.Time `json:"window_close"`
}

// TradePosition is what was requested and what actually got on.
type TradePosition struct {
	Direction       Direction       `json:"direction"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	Amount          decimal.Decimal `json:"amount"` // filled notional
	Confidence      decimal.Decimal `json:"confidence"`
}

// TradeExecution captures how the fill went.
type TradeExecution struct {
	ExecutedAt     time.Time        `json:"executed_at"`
	EntryPrice     decimal.Decimal  `json:"entry_price"` // best quote on the consumed side
	ExecutionPrice decimal.Decimal  `json:"execution_price"`
	Spread         decimal.Decimal  `json:"spread"`
	SlippagePct    decimal.Decimal  `json:"slippage_pct"`
	FillPct        decimal.Decimal  `json:"fill_pct"`
	DelayImpactPct decimal.Decimal  `json:"delay_impact_pct"`
	Impact         *ImpactBreakdown `json:"impact,omitempty"`
}

// TradeFees holds the venue fee basis and the estimated taker fee at entry.
type TradeFees struct {
	RateBps      int64           `json:"rate_bps"`
	EstimatedFee decimal.Decimal `json:"estimated_fee"`
}

// TradeSettlement is written exactly once, when the trade leaves pending.
type TradeSettlement struct {
	Status          string          `json:"status"`
	Outcome         Direction       `json:"outcome,omitempty"`
	Shares          decimal.Decimal `json:"shares"`
	GrossPayout     decimal.Decimal `json:"gross_payout"`
	GrossProfit     decimal.Decimal `json:"gross_profit"`
	Fee             decimal.Decimal `json:"fee"`
	NetProfit       decimal.Decimal `json:"net_profit"`
	SettledAt       *time.Time      `json:"settled_at,omitempty"`
	ForceExitReason string          `json:"force_exit_reason,omitempty"`
}

// TradeContext is the book seen at entry, kept for later analysis.
type TradeContext struct {
	BestBid    decimal.Decimal `json:"best_bid"`
	BestAsk    decimal.Decimal `json:"best_ask"`
	Mid        decimal.Decimal `json:"mid"`
	BookSource string          `json:"book_source,omitempty"`
}

// CopyContext is present only on trades mirrored from an observed signal.
type CopyContext struct {
	SourceTrader string    `json:"source_trader"`
	ObservedAt   time.Time `json:"observed_at"`
	DelayMs      int64     `json:"delay_ms"`
}

// ImpactBreakdown is the delay-impact model's full output. It is stored on
// the trade rather than recomputed so post-hoc analysis sees exactly what
// the execution path saw.
type ImpactBreakdown struct {
	DelayMs          int64           `json:"delay_ms"`
	DelaySeconds     decimal.Decimal `json:"delay_seconds"`
	BaseImpact       decimal.Decimal `json:"base_impact"`
	LiquidityFactor  decimal.Decimal `json:"liquidity_factor"`
	VolatilityFactor decimal.Decimal `json:"volatility_factor"`
	FinalImpactPct   decimal.Decimal `json:"final_impact_pct"`
	OrderSize        decimal.Decimal `json:"order_size"`
	DepthAtBest      decimal.Decimal `json:"depth_at_best"`
	Spread           decimal.Decimal `json:"spread"`
}

// Trade is one taker fill against a market window. Identity is the
// (market key, executed-at, direction) triple; ID is its string form.
// Immutable once Settlement.Status reaches a terminal state.
type Trade struct {
	ID         string          `json:"id"`
	Market     TradeMarket     `json:"market"`
	Position   TradePosition   `json:"position"`
	Execution  TradeExecution  `json:"execution"`
	Fees       TradeFees       `json:"fees"`
	Copy       *CopyContext    `json:"copytrade,omitempty"`
	Settlement TradeSettlement `json:"settlement"`
	Context    TradeContext    `json:"context"`
}

// TradeID builds the stable composite identity used for idempotent
// persistence: "<marketKey>_<executedAtUnix>_<direction>".
func TradeID(marketKey int64, executedAt time.Time, direction Direction) string {
	return fmt.Sprintf("%d_%d_%s", marketKey, executedAt.Unix(), direction)
}

// ComputeID fills ID from the identity fields.
func (t *Trade) ComputeID() {
	t.ID = TradeID(t.Market.Key, t.Execution.ExecutedAt, t.Position.Direction)
}

// IsPending reports whether the trade is still awaiting settlement.
func (t *Trade) IsPending() bool {
	return t.Settlement.Status == TradeStatusPending
}

// IsTerminal reports whether the trade can no longer change.
func (t *Trade) IsTerminal() bool {
	return t.Settlement.Status == TradeStatusSettled || t.Settlement.Status == TradeStatusForceExit
}

// Won reports whether the settled outcome matched the position.
func (t *Trade) Won() bool {
	return t.Settlement.Status == TradeStatusSettled && t.Settlement.Outcome == t.Position.Direction
}
