// Package execution turns an order intent plus a book snapshot into a
// realistic fill: walk the ladder, price the slippage, model the adverse
// move a delayed signal eats, estimate the taker fee.
package execution

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
)

const (
	defaultBaseCoef       = 0.8
	defaultMaxImpactPct   = 10.0
	defaultBaselineSpread = 0.02
	defaultFeeBps         = 1000
)

var (
	priceFloor = decimal.NewFromFloat(0.01)
	priceCeil  = decimal.NewFromFloat(0.99)
	// contractMid is the fallback price when no book exists at all:
	// the midpoint of a bounded-probability contract.
	contractMid = decimal.NewFromFloat(0.5)
	hundred     = decimal.NewFromInt(100)
)

// Config tunes the delay-impact model and the default fee basis. Zero
// values take the defaults (coef 0.8, cap 10%, baseline spread 0.02,
// 1000 bps).
type Config struct {
	BaseCoef       float64
	MaxImpactPct   float64
	BaselineSpread float64
	DefaultFeeBps  int64
}

// Simulator prices taker fills against observed liquidity. It is pure:
// no I/O, no locks, safe for concurrent use.
type Simulator struct {
	cfg Config
}

// NewSimulator creates a simulator with defaults applied.
func NewSimulator(cfg Config) *Simulator {
	if cfg.BaseCoef <= 0 {
		cfg.BaseCoef = defaultBaseCoef
	}
	if cfg.MaxImpactPct <= 0 {
		cfg.MaxImpactPct = defaultMaxImpactPct
	}
	if cfg.BaselineSpread <= 0 {
		cfg.BaselineSpread = defaultBaselineSpread
	}
	if cfg.DefaultFeeBps <= 0 {
		cfg.DefaultFeeBps = defaultFeeBps
	}
	return &Simulator{cfg: cfg}
}

// Fill is the complete result of simulating one taker order.
type Fill struct {
	AssetID           string
	Side              domain.Side
	RequestedNotional decimal.Decimal
	FilledNotional    decimal.Decimal
	Shares            decimal.Decimal
	ExecutionPrice    decimal.Decimal
	BestPrice         decimal.Decimal // best quote on the consumed side
	Spread            decimal.Decimal
	SlippagePct       decimal.Decimal
	FillPct           decimal.Decimal
	DelayImpactPct    decimal.Decimal
	Impact            *domain.ImpactBreakdown
	FeeBps            int64
	EstimatedFee      decimal.Decimal
	BookSource        string
}

// SimulateFill walks the book for a (side, notional) intent. delayMs > 0
// additionally applies the delay-impact model (copy-trading a signal
// observed that long ago). feeBps <= 0 falls back to the configured
// default.
//
// An empty or one-sided book never errors: the fill comes back at the
// midpoint (0.5 when no quote exists at all) with 0% filled and zero
// slippage. The only error is a non-positive requested notional.
func (s *Simulator) SimulateFill(book *domain.BookState, side domain.Side, notional decimal.Decimal, delayMs int64, feeBps int64) (*Fill, error) {
	if !notional.IsPositive() {
		return nil, domain.NewValidationError("simulate_fill", "notional",
			domain.ErrInsufficientFunds)
	}
	if feeBps <= 0 {
		feeBps = s.cfg.DefaultFeeBps
	}

	fill := &Fill{
		Side:              side,
		RequestedNotional: notional,
		FeeBps:            feeBps,
		FillPct:           decimal.Zero,
	}
	if book != nil {
		fill.AssetID = book.AssetID
		fill.BookSource = book.Source
	}

	levels, best, spread := consumableSide(book, side)
	fill.Spread = spread
	fill.BestPrice = best

	if len(levels) == 0 {
		fill.ExecutionPrice = emptyBookPrice(book)
		fill.EstimatedFee = FeeAmount(fill.ExecutionPrice, decimal.Zero, feeBps)
		return fill, nil
	}

	// Walk the ladder from the best price out, consuming whole levels
	// until the last one covers the remainder.
	remaining := notional
	shares := decimal.Zero
	cost := decimal.Zero
	for _, level := range levels {
		if !remaining.IsPositive() {
			break
		}
		// Degenerate prices cannot price shares; skip the level whole.
		if !level.Price.IsPositive() || level.Price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			continue
		}
		levelValue := level.Notional()
		if levelValue.GreaterThanOrEqual(remaining) {
			shares = shares.Add(remaining.Div(level.Price))
			cost = cost.Add(remaining)
			remaining = decimal.Zero
		} else {
			shares = shares.Add(level.Size)
			cost = cost.Add(levelValue)
			remaining = remaining.Sub(levelValue)
		}
	}

	filled := notional.Sub(remaining)
	fill.FilledNotional = filled
	fill.FillPct = filled.Div(notional).Mul(hundred)

	if shares.IsZero() {
		fill.ExecutionPrice = emptyBookPrice(book)
		fill.FillPct = decimal.Zero
		fill.EstimatedFee = FeeAmount(fill.ExecutionPrice, decimal.Zero, feeBps)
		return fill, nil
	}

	fill.Shares = shares
	fill.ExecutionPrice = cost.Div(shares)

	// Slippage vs the best quote on the consumed side, reported as a
	// non-negative cost.
	if best.IsPositive() {
		var slip decimal.Decimal
		if side == domain.SideBuy {
			slip = fill.ExecutionPrice.Sub(best).Div(best).Mul(hundred)
		} else {
			slip = best.Sub(fill.ExecutionPrice).Div(best).Mul(hundred)
		}
		if slip.IsNegative() {
			slip = decimal.Zero
		}
		fill.SlippagePct = slip
	}

	if delayMs > 0 {
		depthAtBest := levels[0].Notional()
		impactPct, breakdown := s.delayImpact(delayMs, notional, depthAtBest, spread)
		fill.DelayImpactPct = impactPct
		fill.Impact = breakdown

		scale := impactPct.Div(hundred)
		if side == domain.SideBuy {
			fill.ExecutionPrice = fill.ExecutionPrice.Mul(decimal.NewFromInt(1).Add(scale))
		} else {
			fill.ExecutionPrice = fill.ExecutionPrice.Mul(decimal.NewFromInt(1).Sub(scale))
		}
		fill.ExecutionPrice = clampPrice(fill.ExecutionPrice)
	}

	fill.EstimatedFee = FeeAmount(fill.ExecutionPrice, filled, feeBps)
	return fill, nil
}

// delayImpact models the adverse price move eaten while a copied signal
// aged: sqrt growth in the delay, scaled by how much of the best level the
// order takes and how wide the spread sits against its baseline, capped.
func (s *Simulator) delayImpact(delayMs int64, orderSize, depthAtBest, spread decimal.Decimal) (decimal.Decimal, *domain.ImpactBreakdown) {
	delaySeconds := float64(delayMs) / 1000.0
	baseImpact := math.Sqrt(delaySeconds) * s.cfg.BaseCoef

	liqFactor := 1.0
	sizeF := orderSize.InexactFloat64()
	depthF := depthAtBest.InexactFloat64()
	if depthF > 0 && sizeF > 0 {
		liqFactor = clampFloat(sizeF/(depthF*0.5), 0.5, 2.0)
	}

	volFactor := 1.0
	spreadF := spread.InexactFloat64()
	if spreadF > 0 && s.cfg.BaselineSpread > 0 {
		volFactor = clampFloat(spreadF/s.cfg.BaselineSpread, 0.5, 2.0)
	}

	finalImpact := baseImpact * liqFactor * volFactor
	if finalImpact > s.cfg.MaxImpactPct {
		finalImpact = s.cfg.MaxImpactPct
	}

	breakdown := &domain.ImpactBreakdown{
		DelayMs:          delayMs,
		DelaySeconds:     decimal.NewFromFloat(delaySeconds),
		BaseImpact:       decimal.NewFromFloat(baseImpact),
		LiquidityFactor:  decimal.NewFromFloat(liqFactor),
		VolatilityFactor: decimal.NewFromFloat(volFactor),
		FinalImpactPct:   decimal.NewFromFloat(finalImpact),
		OrderSize:        orderSize,
		DepthAtBest:      depthAtBest,
		Spread:           spread,
	}
	return decimal.NewFromFloat(finalImpact), breakdown
}

// FeeRate returns the effective taker fee rate at a price: a parabola
// price*(1-price)*bps/10000 peaking at the 50c point. At 0.50 with
// 1000 bps that is 2.5%.
func FeeRate(price decimal.Decimal, feeBps int64) decimal.Decimal {
	if feeBps == 0 {
		return decimal.Zero
	}
	one := decimal.NewFromInt(1)
	return price.Mul(one.Sub(price)).
		Mul(decimal.NewFromInt(feeBps)).
		Div(decimal.NewFromInt(10000))
}

// FeeAmount returns the estimated fee in quote currency for a notional
// filled at the given price.
func FeeAmount(price, notional decimal.Decimal, feeBps int64) decimal.Decimal {
	return FeeRate(price, feeBps).Mul(notional)
}

// consumableSide picks the ladder a taker order eats (asks for buy, bids
// for sell) along with the side's best price and the current spread.
func consumableSide(book *domain.BookState, side domain.Side) ([]domain.PriceLevel, decimal.Decimal, decimal.Decimal) {
	if book == nil {
		return nil, decimal.Zero, decimal.Zero
	}
	levels := book.Ladder(side)
	best := decimal.Zero
	if len(levels) > 0 {
		best = levels[0].Price
	}
	return levels, best, book.Spread()
}

// emptyBookPrice falls back to the book midpoint, or the contract's 0.5
// center when no two-sided quote exists.
func emptyBookPrice(book *domain.BookState) decimal.Decimal {
	if book != nil && len(book.Bids) > 0 && len(book.Asks) > 0 {
		return book.Mid
	}
	return contractMid
}

func clampPrice(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(priceFloor) {
		return priceFloor
	}
	if p.GreaterThan(priceCeil) {
		return priceCeil
	}
	return p
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
