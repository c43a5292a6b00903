package strategy

import (
	"context"

	"github.com/shopspring/decimal"
)

// StreakStrategy bets that a run of same-direction window outcomes
// continues. It fires only when the current streak reaches the trigger
// length, with confidence growing per extra streak window up to a cap.
// Stateless between calls; the streak is recomputed from the view each
// time.
type StreakStrategy struct {
	trigger    int
	baseAmount decimal.Decimal
	maxAmount  decimal.Decimal
}

var (
	baseConfidence = decimal.RequireFromString("0.55")
	confidenceStep = decimal.RequireFromString("0.05")
	maxConfidence  = decimal.RequireFromString("0.90")
)

// NewStreakStrategy creates the reference streak follower. trigger is
// the minimum run length; baseAmount the notional per bet; maxAmount
// caps the scaled size (zero means no cap).
func NewStreakStrategy(trigger int, baseAmount, maxAmount decimal.Decimal) *StreakStrategy {
	if trigger < 2 {
		trigger = 2
	}
	return &StreakStrategy{
		trigger:    trigger,
		baseAmount: baseAmount,
		maxAmount:  maxAmount,
	}
}

func (s *StreakStrategy) Name() string { return "streak" }

// Evaluate checks the outcome history for a live streak and proposes a
// continuation bet.
func (s *StreakStrategy) Evaluate(ctx context.Context, view *MarketView) (*Signal, error) {
	if len(view.RecentOutcomes) < s.trigger {
		return nil, nil
	}

	dir := view.RecentOutcomes[0]
	streak := 1
	for _, o := range view.RecentOutcomes[1:] {
		if o != dir {
			break
		}
		streak++
	}
	if streak < s.trigger {
		return nil, nil
	}

	confidence := baseConfidence.Add(
		confidenceStep.Mul(decimal.NewFromInt(int64(streak - s.trigger))))
	if confidence.GreaterThan(maxConfidence) {
		confidence = maxConfidence
	}

	// Size up with confidence above the base threshold.
	amount := s.baseAmount.Mul(confidence).Div(baseConfidence)
	if s.maxAmount.IsPositive() && amount.GreaterThan(s.maxAmount) {
		amount = s.maxAmount
	}

	return &Signal{
		Direction:  dir,
		Confidence: confidence,
		Amount:     amount.Round(2),
	}, nil
}

var _ Strategy = (*StreakStrategy)(nil)
