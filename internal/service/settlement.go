package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
	"github.com/hollowc2/polymarket-auto-trader/internal/infra"
	"github.com/hollowc2/polymarket-auto-trader/internal/ledger"
)

// settlementGrace is how long after window close before we start asking
// the venue for an outcome. Resolution lags close by a few seconds.
const settlementGrace = 10 * time.Second

// SettlementService watches pending trades and settles them once their
// window resolves. Outcomes come from the gamma market payload; an
// unresolved or missing market just means try again next pass.
type SettlementService struct {
	client       domain.MarketClient
	ledger       *ledger.Ledger
	archive      domain.ArchiveRepository // optional
	pollInterval time.Duration
	logger       *slog.Logger
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewSettlementService creates the watcher. archive may be nil.
func NewSettlementService(client domain.MarketClient, led *ledger.Ledger, archive domain.ArchiveRepository) *SettlementService {
	return &SettlementService{
		client:       client,
		ledger:       led,
		archive:      archive,
		pollInterval: 15 * time.Second,
		logger:       slog.Default().With("module", "settlement"),
	}
}

// Start begins the settlement polling loop.
func (s *SettlementService) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Settlement polling panic recovered", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Settlement polling stopped")
				return
			case <-ticker.C:
				if n, err := s.SettleDue(ctx, time.Now()); err != nil {
					s.logger.Warn("Settlement pass failed", slog.Any("error", err))
				} else if n > 0 {
					s.logger.Info("Settlement pass complete", slog.Int("settled", n))
				}
			}
		}
	}()

	return nil
}

// Stop halts the polling loop and waits for the in-flight pass.
func (s *SettlementService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// SettleDue runs one settlement pass: every pending trade whose window
// closed before now (plus grace) is checked against the venue and
// settled if the outcome is known. Trades settle in ascending window
// order so bankroll history replays deterministically. Returns how many
// trades settled.
func (s *SettlementService) SettleDue(ctx context.Context, now time.Time) (int, error) {
	pending := s.ledger.Pending()
	if len(pending) == 0 {
		return 0, nil
	}

	settled := 0
	var firstErr error
	markets := make(map[int64]*domain.Market) // one lookup per window

	for _, t := range pending {
		if now.Before(t.Market.WindowClose.Add(settlementGrace)) {
			continue
		}

		market, ok := markets[t.Market.Key]
		if !ok {
			var err error
			market, err = s.client.GetMarket(ctx, t.Market.Key)
			if err != nil {
				if errors.Is(err, domain.ErrMarketNotFound) {
					// Window vanished from the venue; nothing to settle
					// against yet. Keep the trade pending.
					continue
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			markets[t.Market.Key] = market
		}

		outcome, ok := market.Outcome()
		if !ok {
			continue // unresolved, next pass
		}

		result, err := s.ledger.Settle(t.ID, outcome)
		if err != nil {
			if errors.Is(err, domain.ErrAlreadySettled) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		settled++
		infra.GlobalMetrics.RecordTradeSettled()

		s.logger.Info("Trade settled",
			slog.String("trade_id", result.ID),
			slog.String("direction", string(result.Position.Direction)),
			slog.String("outcome", string(outcome)),
			slog.Bool("won", result.Won()),
			slog.String("net_profit", result.Settlement.NetProfit.String()),
			slog.String("bankroll", s.ledger.Bankroll().String()),
		)

		s.archiveResolution(t.Market.Key, market, outcome)
	}

	if settled > 0 {
		if err := s.ledger.Save(); err != nil {
			s.logger.Error("Ledger save after settlement failed", slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return settled, firstErr
}

func (s *SettlementService) archiveResolution(windowStart int64, market *domain.Market, outcome domain.Direction) {
	if s.archive == nil {
		return
	}
	status := market.ResolutionStatus
	if status == "" {
		status = "price_implied"
	}
	if err := s.archive.MarkWindowResolved(windowStart, outcome, status); err != nil {
		s.logger.Warn("Outcome archive failed",
			slog.Int64("window", windowStart),
			slog.Any("error", err),
		)
	}
}
