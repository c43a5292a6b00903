// Package app wires the bot together and runs the trading control loop.
package app

import (
	"log/slog"
	"time"

	"github.com/hollowc2/polymarket-auto-trader/internal/book"
	"github.com/hollowc2/polymarket-auto-trader/internal/event"
	"github.com/hollowc2/polymarket-auto-trader/internal/execution"
	"github.com/hollowc2/polymarket-auto-trader/internal/infra"
	"github.com/hollowc2/polymarket-auto-trader/internal/infra/polymarket"
	"github.com/hollowc2/polymarket-auto-trader/internal/infra/storage"
	"github.com/hollowc2/polymarket-auto-trader/internal/ledger"
	"github.com/hollowc2/polymarket-auto-trader/internal/resilience"
	"github.com/hollowc2/polymarket-auto-trader/internal/service"
	"github.com/hollowc2/polymarket-auto-trader/internal/strategy"
)

// Bootstrap orchestrates the application startup sequence and holds the
// wired components for main and the runner.
type Bootstrap struct {
	Config     *infra.Config
	Storage    *storage.Storage
	Ledger     *ledger.Ledger
	Breaker    *resilience.CircuitBreaker
	Limiter    *resilience.RateLimiter
	Client     *polymarket.Client
	Inbox      chan event.Event
	Feed       *polymarket.FeedWorker
	MarketData *service.MarketDataService
	Settlement *service.SettlementService
	Simulator  *execution.Simulator
	Strategy   strategy.Strategy
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize builds every component in dependency order: config, logger,
// archive, ledger, resilience gates, client, feed, services.
func (b *Bootstrap) Initialize(configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	slog.Info("Bootstrapping",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
	)

	// 3. Archive storage
	store, err := storage.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("Archive database initialized", slog.String("path", cfg.Storage.DBPath))

	// 4. Ledger with JSON persistence
	ledgerStore, err := ledger.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	b.Ledger = ledger.New(ledger.Config{
		StartingBankroll: cfg.Trading.Bankroll,
		MinBet:           cfg.Trading.MinBet,
		MaxDailyBets:     cfg.Trading.MaxDailyBets,
		MaxDailyLoss:     cfg.Trading.MaxDailyLoss,
	}, ledgerStore)
	if err := b.Ledger.Load(); err != nil {
		return err
	}
	slog.Info("Ledger restored",
		slog.String("bankroll", b.Ledger.Bankroll().String()),
		slog.Int("pending", len(b.Ledger.Pending())),
	)

	// 5. Resilience gates shared by every REST call
	b.Breaker = resilience.NewCircuitBreaker("polymarket", resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		RecoveryTime:     time.Duration(cfg.Resilience.RecoverySec) * time.Second,
		HalfOpenMaxCalls: cfg.Resilience.HalfOpenMaxCalls,
		OnStateChange: func(name string, from, to resilience.CircuitState) {
			infra.GlobalMetrics.SetCircuitState(to == resilience.StateOpen)
			slog.Warn("Circuit state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	b.Limiter = resilience.NewRateLimiter(
		cfg.Resilience.RequestsPerWindow,
		time.Duration(cfg.Resilience.WindowSec)*time.Second,
	)

	// 6. Venue client, feed, market-data view
	b.Client = polymarket.NewClient(cfg, b.Breaker, b.Limiter)
	b.Inbox = make(chan event.Event, cfg.MarketData.InboxSize)
	b.Feed = polymarket.NewFeedWorker(cfg.API.WSURL, b.Inbox)
	b.MarketData = service.NewMarketDataService(cfg, book.NewCache(), b.Client, b.Storage, b.Inbox)

	// 7. Settlement watcher, execution pricing, signal source
	b.Settlement = service.NewSettlementService(b.Client, b.Ledger, b.Storage)
	b.Simulator = execution.NewSimulator(execution.Config{
		BaseCoef:       cfg.Impact.BaseCoef,
		MaxImpactPct:   cfg.Impact.MaxImpactPct,
		BaselineSpread: cfg.Impact.BaselineSpread,
		DefaultFeeBps:  cfg.Trading.DefaultFeeBps,
	})
	b.Strategy = strategy.NewStreakStrategy(
		cfg.Trading.StreakTrigger,
		cfg.Trading.BetAmount,
		cfg.Trading.Bankroll, // never size a single bet past the starting bankroll
	)

	event.Warmup()
	return nil
}
