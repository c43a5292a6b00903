package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/hollowc2/polymarket-auto-trader/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	bankroll := flag.Float64("bankroll", 0, "override the starting bankroll in USD (0 keeps the loaded state)")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	if *bankroll > 0 {
		bootstrap.Ledger.SetBankroll(decimal.NewFromFloat(*bankroll))
		slog.Info("Bankroll overridden", slog.Float64("bankroll", *bankroll))
	}

	// 2. Pprof Server (localhost only, off by default)
	if bootstrap.Config.App.Pprof {
		go func() {
			slog.Info("Pprof server started on localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Feed ingestion: worker -> inbox -> applier
	go bootstrap.MarketData.RunApplier(ctx)

	if err := bootstrap.Feed.Connect(ctx); err != nil {
		slog.Error("Failed to start feed worker", slog.Any("error", err))
	}
	defer bootstrap.Feed.Disconnect()
	slog.InfoContext(ctx, "Feed worker started", slog.String("url", bootstrap.Config.API.WSURL))

	// 5. Settlement watcher
	if err := bootstrap.Settlement.Start(ctx); err != nil {
		slog.Error("Failed to start settlement watcher", slog.Any("error", err))
	}
	defer bootstrap.Settlement.Stop()

	// 6. Control loop; blocks until the context is cancelled and the
	// final force-exit persistence completes.
	runner := app.NewRunner(bootstrap)
	slog.InfoContext(ctx, "Trading loop started",
		slog.String("strategy", bootstrap.Strategy.Name()),
		slog.String("bankroll", bootstrap.Ledger.Bankroll().String()),
	)
	runner.Run(ctx)

	slog.Info("Shutdown complete",
		slog.String("bankroll", bootstrap.Ledger.Bankroll().String()),
	)
}
