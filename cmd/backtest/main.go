// cmd/backtest runs the Backtester once over a chosen window and exchange,
// printing the resulting run stats. This is the manual-ops counterpart to
// cmd/screener's periodic analysis autorun loop — useful for re-scoring
// historical alerts on demand, e.g. after a strategy change.
//
// Usage:
//
//	go run ./cmd/backtest --window=30 --exchange=binance --top200=false
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kestrel-labs/perpscreen/config"
	"github.com/kestrel-labs/perpscreen/internal/backtester"
	"github.com/kestrel-labs/perpscreen/internal/grader"
	"github.com/kestrel-labs/perpscreen/internal/logger"
	"github.com/kestrel-labs/perpscreen/internal/store/sqlite"
)

func main() {
	windowDays := flag.Int("window", 30, "lookback window in days")
	exchangeName := flag.String("exchange", "", "exchange to restrict to (empty = all)")
	top200Only := flag.Bool("top200", false, "restrict to the liquidity top-200 cohort")
	flag.Parse()

	log := logger.Init("backtest-cli", slog.LevelInfo)
	cfg := config.Load()

	store, err := sqlite.New(sqlite.Config{Path: cfg.SQLitePath}, log)
	if err != nil {
		log.Error("sqlite open failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	winRateCache := grader.NewWinRateCache()
	g := grader.New(grader.Config{}, winRateCache)
	bt := backtester.New(store, g, winRateCache, log)

	run, err := bt.Run(backtester.Request{
		WindowDays: *windowDays,
		Exchange:   *exchangeName,
		Top200Only: *top200Only,
		NowMs:      time.Now().UnixMilli(),
	})
	if err != nil {
		log.Error("backtest run failed", "err", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║          ANALYSIS RUN COMPLETE        ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Window days:        %-16d ║\n", run.WindowDays)
	fmt.Printf("║  Exchange:           %-16q ║\n", *exchangeName)
	fmt.Printf("║  Symbols considered: %-16d ║\n", run.SymbolsConsidered)
	fmt.Printf("║  Trades resolved:    %-16d ║\n", run.TradesResolved)
	fmt.Println("╚══════════════════════════════════════╝")
}
