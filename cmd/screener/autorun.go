package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/kestrel-labs/perpscreen/config"
	"github.com/kestrel-labs/perpscreen/internal/backtester"
)

// runAnalysisAutorun periodically runs the Backtester across every
// configured analysis window (§6.5 "analysis autorun interval/windows"),
// logging results; a failed run never stops the loop.
func runAnalysisAutorun(ctx context.Context, bt *backtester.Backtester, cfg *config.CoreConfig, log *slog.Logger) {
	interval := time.Duration(cfg.AnalysisAutorunIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, windowDays := range cfg.AnalysisWindowDays {
				run, err := bt.Run(backtester.Request{
					WindowDays: windowDays,
					Top200Only: false,
					NowMs:      time.Now().UnixMilli(),
				})
				if err != nil {
					log.Error("analysis run failed", "window_days", windowDays, "err", err)
					continue
				}
				log.Info("analysis run complete", "window_days", windowDays,
					"symbols_considered", run.SymbolsConsidered, "trades_resolved", run.TradesResolved)
			}
		}
	}
}
