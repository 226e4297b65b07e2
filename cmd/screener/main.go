// cmd/screener runs the real-time perpetual-futures market screener: one
// Aggregator + StreamSupervisor pair per configured exchange, a shared
// SQLite CandleStore, a periodic Backtester, and the HTTP snapshot/health
// surface. Grounded on the teacher's cmd/indengine main (flag-free,
// env-driven Config, Service.Run(ctx) blocking until SIGINT/SIGTERM).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrel-labs/perpscreen/config"
	"github.com/kestrel-labs/perpscreen/internal/aggregator"
	"github.com/kestrel-labs/perpscreen/internal/api"
	"github.com/kestrel-labs/perpscreen/internal/backtester"
	"github.com/kestrel-labs/perpscreen/internal/grader"
	"github.com/kestrel-labs/perpscreen/internal/logger"
	"github.com/kestrel-labs/perpscreen/internal/metrics"
	"github.com/kestrel-labs/perpscreen/internal/notification"
	redispublish "github.com/kestrel-labs/perpscreen/internal/store/redis"
	"github.com/kestrel-labs/perpscreen/internal/store/sqlite"
	"github.com/kestrel-labs/perpscreen/internal/supervisor"
	"github.com/kestrel-labs/perpscreen/internal/symbolstate"
	"github.com/kestrel-labs/perpscreen/internal/tradeplan"
)

// exchanges lists the exchanges this process ingests. A second exchange can
// be added here with its own REST/WS base URLs once credentials/schema
// support lands (§6.2 "Unknown exchanges are stubbed").
var exchanges = []string{"binance"}

func main() {
	log := logger.Init("screener", slog.LevelInfo)
	cfg := config.Load()

	store, err := sqlite.New(sqlite.Config{Path: cfg.SQLitePath}, log)
	if err != nil {
		log.Error("sqlite open failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	winRateCache := grader.NewWinRateCache()
	g := grader.New(grader.Config{}, winRateCache)
	planBuilder := tradeplan.New(tradeplan.Config{
		ATRMult:     cfg.TradePlanATRMult,
		TPRMults:    cfg.TradePlanTPRMults,
		SwingR:      cfg.TradePlanSwingR,
		SwingATRMul: cfg.TradePlanSwingATRMult,
	})

	dispatcher := notification.NewDispatcher(notification.DispatchConfig{
		CooldownTop200Sec: cfg.AlertCooldownTop200Sec,
		CooldownOtherSec:  cfg.AlertCooldownOtherSec,
		MinGrade:          cfg.AlertMinGrade,
		GlobalDedupSec:    cfg.AlertGlobalDedupSec,
	}, log, notification.NewLogNotifier())

	publisher := redispublish.NewPublisher(cfg.RedisAddr, cfg.RedisPassword, 5, 10*time.Second, log)
	defer publisher.Close()

	health := metrics.NewHealthStatus()
	health.SetSQLiteOK(true)
	snapshots := api.NewSnapshotCache()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	taskProviders := make(map[string]api.TaskStatusProvider, len(exchanges))

	for _, exchangeName := range exchanges {
		agg := aggregator.New(exchangeName, aggregator.Config{
			SnapshotIntervalMs:        cfg.SnapshotIntervalMs,
			StaleTickerMs:             cfg.StaleTickerMs,
			StaleKlineMs:              cfg.StaleKlineMs,
			LiqTopN:                   cfg.LiqTopN,
			LiqWeightTurnover:         cfg.LiqWeightTurnover,
			LiqWeightOI:               cfg.LiqWeightOI,
			LiqWeightActivity:         cfg.LiqWeightActivity,
			LiqCacheTTLSec:            cfg.LiqCacheTTLSec,
			TradePlanEnable:           cfg.TradePlanEnable,
			TradePlanSwingLookback15M: cfg.TradePlanSwingLookback15M,
			SymbolState: symbolStateConfig(cfg),
		}, store, g, planBuilder, nil, dispatcher, publisher, log.With("exchange", exchangeName))

		sub := agg.Subscribe()
		go func(exchangeName string) {
			for payload := range sub.C() {
				snapshots.Set(exchangeName, payload)
				health.SetLastEmit(exchangeName, time.Now().UnixMilli())
			}
		}(exchangeName)

		restBase, wsBase := exchangeEndpoints(exchangeName, cfg)
		sup := supervisor.New(exchangeName, supervisor.Config{
			TopSymbols:           cfg.TopSymbols,
			IncludeSymbols:       cfg.IncludeSymbols,
			ExcludeSymbols:       cfg.ExcludeSymbols,
			WSPingIntervalSec:    cfg.WSPingIntervalSec,
			WSPongTimeoutSec:     cfg.WSPongTimeoutSec,
			WSCloseTimeoutSec:    cfg.WSCloseTimeoutSec,
			RESTTimeoutSec:       cfg.RESTTimeoutSec,
			WatchdogPollSec:      cfg.WatchdogPollSec,
			WatchdogStallSec:     cfg.WatchdogStallSec,
			TaskHealthPollSec:    cfg.TaskHealthPollSec,
			BackfillCandleLimit:  cfg.BackfillCandleLimit,
			EnableFullRefresh5M:  cfg.EnableFullRefresh5M,
			FullRefreshOffsetSec: cfg.FullRefreshOffsetSec,
		}, restBase, wsBase, agg, store, log.With("exchange", exchangeName))

		health.SetStreamConnected(exchangeName, false)
		taskProviders[exchangeName] = sup

		go func(exchangeName string, sup *supervisor.Supervisor) {
			if err := sup.Run(ctx); err != nil {
				log.Error("supervisor exited", "exchange", exchangeName, "err", err)
			}
		}(exchangeName, sup)
	}

	bt := backtester.New(store, g, winRateCache, log.With("component", "backtester"))
	go runAnalysisAutorun(ctx, bt, cfg, log)

	mux := api.NewRouter(snapshots, health.ServeHTTP, taskProviders)
	httpSrv := metrics.NewServer(cfg.MetricsAddr, health)
	httpSrv.Start()
	apiSrv := &apiServer{mux: mux, addr: ":8080"}
	apiSrv.start()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Stop(shutdownCtx)
	apiSrv.stop(shutdownCtx)
	log.Info("shutdown complete")
}

func symbolStateConfig(cfg *config.CoreConfig) symbolstate.Config {
	return symbolstate.Config{
		ATRPeriod:              cfg.ATRPeriod,
		VolLookback:            cfg.VolLookback,
		WindowShort:            cfg.WindowShort,
		WindowMedium:           cfg.WindowMedium,
		CipherBOSLevel:         cfg.CipherBOSLevel,
		CipherBOBLevel:         cfg.CipherBOBLevel,
		VolDueBBWidthThreshold: cfg.VolDueBBWidthThreshold,
		VolDueATRPctThreshold:  cfg.VolDueATRPctThreshold,
		VolDuePercentile:       cfg.VolDuePercentile,
		VolDueLookbackBars:     cfg.VolDueLookbackBars,
	}
}

func exchangeEndpoints(exchangeName string, cfg *config.CoreConfig) (restBase, wsBase string) {
	switch exchangeName {
	case "binance":
		return cfg.RESTBaseURL, cfg.WSBaseURL
	default:
		return "", "" // §6.2 "Unknown exchanges are stubbed"
	}
}
