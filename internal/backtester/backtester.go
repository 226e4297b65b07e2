// Package backtester implements the forward-simulation backtester from
// §4.7: it iterates persisted (alert, plan) pairs, replays
// forward 15m candles bar-by-bar against each plan's stop/TP ladder,
// aggregates per-symbol and per-bucket statistics, and republishes the
// grader's win-rate cache. Grounded on the teacher's
// internal/marketdata/agg.Aggregator for the "owns a single map, runs
// off-thread, logs-don't-panic" shape, generalized from tick replay to
// trade-outcome replay.
package backtester

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kestrel-labs/perpscreen/internal/grader"
	"github.com/kestrel-labs/perpscreen/internal/model"
	"github.com/kestrel-labs/perpscreen/internal/store/sqlite"
)

// horizonBars15m is the forward-simulation horizon (§RESOLVED OPEN
// QUESTIONS #5): 96 forward 15m candles, not the legacy 288-bar variant.
const horizonBars15m = 96

// minResolvedForWinRate is the minimum resolved-trade count before a
// symbol's win-rate entry is published to the Grader's cache (§4.7 step 6).
const minResolvedForWinRate = 5

// StrategyVersion is stamped onto every BacktestTrade row; bumping it
// creates new rows rather than overwriting existing history (§6.4).
const StrategyVersion = "v1"

// Store is the persistence contract the Backtester reads and writes
// through.
type Store interface {
	GetAlertPlanPairs(sinceTsMs int64, exchange string, top200Only bool) ([]sqlite.AlertPlanPair, error)
	GetAfter(exchange, symbol string, interval model.Interval, startOpenTimeMs int64, limit int) []model.Candle
	UpsertBacktestTrade(bt model.BacktestTrade) error
	UpsertBacktestResult(bucketKey string, windowDays int, strategyVersion string, stats model.SymbolBucketStats, updatedTsMs int64) error
	InsertAnalysisRun(run model.AnalysisRun) (int64, error)
	FinishAnalysisRun(id int64, finishedTsMs int64, symbolsConsidered, tradesResolved int, status, errMsg string) error
}

// Backtester runs forward-simulation backtests on demand (§4.7).
type Backtester struct {
	store  Store
	grader *grader.Grader
	cache  *grader.WinRateCache
	log    *slog.Logger
}

// New creates a Backtester. cache is the same WinRateCache instance the
// Grader reads from — Run() publishes into it directly (§5 "Backtester ...
// only updates the grader's win-rate cache atomically").
func New(store Store, g *grader.Grader, cache *grader.WinRateCache, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{store: store, grader: g, cache: cache, log: log}
}

// Request bundles a backtest invocation's parameters (§4.7 step 1).
type Request struct {
	WindowDays int
	Exchange   string // empty = all exchanges
	Top200Only bool
	NowMs      int64
}

// Run executes one full backtest pass: resolve every (alert, plan) pair
// created within the window, upsert its outcome, aggregate per-symbol and
// per-bucket stats, and republish the win-rate cache. Never returns an
// error for a single pair's resolution failure — those are logged and
// skipped; only a failure to record the analysis run or to read the
// (alert, plan) pairs on step 1 is surfaced.
func (b *Backtester) Run(req Request) (model.AnalysisRun, error) {
	sinceTsMs := req.NowMs - int64(req.WindowDays)*86400*1000

	runID, err := b.store.InsertAnalysisRun(model.AnalysisRun{
		StartedTsMs:     req.NowMs,
		WindowDays:      req.WindowDays,
		StrategyVersion: StrategyVersion,
		Status:          "running",
	})
	if err != nil {
		return model.AnalysisRun{}, fmt.Errorf("backtester: insert analysis run: %w", err)
	}

	pairs, err := b.store.GetAlertPlanPairs(sinceTsMs, req.Exchange, req.Top200Only)
	if err != nil {
		_ = b.store.FinishAnalysisRun(runID, req.NowMs, 0, 0, "failed", err.Error())
		return model.AnalysisRun{}, fmt.Errorf("backtester: get alert plan pairs: %w", err)
	}

	bySymbol := make(map[string][]model.BacktestTrade)
	byBucket := make(map[string][]model.BacktestTrade)
	resolved := 0
	symbols := make(map[string]struct{})

	for _, pair := range pairs {
		symbols[pair.Alert.Exchange+":"+pair.Alert.Symbol] = struct{}{}

		bt := b.simulate(pair, req.WindowDays)
		if err := b.store.UpsertBacktestTrade(bt); err != nil {
			b.log.Error("upsert backtest trade failed", "alert_id", pair.Alert.ID, "err", err)
			continue
		}
		if bt.Resolved != model.ResolutionPending {
			resolved++
		}

		key := pair.Alert.Exchange + ":" + pair.Alert.Symbol
		bySymbol[key] = append(bySymbol[key], bt)

		bucketKey := string(bt.Grade) + "|" + bt.SourceTF + "|" + string(bt.Signal)
		byBucket[bucketKey] = append(byBucket[bucketKey], bt)
	}

	for key, trades := range bySymbol {
		stats := aggregate(key, trades)
		if err := b.store.UpsertBacktestResult("symbol:"+key, req.WindowDays, StrategyVersion, stats, req.NowMs); err != nil {
			b.log.Error("upsert symbol backtest result failed", "key", key, "err", err)
		}
	}
	for key, trades := range byBucket {
		stats := aggregate(key, trades)
		if err := b.store.UpsertBacktestResult("bucket:"+key, req.WindowDays, StrategyVersion, stats, req.NowMs); err != nil {
			b.log.Error("upsert bucket backtest result failed", "key", key, "err", err)
		}
	}

	if b.cache != nil {
		b.publishWinRates(bySymbol)
	}

	run := model.AnalysisRun{
		ID: runID, StartedTsMs: req.NowMs, FinishedTsMs: req.NowMs, WindowDays: req.WindowDays,
		StrategyVersion: StrategyVersion, SymbolsConsidered: len(symbols), TradesResolved: resolved, Status: "completed",
	}
	if err := b.store.FinishAnalysisRun(runID, req.NowMs, len(symbols), resolved, "completed", ""); err != nil {
		b.log.Error("finish analysis run failed", "run_id", runID, "err", err)
	}
	return run, nil
}

// publishWinRates installs the realistic (R>=1.0) per-symbol win rate into
// the Grader's cache, requiring a minimum of 5 resolved trades per symbol
// (§4.7 step 6).
func (b *Backtester) publishWinRates(bySymbol map[string][]model.BacktestTrade) {
	table := make(map[string]grader.WinRateEntry, len(bySymbol))
	for key, trades := range bySymbol {
		resolved := 0
		wins := 0
		symbol := symbolFromKey(key)
		for _, t := range trades {
			if t.Resolved == model.ResolutionPending {
				continue
			}
			resolved++
			if t.RMultiple >= 1.0 {
				wins++
			}
		}
		if resolved < minResolvedForWinRate {
			continue
		}
		table[symbol] = grader.WinRateEntry{Symbol: symbol, Trades: resolved, WinRate: float64(wins) / float64(resolved)}
	}
	b.cache.Publish(table)
}

func symbolFromKey(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return key[i+1:]
		}
	}
	return key
}

// simulate resolves one (alert, plan) pair by replaying up to 96 forward
// 15m candles (§4.7 step 3). If the alert has no grade yet (defensive;
// normally set at alert time), it is backfilled by re-running the Grader
// against the persisted metrics snapshot.
func (b *Backtester) simulate(pair sqlite.AlertPlanPair, windowDays int) model.BacktestTrade {
	alert, plan := pair.Alert, pair.Plan

	grade, score := alert.SetupGrade, alert.SetupScore
	if grade == "" && b.grader != nil {
		var m model.Metrics
		if err := json.Unmarshal([]byte(alert.MetricsJSON), &m); err == nil {
			res := b.grader.Grade(&m, alert.Signal)
			grade, score = res.Grade, res.Score
		}
	}

	bt := model.BacktestTrade{
		AlertID: alert.ID, WindowDays: windowDays, StrategyVersion: StrategyVersion,
		CreatedTsMs: alert.CreatedTsMs, Exchange: alert.Exchange, Symbol: alert.Symbol,
		Signal: alert.Signal, SourceTF: alert.SourceTF, Grade: grade, Score: score,
		LiquidityTop200: containsTop200(alert.MetricsJSON),
		Entry:           plan.EntryPrice, Stop: plan.StopLoss,
		TP1: derefOrZero(plan.TP1), TP2: derefOrZero(plan.TP2), TP3: derefOrZero(plan.TP3),
		Resolved: model.ResolutionPending,
	}

	candles := b.store.GetAfter(alert.Exchange, alert.Symbol, model.Interval15m, alert.EventTsMs, horizonBars15m)
	if len(candles) == 0 || plan.RiskPerUnit == 0 || plan.TP1 == nil {
		bt.Resolved = model.ResolutionNone
		return bt
	}

	tps := []float64{*plan.TP1, *plan.TP2, *plan.TP3}

	var maeR, mfeR float64
	for i, c := range candles {
		if i >= horizonBars15m {
			break
		}
		var adverse, favorable float64
		if plan.Side == model.SideBuy {
			adverse = (plan.EntryPrice - c.Low) / plan.RiskPerUnit
			favorable = (c.High - plan.EntryPrice) / plan.RiskPerUnit
		} else {
			adverse = (c.High - plan.EntryPrice) / plan.RiskPerUnit
			favorable = (plan.EntryPrice - c.Low) / plan.RiskPerUnit
		}
		if adverse > maeR {
			maeR = adverse
		}
		if favorable > mfeR {
			mfeR = favorable
		}

		hitStop := crossesStop(plan, c)
		hitTPIdx := -1
		for j, tp := range tps {
			if crossesTP(plan.Side, tp, c) {
				hitTPIdx = j
				break
			}
		}

		if hitStop {
			// Intra-bar tie-break: a bar crossing both stop and a TP
			// resolves as SL, the worst-case assumption (§4.7 step 3).
			bt.Resolved = model.ResolutionSL
			bt.RMultiple = -1
			bt.BarsToResolve = i + 1
			bt.ResolvedTsMs = c.OpenTimeMs
			bt.MAE_R, bt.MFE_R = maeR, mfeR
			return bt
		}
		if hitTPIdx >= 0 {
			bt.Resolved = resolutionForIndex(hitTPIdx)
			bt.RMultiple = float64(hitTPIdx + 1)
			bt.BarsToResolve = i + 1
			bt.ResolvedTsMs = c.OpenTimeMs
			bt.MAE_R, bt.MFE_R = maeR, mfeR
			return bt
		}
	}

	bt.Resolved = model.ResolutionNone
	bt.MAE_R, bt.MFE_R = maeR, mfeR
	return bt
}

func resolutionForIndex(i int) model.Resolution {
	switch i {
	case 0:
		return model.ResolutionTP1
	case 1:
		return model.ResolutionTP2
	default:
		return model.ResolutionTP3
	}
}

func crossesStop(plan model.TradePlan, c model.Candle) bool {
	if plan.Side == model.SideBuy {
		return c.Low <= plan.StopLoss
	}
	return c.High >= plan.StopLoss
}

func crossesTP(side model.Side, tp float64, c model.Candle) bool {
	if side == model.SideBuy {
		return c.High >= tp
	}
	return c.Low <= tp
}

// derefOrZero reads a possibly-nil take-profit pointer for the BacktestTrade
// snapshot columns, which keep the pre-existing plain-float64 shape.
func derefOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func containsTop200(metricsJSON string) bool {
	var probe struct {
		LiquidityTop200 bool `json:"liquidity_top200"`
	}
	_ = json.Unmarshal([]byte(metricsJSON), &probe)
	return probe.LiquidityTop200
}

// aggregate computes one SymbolBucketStats row from a set of trades,
// surfacing both win-rate definitions side by side (§4.7 step 5).
func aggregate(key string, trades []model.BacktestTrade) model.SymbolBucketStats {
	stats := model.SymbolBucketStats{Key: key}
	var resolvedCount int
	var anyTPWins, r1Wins int
	var sumR, sumMAE, sumMFE, sumBars float64

	for _, t := range trades {
		if t.Resolved == model.ResolutionPending {
			continue
		}
		resolvedCount++
		sumR += t.RMultiple
		sumMAE += t.MAE_R
		sumMFE += t.MFE_R
		sumBars += float64(t.BarsToResolve)
		if t.Resolved == model.ResolutionTP1 || t.Resolved == model.ResolutionTP2 || t.Resolved == model.ResolutionTP3 {
			anyTPWins++
		}
		if t.RMultiple >= 1.0 {
			r1Wins++
		}
	}

	stats.Count = resolvedCount
	if resolvedCount > 0 {
		stats.WinRateAnyTP = float64(anyTPWins) / float64(resolvedCount)
		stats.WinRateR1 = float64(r1Wins) / float64(resolvedCount)
		stats.AvgR = sumR / float64(resolvedCount)
		stats.AvgMAE_R = sumMAE / float64(resolvedCount)
		stats.AvgMFE_R = sumMFE / float64(resolvedCount)
		stats.AvgBars = sumBars / float64(resolvedCount)
	}
	return stats
}
