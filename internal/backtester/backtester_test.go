package backtester

import (
	"testing"

	"github.com/kestrel-labs/perpscreen/internal/grader"
	"github.com/kestrel-labs/perpscreen/internal/model"
	"github.com/kestrel-labs/perpscreen/internal/store/sqlite"
)

// fakeStore is a minimal in-memory Store for backtester unit tests.
type fakeStore struct {
	pairs   []sqlite.AlertPlanPair
	candles map[string][]model.Candle
	trades  []model.BacktestTrade
	results map[string]model.SymbolBucketStats
}

func newFakeStore() *fakeStore {
	return &fakeStore{candles: make(map[string][]model.Candle), results: make(map[string]model.SymbolBucketStats)}
}

func (f *fakeStore) GetAlertPlanPairs(sinceTsMs int64, exchange string, top200Only bool) ([]sqlite.AlertPlanPair, error) {
	return f.pairs, nil
}

func (f *fakeStore) GetAfter(exchange, symbol string, interval model.Interval, startOpenTimeMs int64, limit int) []model.Candle {
	cs := f.candles[exchange+":"+symbol]
	if len(cs) > limit {
		return cs[:limit]
	}
	return cs
}

func (f *fakeStore) UpsertBacktestTrade(bt model.BacktestTrade) error {
	f.trades = append(f.trades, bt)
	return nil
}

func (f *fakeStore) UpsertBacktestResult(bucketKey string, windowDays int, strategyVersion string, stats model.SymbolBucketStats, updatedTsMs int64) error {
	f.results[bucketKey] = stats
	return nil
}

func (f *fakeStore) InsertAnalysisRun(run model.AnalysisRun) (int64, error) { return 1, nil }

func (f *fakeStore) FinishAnalysisRun(id int64, finishedTsMs int64, symbolsConsidered, tradesResolved int, status, errMsg string) error {
	return nil
}

func ptr(v float64) *float64 { return &v }

func buyPlan() (model.Alert, model.TradePlan) {
	alert := model.Alert{ID: 1, EventTsMs: 0, CreatedTsMs: 0, Exchange: "binance", Symbol: "BTCUSDT", Signal: model.SideBuy, SetupGrade: model.GradeB, SetupScore: 4, MetricsJSON: "{}"}
	plan := model.TradePlan{AlertID: 1, Exchange: "binance", Symbol: "BTCUSDT", Side: model.SideBuy, EntryPrice: 100, StopLoss: 90, TP1: ptr(110), TP2: ptr(120), TP3: ptr(140), RiskPerUnit: 10}
	return alert, plan
}

func rising(n int, start float64) []model.Candle {
	out := make([]model.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		price += 2
		out[i] = model.Candle{Exchange: "binance", Symbol: "BTCUSDT", Interval: model.Interval15m, OpenTimeMs: int64(i) * 900_000, Open: price - 1, High: price + 1, Low: price - 2, Close: price, Closed: true}
	}
	return out
}

func falling(n int, start float64) []model.Candle {
	out := make([]model.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		price -= 2
		out[i] = model.Candle{Exchange: "binance", Symbol: "BTCUSDT", Interval: model.Interval15m, OpenTimeMs: int64(i) * 900_000, Open: price + 1, High: price + 2, Low: price - 1, Close: price, Closed: true}
	}
	return out
}

func TestSimulateRisingSequenceResolvesTP(t *testing.T) {
	store := newFakeStore()
	alert, plan := buyPlan()
	store.pairs = []sqlite.AlertPlanPair{{Alert: alert, Plan: plan}}
	store.candles["binance:BTCUSDT"] = rising(20, 100)

	bt := New(store, nil, nil, nil)
	run, err := bt.Run(Request{WindowDays: 7, NowMs: 1_000_000})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.TradesResolved != 1 {
		t.Fatalf("expected 1 resolved trade, got %d", run.TradesResolved)
	}
	got := store.trades[0]
	if got.Resolved != model.ResolutionTP1 && got.Resolved != model.ResolutionTP2 && got.Resolved != model.ResolutionTP3 {
		t.Fatalf("expected a TP resolution on rising sequence, got %v", got.Resolved)
	}
}

func TestSimulateFallingSequenceResolvesSL(t *testing.T) {
	store := newFakeStore()
	alert, plan := buyPlan()
	store.pairs = []sqlite.AlertPlanPair{{Alert: alert, Plan: plan}}
	store.candles["binance:BTCUSDT"] = falling(20, 100)

	bt := New(store, nil, nil, nil)
	_, err := bt.Run(Request{WindowDays: 7, NowMs: 1_000_000})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := store.trades[0]
	if got.Resolved != model.ResolutionSL {
		t.Fatalf("expected SL resolution on falling sequence, got %v", got.Resolved)
	}
	if got.RMultiple != -1 {
		t.Fatalf("expected R multiple -1 on SL, got %v", got.RMultiple)
	}
}

func TestWinRatePublishedAfterMinimumTrades(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 6; i++ {
		alert, plan := buyPlan()
		alert.ID = int64(i + 1)
		plan.AlertID = alert.ID
		store.pairs = append(store.pairs, sqlite.AlertPlanPair{Alert: alert, Plan: plan})
		store.candles["binance:BTCUSDT"] = rising(20, 100)
	}

	cache := grader.NewWinRateCache()
	bt := New(store, nil, cache, nil)
	if _, err := bt.Run(Request{WindowDays: 7, NowMs: 1_000_000}); err != nil {
		t.Fatalf("run: %v", err)
	}
	entry, ok := cache.Lookup("BTCUSDT")
	if !ok {
		t.Fatalf("expected win-rate entry to be published after %d resolved trades", 6)
	}
	if entry.Trades != 6 {
		t.Fatalf("expected 6 trades recorded, got %d", entry.Trades)
	}
}
