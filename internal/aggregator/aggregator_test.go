package aggregator

import (
	"testing"

	"github.com/kestrel-labs/perpscreen/internal/grader"
	"github.com/kestrel-labs/perpscreen/internal/model"
	"github.com/kestrel-labs/perpscreen/internal/tradeplan"
)

// fakeStore is a minimal in-memory CandleStore for aggregator tests.
type fakeStore struct {
	candles map[string][]model.Candle
	alerts  []model.Alert
	plans   []model.TradePlan
	nextID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{candles: make(map[string][]model.Candle)}
}

func (f *fakeStore) UpsertCandle(c model.Candle) error { return nil }

func (f *fakeStore) GetRecent(exchange, symbol string, interval model.Interval, limit int) []model.Candle {
	key := exchange + ":" + symbol + ":" + string(interval)
	cs := f.candles[key]
	if len(cs) > limit {
		return cs[len(cs)-limit:]
	}
	return cs
}

func (f *fakeStore) InsertAlert(a model.Alert) (int64, error) {
	f.nextID++
	f.alerts = append(f.alerts, a)
	return f.nextID, nil
}

func (f *fakeStore) InsertTradePlan(p model.TradePlan) error {
	f.plans = append(f.plans, p)
	return nil
}

func feedCandles(a *Aggregator, symbol string, n int, start, step, price, vol float64) {
	for i := 0; i < n; i++ {
		a.IngestKline(model.Candle{
			Exchange: a.Exchange, Symbol: symbol, Interval: model.Interval1m,
			OpenTimeMs: int64(i) * 60_000, CloseTimeMs: int64(i+1) * 60_000,
			Open: price, High: price + 1, Low: price - 1, Close: price, Volume: vol, Closed: true,
		}, int64(i)*60_000)
	}
}

func newTestAggregator() (*Aggregator, *fakeStore) {
	store := newFakeStore()
	g := grader.New(grader.Config{}, grader.NewWinRateCache())
	pb := tradeplan.New(tradeplan.Config{})
	a := New("binance", Config{SnapshotIntervalMs: 1000}, store, g, pb, nil, nil, nil, nil)
	return a, store
}

func TestEmitThrottled(t *testing.T) {
	a, _ := newTestAggregator()
	m1 := a.IngestKline(model.Candle{Exchange: "binance", Symbol: "BTCUSDT", Interval: model.Interval1m, OpenTimeMs: 0, CloseTimeMs: 60_000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10, Closed: true}, 0)
	if m1 == nil {
		t.Fatalf("expected first ingest at t=0 to emit")
	}
	m2 := a.IngestKline(model.Candle{Exchange: "binance", Symbol: "BTCUSDT", Interval: model.Interval1m, OpenTimeMs: 60_000, CloseTimeMs: 120_000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10, Closed: true}, 500)
	if m2 != nil {
		t.Fatalf("expected throttled emit within interval to return nil")
	}
	m3 := a.HeartbeatEmit(2000)
	if m3 == nil {
		t.Fatalf("expected forced heartbeat emit to return metrics")
	}
}

func TestSubscriberDropOldest(t *testing.T) {
	sub := newSubscriber()
	for i := 0; i < subscriberQueueCap+10; i++ {
		sub.push([]byte{byte(i)})
	}
	if len(sub.ch) != subscriberQueueCap {
		t.Fatalf("expected queue to stay at cap %d, got %d", subscriberQueueCap, len(sub.ch))
	}
	first := <-sub.C()
	if first[0] != byte(10) {
		t.Fatalf("expected oldest surviving element to be index 10 (first 10 dropped), got %d", first[0])
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	a, _ := newTestAggregator()
	sub := a.Subscribe()
	if a.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", a.SubscriberCount())
	}
	a.Unsubscribe(sub)
	if a.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", a.SubscriberCount())
	}
}

func TestLiquidityTop200RankingMonotonic(t *testing.T) {
	a, _ := newTestAggregator()
	feedCandles(a, "BIG", 20, 0, 60_000, 100, 10_000)
	feedCandles(a, "SMALL", 20, 0, 60_000, 100, 10)
	a.UpdateOpenInterest("BIG", 1_000_000)
	a.UpdateOpenInterest("SMALL", 100)

	metrics := a.HeartbeatEmit(10_000_000)
	var bigRank, smallRank int
	for _, m := range metrics {
		switch m.Symbol {
		case "BIG":
			bigRank = m.LiquidityRank
		case "SMALL":
			smallRank = m.LiquidityRank
		}
	}
	if bigRank == 0 || smallRank == 0 {
		t.Fatalf("expected both symbols ranked, got big=%d small=%d", bigRank, smallRank)
	}
	if bigRank >= smallRank {
		t.Fatalf("expected BIG (higher turnover+OI) to rank ahead of SMALL, got big=%d small=%d", bigRank, smallRank)
	}
}

func TestFreshSignalFiresOnceWhileStillActive(t *testing.T) {
	a, _ := newTestAggregator()

	m := &model.Metrics{
		Symbol:         "BTCUSDT",
		CipherSourceTF: "15m",
		WaveTrend:      map[string]model.WaveTrendState{"15m": {CipherBuy: true}},
	}
	a.gradeAndPlanFreshSignals([]*model.Metrics{m}, 1000)
	if !a.lastSignalFired["BTCUSDT"]["cipher_buy"] {
		t.Fatalf("expected signal to be marked active")
	}
	if m.SignalAgeMs["cipher_buy"] != 0 {
		t.Fatalf("expected fresh fire to report age 0")
	}

	m2 := &model.Metrics{
		Symbol:         "BTCUSDT",
		CipherSourceTF: "15m",
		WaveTrend:      map[string]model.WaveTrendState{"15m": {CipherBuy: true}},
	}
	a.gradeAndPlanFreshSignals([]*model.Metrics{m2}, 2000)
	if m2.SetupGrade != "" {
		t.Fatalf("expected repeat fire while the condition stays true to skip re-grading, got grade %q", m2.SetupGrade)
	}
}

func TestFreshSignalRefiresAfterConditionClears(t *testing.T) {
	a, _ := newTestAggregator()

	on := &model.Metrics{
		Symbol:         "BTCUSDT",
		CipherSourceTF: "15m",
		WaveTrend:      map[string]model.WaveTrendState{"15m": {CipherBuy: true}},
	}
	a.gradeAndPlanFreshSignals([]*model.Metrics{on}, 1000)
	if !a.lastSignalFired["BTCUSDT"]["cipher_buy"] {
		t.Fatalf("expected signal to be marked active after first fire")
	}

	off := &model.Metrics{
		Symbol:         "BTCUSDT",
		CipherSourceTF: "15m",
		WaveTrend:      map[string]model.WaveTrendState{"15m": {CipherBuy: false}},
	}
	a.gradeAndPlanFreshSignals([]*model.Metrics{off}, 2000)
	if a.lastSignalFired["BTCUSDT"]["cipher_buy"] {
		t.Fatalf("expected condition going false to clear the active flag")
	}

	again := &model.Metrics{
		Symbol:         "BTCUSDT",
		CipherSourceTF: "15m",
		WaveTrend:      map[string]model.WaveTrendState{"15m": {CipherBuy: true}},
	}
	a.gradeAndPlanFreshSignals([]*model.Metrics{again}, 3000)
	if again.SetupGrade == "" {
		t.Fatalf("expected a new rising edge after the condition cleared to re-fire and grade the signal")
	}
}
