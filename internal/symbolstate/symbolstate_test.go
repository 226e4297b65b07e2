package symbolstate

import (
	"testing"

	"github.com/kestrel-labs/perpscreen/internal/model"
)

type fakeStore struct {
	upserts []model.Candle
	failNext bool
}

func (f *fakeStore) UpsertCandle(c model.Candle) error {
	if f.failNext {
		f.failNext = false
		return errTest
	}
	f.upserts = append(f.upserts, c)
	return nil
}

type testErr string

func (e testErr) Error() string { return string(e) }

const errTest = testErr("boom")

func candle(openMs, closeMs int64, o, h, l, c, v float64, closed bool) model.Candle {
	return model.Candle{
		Exchange: "binance", Symbol: "BTCUSDT", Interval: model.Interval1m,
		OpenTimeMs: openMs, CloseTimeMs: closeMs,
		Open: o, High: h, Low: l, Close: c, Volume: v, Closed: closed,
	}
}

func TestSymbolState_UpdateTracksLastPrice(t *testing.T) {
	s := New("binance", "BTCUSDT", Config{}, nil, nil)
	s.Update(candle(0, 60000, 100, 101, 99, 100.5, 50, true))
	price, ok := s.LastPrice()
	if !ok || price != 100.5 {
		t.Fatalf("LastPrice = (%v, %v), want (100.5, true)", price, ok)
	}
}

func TestSymbolState_ATR1mNilUntilWarm(t *testing.T) {
	s := New("binance", "BTCUSDT", Config{ATRPeriod: 14}, nil, nil)
	for i := 0; i < 10; i++ {
		ts := int64(i * 60000)
		s.Update(candle(ts, ts+60000, 100, 101, 99, 100, 10, true))
	}
	if s.ATR1m() != nil {
		t.Error("expected nil ATR1m before 15 closes accumulate")
	}
	for i := 10; i < 16; i++ {
		ts := int64(i * 60000)
		s.Update(candle(ts, ts+60000, 100, 101, 99, 100, 10, true))
	}
	if s.ATR1m() == nil {
		t.Error("expected non-nil ATR1m once >= 15 closes accumulate")
	}
}

func TestSymbolState_HTFFoldFinalizesOnNewBucket(t *testing.T) {
	store := &fakeStore{}
	s := New("binance", "BTCUSDT", Config{}, store, nil)

	width := bucketWidthMs(model.Interval15m)
	// Two 1m candles inside the same 15m bucket.
	s.Update(candle(0, 60000, 100, 105, 95, 102, 10, true))
	s.Update(candle(60000, 120000, 102, 106, 101, 104, 12, true))
	if len(store.upserts) != 0 {
		t.Fatalf("expected no finalized HTF candle yet, got %d", len(store.upserts))
	}

	// A candle in the next 15m bucket forces the prior bucket to finalize.
	s.Update(candle(width, width+60000, 104, 107, 103, 105, 8, true))
	if len(store.upserts) != 1 {
		t.Fatalf("expected one finalized HTF candle, got %d", len(store.upserts))
	}
	got := store.upserts[0]
	if got.Interval != model.Interval15m {
		t.Errorf("interval = %v, want 15m", got.Interval)
	}
	if got.High != 106 || got.Low != 95 || got.Close != 104 {
		t.Errorf("finalized bucket = %+v, want high=106 low=95 close=104", got)
	}
	if got.Volume != 22 {
		t.Errorf("finalized bucket volume = %v, want 22", got.Volume)
	}
}

func TestSymbolState_IntrabarCandleDoesNotFeedHTF(t *testing.T) {
	store := &fakeStore{}
	s := New("binance", "BTCUSDT", Config{}, store, nil)
	s.Update(candle(0, 60000, 100, 101, 99, 100, 10, false))
	width := bucketWidthMs(model.Interval15m)
	s.Update(candle(width, width+60000, 100, 101, 99, 100, 10, false))
	if len(store.upserts) != 0 {
		t.Errorf("expected no HTF persistence from intrabar updates, got %d", len(store.upserts))
	}
}

func TestSymbolState_ComputeMetricsPopulatesEmptyMapsWhenCold(t *testing.T) {
	s := New("binance", "BTCUSDT", Config{}, nil, nil)
	m := s.ComputeMetrics(1000)
	if m.Symbol != "BTCUSDT" || m.Exchange != "binance" {
		t.Fatalf("unexpected identity fields: %+v", m)
	}
	if m.LastPrice != nil {
		t.Error("expected nil LastPrice before any update")
	}
	if len(m.WaveTrend) != 2 {
		t.Errorf("expected WaveTrend entries for both HTF timeframes, got %d", len(m.WaveTrend))
	}
}
