package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/kestrel-labs/perpscreen/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ohlc.sqlite3")
	st, err := New(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestUpsertCandleIdempotent(t *testing.T) {
	st := newTestStore(t)
	c := model.Candle{
		Exchange: "binance", Symbol: "BTCUSDT", Interval: model.Interval15m,
		OpenTimeMs: 1000, CloseTimeMs: 2000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10, Closed: true,
	}
	if err := st.UpsertCandle(c); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := st.UpsertCandle(c); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got := st.GetRecent("binance", "BTCUSDT", model.Interval15m, 10)
	if len(got) != 1 {
		t.Fatalf("expected exactly one row after double upsert, got %d", len(got))
	}

	c2 := c
	c2.CloseTimeMs = 3000
	c2.Close = 1.9
	if err := st.UpsertCandle(c2); err != nil {
		t.Fatalf("upsert with later close: %v", err)
	}
	got = st.GetRecent("binance", "BTCUSDT", model.Interval15m, 10)
	if len(got) != 1 || got[0].Close != 1.9 {
		t.Fatalf("expected updated row, got %+v", got)
	}
}

func TestInsertAlertIdempotentOnConflict(t *testing.T) {
	st := newTestStore(t)
	a := model.Alert{EventTsMs: 100, CreatedTsMs: 100, Exchange: "binance", Symbol: "BTCUSDT", Signal: model.SideBuy, Price: 50000}

	id1, err := st.InsertAlert(a)
	if err != nil {
		t.Fatalf("insert alert: %v", err)
	}
	id2, err := st.InsertAlert(a)
	if err != nil {
		t.Fatalf("re-insert alert: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id on conflict, got %d vs %d", id1, id2)
	}
}

func TestGetRecentBatchNoN1(t *testing.T) {
	st := newTestStore(t)
	symbols := []string{"BTCUSDT", "ETHUSDT"}
	for _, sym := range symbols {
		for i := 0; i < 5; i++ {
			st.UpsertCandle(model.Candle{
				Exchange: "binance", Symbol: sym, Interval: model.Interval1m,
				OpenTimeMs: int64(i * 60000), CloseTimeMs: int64(i*60000 + 60000),
				Open: 1, High: 1, Low: 1, Close: 1, Volume: 1, Closed: true,
			})
		}
	}
	batch := st.GetRecentBatch("binance", symbols, model.Interval1m, 3)
	for _, sym := range symbols {
		if len(batch[sym]) != 3 {
			t.Fatalf("symbol %s: expected 3 candles, got %d", sym, len(batch[sym]))
		}
	}
}
