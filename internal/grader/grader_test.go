package grader

import (
	"testing"

	"github.com/kestrel-labs/perpscreen/internal/model"
)

func ptr(v float64) *float64 { return &v }

func baseMetrics() *model.Metrics {
	return &model.Metrics{
		Symbol:        "BTCUSDT",
		LastPrice:     ptr(100),
		RVOL:          ptr(1.0),
		MomentumScore: ptr(0),
		ImpulseScore:  ptr(0),
		ImpulseDir:    0,
	}
}

func TestGradeMonotonicInRVOL(t *testing.T) {
	g := New(Config{}, NewWinRateCache())

	low := baseMetrics()
	low.RVOL = ptr(1.0)
	r1 := g.Grade(low, model.SideBuy)

	high := baseMetrics()
	high.RVOL = ptr(2.5)
	r2 := g.Grade(high, model.SideBuy)

	if r2.Score < r1.Score {
		t.Fatalf("increasing RVOL must not decrease score: %v -> %v", r1.Score, r2.Score)
	}
	gradeRank := map[model.Grade]int{model.GradeC: 0, model.GradeB: 1, model.GradeA: 2}
	if gradeRank[r2.Grade] < gradeRank[r1.Grade] {
		t.Fatalf("grade must not move downward: %v -> %v", r1.Grade, r2.Grade)
	}
}

func TestGradeAGateRequiresMTF(t *testing.T) {
	g := New(Config{}, NewWinRateCache())
	m := baseMetrics()
	m.RVOL = ptr(3)
	m.MomentumScore = ptr(50)
	m.ImpulseDir = 1
	m.MTFAligned = false
	m.RSI = map[string]*float64{"15m": ptr(20), "4h": ptr(10)}
	m.MACD = map[string]model.MACDState{
		"15m": {Histogram: ptr(1)},
		"4h":   {Histogram: ptr(1)},
	}

	res := g.Grade(m, model.SideBuy)
	if res.Score < 6 {
		t.Fatalf("expected high score, got %v", res.Score)
	}
	if res.Grade == model.GradeA {
		t.Fatalf("grade must not be A without MTFAligned, got %v (score=%v)", res.Grade, res.Score)
	}
}

func TestGradeWinRateComponent(t *testing.T) {
	cache := NewWinRateCache()
	cache.Publish(map[string]WinRateEntry{"BTCUSDT": {Symbol: "BTCUSDT", Trades: 10, WinRate: 0.2}})
	g := New(Config{}, cache)

	m := baseMetrics()
	first := g.Grade(m, model.SideBuy)

	res := g.Grade(m, model.SideBuy)
	if res.Score != first.Score {
		t.Fatalf("expected deterministic score for identical input, got %v vs %v", res.Score, first.Score)
	}
	foundReason := false
	for _, r := range res.AvoidReasons {
		if r == "historical_win_rate_low" {
			foundReason = true
		}
	}
	if !foundReason {
		t.Fatalf("expected historical_win_rate_low reason, got %v", res.AvoidReasons)
	}
}
