package indicator

import (
	"math"
	"testing"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestSMA(t *testing.T) {
	vs := []float64{1, 2, 3, 4, 5}
	got, ok := sma(vs, 3)
	if !ok {
		t.Fatal("expected ok")
	}
	want := (3.0 + 4.0 + 5.0) / 3.0
	if !approxEqual(got, want, 1e-9) {
		t.Errorf("sma = %v, want %v", got, want)
	}
	if _, ok := sma(vs, 10); ok {
		t.Error("expected not-ok for under-provisioned window")
	}
}

func TestEMASeries_SeededAtFirstValue(t *testing.T) {
	vs := []float64{10, 10, 10, 10}
	out := emaSeries(vs, 3)
	for i, v := range out {
		if !approxEqual(v, 10, 1e-9) {
			t.Errorf("ema[%d] = %v, want 10 (flat input)", i, v)
		}
	}
}

func TestATR_NilWhenUnderProvisioned(t *testing.T) {
	highs := []float64{10, 11}
	lows := []float64{9, 10}
	closes := []float64{9.5, 10.5}
	if got := ATR(highs, lows, closes, 14); got != nil {
		t.Errorf("expected nil ATR, got %v", *got)
	}
}

func TestATR_PositiveOnTrendingSeries(t *testing.T) {
	n := 30
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	price := 100.0
	for i := 0; i < n; i++ {
		highs[i] = price + 1
		lows[i] = price - 1
		closes[i] = price
		price += 0.5
	}
	got := ATR(highs, lows, closes, 14)
	if got == nil {
		t.Fatal("expected non-nil ATR")
	}
	if *got <= 0 {
		t.Errorf("expected positive ATR, got %v", *got)
	}
}

func TestRSI_ExtremesOnMonotonicSeries(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(i)
	}
	got := RSI(closes, 14)
	if got == nil {
		t.Fatal("expected non-nil RSI")
	}
	if *got < 90 {
		t.Errorf("expected RSI close to 100 for a strictly rising series, got %v", *got)
	}
}

func TestMACD_NilWhenUnderProvisioned(t *testing.T) {
	closes := []float64{1, 2, 3}
	if got := MACD(closes, 12, 26, 9); got != nil {
		t.Error("expected nil MACD for short series")
	}
}

func TestBollinger_WidthAndPosition(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
	}
	got := Bollinger(closes, 20, 2)
	if got == nil {
		t.Fatal("expected non-nil Bollinger")
	}
	if got.Width != 0 {
		t.Errorf("expected zero width for a flat series, got %v", got.Width)
	}
}

func TestWaveTrend_EmptyResultBelowMinBars(t *testing.T) {
	closes := make([]float64, 10)
	res := WaveTrend(closes, closes, closes)
	if res.WT1 != nil || res.WT2 != nil || res.CrossUp || res.CrossDown {
		t.Error("expected zero-value WaveTrendResult under minimum bars")
	}
}

func TestWaveTrend_PopulatedAboveMinBars(t *testing.T) {
	n := 40
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += math.Sin(float64(i)/3) * 2
		highs[i] = price + 1
		lows[i] = price - 1
		closes[i] = price
	}
	res := WaveTrend(highs, lows, closes)
	if res.WT1 == nil || res.WT2 == nil {
		t.Fatal("expected populated WaveTrend result above minimum bars")
	}
}

func TestWilliamsRTrendExhaustion_NilBelowMinBars(t *testing.T) {
	closes := make([]float64, 50)
	if got := WilliamsRTrendExhaustionCalc(closes, closes, closes); got != nil {
		t.Error("expected nil result below minimum bars")
	}
}

func TestChange_NthBarBack(t *testing.T) {
	closes := []float64{100, 110, 121}
	got := Change(closes, 2)
	if got == nil {
		t.Fatal("expected non-nil Change")
	}
	want := (121.0 - 100.0) / 100.0 * 100
	if !approxEqual(*got, want, 1e-9) {
		t.Errorf("Change = %v, want %v", *got, want)
	}
}

func TestBreakoutPct_AboveRecentHigh(t *testing.T) {
	highs := []float64{10, 10, 10, 10, 20}
	closes := []float64{10, 10, 10, 10, 25}
	got := BreakoutPct(highs, closes, 4)
	if got == nil {
		t.Fatal("expected non-nil breakout pct")
	}
	if *got <= 0 {
		t.Errorf("expected positive breakout pct, got %v", *got)
	}
}

func TestSignalScore_AlignedOIBoostsOverDivergent(t *testing.T) {
	aligned := SignalScore(SignalScoreInputs{MomentumScore: 40, OIChange5m: 1, RVOL: 1.5, Breakout15: 0.5})
	divergent := SignalScore(SignalScoreInputs{MomentumScore: 40, OIChange5m: -1, RVOL: 1.5, Breakout15: 0.5})
	if aligned <= divergent {
		t.Errorf("expected OI-aligned score (%v) > OI-divergent score (%v)", aligned, divergent)
	}
}

func TestSignalScore_ClampedToRange(t *testing.T) {
	got := SignalScore(SignalScoreInputs{MomentumScore: 1000, OIChange5m: 1000, RVOL: 1000, Breakout15: 1000})
	if got < -100 || got > 100 {
		t.Errorf("SignalScore = %v, want within [-100,100]", got)
	}
}

func TestVolatilityPercentile_RankWithinHistory(t *testing.T) {
	history := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	got := VolatilityPercentile(history, 5)
	if got == nil {
		t.Fatal("expected non-nil percentile")
	}
	if *got < 30 || *got > 50 {
		t.Errorf("expected percentile around 40, got %v", *got)
	}
}
