package tradeplan

import (
	"math"
	"testing"

	"github.com/kestrel-labs/perpscreen/internal/model"
)

func TestBuildBuyInvariants(t *testing.T) {
	b := New(Config{})
	swingLow := 98.0
	plan := b.Build(Input{
		Exchange: "binance", Symbol: "BTCUSDT", Side: model.SideBuy,
		Entry: 100, ATR: 1.0, SwingLow: &swingLow,
	})

	if plan.StopLoss > plan.EntryPrice {
		t.Fatalf("BUY stop %v must be <= entry %v", plan.StopLoss, plan.EntryPrice)
	}
	if !(plan.EntryPrice <= *plan.TP1 && *plan.TP1 <= *plan.TP2 && *plan.TP2 <= *plan.TP3) {
		t.Fatalf("BUY tp ordering violated: entry=%v tp1=%v tp2=%v tp3=%v", plan.EntryPrice, *plan.TP1, *plan.TP2, *plan.TP3)
	}
	wantRisk := plan.EntryPrice - plan.StopLoss
	if math.Abs(plan.RiskPerUnit-wantRisk) > 1e-9 {
		t.Fatalf("risk mismatch: got %v want %v", plan.RiskPerUnit, wantRisk)
	}
}

func TestBuildSellInvariants(t *testing.T) {
	b := New(Config{})
	swingHigh := 102.0
	plan := b.Build(Input{
		Exchange: "binance", Symbol: "BTCUSDT", Side: model.SideSell,
		Entry: 100, ATR: 1.0, SwingHigh: &swingHigh,
	})

	if plan.StopLoss < plan.EntryPrice {
		t.Fatalf("SELL stop %v must be >= entry %v", plan.StopLoss, plan.EntryPrice)
	}
	if !(plan.EntryPrice >= *plan.TP1 && *plan.TP1 >= *plan.TP2 && *plan.TP2 >= *plan.TP3) {
		t.Fatalf("SELL tp ordering violated: entry=%v tp1=%v tp2=%v tp3=%v", plan.EntryPrice, *plan.TP1, *plan.TP2, *plan.TP3)
	}
}

func TestBuildChoosesMoreConservativeStop(t *testing.T) {
	b := New(Config{ATRMult: 2.5})
	// ATR stop = 100 - 2.5*1 = 97.5; swing low 98 is more conservative (higher)
	swingLow := 98.0
	plan := b.Build(Input{Side: model.SideBuy, Entry: 100, ATR: 1.0, SwingLow: &swingLow})
	if plan.StopLoss != 98.0 {
		t.Fatalf("expected conservative swing stop 98, got %v", plan.StopLoss)
	}
}

func TestBuildFallsBackToEntryWhenNoCandidates(t *testing.T) {
	b := New(Config{})
	plan := b.Build(Input{Side: model.SideBuy, Entry: 100, ATR: 0})
	if plan.StopLoss != 100 {
		t.Fatalf("expected fallback stop == entry, got %v", plan.StopLoss)
	}
	if plan.TP1 != nil || plan.TP2 != nil || plan.TP3 != nil {
		t.Fatalf("zero risk must yield nil take-profits, got %v/%v/%v", plan.TP1, plan.TP2, plan.TP3)
	}
}

func TestBuildInvalidSidePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on invalid side")
		}
	}()
	New(Config{}).Build(Input{Side: "HOLD", Entry: 100, ATR: 1})
}

func TestBuildSwingPullback4h(t *testing.T) {
	b := New(Config{})
	low := 95.0
	plan := b.BuildSwingPullback4h(Input{Side: model.SideBuy, Entry: 100, ATR: 2, SwingLow: &low})
	if plan.StopLoss > plan.EntryPrice {
		t.Fatalf("stop must be below entry")
	}
	risk := plan.EntryPrice - plan.StopLoss
	want := plan.EntryPrice + 1.25*risk
	if math.Abs(*plan.TP1-want) > 1e-9 {
		t.Fatalf("tp1 mismatch: got %v want %v", *plan.TP1, want)
	}
}
