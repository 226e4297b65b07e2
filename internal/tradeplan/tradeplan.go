// Package tradeplan implements the pure trade-plan builder from
// §4.6: (side, entry, ATR, swing-high/low) -> TradePlan.
package tradeplan

import (
	"fmt"
	"math"

	"github.com/kestrel-labs/perpscreen/internal/model"
)

// Config bundles the TradePlanBuilder's tunables (§6.5 TRADEPLAN_*).
type Config struct {
	ATRMult     float64    // default 2.5
	TPRMults    [3]float64 // default {1.5, 2.5, 4.0}
	SwingR      float64    // default 1.25, swing-pullback 4h long variant
	SwingATRMul float64    // default 2.0, swing-pullback 4h long variant
}

func defaultConfig(cfg Config) Config {
	if cfg.ATRMult == 0 {
		cfg.ATRMult = 2.5
	}
	if cfg.TPRMults == ([3]float64{}) {
		cfg.TPRMults = [3]float64{1.5, 2.5, 4.0}
	}
	if cfg.SwingR == 0 {
		cfg.SwingR = 1.25
	}
	if cfg.SwingATRMul == 0 {
		cfg.SwingATRMul = 2.0
	}
	return cfg
}

// Builder constructs trade plans. Stateless; safe for concurrent use.
type Builder struct {
	cfg Config
}

// New creates a Builder with the given config (zero value fills defaults).
func New(cfg Config) *Builder {
	return &Builder{cfg: defaultConfig(cfg)}
}

// Input bundles a fresh signal's context for plan construction.
type Input struct {
	Exchange  string
	Symbol    string
	Side      model.Side
	EntryTime int64
	Entry     float64
	ATR       float64 // must be > 0; caller skips plan construction otherwise
	SwingHigh *float64
	SwingLow  *float64
}

// Build constructs the standard BUY/SELL plan with an ATR guardrail stop,
// the more conservative of (swing, ATR) stop, and three R-multiple take
// profits (§4.6 steps 1-4). Panics if side is neither BUY nor SELL — an
// invariant violation per §7, never a reachable runtime condition.
func (b *Builder) Build(in Input) *model.TradePlan {
	switch in.Side {
	case model.SideBuy, model.SideSell:
	default:
		panic(fmt.Sprintf("tradeplan: invalid side %q", in.Side))
	}

	sign := 1.0
	if in.Side == model.SideSell {
		sign = -1.0
	}

	atrStop := in.Entry - sign*b.cfg.ATRMult*in.ATR
	hasATRStop := in.ATR > 0

	var stop float64
	var stopSet bool
	var swingRef float64

	if in.Side == model.SideBuy {
		if in.SwingLow != nil && hasATRStop {
			stop = math.Min(*in.SwingLow, atrStop)
			swingRef = *in.SwingLow
			stopSet = true
		} else if in.SwingLow != nil {
			stop = *in.SwingLow
			swingRef = *in.SwingLow
			stopSet = true
		} else if hasATRStop {
			stop = atrStop
			stopSet = true
		}
	} else {
		if in.SwingHigh != nil && hasATRStop {
			stop = math.Max(*in.SwingHigh, atrStop)
			swingRef = *in.SwingHigh
			stopSet = true
		} else if in.SwingHigh != nil {
			stop = *in.SwingHigh
			swingRef = *in.SwingHigh
			stopSet = true
		} else if hasATRStop {
			stop = atrStop
			stopSet = true
		}
	}

	if !stopSet {
		// No candidate exists at all: fall back to entry (§4.6 step 2).
		stop = in.Entry
	}

	risk := math.Abs(in.Entry - stop)

	plan := &model.TradePlan{
		EventTsMs:   in.EntryTime,
		Exchange:    in.Exchange,
		Symbol:      in.Symbol,
		Side:        in.Side,
		EntryType:   model.EntryTypeMarket,
		EntryPrice:  in.Entry,
		StopLoss:    stop,
		ATR:         in.ATR,
		ATRMult:     b.cfg.ATRMult,
		SwingRef:    swingRef,
		RiskPerUnit: risk,
	}

	if risk == 0 {
		return plan
	}

	tps := make([]float64, 3)
	for i, r := range b.cfg.TPRMults {
		tps[i] = in.Entry + sign*r*risk
	}
	plan.TP1, plan.TP2, plan.TP3 = &tps[0], &tps[1], &tps[2]
	plan.RRTP1, plan.RRTP2, plan.RRTP3 = b.cfg.TPRMults[0], b.cfg.TPRMults[1], b.cfg.TPRMults[2]
	return plan
}

// BuildSwingPullback4h builds the simpler single-TP swing-pullback 4h long
// variant (§4.6): R=1.25, ATR_MULT=2.0, using the 4h swing low as the stop
// candidate alongside the ATR guardrail.
func (b *Builder) BuildSwingPullback4h(in Input) *model.TradePlan {
	if in.Side != model.SideBuy {
		panic("tradeplan: swing-pullback 4h variant is long-only")
	}

	atrStop := in.Entry - b.cfg.SwingATRMul*in.ATR
	stop := atrStop
	var swingRef float64
	if in.SwingLow != nil {
		stop = math.Min(*in.SwingLow, atrStop)
		swingRef = *in.SwingLow
	}

	risk := math.Abs(in.Entry - stop)
	plan := &model.TradePlan{
		EventTsMs:   in.EntryTime,
		Exchange:    in.Exchange,
		Symbol:      in.Symbol,
		Side:        model.SideBuy,
		EntryType:   model.EntryTypeMarket,
		EntryPrice:  in.Entry,
		StopLoss:    stop,
		ATR:         in.ATR,
		ATRMult:     b.cfg.SwingATRMul,
		SwingRef:    swingRef,
		RiskPerUnit: risk,
	}
	if risk == 0 {
		return plan
	}
	tp := in.Entry + b.cfg.SwingR*risk
	plan.TP1, plan.TP2, plan.TP3 = &tp, &tp, &tp
	plan.RRTP1, plan.RRTP2, plan.RRTP3 = b.cfg.SwingR, b.cfg.SwingR, b.cfg.SwingR
	return plan
}
