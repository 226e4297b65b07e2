package aggregator

import (
	"encoding/json"
	"math"

	"github.com/kestrel-labs/perpscreen/internal/grader"
	"github.com/kestrel-labs/perpscreen/internal/model"
	"github.com/kestrel-labs/perpscreen/internal/tradeplan"
)

// freshSignal names one detectable entry trigger and the plan-builder
// strategy it pairs with (§4.3 step 3, §4.2).
type freshSignal struct {
	name  string
	side  model.Side
	swing bool // true -> use BuildSwingPullback4h instead of Build
}

// detectFreshSignals inspects one symbol's snapshot for rising-edge entry
// triggers: Cipher B buy/sell cross (on whichever HTF first crossed),
// Williams %R trend-exhaustion reversal, and the swing-pullback long setup.
func detectFreshSignals(m *model.Metrics) []freshSignal {
	var out []freshSignal

	if wt, ok := m.WaveTrend[m.CipherSourceTF]; ok {
		switch {
		case wt.CipherBuy:
			out = append(out, freshSignal{name: "cipher_buy", side: model.SideBuy})
		case wt.CipherSell:
			out = append(out, freshSignal{name: "cipher_sell", side: model.SideSell})
		}
	}

	for tf, wr := range m.WilliamsR {
		if wr.ReversalBull {
			out = append(out, freshSignal{name: "williams_reversal_bull_" + tf, side: model.SideBuy})
		}
		if wr.ReversalBear {
			out = append(out, freshSignal{name: "williams_reversal_bear_" + tf, side: model.SideSell})
		}
	}

	if m.SwingLong {
		out = append(out, freshSignal{name: "swing_pullback_long", side: model.SideBuy, swing: true})
	}

	return out
}

// gradeAndPlanFreshSignals implements §4.3 step 3: detect fresh signals,
// grade each against the current snapshot, build the paired trade plan,
// persist (alert, plan), and stamp the winning grade/score/avoid-reasons
// back onto the metrics snapshot so subscribers see it without a second
// round trip. A signal fires on its rising edge only: a.lastSignalFired
// tracks, per symbol, which condition names are currently active, so a
// condition that goes false and later becomes true again fires as a new
// alert rather than being suppressed for the rest of the process lifetime.
func (a *Aggregator) gradeAndPlanFreshSignals(metrics []*model.Metrics, nowMs int64) {
	if a.grader == nil || a.planBuilder == nil {
		return
	}

	for _, m := range metrics {
		signals := detectFreshSignals(m)

		active := a.lastSignalFired[m.Symbol]
		if active == nil {
			active = make(map[string]bool)
			a.lastSignalFired[m.Symbol] = active
		}
		stillActive := make(map[string]bool, len(signals))
		for _, sig := range signals {
			stillActive[sig.name] = true
		}
		for name := range active {
			if !stillActive[name] {
				delete(active, name)
			}
		}

		if len(signals) == 0 {
			continue
		}

		var bestSet bool
		var bestScore float64
		m.SignalAgeMs = make(map[string]int64, len(signals))

		for _, sig := range signals {
			if active[sig.name] {
				m.SignalAgeMs[sig.name] = 0
				continue
			}
			active[sig.name] = true
			m.SignalAgeMs[sig.name] = 0

			result := a.grader.Grade(m, sig.side)
			plan := a.buildPlan(m, sig, nowMs)

			a.persistSignal(m, sig, result, plan, nowMs)

			if !bestSet || result.Score > bestScore {
				bestSet = true
				bestScore = result.Score
				m.SetupScore = result.Score
				m.SetupGrade = result.Grade
				m.AvoidReasons = result.AvoidReasons
			}
		}
	}
}

// buildPlan constructs the trade plan paired with sig, or nil if the
// symbol is not yet warm enough (no last price or ATR1m provisioned).
func (a *Aggregator) buildPlan(m *model.Metrics, sig freshSignal, nowMs int64) *model.TradePlan {
	if m.LastPrice == nil || m.ATR1m == nil {
		return nil
	}

	swingHigh, swingLow := a.swingLevels(m.Symbol)

	in := tradeplan.Input{
		Exchange:  a.Exchange,
		Symbol:    m.Symbol,
		Side:      sig.side,
		EntryTime: nowMs,
		Entry:     *m.LastPrice,
		ATR:       *m.ATR1m,
		SwingHigh: swingHigh,
		SwingLow:  swingLow,
	}

	if sig.swing {
		return a.planBuilder.BuildSwingPullback4h(in)
	}
	return a.planBuilder.Build(in)
}

// swingLevels fetches the last TradePlanSwingLookback15M 15m candles and
// returns the swing high/low (§4.6 "swing reference"), nil when the store
// has too little history yet.
func (a *Aggregator) swingLevels(symbol string) (high, low *float64) {
	if a.store == nil {
		return nil, nil
	}
	candles := a.store.GetRecent(a.Exchange, symbol, model.Interval15m, a.cfg.TradePlanSwingLookback15M)
	if len(candles) == 0 {
		return nil, nil
	}
	h, l := math.Inf(-1), math.Inf(1)
	for _, c := range candles {
		if c.High > h {
			h = c.High
		}
		if c.Low < l {
			l = c.Low
		}
	}
	return &h, &l
}

// persistSignal writes the alert row and, if a plan was built, the trade
// plan row (§4.8). Store errors are logged, not returned: a persistence
// failure must never block the emit path.
func (a *Aggregator) persistSignal(m *model.Metrics, sig freshSignal, result grader.Result, plan *model.TradePlan, nowMs int64) {
	if a.store == nil {
		return
	}

	metricsJSON, err := json.Marshal(m)
	if err != nil {
		a.log.Error("marshal metrics for alert failed", "symbol", m.Symbol, "err", err)
		metricsJSON = []byte("{}")
	}

	alert := model.Alert{
		EventTsMs:    nowMs,
		CreatedTsMs:  nowMs,
		Exchange:     a.Exchange,
		Symbol:       m.Symbol,
		Signal:       sig.side,
		SourceTF:     m.CipherSourceTF,
		Price:        derefOr(m.LastPrice, 0),
		Reason:       sig.name,
		SetupScore:   result.Score,
		SetupGrade:   result.Grade,
		AvoidReasons: result.AvoidReasons,
		MetricsJSON:  string(metricsJSON),
	}

	alertID, err := a.store.InsertAlert(alert)
	if err != nil {
		a.log.Error("insert alert failed", "symbol", m.Symbol, "signal", sig.name, "err", err)
		return
	}

	if plan == nil {
		return
	}
	plan.AlertID = alertID
	if err := a.store.InsertTradePlan(*plan); err != nil {
		a.log.Error("insert trade plan failed", "symbol", m.Symbol, "signal", sig.name, "err", err)
	}
}

func derefOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
