// Package grader implements the pure signal-grading function described in
// §4.5: (metrics, side) -> (score, grade, reasons). It consults
// a read-only, atomically-swapped per-symbol win-rate cache that the
// backtester refreshes out of band (§5 "Shared resource policy").
package grader

import (
	"sync"
	"sync/atomic"

	"github.com/kestrel-labs/perpscreen/internal/model"
)

// WinRateEntry is one row of the per-symbol win-rate table the Backtester
// installs (§4.7 step 6): minimum 5 resolved trades before it is published.
type WinRateEntry struct {
	Symbol  string
	Trades  int
	WinRate float64 // realistic (R >= 1.0) win rate, in [0,1]
}

// WinRateCache is the Grader's read-only, whole-map-swap cache of historical
// per-symbol performance (§5 "Shared resource policy"). Zero value is ready
// to use (empty cache — Lookup always misses).
type WinRateCache struct {
	table atomic.Pointer[map[string]WinRateEntry]
}

// NewWinRateCache creates an empty cache.
func NewWinRateCache() *WinRateCache {
	c := &WinRateCache{}
	empty := map[string]WinRateEntry{}
	c.table.Store(&empty)
	return c
}

// Publish atomically swaps in a new win-rate table. Called only by the
// Backtester (§4.7 step 6); never mutated in place.
func (c *WinRateCache) Publish(entries map[string]WinRateEntry) {
	cp := make(map[string]WinRateEntry, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	c.table.Store(&cp)
}

// Lookup returns the cached win-rate entry for symbol, if any.
func (c *WinRateCache) Lookup(symbol string) (WinRateEntry, bool) {
	tbl := c.table.Load()
	if tbl == nil {
		return WinRateEntry{}, false
	}
	e, ok := (*tbl)[symbol]
	return e, ok
}

// Config bundles the Grader's configurable thresholds. Zero-valued fields
// fall back to the defaults set by defaultConfig below (the Grader package
// does not import config directly, to keep it trivially unit-testable with
// literal values).
type Config struct {
	// WinRateLowPct / WinRateHighPct gate the historical win-rate
	// component (§4.5): <35% -> -2, >55% -> +1.
	WinRateLowPct  float64
	WinRateHighPct float64
}

func defaultConfig(cfg Config) Config {
	if cfg.WinRateLowPct == 0 {
		cfg.WinRateLowPct = 35
	}
	if cfg.WinRateHighPct == 0 {
		cfg.WinRateHighPct = 55
	}
	return cfg
}

// Grader is a stateless grading function bound to a win-rate cache.
type Grader struct {
	cfg   Config
	cache *WinRateCache
	mu    sync.Mutex // guards nothing mutable today; reserved for future config hot-reload
}

// New creates a Grader reading from cache (never nil — pass NewWinRateCache()).
func New(cfg Config, cache *WinRateCache) *Grader {
	if cache == nil {
		cache = NewWinRateCache()
	}
	return &Grader{cfg: defaultConfig(cfg), cache: cache}
}

// Result is the Grader's pure output (§4.5).
type Result struct {
	Score        float64
	Grade        model.Grade
	AvoidReasons []string
}

// Grade grades a fresh signal of the given side against the current metrics
// snapshot. Pure: it reads only m, side and the published win-rate cache.
func (g *Grader) Grade(m *model.Metrics, side model.Side) Result {
	sign := 1.0
	if side == model.SideSell {
		sign = -1.0
	}

	var score float64
	var reasons []string
	addNeg := func(reason string) { reasons = append(reasons, reason) }

	// base: signal fired
	score += 2

	// OI change direction alignment (§4.1 signal_score "OI-momentum
	// alignment logic"): OI rising with the side's direction confirms the
	// move, OI falling against it is a warning sign, and a flat/missing
	// reading is neutral.
	if m.OIChange5m != nil {
		oiAligned := *m.OIChange5m * sign
		switch {
		case oiAligned > 0:
			score += 2
		case oiAligned == 0:
			score += 1
		default:
			score -= 2
			addNeg("oi_momentum_misaligned")
		}
	} else if m.ImpulseScore != nil {
		score += 1
	}

	// RVOL
	if m.RVOL != nil {
		switch {
		case *m.RVOL >= 2:
			score += 2
		case *m.RVOL >= 1.5:
			score += 1
		case *m.RVOL < 0.5:
			score -= 2
			addNeg("rvol_very_low")
		case *m.RVOL < 0.8:
			score -= 1
			addNeg("rvol_low")
		}
	}

	// momentum alignment
	if m.MomentumScore != nil {
		aligned := *m.MomentumScore * sign
		switch {
		case aligned >= 20:
			score += 1.5
		case aligned >= 5:
			score += 0.5
		case aligned <= -20:
			score -= 1.5
			addNeg("momentum_against_side")
		case aligned <= -5:
			score -= 0.5
			addNeg("momentum_weak")
		}
	}

	// volume magnitude (RVOL reused as the volume-magnitude proxy, per the
	// same signal carrying both the RVOL bucket and the coarser magnitude
	// check in the source grader)
	if m.RVOL != nil {
		switch {
		case *m.RVOL >= 1.2:
			score += 0.5
		case *m.RVOL < 0.6:
			score -= 1
			addNeg("volume_weak")
		}
	}

	// 15m RSI extremes
	if rsi, ok := m.RSI["15m"]; ok && rsi != nil {
		if side == model.SideBuy && *rsi <= 30 {
			score += 1.5
		} else if side == model.SideSell && *rsi >= 70 {
			score += 1.5
		} else if side == model.SideBuy && *rsi >= 70 {
			score -= 1.5
			addNeg("rsi_15m_overbought")
		} else if side == model.SideSell && *rsi <= 30 {
			score -= 1.5
			addNeg("rsi_15m_oversold")
		}
	}

	// funding-rate sentiment (crowded-long/short tax, §SUPPLEMENTED FEATURES)
	if m.FundingRate != nil {
		fundingAligned := *m.FundingRate * sign
		if fundingAligned > 0 {
			score -= 1
			addNeg("funding_crowded")
		} else if fundingAligned < 0 {
			score += 1
		}
	}

	// volatility percentile bucket
	if m.VolatilityPercentile != nil {
		if *m.VolatilityPercentile <= 20 {
			score += 0.5
		}
		if *m.VolatilityPercentile >= 95 {
			addNeg("volatility_extreme")
		}
	}

	// Bollinger position near bands (15m)
	if bb, ok := m.Bollinger["15m"]; ok && bb.Position != nil {
		pos := *bb.Position
		if side == model.SideBuy && pos <= 0.1 {
			score += 1.5
		} else if side == model.SideSell && pos >= 0.9 {
			score += 1.5
		} else if side == model.SideBuy && pos >= 0.95 {
			score -= 1.5
			addNeg("price_at_upper_band")
		} else if side == model.SideSell && pos <= 0.05 {
			score -= 1.5
			addNeg("price_at_lower_band")
		}
	}

	// ATR-%-of-price risk filter
	if m.ATR1m != nil && m.LastPrice != nil && *m.LastPrice != 0 {
		atrPct := *m.ATR1m / *m.LastPrice * 100
		if atrPct >= 5 {
			score -= 1
			addNeg("atr_pct_risk_high")
		}
	}

	// VWAP distance
	if m.VWAP15 != nil && m.LastPrice != nil && *m.VWAP15 != 0 {
		dist := (*m.LastPrice - *m.VWAP15) / *m.VWAP15
		if side == model.SideBuy && dist < 0 {
			score += 0.5
		} else if side == model.SideSell && dist > 0 {
			score += 0.5
		}
	}

	// MTF confluence: 1h+4h RSI not extreme and MACD histogram aligned,
	// >=3/4 checks passing adds +2. The metrics snapshot only carries 15m
	// and 4h RSI/MACD (§3), so the four checks are: 15m RSI not extreme,
	// 4h RSI not extreme, 15m MACD histogram aligned, 4h MACD histogram
	// aligned.
	checks := 0
	total := 0
	for _, tf := range []string{"15m", "4h"} {
		if rsi, ok := m.RSI[tf]; ok && rsi != nil {
			total++
			if *rsi > 25 && *rsi < 75 {
				checks++
			}
		}
		if macd, ok := m.MACD[tf]; ok && macd.Histogram != nil {
			total++
			if *macd.Histogram*sign > 0 {
				checks++
			}
		}
	}
	mtfConfluence := total > 0 && checks*4 >= total*3
	if mtfConfluence {
		score += 2
	}

	// historical per-symbol win-rate
	if wr, ok := g.cache.Lookup(m.Symbol); ok {
		pct := wr.WinRate * 100
		if pct < g.cfg.WinRateLowPct {
			score -= 2
			addNeg("historical_win_rate_low")
		} else if pct > g.cfg.WinRateHighPct {
			score += 1
		}
	}

	// MTF bull/bear vote counts, aligned with side
	voteAligned := (side == model.SideBuy && m.MTFBullCount > m.MTFBearCount) ||
		(side == model.SideSell && m.MTFBearCount > m.MTFBullCount)
	if voteAligned {
		score += 0.5
	}

	grade := model.GradeC
	mtfAligned := m.MTFAligned && mtfConfluence
	switch {
	case score >= 6 && mtfAligned:
		grade = model.GradeA
	case score >= 3:
		grade = model.GradeB
	}

	// Vol-Due whitelist: the grader may surface a Vol-Due signal even when
	// setup_grade would otherwise be absent (§4.2). We do not upgrade the
	// grade here (the caller decides whether to alert on a Vol-Due-only
	// signal); we only ensure it is never filtered as reasonless.
	for tf, sq := range m.Squeeze {
		if sq.VolDue {
			reasons = append(reasons, "vol_due_"+tf)
		}
	}

	return Result{Score: score, Grade: grade, AvoidReasons: reasons}
}
