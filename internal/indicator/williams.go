package indicator

// WilliamsRTrendExhaustion holds the dual-period (21/112) EMA-smoothed
// Williams %R trend-exhaustion outputs (§4.1).
type WilliamsRTrendExhaustion struct {
	Fast           float64
	Slow           float64
	Overbought     bool // both >= -20
	Oversold       bool // both <= -80
	TrendStartBull bool // entry edge into oversold
	TrendStartBear bool // entry edge into overbought
	ReversalBull   bool // exit edge out of oversold
	ReversalBear   bool // exit edge out of overbought
	CrossBull      bool // slow crosses below fast
	CrossBear      bool // slow crosses above fast
}

const (
	williamsRFastPeriod = 21
	williamsRSlowPeriod = 112
	williamsRFastSmooth = 7
	williamsRSlowSmooth = 3
	williamsRMinBars    = williamsRSlowPeriod + williamsRSlowSmooth + 2
)

// rawWilliamsRSeries computes %R(period) aligned to closes[period-1:]:
// 100*(c-maxHigh)/(maxHigh-minLow), bounded in [-100, 0].
func rawWilliamsRSeries(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	if n < period {
		return nil
	}
	out := make([]float64, 0, n-period+1)
	for i := period - 1; i < n; i++ {
		hiWin := highs[i-period+1 : i+1]
		loWin := lows[i-period+1 : i+1]
		maxH, minL := hiWin[0], loWin[0]
		for j := range hiWin {
			if hiWin[j] > maxH {
				maxH = hiWin[j]
			}
			if loWin[j] < minL {
				minL = loWin[j]
			}
		}
		if maxH == minL {
			out = append(out, 0)
			continue
		}
		out = append(out, 100*(closes[i]-maxH)/(maxH-minL))
	}
	return out
}

// WilliamsRTrendExhaustionCalc computes the dual-period trend-exhaustion
// state. Requires enough bars to smooth the slow (112) leg and still have
// a previous bar to detect edges.
func WilliamsRTrendExhaustionCalc(highs, lows, closes []float64) *WilliamsRTrendExhaustion {
	if len(closes) < williamsRMinBars {
		return nil
	}

	fastRaw := rawWilliamsRSeries(highs, lows, closes, williamsRFastPeriod)
	slowRaw := rawWilliamsRSeries(highs, lows, closes, williamsRSlowPeriod)

	fast := emaSeries(fastRaw, williamsRFastSmooth)
	slow := emaSeries(slowRaw, williamsRSlowSmooth)

	// Align on the shorter (slow) series: the fast series is longer since
	// it needs fewer warm-up bars, so index from the tail on both.
	fn, sn := len(fast), len(slow)
	if fn < 2 || sn < 2 {
		return nil
	}
	curFast, prevFast := fast[fn-1], fast[fn-2]
	curSlow, prevSlow := slow[sn-1], slow[sn-2]

	ob := curFast >= -20 && curSlow >= -20
	os := curFast <= -80 && curSlow <= -80
	prevOB := prevFast >= -20 && prevSlow >= -20
	prevOS := prevFast <= -80 && prevSlow <= -80

	return &WilliamsRTrendExhaustion{
		Fast:           curFast,
		Slow:           curSlow,
		Overbought:     ob,
		Oversold:       os,
		TrendStartBull: os && !prevOS,
		TrendStartBear: ob && !prevOB,
		ReversalBull:   !os && prevOS,
		ReversalBear:   !ob && prevOB,
		CrossBull:      prevSlow >= prevFast && curSlow < curFast,
		CrossBear:      prevSlow <= prevFast && curSlow > curFast,
	}
}
