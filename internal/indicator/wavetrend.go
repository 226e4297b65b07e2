package indicator

// WaveTrendResult holds the Cipher B / WaveTrend oscillator values and cross
// flags for a single call. Per the resolved "not enough data" arity question
// (SPEC_FULL.md), this is always a consistent 4-value result: when the
// window is under-provisioned, WT1 and WT2 are nil and both cross flags are
// false — never a shorter tuple.
type WaveTrendResult struct {
	WT1       *float64
	WT2       *float64
	CrossUp   bool // bullish cross: prev(wt1-wt2) < 0 && curr(wt1-wt2) >= 0
	CrossDown bool // bearish cross: prev(wt1-wt2) > 0 && curr(wt1-wt2) <= 0
}

const (
	waveTrendChannelLen = 9
	waveTrendAvgLen     = 12
	waveTrendSmoothLen  = 3
	waveTrendMinBars    = 30
)

// WaveTrend computes esa=EMA(hlc3,9); de=EMA(|hlc3-esa|,9);
// ci=(hlc3-esa)/(0.015*de); wt1=EMA(ci,12); wt2=SMA(wt1,3), and detects a
// fresh cross between the last two bars (§4.1, §8 testable property 3).
func WaveTrend(highs, lows, closes []float64) WaveTrendResult {
	n := len(closes)
	if n < waveTrendMinBars {
		return WaveTrendResult{}
	}

	hlc3 := make([]float64, n)
	for i := range closes {
		hlc3[i] = (highs[i] + lows[i] + closes[i]) / 3
	}

	esa := emaSeries(hlc3, waveTrendChannelLen)
	absDiff := make([]float64, n)
	for i := range hlc3 {
		d := hlc3[i] - esa[i]
		if d < 0 {
			d = -d
		}
		absDiff[i] = d
	}
	de := emaSeries(absDiff, waveTrendChannelLen)

	ci := make([]float64, n)
	for i := range hlc3 {
		denom := 0.015 * de[i]
		if denom == 0 {
			ci[i] = 0
			continue
		}
		ci[i] = (hlc3[i] - esa[i]) / denom
	}

	wt1 := emaSeries(ci, waveTrendAvgLen)
	wt2 := smaSeriesPadded(wt1, waveTrendSmoothLen)

	last := n - 1
	prev := n - 2
	currDiff := wt1[last] - wt2[last]
	prevDiff := wt1[prev] - wt2[prev]

	res := WaveTrendResult{WT1: ptr(wt1[last]), WT2: ptr(wt2[last])}
	res.CrossUp = prevDiff < 0 && currDiff >= 0
	res.CrossDown = prevDiff > 0 && currDiff <= 0
	return res
}

// smaSeriesPadded returns a same-length SMA series: the first window-1
// entries are a simple running average of what's available so the WaveTrend
// cross check always has a value to compare at every index (the source
// screener recomputes its full window every bar rather than leaving a
// ragged edge).
func smaSeriesPadded(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		count := window
		if i+1 < window {
			count = i + 1
		}
		out[i] = sum / float64(count)
	}
	return out
}
