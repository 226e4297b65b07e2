package indicator

import "math"

// trueRanges computes the true range series from highs/lows/closes
// (oldest-to-newest, all equal length, len >= 2). TR_i = max(h_i-l_i,
// |h_i-c_{i-1}|, |l_i-c_{i-1}|) for i in [1, len).
func trueRanges(highs, lows, closes []float64) []float64 {
	n := len(closes)
	if n < 2 {
		return nil
	}
	out := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr := hl
		if hc > tr {
			tr = hc
		}
		if lc > tr {
			tr = lc
		}
		out = append(out, tr)
	}
	return out
}

// ATR computes the 14-period Average True Range: Wilder smoothing over the
// last 14 true ranges (§4.1). Requires >=15 closes (14 true ranges).
func ATR(highs, lows, closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}
	tr := trueRanges(highs, lows, closes)
	if len(tr) < period {
		return nil
	}
	window := tr[len(tr)-period:]
	smoothed := wilderSmooth(window, period)
	return ptr(smoothed[len(smoothed)-1])
}
