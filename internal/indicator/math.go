// Package indicator implements the nullable-float indicator bank described
// in §4.1. Every function is pure: it takes the relevant
// oldest-to-newest slices from a SymbolState's rolling series and returns a
// nullable result (nil pointer, never a zero-as-sentinel) when the window
// is under-provisioned. Recomputing from the full window on every call
// mirrors the source screener's behavior and keeps these functions trivially
// testable; SymbolState's TTL memoization (§4.1 "Caching") is what keeps the
// repeated recomputation off the hot path.
package indicator

import "math"

// mean returns the arithmetic mean of vs. Returns NaN on an empty slice —
// callers must check length first.
func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// stddev returns the population standard deviation of vs.
func stddev(vs []float64) float64 {
	m := mean(vs)
	var sumSq float64
	for _, v := range vs {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(vs)))
}

// sma returns the simple moving average of the last `period` values of vs,
// or (0, false) if vs has fewer than period elements.
func sma(vs []float64, period int) (float64, bool) {
	if len(vs) < period {
		return 0, false
	}
	return mean(vs[len(vs)-period:]), true
}

// emaSeries computes an exponential moving average series the same length
// as values, using the adjust=false recurrence (seed = values[0]): this is
// the style the source indicator library uses so that a series of any
// length produces a full (if early-biased) EMA trail rather than requiring
// `period` warm-up points before any value exists. Callers gate readiness
// on their own minimum-window requirement, not on this function's output
// length.
func emaSeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// ema returns the final value of an EMA(period) series over values, or
// (0, false) if values is empty.
func ema(values []float64, period int) (float64, bool) {
	s := emaSeries(values, period)
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// wilderSmooth applies Wilder's smoothing (equivalent to an EMA with
// alpha = 1/period) to values, returning the full series.
func wilderSmooth(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 1.0 / float64(period)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// sign returns -1, 0 or 1.
func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ptr is a tiny helper for building *float64 results inline.
func ptr(v float64) *float64 { return &v }
