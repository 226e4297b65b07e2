package indicator

// Change returns the percent change between the current close and the
// close n bars back: (close - close[-n]) / close[-n] * 100.
func Change(closes []float64, n int) *float64 {
	if len(closes) < n+1 || n <= 0 {
		return nil
	}
	last := closes[len(closes)-1]
	prior := closes[len(closes)-1-n]
	if prior == 0 {
		return nil
	}
	return ptr((last - prior) / prior * 100)
}

// ZScoreAbsReturn returns the z-score of the most recent bar's absolute
// percent return against the distribution of absolute returns over the
// preceding lookback bars.
func ZScoreAbsReturn(closes []float64, lookback int) *float64 {
	if len(closes) < lookback+2 {
		return nil
	}
	absReturns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		r := (closes[i] - closes[i-1]) / closes[i-1]
		if r < 0 {
			r = -r
		}
		absReturns = append(absReturns, r)
	}
	if len(absReturns) < lookback+1 {
		return nil
	}
	window := absReturns[len(absReturns)-1-lookback : len(absReturns)-1]
	current := absReturns[len(absReturns)-1]
	sd := stddev(window)
	if sd == 0 {
		return nil
	}
	return ptr((current - mean(window)) / sd)
}

// RVOL returns relative volume: the current bar's volume divided by the
// mean volume of the preceding lookback bars.
func RVOL(volumes []float64, lookback int) *float64 {
	if len(volumes) < lookback+1 {
		return nil
	}
	window := volumes[len(volumes)-1-lookback : len(volumes)-1]
	avg := mean(window)
	if avg == 0 {
		return nil
	}
	return ptr(volumes[len(volumes)-1] / avg)
}

// Breakout reports whether the current close exceeds the highest high of
// the preceding period bars (excluding the current bar).
func Breakout(highs, closes []float64, period int) bool {
	if len(highs) < period+1 {
		return false
	}
	window := highs[len(highs)-1-period : len(highs)-1]
	maxH := window[0]
	for _, h := range window {
		if h > maxH {
			maxH = h
		}
	}
	return closes[len(closes)-1] > maxH
}

// Breakdown reports whether the current close is below the lowest low of
// the preceding period bars (excluding the current bar).
func Breakdown(lows, closes []float64, period int) bool {
	if len(lows) < period+1 {
		return false
	}
	window := lows[len(lows)-1-period : len(lows)-1]
	minL := window[0]
	for _, l := range window {
		if l < minL {
			minL = l
		}
	}
	return closes[len(closes)-1] < minL
}

// BreakoutPct is the signed breakout magnitude: close/max(high[-period-1:-1]) - 1.
func BreakoutPct(highs, closes []float64, period int) *float64 {
	if len(highs) < period+1 {
		return nil
	}
	window := highs[len(highs)-1-period : len(highs)-1]
	maxH := window[0]
	for _, h := range window {
		if h > maxH {
			maxH = h
		}
	}
	if maxH == 0 {
		return nil
	}
	return ptr(closes[len(closes)-1]/maxH - 1)
}

// BreakdownPct is the mirrored breakdown magnitude: close/min(low[-period-1:-1]) - 1.
func BreakdownPct(lows, closes []float64, period int) *float64 {
	if len(lows) < period+1 {
		return nil
	}
	window := lows[len(lows)-1-period : len(lows)-1]
	minL := window[0]
	for _, l := range window {
		if l < minL {
			minL = l
		}
	}
	if minL == 0 {
		return nil
	}
	return ptr(closes[len(closes)-1]/minL - 1)
}

// VWAP computes a rolling volume-weighted average price over the last
// period bars using the typical price (h+l+c)/3.
func VWAP(highs, lows, closes, volumes []float64, period int) *float64 {
	n := len(closes)
	if n < period {
		return nil
	}
	start := n - period
	var pv, v float64
	for i := start; i < n; i++ {
		tp := (highs[i] + lows[i] + closes[i]) / 3
		pv += tp * volumes[i]
		v += volumes[i]
	}
	if v == 0 {
		return nil
	}
	return ptr(pv / v)
}

// MomentumPeriods is the set of ROC lookbacks combined into MomentumScore.
var MomentumPeriods = []int{1, 3, 5, 10, 15}

// momentumWeights assigns more weight to the shorter, more reactive
// lookbacks while still incorporating the medium-term trend.
var momentumWeights = map[int]float64{1: 0.35, 3: 0.25, 5: 0.2, 10: 0.12, 15: 0.08}

// MomentumScore blends the percent ROC across MomentumPeriods into a
// single weighted score, clamped to [-100, 100].
func MomentumScore(closes []float64) *float64 {
	var weighted, totalWeight float64
	var any bool
	for _, p := range MomentumPeriods {
		c := Change(closes, p)
		if c == nil {
			continue
		}
		w := momentumWeights[p]
		weighted += *c * w
		totalWeight += w
		any = true
	}
	if !any || totalWeight == 0 {
		return nil
	}
	return ptr(clamp(weighted/totalWeight, -100, 100))
}

// ImpulseScore blends normalized move magnitude, return z-score, relative
// volume and momentum into a single directional score: 0.45*mag + 0.25*z +
// 0.20*rvol + 0.10*mom, signed by the direction of the most recent move.
func ImpulseScore(changePct, zScore, rvol, momentum float64) float64 {
	mag := clamp(changePct/2, -1, 1) // changePct in [-2,2] -> [-1,1], saturating beyond
	z := clamp(zScore/3, -1, 1)
	rv := clamp((rvol-1)/2, -1, 1)
	mom := clamp(momentum/100, -1, 1)

	dir := float64(sign(changePct))
	if dir == 0 {
		dir = 1
	}
	raw := 0.45*mag + 0.25*z + 0.20*rv + 0.10*mom
	return clamp(raw*dir*100, -100, 100) / 100 * 100 // keep in [-100,100]
}

// SignalScoreInputs bundles the four components of the composite signal
// score: momentum, 5-bar open-interest change, relative volume, and 15m
// breakout distance.
type SignalScoreInputs struct {
	MomentumScore float64
	OIChange5m    float64 // percent change in open interest over 5 samples
	RVOL          float64
	Breakout15    float64 // percent distance through the 15-bar breakout band
}

// SignalScore combines momentum, OI change, RVOL and breakout into the
// composite score (0.4/0.25/0.2/0.15 weighting), each component normalized
// to [-1,1] the same way ImpulseScore normalizes its inputs, with
// OI-momentum alignment logic boosting the score when open interest moves
// with the price direction and discounting it when open interest diverges
// from price.
func SignalScore(in SignalScoreInputs) float64 {
	mom := clamp(in.MomentumScore/100, -1, 1)
	oi := clamp(in.OIChange5m/2, -1, 1)
	rv := clamp((in.RVOL-1)/2, -1, 1)
	brk := clamp(in.Breakout15/2, -1, 1)

	base := (0.4*mom + 0.25*oi + 0.2*rv + 0.15*brk) * 100

	priceDir := sign(in.MomentumScore)
	oiDir := sign(in.OIChange5m)
	if priceDir != 0 && oiDir != 0 {
		if priceDir == oiDir {
			base *= 1.1
		} else {
			base *= 0.85
		}
	}
	return clamp(base, -100, 100)
}

// VolatilityPercentile returns the percentage (0-100) of the preceding ATR
// history (at most the last 30 values) strictly below the current ATR
// reading, a cheap empirical percentile rank without sorting the whole
// history.
func VolatilityPercentile(atrHistory []float64, current float64) *float64 {
	if len(atrHistory) == 0 {
		return nil
	}
	lookback := 30
	if len(atrHistory) < lookback {
		lookback = len(atrHistory)
	}
	window := atrHistory[len(atrHistory)-lookback:]
	var below int
	for _, v := range window {
		if v < current {
			below++
		}
	}
	return ptr(float64(below) / float64(len(window)) * 100)
}
