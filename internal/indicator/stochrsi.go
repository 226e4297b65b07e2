package indicator

// StochRSIResult holds the smoothed %K/%D pair.
type StochRSIResult struct {
	K float64
	D float64
}

// StochRSI computes Stoch-RSI(rsiPeriod, stochPeriod, kSmooth, dSmooth):
// a stochastic oscillator applied to the RSI series itself, K smoothed by
// a simple moving average, D = SMA(K, dSmooth).
func StochRSI(closes []float64, rsiPeriod, stochPeriod, kSmooth, dSmooth int) *StochRSIResult {
	rsi := rsiSeries(closes, rsiPeriod)
	if len(rsi) < stochPeriod+kSmooth+dSmooth {
		return nil
	}

	rawK := make([]float64, 0, len(rsi)-stochPeriod+1)
	for i := stochPeriod - 1; i < len(rsi); i++ {
		window := rsi[i-stochPeriod+1 : i+1]
		lo, hi := window[0], window[0]
		for _, v := range window {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi == lo {
			rawK = append(rawK, 0)
			continue
		}
		rawK = append(rawK, 100*(rsi[i]-lo)/(hi-lo))
	}
	if len(rawK) < kSmooth+dSmooth {
		return nil
	}

	smoothedK := smaSeries(rawK, kSmooth)
	if len(smoothedK) < dSmooth {
		return nil
	}
	smoothedD := smaSeries(smoothedK, dSmooth)

	return &StochRSIResult{
		K: smoothedK[len(smoothedK)-1],
		D: smoothedD[len(smoothedD)-1],
	}
}

// smaSeries returns the rolling simple-moving-average series of values with
// the given window, aligned to values[window-1:].
func smaSeries(values []float64, window int) []float64 {
	if len(values) < window {
		return nil
	}
	out := make([]float64, 0, len(values)-window+1)
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out = append(out, sum/float64(window))
		}
	}
	return out
}
