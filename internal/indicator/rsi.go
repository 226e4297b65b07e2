package indicator

// rsiSeries computes the Wilder-smoothed RSI(period) series from closes
// (oldest-to-newest). Returns nil if fewer than period+1 closes are given.
// Output is aligned to closes[1:] (one shorter, since RSI needs a delta).
func rsiSeries(closes []float64, period int) []float64 {
	if len(closes) < period+1 {
		return nil
	}
	n := len(closes)
	gains := make([]float64, n-1)
	losses := make([]float64, n-1)
	for i := 1; i < n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}
	avgGain := wilderSmooth(gains, period)
	avgLoss := wilderSmooth(losses, period)

	out := make([]float64, len(gains))
	for i := range out {
		ag, al := avgGain[i], avgLoss[i]
		if al == 0 {
			if ag == 0 {
				out[i] = 50
			} else {
				out[i] = 100
			}
			continue
		}
		rs := ag / al
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// RSI computes the Wilder RSI(14) over closes, or nil if under-provisioned.
func RSI(closes []float64, period int) *float64 {
	s := rsiSeries(closes, period)
	if len(s) == 0 {
		return nil
	}
	return ptr(s[len(s)-1])
}
