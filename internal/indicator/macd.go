package indicator

// MACDResult holds the MACD(fast,slow,signal) triple.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes MACD(12,26,9): EMA(fast) - EMA(slow), its EMA(signal)
// smoothing, and the histogram. Requires at least slow+signal closes so the
// signal line itself has settled past its own warm-up region.
func MACD(closes []float64, fast, slow, signalPeriod int) *MACDResult {
	if len(closes) < slow+signalPeriod {
		return nil
	}
	fastEMA := emaSeries(closes, fast)
	slowEMA := emaSeries(closes, slow)

	diff := make([]float64, len(closes))
	for i := range closes {
		diff[i] = fastEMA[i] - slowEMA[i]
	}
	signalSeries := emaSeries(diff, signalPeriod)

	macd := diff[len(diff)-1]
	sig := signalSeries[len(signalSeries)-1]
	return &MACDResult{MACD: macd, Signal: sig, Histogram: macd - sig}
}
