package indicator

// BollingerResult holds Bollinger(period, numStdDev) band outputs.
type BollingerResult struct {
	Upper    float64
	Middle   float64
	Lower    float64
	Width    float64
	Position float64
}

// Bollinger computes Bollinger(20, 2): middle=SMA(period), bands at
// +-numStdDev sigma, width=(upper-lower)/middle, position=(close-lower)/
// (upper-lower).
func Bollinger(closes []float64, period int, numStdDev float64) *BollingerResult {
	if len(closes) < period {
		return nil
	}
	window := closes[len(closes)-period:]
	middle := mean(window)
	sd := stddev(window)
	upper := middle + numStdDev*sd
	lower := middle - numStdDev*sd

	var width, position float64
	if middle != 0 {
		width = (upper - lower) / middle
	}
	if upper != lower {
		position = (closes[len(closes)-1] - lower) / (upper - lower)
	}

	return &BollingerResult{Upper: upper, Middle: middle, Lower: lower, Width: width, Position: position}
}
