package indicator

// MFI computes the Cipher-style Money Flow Index: SMA over the last 60 bars
// of ((close-open)/(high-low)) * 150. Unlike the textbook MFI this variant
// needs no separate volume series — it is a candle-body-vs-range oscillator,
// matching the source screener's indicator library.
func MFI(opens, highs, lows, closes []float64, period int) *float64 {
	n := len(closes)
	if n < period {
		return nil
	}
	start := n - period
	var sum float64
	for i := start; i < n; i++ {
		rng := highs[i] - lows[i]
		if rng == 0 {
			continue
		}
		sum += ((closes[i] - opens[i]) / rng) * 150
	}
	return ptr(sum / float64(period))
}
