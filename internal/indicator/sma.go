package indicator

// SMA returns the simple moving average of the last window prices.
// ok=false when fewer than window points exist.
func SMA(prices []float64, window int) (float64, bool) {
	if window <= 0 || len(prices) < window {
		return 0, false
	}
	return Mean(tail(prices, window))
}

// EMA returns the exponential moving average with the standard smoothing
// factor 2/(window+1), seeded by the SMA of the first window prices.
// ok=false when fewer than window points exist.
func EMA(prices []float64, window int) (float64, bool) {
	if window <= 0 || len(prices) < window {
		return 0, false
	}
	seed, _ := Mean(prices[:window])
	k := 2.0 / float64(window+1)
	ema := seed
	for _, p := range prices[window:] {
		ema = (p-ema)*k + ema
	}
	return ema, true
}

// emaSeries returns the EMA computed at every index from window-1 onward.
// Used by MACD, which needs the full line rather than its final value.
func emaSeries(prices []float64, window int) []float64 {
	if window <= 0 || len(prices) < window {
		return nil
	}
	out := make([]float64, 0, len(prices)-window+1)
	seed, _ := Mean(prices[:window])
	k := 2.0 / float64(window+1)
	ema := seed
	out = append(out, ema)
	for _, p := range prices[window:] {
		ema = (p-ema)*k + ema
		out = append(out, ema)
	}
	return out
}
