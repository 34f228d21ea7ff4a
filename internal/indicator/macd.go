package indicator

// MACDResult holds the MACD line, its signal line, and the histogram.
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// MACD computes EMA(fast) − EMA(slow) as the MACD line, the EMA(signal)
// of that line as the signal line, and histogram = line − signal.
// Needs at least slow+signal-1 points so the signal line has a full
// window of MACD values; ok=false below that.
func MACD(prices []float64, fast, slow, signal int) (MACDResult, bool) {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return MACDResult{}, false
	}
	if len(prices) < slow+signal-1 {
		return MACDResult{}, false
	}

	fastSeries := emaSeries(prices, fast)
	slowSeries := emaSeries(prices, slow)

	// Align the two series on their common (most recent) suffix.
	n := len(slowSeries)
	fastSeries = fastSeries[len(fastSeries)-n:]

	macdLine := make([]float64, n)
	for i := 0; i < n; i++ {
		macdLine[i] = fastSeries[i] - slowSeries[i]
	}

	signalSeries := emaSeries(macdLine, signal)
	if len(signalSeries) == 0 {
		return MACDResult{}, false
	}

	line := macdLine[n-1]
	sig := signalSeries[len(signalSeries)-1]
	return MACDResult{
		Line:      line,
		Signal:    sig,
		Histogram: line - sig,
	}, true
}
