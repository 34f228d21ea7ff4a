package indicator

// RSI returns the Relative Strength Index over period: the ratio of
// average gain to average loss across the last period deltas, mapped to
// 0..100. Needs period+1 points for period deltas; ok=false below that.
// All-loss input maps to 0, all-gain to 100.
func RSI(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period+1 {
		return 0, false
	}

	window := tail(prices, period+1)
	gains, losses := 0.0, 0.0
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}
