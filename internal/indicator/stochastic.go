package indicator

// StochasticResult holds the %K and %D lines of the stochastic oscillator.
type StochasticResult struct {
	K float64
	D float64
}

// Stochastic computes %K = (close − lowestLow)/(highestHigh − lowestLow)×100
// over the last period prices, and %D as the SMA of the last signalPeriod
// %K values. A flat window (high == low) yields a neutral %K of 50.
// Needs period+signalPeriod-1 points so %D has a full window; ok=false
// below that.
func Stochastic(prices []float64, period, signalPeriod int) (StochasticResult, bool) {
	if period <= 0 || signalPeriod <= 0 {
		return StochasticResult{}, false
	}
	if len(prices) < period+signalPeriod-1 {
		return StochasticResult{}, false
	}

	kValues := make([]float64, signalPeriod)
	for i := 0; i < signalPeriod; i++ {
		// Window ending i points back from the most recent price.
		end := len(prices) - (signalPeriod - 1 - i)
		kValues[i] = percentK(prices[end-period : end])
	}

	d, _ := Mean(kValues)
	return StochasticResult{K: kValues[signalPeriod-1], D: d}, true
}

// percentK computes %K for a full window using closes as high/low proxies.
func percentK(window []float64) float64 {
	low, high := window[0], window[0]
	for _, p := range window {
		if p < low {
			low = p
		}
		if p > high {
			high = p
		}
	}
	if high == low {
		return 50
	}
	close := window[len(window)-1]
	return (close - low) / (high - low) * 100
}
