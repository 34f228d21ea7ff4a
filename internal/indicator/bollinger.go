package indicator

// BollingerResult holds the three Bollinger band levels.
type BollingerResult struct {
	Upper float64
	Mid   float64
	Lower float64
}

// Bollinger computes SMA(period) ± k standard deviations over the last
// period prices. ok=false when fewer than period points exist.
func Bollinger(prices []float64, period int, k float64) (BollingerResult, bool) {
	if period < 2 || len(prices) < period {
		return BollingerResult{}, false
	}

	window := tail(prices, period)
	mid, _ := Mean(window)
	sd, _ := StdDev(window)

	return BollingerResult{
		Upper: mid + k*sd,
		Mid:   mid,
		Lower: mid - k*sd,
	}, true
}
