// Package indicator provides technical indicator calculations over an
// ordered price slice (oldest first, most recent last).
//
// All functions are pure and stateless. Each returns its value together
// with an ok flag; ok=false means the input window is too short and the
// caller must treat the indicator as having no opinion, never as zero.
package indicator

import "math"

// Mean returns the arithmetic mean of prices. ok=false on empty input.
func Mean(prices []float64) (float64, bool) {
	if len(prices) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, p := range prices {
		sum += p
	}
	return sum / float64(len(prices)), true
}

// StdDev returns the population standard deviation of prices.
// ok=false when fewer than 2 points exist.
func StdDev(prices []float64) (float64, bool) {
	if len(prices) < 2 {
		return 0, false
	}
	mean, _ := Mean(prices)
	variance := 0.0
	for _, p := range prices {
		d := p - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(prices))), true
}

// tail returns the last n elements of prices. Caller guarantees len ≥ n.
func tail(prices []float64, n int) []float64 {
	return prices[len(prices)-n:]
}
