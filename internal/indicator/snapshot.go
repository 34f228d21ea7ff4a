package indicator

// Snapshot is the full indicator set computed from the tail of a rolling
// history. It is derived and ephemeral: recomputed on every scoring pass
// and never cached across passes. Each value carries its own OK flag so
// a short history degrades indicator by indicator.
type Snapshot struct {
	SMA5, SMA10, SMA20       float64
	SMA5OK, SMA10OK, SMA20OK bool

	EMA12, EMA26     float64
	EMA12OK, EMA26OK bool

	RSI14   float64
	RSI14OK bool

	MACD   MACDResult
	MACDOK bool

	Bollinger   BollingerResult
	BollingerOK bool

	Stochastic   StochasticResult
	StochasticOK bool

	Momentum   float64 // percent change across the last two points
	MomentumOK bool
}

// ComputeSnapshot derives every indicator from the price slice using the
// project's standard parameters: SMA(5/10/20), EMA(12/26), RSI(14),
// MACD(12,26,9), Bollinger(20,2), Stochastic(14,3).
func ComputeSnapshot(prices []float64) Snapshot {
	var s Snapshot
	s.SMA5, s.SMA5OK = SMA(prices, 5)
	s.SMA10, s.SMA10OK = SMA(prices, 10)
	s.SMA20, s.SMA20OK = SMA(prices, 20)
	s.EMA12, s.EMA12OK = EMA(prices, 12)
	s.EMA26, s.EMA26OK = EMA(prices, 26)
	s.RSI14, s.RSI14OK = RSI(prices, 14)
	s.MACD, s.MACDOK = MACD(prices, 12, 26, 9)
	s.Bollinger, s.BollingerOK = Bollinger(prices, 20, 2)
	s.Stochastic, s.StochasticOK = Stochastic(prices, 14, 3)
	s.Momentum, s.MomentumOK = Momentum(prices)
	return s
}

// Momentum returns the percent change between the last two prices.
// ok=false with fewer than 2 points or a zero previous price.
func Momentum(prices []float64) (float64, bool) {
	if len(prices) < 2 {
		return 0, false
	}
	prev := prices[len(prices)-2]
	if prev == 0 {
		return 0, false
	}
	return (prices[len(prices)-1] - prev) / prev * 100, true
}
