package indicator

import (
	"math"
	"testing"
)

const eps = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		window int
		want   float64
		wantOK bool
	}{
		{"exact_window", []float64{1, 2, 3, 4, 5}, 5, 3, true},
		{"uses_tail", []float64{10, 10, 1, 2, 3}, 3, 2, true},
		{"insufficient", []float64{1, 2}, 3, 0, false},
		{"empty", nil, 5, 0, false},
		{"zero_window", []float64{1, 2, 3}, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SMA(tt.prices, tt.window)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !almostEqual(got, tt.want) {
				t.Errorf("SMA = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEMASeededBySMA(t *testing.T) {
	// With exactly window points, EMA equals the SMA seed.
	prices := []float64{2, 4, 6}
	ema, ok := EMA(prices, 3)
	if !ok {
		t.Fatal("expected ok")
	}
	if !almostEqual(ema, 4) {
		t.Errorf("EMA seed = %v, want 4", ema)
	}

	// One more point: ema = (p - seed)*k + seed, k = 2/(3+1) = 0.5
	ema, ok = EMA([]float64{2, 4, 6, 8}, 3)
	if !ok {
		t.Fatal("expected ok")
	}
	if !almostEqual(ema, 6) {
		t.Errorf("EMA = %v, want 6", ema)
	}
}

func TestEMAInsufficient(t *testing.T) {
	if _, ok := EMA([]float64{1, 2}, 3); ok {
		t.Error("EMA over 2 points with window 3 should report insufficiency")
	}
}

func TestRSIMinimumData(t *testing.T) {
	// RSI(14) over 10 points must signal insufficiency, not return a number.
	prices := make([]float64, 10)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	if _, ok := RSI(prices, 14); ok {
		t.Error("RSI(14) over 10 points should report insufficiency")
	}

	// period+1 points is exactly enough.
	prices = make([]float64, 15)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	if _, ok := RSI(prices, 14); !ok {
		t.Error("RSI(14) over 15 points should be defined")
	}
}

func TestRSIExtremes(t *testing.T) {
	up := []float64{100, 101, 102, 103, 104, 105}
	rsi, ok := RSI(up, 5)
	if !ok || !almostEqual(rsi, 100) {
		t.Errorf("all-gain RSI = %v, %v; want 100, true", rsi, ok)
	}

	down := []float64{105, 104, 103, 102, 101, 100}
	rsi, ok = RSI(down, 5)
	if !ok || !almostEqual(rsi, 0) {
		t.Errorf("all-loss RSI = %v, %v; want 0, true", rsi, ok)
	}
}

func TestRSIMixed(t *testing.T) {
	// Deltas: +2, -1, +2, -1 → avgGain=1, avgLoss=0.5, RS=2, RSI=66.67
	prices := []float64{100, 102, 101, 103, 102}
	rsi, ok := RSI(prices, 4)
	if !ok {
		t.Fatal("expected ok")
	}
	if !almostEqual(rsi, 100-100.0/3.0) {
		t.Errorf("RSI = %v, want %v", rsi, 100-100.0/3.0)
	}
}

func TestMACDMinimumData(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100
	}
	// Needs slow+signal-1 = 34 points.
	if _, ok := MACD(prices, 12, 26, 9); ok {
		t.Error("MACD over 30 points should report insufficiency")
	}

	prices = make([]float64, 34)
	for i := range prices {
		prices[i] = 100
	}
	res, ok := MACD(prices, 12, 26, 9)
	if !ok {
		t.Fatal("MACD over 34 points should be defined")
	}
	// Flat series: everything zero.
	if !almostEqual(res.Line, 0) || !almostEqual(res.Signal, 0) || !almostEqual(res.Histogram, 0) {
		t.Errorf("flat MACD = %+v, want all zero", res)
	}
}

func TestMACDRisingSeries(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	res, ok := MACD(prices, 12, 26, 9)
	if !ok {
		t.Fatal("expected ok")
	}
	// Fast EMA tracks a rising series more closely than slow EMA.
	if res.Line <= 0 {
		t.Errorf("rising series MACD line = %v, want > 0", res.Line)
	}
	if res.Histogram != res.Line-res.Signal {
		t.Errorf("histogram = %v, want line−signal = %v", res.Histogram, res.Line-res.Signal)
	}
}

func TestBollinger(t *testing.T) {
	prices := []float64{2, 4, 4, 4, 5, 5, 7, 9} // classic stddev=2 example
	res, ok := Bollinger(prices, 8, 2)
	if !ok {
		t.Fatal("expected ok")
	}
	if !almostEqual(res.Mid, 5) {
		t.Errorf("mid = %v, want 5", res.Mid)
	}
	if !almostEqual(res.Upper, 9) || !almostEqual(res.Lower, 1) {
		t.Errorf("bands = [%v, %v], want [1, 9]", res.Lower, res.Upper)
	}

	if _, ok := Bollinger(prices[:5], 8, 2); ok {
		t.Error("Bollinger over 5 points with period 8 should report insufficiency")
	}
}

func TestStochastic(t *testing.T) {
	// 16 rising points: close is always the highest → %K=100, %D=100.
	prices := make([]float64, 16)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	res, ok := Stochastic(prices, 14, 3)
	if !ok {
		t.Fatal("expected ok")
	}
	if !almostEqual(res.K, 100) || !almostEqual(res.D, 100) {
		t.Errorf("rising stochastic = %+v, want K=D=100", res)
	}

	if _, ok := Stochastic(prices[:10], 14, 3); ok {
		t.Error("Stochastic over 10 points should report insufficiency")
	}
}

func TestStochasticFlatWindowNeutral(t *testing.T) {
	prices := make([]float64, 16)
	for i := range prices {
		prices[i] = 100
	}
	res, ok := Stochastic(prices, 14, 3)
	if !ok {
		t.Fatal("expected ok")
	}
	if !almostEqual(res.K, 50) {
		t.Errorf("flat %%K = %v, want 50", res.K)
	}
}

func TestMomentum(t *testing.T) {
	mom, ok := Momentum([]float64{100, 101, 99, 98, 97})
	if !ok {
		t.Fatal("expected ok")
	}
	want := (97.0 - 98.0) / 98.0 * 100
	if !almostEqual(mom, want) {
		t.Errorf("momentum = %v, want %v", mom, want)
	}

	if _, ok := Momentum([]float64{100}); ok {
		t.Error("momentum over 1 point should report insufficiency")
	}
}

func TestComputeSnapshotDegradesPerIndicator(t *testing.T) {
	// 10 points: SMA5/10 and momentum defined; RSI14, MACD, Bollinger20,
	// Stochastic undefined.
	prices := make([]float64, 10)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	snap := ComputeSnapshot(prices)

	if !snap.SMA5OK || !snap.SMA10OK || !snap.MomentumOK {
		t.Error("short-window indicators should be defined over 10 points")
	}
	if snap.SMA20OK || snap.RSI14OK || snap.MACDOK || snap.BollingerOK || snap.StochasticOK {
		t.Error("long-window indicators must report insufficiency over 10 points")
	}
}

func TestStdDev(t *testing.T) {
	sd, ok := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if !ok || math.Abs(sd-2) > eps {
		t.Errorf("stddev = %v, %v; want 2, true", sd, ok)
	}
	if _, ok := StdDev([]float64{1}); ok {
		t.Error("stddev of a single point should report insufficiency")
	}
}
