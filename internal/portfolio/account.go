package portfolio

import (
	"sync"

	"github.com/shopspring/decimal"
)

// SimAccount is the in-memory demo account credited and debited by
// position closures. It also tracks peak equity so drawdown can be
// reported without a separate ledger.
type SimAccount struct {
	mu         sync.RWMutex
	balance    decimal.Decimal
	peak       decimal.Decimal
	totalPnL   decimal.Decimal
	closeCount int
}

// NewSimAccount creates an account with the given starting balance.
func NewSimAccount(initial decimal.Decimal) *SimAccount {
	return &SimAccount{balance: initial, peak: initial}
}

// ApplyRealizedPnL applies a closure's realized P&L to the balance.
func (a *SimAccount) ApplyRealizedPnL(amount decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = a.balance.Add(amount)
	a.totalPnL = a.totalPnL.Add(amount)
	a.closeCount++
	if a.balance.GreaterThan(a.peak) {
		a.peak = a.balance
	}
}

// Balance returns the current balance.
func (a *SimAccount) Balance() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balance
}

// DrawdownPct returns the percentage distance from peak equity, 0 when
// at or above the peak.
func (a *SimAccount) DrawdownPct() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.peak.IsPositive() || a.balance.GreaterThanOrEqual(a.peak) {
		return 0
	}
	dd, _ := a.peak.Sub(a.balance).Div(a.peak).Mul(decimal.NewFromInt(100)).Float64()
	return dd
}

// Summary reports aggregate account state.
type AccountSummary struct {
	Balance     decimal.Decimal `json:"balance"`
	PeakBalance decimal.Decimal `json:"peak_balance"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Closures    int             `json:"closures"`
}

func (a *SimAccount) Summary() AccountSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return AccountSummary{
		Balance:     a.balance,
		PeakBalance: a.peak,
		RealizedPnL: a.totalPnL,
		Closures:    a.closeCount,
	}
}
