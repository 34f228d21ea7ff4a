package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a simulated position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseManual        CloseReason = "manual"
	CloseTakeProfitHit CloseReason = "take_profit_hit"
	CloseStopLossHit   CloseReason = "stop_loss_hit"
)

// Position is a tracked simulated ("demo") position. It is opened by an
// external flow and mutated only by the position monitor (price refresh,
// closure) or an explicit manual close.
type Position struct {
	ID           int64           `json:"id"`
	Symbol       string          `json:"symbol"`
	Direction    Direction       `json:"direction"`
	Quantity     decimal.Decimal `json:"quantity"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	TargetPrice  decimal.Decimal `json:"target_price"`
	StopLoss     decimal.Decimal `json:"stop_loss"`
	Market       MarketClass     `json:"market"`
	OpenedAt     time.Time       `json:"opened_at"`
	Status       PositionStatus  `json:"status"`
	CloseReason  CloseReason     `json:"close_reason,omitempty"`
	ClosedAt     time.Time       `json:"closed_at,omitempty"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
}

// UnrealizedPnL computes profit/loss at the given price:
// (current − entry) × qty for longs, (entry − current) × qty for shorts.
func (p *Position) UnrealizedPnL(current decimal.Decimal) decimal.Decimal {
	if p.Direction == DirectionSell {
		return p.EntryPrice.Sub(current).Mul(p.Quantity)
	}
	return current.Sub(p.EntryPrice).Mul(p.Quantity)
}
