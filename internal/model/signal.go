package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a trade recommendation or position.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Timeframe is the suggested holding horizon of a signal.
type Timeframe string

const (
	Timeframe15M Timeframe = "15M"
	Timeframe1H  Timeframe = "1H"
	Timeframe4H  Timeframe = "4H"
	Timeframe1D  Timeframe = "1D"
)

// SignalStatus is the lifecycle state of a signal.
type SignalStatus string

const (
	SignalActive SignalStatus = "active"

	// SignalSuperseded marks a qualifying signal outscored by a still
	// active one for the same symbol. Expiry needs no status of its own;
	// it is enforced against ExpiresAt at query time.
	SignalSuperseded SignalStatus = "superseded"
)

// RiskTier classifies a signal by confidence for position sizing downstream.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Signal is a generated directional trade recommendation.
type Signal struct {
	ID          int64           `json:"id"`
	Symbol      string          `json:"symbol"`
	Direction   Direction       `json:"direction"`
	Confidence  int             `json:"confidence"` // 0..95
	EntryPrice  decimal.Decimal `json:"entry_price"`
	TargetPrice decimal.Decimal `json:"target_price"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
	Timeframe   Timeframe       `json:"timeframe"`
	Market      MarketClass     `json:"market"`
	Status      SignalStatus    `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Source      string          `json:"source"`
	Risk        RiskTier        `json:"risk"`
}

// Expired reports whether the signal's time horizon has passed.
func (s *Signal) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// RiskFromConfidence maps a confidence score to a risk tier.
// Higher confidence means lower risk.
func RiskFromConfidence(confidence int) RiskTier {
	switch {
	case confidence >= 80:
		return RiskLow
	case confidence >= 65:
		return RiskMedium
	default:
		return RiskHigh
	}
}
