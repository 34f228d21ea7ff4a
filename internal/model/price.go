package model

import "time"

// SourceFallback tags price points synthesized from a last-known baseline
// when every live provider for a market is down.
const SourceFallback = "fallback"

// PricePoint is a single observed price for a symbol. Immutable once
// recorded; histories are append-only.
type PricePoint struct {
	Symbol string      `json:"symbol"`
	Price  float64     `json:"price"`
	TS     time.Time   `json:"ts"`
	Source string      `json:"source"` // which provider answered, or "fallback"
	Market MarketClass `json:"market"`
}
