package model

import (
	"fmt"
	"strings"
)

// MarketClass identifies the asset class an instrument trades in.
type MarketClass string

const (
	MarketCrypto      MarketClass = "crypto"
	MarketForex       MarketClass = "forex"
	MarketStocks      MarketClass = "stocks"
	MarketCommodities MarketClass = "commodities"
)

// Valid reports whether the market class is one of the known values.
func (m MarketClass) Valid() bool {
	switch m {
	case MarketCrypto, MarketForex, MarketStocks, MarketCommodities:
		return true
	}
	return false
}

// PriorityTier is the ingestion scheduling class of an instrument.
// High-tier instruments are polled on the short cycle and in larger batches.
type PriorityTier string

const (
	TierHigh   PriorityTier = "high"
	TierMedium PriorityTier = "medium"
	TierLow    PriorityTier = "low"
)

// Valid reports whether the tier is one of the known values.
func (t PriorityTier) Valid() bool {
	switch t {
	case TierHigh, TierMedium, TierLow:
		return true
	}
	return false
}

// Instrument is a single tradable symbol in the static universe.
// Instruments are configuration, never mutated at runtime.
type Instrument struct {
	Symbol string       `json:"symbol"`
	Market MarketClass  `json:"market"`
	Tier   PriorityTier `json:"tier"`
}

// ParseInstruments parses a universe spec of the form
// "BTCUSDT:crypto:high,EURUSD:forex:medium,...". A malformed entry is a
// configuration error and must be treated as fatal at startup.
func ParseInstruments(s string) ([]Instrument, error) {
	var out []Instrument
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("instrument %q: want symbol:market:tier", entry)
		}
		inst := Instrument{
			Symbol: strings.ToUpper(strings.TrimSpace(parts[0])),
			Market: MarketClass(strings.ToLower(strings.TrimSpace(parts[1]))),
			Tier:   PriorityTier(strings.ToLower(strings.TrimSpace(parts[2]))),
		}
		if inst.Symbol == "" {
			return nil, fmt.Errorf("instrument %q: empty symbol", entry)
		}
		if !inst.Market.Valid() {
			return nil, fmt.Errorf("instrument %q: unknown market class %q", entry, inst.Market)
		}
		if !inst.Tier.Valid() {
			return nil, fmt.Errorf("instrument %q: unknown priority tier %q", entry, inst.Tier)
		}
		out = append(out, inst)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("instrument universe is empty")
	}
	return out, nil
}

// PartitionByTier splits the universe into high/medium/low slices,
// preserving input order within each tier.
func PartitionByTier(universe []Instrument) map[PriorityTier][]Instrument {
	parts := make(map[PriorityTier][]Instrument, 3)
	for _, inst := range universe {
		parts[inst.Tier] = append(parts[inst.Tier], inst)
	}
	return parts
}
