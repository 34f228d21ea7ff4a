package scorer

import (
	"math"

	"signal-enginev1/internal/indicator"
	"signal-enginev1/internal/model"
)

// Vote weights and strength contributions per rule. Moving-average
// alignment is the strongest single tell and counts double.
const (
	maVotes    = 2
	maStrength = 20

	macdVotes    = 1
	macdStrength = 10

	rsiVotes    = 1
	rsiStrength = 15

	bollVotes    = 1
	bollStrength = 10

	stochVotes    = 1
	stochStrength = 10

	momentumVotes    = 1
	momentumStrength = 5
)

// RSI / Stochastic extreme levels.
const (
	rsiOversold   = 30
	rsiOverbought = 70

	stochOversold   = 20
	stochOverbought = 80
)

// tally accumulates directional votes. An indicator with ok=false casts
// no vote at all.
type tally struct {
	bullVotes, bearVotes       int
	bullStrength, bearStrength int
}

func (t *tally) bull(votes, strength int) {
	t.bullVotes += votes
	t.bullStrength += strength
}

func (t *tally) bear(votes, strength int) {
	t.bearVotes += votes
	t.bearStrength += strength
}

// decide resolves the tally into a direction. The winning side needs
// strictly more votes than the other and at least 2 of them; strength is
// the winning side's weighted sum.
func (t *tally) decide() (model.Direction, int, bool) {
	switch {
	case t.bullVotes > t.bearVotes && t.bullVotes >= 2:
		return model.DirectionBuy, t.bullStrength, true
	case t.bearVotes > t.bullVotes && t.bearVotes >= 2:
		return model.DirectionSell, t.bearStrength, true
	default:
		return "", 0, false
	}
}

// evaluate runs every voting rule against the snapshot.
func evaluate(price float64, snap indicator.Snapshot) tally {
	var t tally

	// Moving-average alignment: a fully ordered stack of price over the
	// short/medium/long SMAs (or the exact reverse) is a trend vote.
	if snap.SMA5OK && snap.SMA10OK && snap.SMA20OK {
		switch {
		case price > snap.SMA5 && snap.SMA5 > snap.SMA10 && snap.SMA10 > snap.SMA20:
			t.bull(maVotes, maStrength)
		case price < snap.SMA5 && snap.SMA5 < snap.SMA10 && snap.SMA10 < snap.SMA20:
			t.bear(maVotes, maStrength)
		}
	}

	// MACD line vs signal line.
	if snap.MACDOK {
		switch {
		case snap.MACD.Line > snap.MACD.Signal:
			t.bull(macdVotes, macdStrength)
		case snap.MACD.Line < snap.MACD.Signal:
			t.bear(macdVotes, macdStrength)
		}
	}

	// RSI extremes: oversold is a contrarian buy, overbought a sell.
	if snap.RSI14OK {
		switch {
		case snap.RSI14 < rsiOversold:
			t.bull(rsiVotes, rsiStrength)
		case snap.RSI14 > rsiOverbought:
			t.bear(rsiVotes, rsiStrength)
		}
	}

	// Bollinger band breach, mean-reversion style.
	if snap.BollingerOK {
		switch {
		case price < snap.Bollinger.Lower:
			t.bull(bollVotes, bollStrength)
		case price > snap.Bollinger.Upper:
			t.bear(bollVotes, bollStrength)
		}
	}

	// Stochastic %K extremes.
	if snap.StochasticOK {
		switch {
		case snap.Stochastic.K < stochOversold:
			t.bull(stochVotes, stochStrength)
		case snap.Stochastic.K > stochOverbought:
			t.bear(stochVotes, stochStrength)
		}
	}

	// Momentum bonus: only a sharp move earns a vote.
	if snap.MomentumOK && math.Abs(snap.Momentum) > momentumVoteThreshold {
		if snap.Momentum > 0 {
			t.bull(momentumVotes, momentumStrength)
		} else {
			t.bear(momentumVotes, momentumStrength)
		}
	}

	return t
}
