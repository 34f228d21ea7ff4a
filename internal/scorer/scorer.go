// Package scorer turns indicator snapshots into directional trade
// signals: indicator voting, confidence scoring, stop/target placement,
// persistence cleanup, and broadcast.
package scorer

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"signal-enginev1/internal/history"
	"signal-enginev1/internal/indicator"
	"signal-enginev1/internal/model"
)

const (
	defaultMinHistory          = 20
	defaultConfidenceThreshold = 60
	defaultStrengthFloor       = 25
	defaultSignalTTL           = time.Hour

	// Momentum must move more than this (percent) to earn a vote.
	momentumVoteThreshold = 1.0

	// Volatility penalty kicks in above this stddev/mean ratio.
	volatilityThreshold = 0.02
	volatilityPenalty   = 0.9

	// Window for the volatility estimate.
	volatilityWindow = 20

	confidenceBase = 50
	confidenceCap  = 95
)

// marketMultipliers dampen noisy markets and boost stable ones.
var marketMultipliers = map[model.MarketClass]float64{
	model.MarketCrypto:      0.95,
	model.MarketForex:       1.05,
	model.MarketStocks:      1.0,
	model.MarketCommodities: 1.0,
}

// riskBands holds base stop/target percentages per market class. Crypto
// gets the widest bands, forex the tightest.
type riskBand struct {
	stopPct   float64
	targetPct float64
}

var riskBands = map[model.MarketClass]riskBand{
	model.MarketCrypto:      {stopPct: 2.5, targetPct: 5.0},
	model.MarketForex:       {stopPct: 0.5, targetPct: 1.0},
	model.MarketStocks:      {stopPct: 1.5, targetPct: 3.0},
	model.MarketCommodities: {stopPct: 1.0, targetPct: 2.0},
}

// highVolBandScale widens stop/target bands when volatility is elevated.
const highVolBandScale = 1.5

// Config wires a Scorer.
type Config struct {
	Book      *history.Book
	Signals   model.SignalStore // optional; nil degrades to broadcast-only
	Publisher model.Publisher   // optional

	MinHistory          int
	ConfidenceThreshold int
	StrengthFloor       int
	SignalTTL           time.Duration

	// OnSignal is an optional metrics hook, called once per emitted signal.
	OnSignal func(s model.Signal)

	Logger *slog.Logger
}

// Scorer evaluates instruments against their rolling histories and
// emits at most one fresh signal per symbol per pass.
type Scorer struct {
	book       *history.Book
	signals    model.SignalStore
	publisher  model.Publisher
	minHistory int
	confGate   int
	strGate    int
	ttl        time.Duration
	onSignal   func(model.Signal)
	log        *slog.Logger
}

func New(cfg Config) *Scorer {
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = defaultMinHistory
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = defaultConfidenceThreshold
	}
	if cfg.StrengthFloor <= 0 {
		cfg.StrengthFloor = defaultStrengthFloor
	}
	if cfg.SignalTTL <= 0 {
		cfg.SignalTTL = defaultSignalTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scorer{
		book:       cfg.Book,
		signals:    cfg.Signals,
		publisher:  cfg.Publisher,
		minHistory: cfg.MinHistory,
		confGate:   cfg.ConfidenceThreshold,
		strGate:    cfg.StrengthFloor,
		ttl:        cfg.SignalTTL,
		onSignal:   cfg.OnSignal,
		log:        cfg.Logger,
	}
}

// RunCycle scores the whole universe once.
func (sc *Scorer) RunCycle(ctx context.Context, instruments []model.Instrument) {
	for _, inst := range instruments {
		if ctx.Err() != nil {
			return
		}
		sig, err := sc.Score(ctx, inst)
		if err != nil {
			sc.log.Warn("scoring pass failed",
				slog.String("symbol", inst.Symbol),
				slog.String("err", err.Error()))
			continue
		}
		if sig != nil {
			sc.log.Info("signal generated",
				slog.String("symbol", sig.Symbol),
				slog.String("direction", string(sig.Direction)),
				slog.Int("confidence", sig.Confidence),
				slog.String("timeframe", string(sig.Timeframe)))
		}
	}
}

// Score evaluates one instrument. A nil signal with nil error means the
// instrument produced no qualifying signal this pass (short history,
// split vote, or gated confidence). That is the common case, not an error.
func (sc *Scorer) Score(ctx context.Context, inst model.Instrument) (*model.Signal, error) {
	closes := sc.book.Closes(inst.Symbol)
	if len(closes) < sc.minHistory {
		return nil, nil
	}
	price := closes[len(closes)-1]
	if price <= 0 {
		return nil, nil
	}

	snap := indicator.ComputeSnapshot(closes)
	tally := evaluate(price, snap)

	direction, strength, ok := tally.decide()
	if !ok {
		return nil, nil
	}

	volRatio := volatilityRatio(closes)
	confidence := sc.confidence(strength, inst.Market, volRatio)
	if confidence < sc.confGate || strength < sc.strGate {
		return nil, nil
	}

	now := time.Now().UTC()
	stop, target := stopTarget(price, direction, inst.Market, volRatio)
	sig := &model.Signal{
		Symbol:      inst.Symbol,
		Direction:   direction,
		Confidence:  confidence,
		EntryPrice:  decimal.NewFromFloat(price),
		TargetPrice: target,
		StopLoss:    stop,
		Timeframe:   timeframeFor(confidence),
		Market:      inst.Market,
		Status:      model.SignalActive,
		CreatedAt:   now,
		ExpiresAt:   now.Add(sc.ttl),
		Source:      "indicator-vote",
		Risk:        model.RiskFromConfidence(confidence),
	}

	sc.persist(ctx, sig, now)

	// A signal demoted to superseded never reaches subscribers; the
	// stronger active signal already did.
	if sig.Status == model.SignalActive {
		if sc.publisher != nil {
			sc.publisher.Publish(model.NewEvent(model.EventNewSignal, sig))
		}
		if sc.onSignal != nil {
			sc.onSignal(*sig)
		}
	}
	return sig, nil
}

// persist applies the cleanup-then-insert policy: same-symbol signals
// that are expired or strictly weaker are removed first. When an active
// survivor still matches or beats the new confidence, the new signal is
// inserted as superseded so at most one best active signal per symbol
// remains. A dead store degrades the signal to broadcast-only.
func (sc *Scorer) persist(ctx context.Context, sig *model.Signal, now time.Time) {
	if sc.signals == nil {
		return
	}
	if _, err := sc.signals.DeleteSignalsWhere(ctx, sig.Symbol, now, sig.Confidence); err != nil {
		sc.log.Warn("stale signal cleanup failed",
			slog.String("symbol", sig.Symbol),
			slog.String("err", err.Error()))
	}
	if sc.activeSurvivorExists(ctx, sig, now) {
		sig.Status = model.SignalSuperseded
		sc.log.Info("signal superseded by stronger active signal",
			slog.String("symbol", sig.Symbol),
			slog.Int("confidence", sig.Confidence))
	}
	if err := sc.signals.InsertSignal(ctx, sig); err != nil {
		sc.log.Warn("signal not persisted, broadcast-only",
			slog.String("symbol", sig.Symbol),
			slog.String("err", err.Error()))
	}
}

// activeSurvivorExists reports whether cleanup left an active,
// non-expired signal for the symbol at equal or higher confidence. Ties
// keep the incumbent.
func (sc *Scorer) activeSurvivorExists(ctx context.Context, sig *model.Signal, now time.Time) bool {
	existing, err := sc.signals.SignalsBySymbol(ctx, sig.Symbol)
	if err != nil {
		sc.log.Warn("active signal lookup failed",
			slog.String("symbol", sig.Symbol),
			slog.String("err", err.Error()))
		return false
	}
	for _, s := range existing {
		if s.Status == model.SignalActive && !s.Expired(now) && s.Confidence >= sig.Confidence {
			return true
		}
	}
	return false
}

// confidence maps raw vote strength to the 0..95 score.
func (sc *Scorer) confidence(strength int, market model.MarketClass, volRatio float64) int {
	mult, ok := marketMultipliers[market]
	if !ok {
		mult = 1.0
	}
	conf := (confidenceBase + float64(strength)) * mult
	if volRatio > volatilityThreshold {
		conf *= volatilityPenalty
	}
	c := int(math.Round(conf))
	if c < 0 {
		c = 0
	}
	if c > confidenceCap {
		c = confidenceCap
	}
	return c
}

// volatilityRatio is stddev/mean over the most recent window.
func volatilityRatio(closes []float64) float64 {
	window := closes
	if len(window) > volatilityWindow {
		window = window[len(window)-volatilityWindow:]
	}
	mean, ok := indicator.Mean(window)
	if !ok || mean == 0 {
		return 0
	}
	sd, ok := indicator.StdDev(window)
	if !ok {
		return 0
	}
	return sd / mean
}

// stopTarget places stop-loss and take-profit around the current price,
// widened under elevated volatility and mirrored for shorts.
func stopTarget(price float64, dir model.Direction, market model.MarketClass, volRatio float64) (stop, target decimal.Decimal) {
	band, ok := riskBands[market]
	if !ok {
		band = riskBands[model.MarketStocks]
	}
	scale := 1.0
	if volRatio > volatilityThreshold {
		scale = highVolBandScale
	}
	stopPct := band.stopPct * scale / 100
	targetPct := band.targetPct * scale / 100

	p := decimal.NewFromFloat(price)
	one := decimal.NewFromInt(1)
	sl := decimal.NewFromFloat(stopPct)
	tp := decimal.NewFromFloat(targetPct)

	if dir == model.DirectionSell {
		stop = p.Mul(one.Add(sl))
		target = p.Mul(one.Sub(tp))
		return stop, target
	}
	stop = p.Mul(one.Sub(sl))
	target = p.Mul(one.Add(tp))
	return stop, target
}

// timeframeFor picks the holding horizon from the confidence tier.
func timeframeFor(confidence int) model.Timeframe {
	switch {
	case confidence >= 85:
		return model.Timeframe1D
	case confidence >= 75:
		return model.Timeframe4H
	case confidence >= 65:
		return model.Timeframe1H
	default:
		return model.Timeframe15M
	}
}
