// Package monitor watches open positions against the latest observed
// prices and closes them when a take-profit or stop-loss level crosses.
package monitor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"signal-enginev1/internal/history"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/portfolio"
)

// Config wires a Monitor.
type Config struct {
	Positions *portfolio.Book
	History   *history.Book
	Publisher model.Publisher // optional

	// OnClosure is an optional metrics hook, called once per closed position.
	OnClosure func(p model.Position)

	Logger *slog.Logger
}

// Monitor evaluates the open position set on a fixed cadence. It reads
// the latest prices the ingestor recorded; it never calls providers
// itself.
type Monitor struct {
	positions *portfolio.Book
	history   *history.Book
	publisher model.Publisher
	onClosure func(model.Position)
	log       *slog.Logger
}

func New(cfg Config) *Monitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{
		positions: cfg.Positions,
		history:   cfg.History,
		publisher: cfg.Publisher,
		onClosure: cfg.OnClosure,
		log:       cfg.Logger,
	}
}

// RunCycle refreshes every open position's current price and closes the
// ones whose target or stop crossed. Positions without a fresh price are
// left untouched.
func (m *Monitor) RunCycle(ctx context.Context) {
	for _, p := range m.positions.OpenPositions() {
		if ctx.Err() != nil {
			return
		}

		latest, ok := m.history.Latest(p.Symbol)
		if !ok {
			continue
		}
		price := decimal.NewFromFloat(latest.Price)
		m.positions.UpdatePrice(p.Symbol, price)

		reason, crossed := crossing(p, price)
		if !crossed {
			continue
		}
		m.close(ctx, p, price, reason)
	}
}

// crossing reports whether price crosses the position's target or stop.
// Longs take profit at or above target and stop out at or below stop;
// shorts are mirrored. A zero level disables that side's check.
func crossing(p model.Position, price decimal.Decimal) (model.CloseReason, bool) {
	long := p.Direction == model.DirectionBuy

	if !p.TargetPrice.IsZero() {
		if long && price.GreaterThanOrEqual(p.TargetPrice) {
			return model.CloseTakeProfitHit, true
		}
		if !long && price.LessThanOrEqual(p.TargetPrice) {
			return model.CloseTakeProfitHit, true
		}
	}
	if !p.StopLoss.IsZero() {
		if long && price.LessThanOrEqual(p.StopLoss) {
			return model.CloseStopLossHit, true
		}
		if !long && price.GreaterThanOrEqual(p.StopLoss) {
			return model.CloseStopLossHit, true
		}
	}
	return "", false
}

func (m *Monitor) close(ctx context.Context, p model.Position, price decimal.Decimal, reason model.CloseReason) {
	closed, err := m.positions.Close(ctx, p.ID, price, reason)
	if err != nil {
		if errors.Is(err, portfolio.ErrPositionClosed) || errors.Is(err, portfolio.ErrPositionNotFound) {
			// Lost the race against a manual close.
			return
		}
		// Persistence failed but the in-memory closure happened; fall
		// through and announce it.
		m.log.Warn("position closure not persisted",
			slog.Int64("position_id", p.ID),
			slog.String("err", err.Error()))
	}

	m.log.Info("position closed",
		slog.Int64("position_id", closed.ID),
		slog.String("symbol", closed.Symbol),
		slog.String("reason", string(reason)),
		slog.String("realized_pnl", closed.RealizedPnL.String()))

	if m.publisher != nil {
		m.publisher.Publish(model.NewEvent(model.EventPositionClosed, closed))
		switch reason {
		case model.CloseTakeProfitHit:
			m.publisher.Publish(model.NewEvent(model.EventTakeProfitHit, closed))
		case model.CloseStopLossHit:
			m.publisher.Publish(model.NewEvent(model.EventStopLossHit, closed))
		}
	}
	if m.onClosure != nil {
		m.onClosure(closed)
	}
}
