package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-enginev1/internal/history"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/portfolio"
)

type capturePublisher struct {
	events []model.Event
}

func (c *capturePublisher) Publish(e model.Event) { c.events = append(c.events, e) }

func (c *capturePublisher) types() []model.EventType {
	out := make([]model.EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	book    *portfolio.Book
	hist    *history.Book
	pub     *capturePublisher
	monitor *Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		book: portfolio.NewBook(nil, nil),
		hist: history.NewBook(50),
		pub:  &capturePublisher{},
	}
	f.monitor = New(Config{Positions: f.book, History: f.hist, Publisher: f.pub})
	return f
}

func (f *fixture) openLong(t *testing.T, symbol string, entry, target, stop float64) model.Position {
	t.Helper()
	p, err := f.book.Open(context.Background(), model.Position{
		Symbol:      symbol,
		Direction:   model.DirectionBuy,
		Quantity:    decimal.NewFromInt(3),
		EntryPrice:  decimal.NewFromFloat(entry),
		TargetPrice: decimal.NewFromFloat(target),
		StopLoss:    decimal.NewFromFloat(stop),
		Market:      model.MarketCrypto,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) tick(t *testing.T, symbol string, price float64) {
	t.Helper()
	ok := f.hist.Append(model.PricePoint{
		Symbol: symbol, Price: price, TS: time.Now(), Source: "test",
		Market: model.MarketCrypto,
	})
	require.True(t, ok)
}

func TestLongTakeProfit(t *testing.T) {
	f := newFixture(t)
	p := f.openLong(t, "BTCUSDT", 100, 110, 95)
	f.tick(t, "BTCUSDT", 110)

	f.monitor.RunCycle(context.Background())

	assert.Empty(t, f.book.OpenPositions())
	closed, ok := f.book.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, model.CloseTakeProfitHit, closed.CloseReason)
	// (110-100) x 3
	assert.True(t, closed.RealizedPnL.Equal(decimal.NewFromInt(30)), closed.RealizedPnL.String())
	assert.Equal(t, []model.EventType{model.EventPositionClosed, model.EventTakeProfitHit}, f.pub.types())
}

func TestLongStopLoss(t *testing.T) {
	f := newFixture(t)
	p := f.openLong(t, "BTCUSDT", 100, 110, 95)
	f.tick(t, "BTCUSDT", 95)

	f.monitor.RunCycle(context.Background())

	closed, ok := f.book.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, model.CloseStopLossHit, closed.CloseReason)
	assert.True(t, closed.RealizedPnL.Equal(decimal.NewFromInt(-15)), closed.RealizedPnL.String())
	assert.Equal(t, []model.EventType{model.EventPositionClosed, model.EventStopLossHit}, f.pub.types())
}

func TestNoCrossingLeavesOpen(t *testing.T) {
	f := newFixture(t)
	p := f.openLong(t, "BTCUSDT", 100, 110, 95)
	f.tick(t, "BTCUSDT", 105)

	f.monitor.RunCycle(context.Background())

	got, ok := f.book.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, model.PositionOpen, got.Status)
	assert.True(t, got.CurrentPrice.Equal(decimal.NewFromInt(105)), "price still refreshed")
	assert.Empty(t, f.pub.events, "no event when nothing crossed")
}

func TestShortMirroredCrossings(t *testing.T) {
	f := newFixture(t)
	short, err := f.book.Open(context.Background(), model.Position{
		Symbol:      "ETHUSDT",
		Direction:   model.DirectionSell,
		Quantity:    decimal.NewFromInt(1),
		EntryPrice:  decimal.NewFromInt(100),
		TargetPrice: decimal.NewFromInt(90),
		StopLoss:    decimal.NewFromInt(105),
		Market:      model.MarketCrypto,
	})
	require.NoError(t, err)

	f.tick(t, "ETHUSDT", 90)
	f.monitor.RunCycle(context.Background())

	closed, ok := f.book.Get(short.ID)
	require.True(t, ok)
	assert.Equal(t, model.CloseTakeProfitHit, closed.CloseReason)
	assert.True(t, closed.RealizedPnL.Equal(decimal.NewFromInt(10)), closed.RealizedPnL.String())
}

func TestShortStopLoss(t *testing.T) {
	f := newFixture(t)
	short, err := f.book.Open(context.Background(), model.Position{
		Symbol:      "ETHUSDT",
		Direction:   model.DirectionSell,
		Quantity:    decimal.NewFromInt(1),
		EntryPrice:  decimal.NewFromInt(100),
		TargetPrice: decimal.NewFromInt(90),
		StopLoss:    decimal.NewFromInt(105),
		Market:      model.MarketCrypto,
	})
	require.NoError(t, err)

	f.tick(t, "ETHUSDT", 106)
	f.monitor.RunCycle(context.Background())

	closed, ok := f.book.Get(short.ID)
	require.True(t, ok)
	assert.Equal(t, model.CloseStopLossHit, closed.CloseReason)
}

func TestNoPriceYetSkipsPosition(t *testing.T) {
	f := newFixture(t)
	p := f.openLong(t, "BTCUSDT", 100, 110, 95)

	f.monitor.RunCycle(context.Background())

	got, _ := f.book.Get(p.ID)
	assert.Equal(t, model.PositionOpen, got.Status)
}

func TestManualCloseWinsRace(t *testing.T) {
	f := newFixture(t)
	p := f.openLong(t, "BTCUSDT", 100, 110, 95)
	f.tick(t, "BTCUSDT", 110)

	// A manual close lands just before the monitor's pass.
	_, err := f.book.Close(context.Background(), p.ID, decimal.NewFromInt(110), model.CloseManual)
	require.NoError(t, err)

	f.monitor.RunCycle(context.Background())

	closed, ok := f.book.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, model.CloseManual, closed.CloseReason, "monitor must not overwrite the manual close")
	assert.Empty(t, f.pub.events)
	assert.Len(t, f.book.ClosedPositions(), 1)
}
