package model

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the pipeline from concrete storage
// implementations (SQLite, Redis). The store is an opaque collection
// abstraction; a failed write degrades the caller to in-memory
// operation, it never terminates the process.

// PriceStore persists observed price points.
type PriceStore interface {
	// InsertPricePoint appends one observation.
	InsertPricePoint(ctx context.Context, p PricePoint) error

	// RecentPricePoints reads up to limit most recent points for a symbol,
	// oldest first.
	RecentPricePoints(ctx context.Context, symbol string, limit int) ([]PricePoint, error)
}

// SignalStore persists generated signals.
type SignalStore interface {
	// InsertSignal stores a new signal and fills in its ID.
	InsertSignal(ctx context.Context, s *Signal) error

	// ActiveSignals returns all non-expired active signals.
	ActiveSignals(ctx context.Context, now time.Time) ([]Signal, error)

	// SignalsBySymbol returns every stored signal for a symbol.
	SignalsBySymbol(ctx context.Context, symbol string) ([]Signal, error)

	// DeleteSignalsWhere removes signals for a symbol that are expired at
	// now or have confidence strictly below the given floor. Returns the
	// number of rows removed.
	DeleteSignalsWhere(ctx context.Context, symbol string, now time.Time, belowConfidence int) (int64, error)
}

// PositionStore persists positions across the open/closed transition.
type PositionStore interface {
	// InsertPosition stores a newly opened position and fills in its ID.
	InsertPosition(ctx context.Context, p *Position) error

	// OpenPositions returns the current open set.
	OpenPositions(ctx context.Context) ([]Position, error)

	// UpdatePosition rewrites a position row (price refresh or closure).
	UpdatePosition(ctx context.Context, p *Position) error
}

// Account is the narrow surface of the external account subsystem the
// core is allowed to mutate. Balance bookkeeping beyond realized P&L is
// out of scope.
type Account interface {
	// ApplyRealizedPnL credits (or debits) the account balance when a
	// position closes.
	ApplyRealizedPnL(amount decimal.Decimal)

	// Balance returns the current aggregate balance.
	Balance() decimal.Decimal
}

// Publisher fans an event out to all live subscribers. Implementations
// must be non-blocking toward the caller.
type Publisher interface {
	Publish(event Event)
}
