// Package portfolio tracks simulated positions and realized P&L.
//
// It maintains the live open-position set, refreshes current prices,
// and owns the open→closed transition. Every mutation of a single
// position goes through that position's own lock, so a monitor-driven
// closure and a manual close can never both succeed.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"signal-enginev1/internal/model"
)

var (
	ErrPositionNotFound = errors.New("position not found")
	ErrPositionClosed   = errors.New("position already closed")
)

// entry wraps one position with its own lock. The book-level lock only
// guards the maps; state transitions serialize on the entry lock.
type entry struct {
	mu  sync.Mutex
	pos model.Position
}

// Book tracks all open positions and an in-memory tail of closed ones.
type Book struct {
	store   model.PositionStore // optional
	account model.Account       // optional

	mu     sync.RWMutex
	open   map[int64]*entry
	closed []model.Position
	nextID int64
}

// NewBook creates an empty position book. Store and account may be nil;
// a failed store write degrades to in-memory bookkeeping.
func NewBook(store model.PositionStore, account model.Account) *Book {
	return &Book{
		store:   store,
		account: account,
		open:    make(map[int64]*entry),
	}
}

// Restore loads previously persisted open positions into the book,
// typically at startup.
func (b *Book) Restore(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	positions, err := b.store.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("restore open positions: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range positions {
		p := p
		b.open[p.ID] = &entry{pos: p}
		if p.ID > b.nextID {
			b.nextID = p.ID
		}
	}
	return nil
}

// Open registers a new position to monitor. The caller supplies symbol,
// direction, quantity, entry price and stop/target; the book fills in
// ID, status, and timestamps.
func (b *Book) Open(ctx context.Context, p model.Position) (model.Position, error) {
	if p.Symbol == "" {
		return model.Position{}, errors.New("open position: empty symbol")
	}
	if p.Direction != model.DirectionBuy && p.Direction != model.DirectionSell {
		return model.Position{}, fmt.Errorf("open position: bad direction %q", p.Direction)
	}
	if !p.Quantity.IsPositive() {
		return model.Position{}, errors.New("open position: quantity must be positive")
	}

	p.Status = model.PositionOpen
	p.CloseReason = ""
	p.OpenedAt = time.Now().UTC()
	if p.CurrentPrice.IsZero() {
		p.CurrentPrice = p.EntryPrice
	}

	if b.store != nil {
		if err := b.store.InsertPosition(ctx, &p); err != nil {
			return model.Position{}, fmt.Errorf("persist position: %w", err)
		}
	}

	b.mu.Lock()
	if p.ID == 0 {
		b.nextID++
		p.ID = b.nextID
	} else if p.ID > b.nextID {
		b.nextID = p.ID
	}
	b.open[p.ID] = &entry{pos: p}
	b.mu.Unlock()

	return p, nil
}

// Close transitions a position to closed at the given price, computes
// realized P&L, credits the account, and persists the closed row. A
// second close of the same position returns ErrPositionClosed.
func (b *Book) Close(ctx context.Context, id int64, price decimal.Decimal, reason model.CloseReason) (model.Position, error) {
	b.mu.RLock()
	e, ok := b.open[id]
	b.mu.RUnlock()
	if !ok {
		return model.Position{}, ErrPositionNotFound
	}

	// The entry lock is released before any book-level lock is taken;
	// readers lock in the opposite order, so holding both here would
	// deadlock against a concurrent snapshot.
	e.mu.Lock()
	if e.pos.Status == model.PositionClosed {
		e.mu.Unlock()
		return model.Position{}, ErrPositionClosed
	}

	e.pos.CurrentPrice = price
	e.pos.RealizedPnL = e.pos.UnrealizedPnL(price)
	e.pos.Status = model.PositionClosed
	e.pos.CloseReason = reason
	e.pos.ClosedAt = time.Now().UTC()
	closed := e.pos
	e.mu.Unlock()

	if b.account != nil {
		b.account.ApplyRealizedPnL(closed.RealizedPnL)
	}

	// The in-memory transition already happened; durability is
	// best-effort.
	var persistErr error
	if b.store != nil {
		if err := b.store.UpdatePosition(ctx, &closed); err != nil {
			persistErr = fmt.Errorf("persist closure: %w", err)
		}
	}

	b.retire(id, closed)
	return closed, persistErr
}

func (b *Book) retire(id int64, closed model.Position) {
	b.mu.Lock()
	delete(b.open, id)
	b.closed = append(b.closed, closed)
	b.mu.Unlock()
}

// UpdatePrice refreshes CurrentPrice on every open position of a symbol.
func (b *Book) UpdatePrice(symbol string, price decimal.Decimal) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.open {
		e.mu.Lock()
		if e.pos.Symbol == symbol && e.pos.Status == model.PositionOpen {
			e.pos.CurrentPrice = price
		}
		e.mu.Unlock()
	}
}

// OpenPositions returns a snapshot of all open positions.
func (b *Book) OpenPositions() []model.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make([]model.Position, 0, len(b.open))
	for _, e := range b.open {
		e.mu.Lock()
		result = append(result, e.pos)
		e.mu.Unlock()
	}
	return result
}

// ClosedPositions returns a snapshot of positions closed this session.
func (b *Book) ClosedPositions() []model.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cp := make([]model.Position, len(b.closed))
	copy(cp, b.closed)
	return cp
}

// Get returns one position by ID, open or session-closed.
func (b *Book) Get(id int64) (model.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if e, ok := b.open[id]; ok {
		e.mu.Lock()
		p := e.pos
		e.mu.Unlock()
		return p, true
	}
	for _, p := range b.closed {
		if p.ID == id {
			return p, true
		}
	}
	return model.Position{}, false
}

// TotalUnrealizedPnL sums unrealized P&L across the open set at each
// position's current price.
func (b *Book) TotalUnrealizedPnL() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := decimal.Zero
	for _, e := range b.open {
		e.mu.Lock()
		total = total.Add(e.pos.UnrealizedPnL(e.pos.CurrentPrice))
		e.mu.Unlock()
	}
	return total
}
