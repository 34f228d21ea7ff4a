// Package history maintains per-symbol rolling price histories.
//
// Each symbol owns a fixed-capacity ring of price points: appends evict
// the oldest entry on overflow (FIFO) and reject out-of-order
// timestamps, so a history is always timestamp-ordered and bounded.
// The ingestion scheduler is the single writer; the scorer and the
// position monitor read copied snapshots, never the live ring.
package history

import (
	"sync"

	"signal-enginev1/internal/model"
)

// DefaultCap is the rolling history capacity used when the config does
// not override it. The pipeline needs at most MACD's slow window plus
// headroom.
const DefaultCap = 50

// Book holds the rolling histories for the whole instrument universe.
type Book struct {
	cap int

	mu    sync.RWMutex
	rings map[string]*ring
}

// ring is a circular buffer of price points for one symbol.
type ring struct {
	buf   []model.PricePoint
	start int // index of oldest entry
	count int
}

// NewBook creates an empty book. cap must be positive; values below 2
// are clamped.
func NewBook(cap int) *Book {
	if cap < 2 {
		cap = 2
	}
	return &Book{
		cap:   cap,
		rings: make(map[string]*ring, 64),
	}
}

// Append records a price point for its symbol. Returns false when the
// point's timestamp is older than the newest recorded entry; out-of-order
// observations are dropped to keep the ordering invariant.
func (b *Book) Append(p model.PricePoint) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[p.Symbol]
	if !ok {
		r = &ring{buf: make([]model.PricePoint, b.cap)}
		b.rings[p.Symbol] = r
	}

	if r.count > 0 {
		newest := r.buf[(r.start+r.count-1)%len(r.buf)]
		if p.TS.Before(newest.TS) {
			return false
		}
	}

	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = p
		r.count++
		return true
	}

	// Full: overwrite oldest.
	r.buf[r.start] = p
	r.start = (r.start + 1) % len(r.buf)
	return true
}

// Snapshot returns a copy of the symbol's history, oldest first.
// Returns nil when the symbol has no recorded prices.
func (b *Book) Snapshot(symbol string) []model.PricePoint {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.rings[symbol]
	if !ok || r.count == 0 {
		return nil
	}
	out := make([]model.PricePoint, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Closes returns just the prices of the symbol's history, oldest first.
// This is the shape the indicator functions consume.
func (b *Book) Closes(symbol string) []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.rings[symbol]
	if !ok || r.count == 0 {
		return nil
	}
	out := make([]float64, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)].Price
	}
	return out
}

// Latest returns the most recent price point for a symbol.
func (b *Book) Latest(symbol string) (model.PricePoint, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.rings[symbol]
	if !ok || r.count == 0 {
		return model.PricePoint{}, false
	}
	return r.buf[(r.start+r.count-1)%len(r.buf)], true
}

// Len returns the number of recorded points for a symbol.
func (b *Book) Len(symbol string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if r, ok := b.rings[symbol]; ok {
		return r.count
	}
	return 0
}

// Cap returns the per-symbol capacity.
func (b *Book) Cap() int { return b.cap }

// Symbols returns every symbol with at least one recorded price.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.rings))
	for sym, r := range b.rings {
		if r.count > 0 {
			out = append(out, sym)
		}
	}
	return out
}
