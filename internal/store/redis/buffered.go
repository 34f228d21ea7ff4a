package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"signal-enginev1/internal/model"
)

// backend is the raw write surface Buffered protects. Satisfied by
// Cache; test doubles stand in for a real server.
type backend interface {
	setLatest(ctx context.Context, p model.PricePoint) error
	publish(ctx context.Context, ev model.Event) error
}

// pendingWrite is a write held back during circuit-open state.
type pendingWrite struct {
	WriteType string // "latest_price", "event"
	Data      []byte // JSON-encoded payload
}

// Buffered wraps the Redis cache with a circuit breaker. While the
// circuit is open, writes are queued locally and replayed once the
// probe call closes it again, so a Redis outage loses nothing within
// the buffer window. It satisfies both the ingestion cache and the
// broadcast sink contracts.
type Buffered struct {
	cache backend
	cb    *CircuitBreaker
	ctx   context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int

	// Callbacks (optional)
	OnBuffer func()          // a write was queued
	OnFlush  func(count int) // queued writes were replayed
}

// NewBuffered wraps cache with cb. ctx bounds the replay writes that
// happen when the circuit closes; maxBufferSize <= 0 means 10000.
func NewBuffered(ctx context.Context, cache *Cache, cb *CircuitBreaker, maxBufferSize int) *Buffered {
	return newBuffered(ctx, cache, cb, maxBufferSize)
}

func newBuffered(ctx context.Context, cache backend, cb *CircuitBreaker, maxBufferSize int) *Buffered {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	b := &Buffered{
		cache:  cache,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 64),
		maxBuf: maxBufferSize,
	}

	// Replay the queue whenever the circuit closes.
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go b.flush()
		}
	}

	return b
}

// SetLatestPrice mirrors a price through the circuit breaker. An open
// circuit queues the write instead of failing it.
func (b *Buffered) SetLatestPrice(ctx context.Context, p model.PricePoint) error {
	err := b.cb.Execute(func() error {
		return b.cache.setLatest(ctx, p)
	})
	if err == ErrCircuitOpen {
		b.enqueue("latest_price", p)
		return nil
	}
	return err
}

// PublishEvent republishes an event through the circuit breaker,
// queueing it while the circuit is open. Errors are logged, never
// returned; event emission must not fail the caller.
func (b *Buffered) PublishEvent(ev model.Event) {
	err := b.cb.Execute(func() error {
		return b.cache.publish(b.ctx, ev)
	})
	if err == ErrCircuitOpen {
		b.enqueue("event", ev)
		return
	}
	if err != nil {
		log.Printf("[redis] publish %s: %v", ev.Type, err)
	}
}

func (b *Buffered) enqueue(writeType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[redis] buffer marshal error: %v", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buffer) >= b.maxBuf {
		// Full queue drops the oldest entry.
		b.buffer = b.buffer[1:]
	}
	b.buffer = append(b.buffer, pendingWrite{WriteType: writeType, Data: data})

	if b.OnBuffer != nil {
		b.OnBuffer()
	}
}

// flush replays queued writes directly against the cache.
func (b *Buffered) flush() {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return
	}
	toFlush := b.buffer
	b.buffer = make([]pendingWrite, 0, 64)
	b.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		switch pw.WriteType {
		case "latest_price":
			var p model.PricePoint
			if json.Unmarshal(pw.Data, &p) == nil {
				if err := b.cache.setLatest(b.ctx, p); err != nil {
					log.Printf("[redis] flush latest price: %v", err)
				}
			}
		case "event":
			var ev model.Event
			if json.Unmarshal(pw.Data, &ev) == nil {
				if err := b.cache.publish(b.ctx, ev); err != nil {
					log.Printf("[redis] flush event: %v", err)
				}
			}
		}
		flushed++
	}

	log.Printf("[redis] flushed %d buffered writes", flushed)
	if b.OnFlush != nil {
		b.OnFlush(flushed)
	}
}

// PendingCount returns the number of writes waiting for the circuit
// to close.
func (b *Buffered) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}
