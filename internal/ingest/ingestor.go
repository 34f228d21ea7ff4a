// Package ingest drives price collection cycles: tier-ordered batched
// fetches through the provider gateway, history book appends, and
// asynchronous persistence.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signal-enginev1/internal/history"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/notification"
)

const (
	defaultInterBatchDelay = 500 * time.Millisecond
	defaultAlertThreshold  = 5
	persistTimeout         = 5 * time.Second
)

// defaultBatchSizes caps the number of in-flight provider calls per
// tier. High-tier symbols get the widest batches.
var defaultBatchSizes = map[model.PriorityTier]int{
	model.TierHigh:   5,
	model.TierMedium: 3,
	model.TierLow:    2,
}

// Fetcher resolves a current price; satisfied by feed.Gateway.
type Fetcher interface {
	FetchPrice(ctx context.Context, symbol string, market model.MarketClass) (model.PricePoint, error)
}

// LatestCache mirrors the freshest observation into a fast lookup layer;
// satisfied by the redis store. Optional.
type LatestCache interface {
	SetLatestPrice(ctx context.Context, p model.PricePoint) error
}

// Config wires an Ingestor.
type Config struct {
	Fetcher Fetcher
	Book    *history.Book

	// Store and Cache are optional; a nil or failing store degrades to
	// in-memory operation only.
	Store model.PriceStore
	Cache LatestCache

	BatchSizes      map[model.PriorityTier]int
	InterBatchDelay time.Duration

	// AlertThreshold is the number of consecutive fully-failed cycles
	// before an operational alert fires.
	AlertThreshold int
	Notifier       notification.Notifier

	// OnResult is an optional per-symbol metrics hook.
	OnResult func(symbol, source string, err error)

	Logger *slog.Logger
}

// CycleStats summarizes one ingestion cycle.
type CycleStats struct {
	Attempted int
	Fetched   int
	Failed    int
}

// Ingestor runs ingestion cycles over an instrument universe. Symbols
// are processed tier by tier (high first) in small concurrent batches;
// a symbol that cannot be priced is skipped for the cycle, never fatal.
type Ingestor struct {
	fetcher    Fetcher
	book       *history.Book
	store      model.PriceStore
	cache      LatestCache
	batchSizes map[model.PriorityTier]int
	batchDelay time.Duration
	notifier   notification.Notifier
	alertAfter int
	onResult   func(symbol, source string, err error)
	log        *slog.Logger

	mu          sync.Mutex
	consecFails int
}

func New(cfg Config) *Ingestor {
	if cfg.InterBatchDelay <= 0 {
		cfg.InterBatchDelay = defaultInterBatchDelay
	}
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = defaultAlertThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	sizes := make(map[model.PriorityTier]int, len(defaultBatchSizes))
	for tier, n := range defaultBatchSizes {
		sizes[tier] = n
	}
	for tier, n := range cfg.BatchSizes {
		if n > 0 {
			sizes[tier] = n
		}
	}

	return &Ingestor{
		fetcher:    cfg.Fetcher,
		book:       cfg.Book,
		store:      cfg.Store,
		cache:      cfg.Cache,
		batchSizes: sizes,
		batchDelay: cfg.InterBatchDelay,
		notifier:   cfg.Notifier,
		alertAfter: cfg.AlertThreshold,
		onResult:   cfg.OnResult,
		log:        cfg.Logger,
	}
}

// RunCycle fetches every instrument once, high tier first. It returns
// when all batches have completed or ctx is cancelled.
func (in *Ingestor) RunCycle(ctx context.Context, instruments []model.Instrument) CycleStats {
	var stats CycleStats
	byTier := model.PartitionByTier(instruments)

	for _, tier := range []model.PriorityTier{model.TierHigh, model.TierMedium, model.TierLow} {
		symbols := byTier[tier]
		if len(symbols) == 0 {
			continue
		}
		size := in.batchSizes[tier]
		for start := 0; start < len(symbols); start += size {
			if ctx.Err() != nil {
				in.noteCycle(stats)
				return stats
			}
			end := start + size
			if end > len(symbols) {
				end = len(symbols)
			}
			fetched, failed := in.runBatch(ctx, symbols[start:end])
			stats.Attempted += end - start
			stats.Fetched += fetched
			stats.Failed += failed

			if end < len(symbols) || tier != model.TierLow {
				select {
				case <-ctx.Done():
					in.noteCycle(stats)
					return stats
				case <-time.After(in.batchDelay):
				}
			}
		}
	}

	in.noteCycle(stats)
	return stats
}

// runBatch fetches one batch concurrently, one goroutine per symbol.
func (in *Ingestor) runBatch(ctx context.Context, batch []model.Instrument) (fetched, failed int) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, inst := range batch {
		wg.Add(1)
		go func(inst model.Instrument) {
			defer wg.Done()
			ok := in.fetchOne(ctx, inst)
			mu.Lock()
			if ok {
				fetched++
			} else {
				failed++
			}
			mu.Unlock()
		}(inst)
	}
	wg.Wait()
	return fetched, failed
}

func (in *Ingestor) fetchOne(ctx context.Context, inst model.Instrument) bool {
	p, err := in.fetcher.FetchPrice(ctx, inst.Symbol, inst.Market)
	if in.onResult != nil {
		in.onResult(inst.Symbol, p.Source, err)
	}
	if err != nil {
		in.log.Warn("price fetch failed, skipping symbol for this cycle",
			slog.String("symbol", inst.Symbol),
			slog.String("market", string(inst.Market)),
			slog.String("err", err.Error()))
		return false
	}

	if !in.book.Append(p) {
		in.log.Debug("stale observation dropped",
			slog.String("symbol", p.Symbol),
			slog.Time("ts", p.TS))
		return true
	}

	// Persistence is best-effort and off the cycle's critical path. The
	// history book is already updated; a dead store only loses durability.
	go in.persist(p)
	return true
}

func (in *Ingestor) persist(p model.PricePoint) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if in.store != nil {
		if err := in.store.InsertPricePoint(ctx, p); err != nil {
			in.log.Warn("price point not persisted",
				slog.String("symbol", p.Symbol),
				slog.String("err", err.Error()))
		}
	}
	if in.cache != nil {
		if err := in.cache.SetLatestPrice(ctx, p); err != nil {
			in.log.Debug("latest-price cache update failed",
				slog.String("symbol", p.Symbol),
				slog.String("err", err.Error()))
		}
	}
}

// noteCycle tracks consecutive fully-failed cycles and raises an alert
// at the configured threshold.
func (in *Ingestor) noteCycle(stats CycleStats) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if stats.Attempted == 0 {
		return
	}
	if stats.Fetched > 0 {
		in.consecFails = 0
		return
	}

	in.consecFails++
	if in.consecFails == in.alertAfter && in.notifier != nil {
		alert := notification.Alert{
			Level:   notification.AlertCritical,
			Title:   "price ingestion stalled",
			Message: fmt.Sprintf("%d consecutive cycles fetched zero prices", in.consecFails),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if err := in.notifier.Send(ctx, alert); err != nil {
				in.log.Error("ingestion alert not delivered", slog.String("err", err.Error()))
			}
		}()
	}
}

// ConsecutiveFailures reports the current fully-failed cycle streak.
func (in *Ingestor) ConsecutiveFailures() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.consecFails
}
