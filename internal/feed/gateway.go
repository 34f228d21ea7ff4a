package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"signal-enginev1/internal/model"
	"signal-enginev1/internal/retry"
)

const (
	// defaultAttemptTimeout bounds a single adapter call. Per-call, not
	// per-batch: a stuck provider must not stall the whole batch.
	defaultAttemptTimeout = 8 * time.Second

	// Per-symbol retry budget around the whole adapter chain.
	defaultMaxAttempts = 3
	defaultBackoffBase = 2 * time.Second

	// fallbackJitterPct bounds the random jitter applied to a synthetic
	// commodity baseline price (±0.5%).
	fallbackJitterPct = 0.005
)

// GatewayConfig tunes the gateway. Zero values take the defaults above.
type GatewayConfig struct {
	AttemptTimeout time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration

	// CommodityBaselines seeds the synthetic fallback prices used when
	// every live commodity provider is down. Updated with each live
	// observation afterwards.
	CommodityBaselines map[string]float64

	Logger *slog.Logger
}

// Gateway normalizes price fetching across provider adapters. For each
// call it walks the market's adapters in priority order with independent
// per-attempt timeouts; exhausting the chain is retried with exponential
// backoff before the symbol is given up for the cycle.
type Gateway struct {
	attemptTimeout time.Duration
	policy         retry.Policy
	log            *slog.Logger

	mu        sync.RWMutex
	adapters  map[model.MarketClass][]Adapter
	baselines map[string]float64 // last-known commodity prices

	// OnAdapterError is an optional hook for metrics; called once per
	// failed adapter attempt.
	OnAdapterError func(adapter, symbol string, err error)
}

// NewGateway creates an empty gateway; register adapters per market with
// Register before use.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	baselines := make(map[string]float64, len(cfg.CommodityBaselines))
	for sym, price := range cfg.CommodityBaselines {
		baselines[sym] = price
	}

	return &Gateway{
		attemptTimeout: cfg.AttemptTimeout,
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     retry.ExponentialBackoff(cfg.BackoffBase, 0),
			Retryable:   Retryable,
		},
		log:       cfg.Logger,
		adapters:  make(map[model.MarketClass][]Adapter, 4),
		baselines: baselines,
	}
}

// Register appends an adapter to a market's fallback chain. Order of
// registration is priority order.
func (g *Gateway) Register(market model.MarketClass, a Adapter) {
	g.mu.Lock()
	g.adapters[market] = append(g.adapters[market], a)
	g.mu.Unlock()
}

// AdapterCount returns the number of registered adapters for a market.
func (g *Gateway) AdapterCount(market model.MarketClass) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adapters[market])
}

// FetchPrice resolves the current price of a symbol. Failures surface as
// an error value, never a panic; commodities degrade to a synthetic
// baseline price tagged Source="fallback" so the pipeline cannot stall
// on a dead provider.
func (g *Gateway) FetchPrice(ctx context.Context, symbol string, market model.MarketClass) (model.PricePoint, error) {
	var point model.PricePoint
	err := retry.Do(ctx, g.policy, func(ctx context.Context) error {
		p, err := g.fetchOnce(ctx, symbol, market)
		if err != nil {
			return err
		}
		point = p
		return nil
	})
	if err == nil {
		if market == model.MarketCommodities {
			g.rememberBaseline(symbol, point.Price)
		}
		return point, nil
	}

	if market == model.MarketCommodities {
		if p, ok := g.syntheticFallback(symbol); ok {
			g.log.Warn("all commodity providers down, using synthetic baseline",
				slog.String("symbol", symbol), slog.Float64("price", p.Price))
			return p, nil
		}
	}
	return model.PricePoint{}, err
}

// fetchOnce walks the adapter chain once.
func (g *Gateway) fetchOnce(ctx context.Context, symbol string, market model.MarketClass) (model.PricePoint, error) {
	g.mu.RLock()
	chain := g.adapters[market]
	g.mu.RUnlock()

	if len(chain) == 0 {
		return model.PricePoint{}, fmt.Errorf("%s/%s: no adapters registered: %w", market, symbol, ErrNoPrice)
	}

	var lastErr error
	for _, a := range chain {
		attemptCtx, cancel := context.WithTimeout(ctx, g.attemptTimeout)
		q, err := a.Quote(attemptCtx, symbol)
		cancel()
		if err == nil {
			return model.PricePoint{
				Symbol: symbol,
				Price:  q.Price,
				TS:     q.TS,
				Source: a.Name(),
				Market: market,
			}, nil
		}

		lastErr = err
		if g.OnAdapterError != nil {
			g.OnAdapterError(a.Name(), symbol, err)
		}
		g.log.Debug("provider attempt failed",
			slog.String("adapter", a.Name()),
			slog.String("symbol", symbol),
			slog.String("err", err.Error()))

		if ctx.Err() != nil {
			return model.PricePoint{}, ctx.Err()
		}
	}
	return model.PricePoint{}, fmt.Errorf("%s/%s: %w: %w", market, symbol, lastErr, ErrNoPrice)
}

func (g *Gateway) rememberBaseline(symbol string, price float64) {
	g.mu.Lock()
	g.baselines[symbol] = price
	g.mu.Unlock()
}

// syntheticFallback builds a baseline price with bounded random jitter.
func (g *Gateway) syntheticFallback(symbol string) (model.PricePoint, bool) {
	g.mu.RLock()
	base, ok := g.baselines[symbol]
	g.mu.RUnlock()
	if !ok || base <= 0 {
		return model.PricePoint{}, false
	}

	jitter := (rand.Float64()*2 - 1) * fallbackJitterPct
	return model.PricePoint{
		Symbol: symbol,
		Price:  base * (1 + jitter),
		TS:     time.Now().UTC(),
		Source: model.SourceFallback,
		Market: model.MarketCommodities,
	}, true
}
