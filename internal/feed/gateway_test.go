package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-enginev1/internal/model"
)

// stubAdapter is a scriptable adapter for gateway tests.
type stubAdapter struct {
	name  string
	price float64
	err   error
	calls int
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Quote(ctx context.Context, symbol string) (Quote, error) {
	s.calls++
	if s.err != nil {
		return Quote{}, s.err
	}
	return Quote{Price: s.price, TS: time.Now().UTC()}, nil
}

func fastGateway() *Gateway {
	return NewGateway(GatewayConfig{
		AttemptTimeout: time.Second,
		MaxAttempts:    1,
		BackoffBase:    time.Millisecond,
	})
}

// TestFallbackToSecondAdapter: if adapter A fails and B succeeds, the
// returned price is B's, tagged with B's source, and no panic or error
// reaches the caller.
func TestFallbackToSecondAdapter(t *testing.T) {
	g := fastGateway()
	a := &stubAdapter{name: "a", err: fmt.Errorf("down: %w", ErrUnavailable)}
	b := &stubAdapter{name: "b", price: 42000}
	g.Register(model.MarketCrypto, a)
	g.Register(model.MarketCrypto, b)

	p, err := g.FetchPrice(context.Background(), "BTCUSDT", model.MarketCrypto)
	require.NoError(t, err)
	assert.Equal(t, "b", p.Source)
	assert.Equal(t, 42000.0, p.Price)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestExhaustedChainReturnsNoPrice(t *testing.T) {
	g := fastGateway()
	g.Register(model.MarketForex, &stubAdapter{name: "a", err: fmt.Errorf("x: %w", ErrUnavailable)})
	g.Register(model.MarketForex, &stubAdapter{name: "b", err: fmt.Errorf("y: %w", ErrRateLimited)})

	_, err := g.FetchPrice(context.Background(), "EURUSD", model.MarketForex)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPrice), "want ErrNoPrice, got %v", err)
}

func TestRetryWrapperRetriesChain(t *testing.T) {
	g := NewGateway(GatewayConfig{
		AttemptTimeout: time.Second,
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
	})
	a := &stubAdapter{name: "flaky", err: fmt.Errorf("down: %w", ErrUnavailable)}
	g.Register(model.MarketCrypto, a)

	_, err := g.FetchPrice(context.Background(), "ETHUSDT", model.MarketCrypto)
	require.Error(t, err)
	assert.Equal(t, 3, a.calls, "chain should be retried MaxAttempts times")
}

func TestUnknownSymbolIsNotRetried(t *testing.T) {
	g := NewGateway(GatewayConfig{
		AttemptTimeout: time.Second,
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
	})
	a := &stubAdapter{name: "a", err: fmt.Errorf("nope: %w", ErrUnknownSymbol)}
	g.Register(model.MarketStocks, a)

	_, err := g.FetchPrice(context.Background(), "WAT", model.MarketStocks)
	require.Error(t, err)
	assert.Equal(t, 1, a.calls)
}

// TestCommoditySyntheticFallback: with every commodity provider down and
// a known baseline, the gateway answers a jittered baseline price tagged
// source=fallback instead of failing.
func TestCommoditySyntheticFallback(t *testing.T) {
	g := NewGateway(GatewayConfig{
		AttemptTimeout:     time.Second,
		MaxAttempts:        1,
		BackoffBase:        time.Millisecond,
		CommodityBaselines: map[string]float64{"XAUUSD": 2400},
	})
	g.Register(model.MarketCommodities, &stubAdapter{name: "dead", err: fmt.Errorf("down: %w", ErrUnavailable)})

	p, err := g.FetchPrice(context.Background(), "XAUUSD", model.MarketCommodities)
	require.NoError(t, err)
	assert.Equal(t, model.SourceFallback, p.Source)
	assert.InDelta(t, 2400, p.Price, 2400*fallbackJitterPct+1e-9)
}

func TestCommodityFallbackNeedsBaseline(t *testing.T) {
	g := fastGateway()
	g.Register(model.MarketCommodities, &stubAdapter{name: "dead", err: fmt.Errorf("down: %w", ErrUnavailable)})

	_, err := g.FetchPrice(context.Background(), "XPTUSD", model.MarketCommodities)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPrice))
}

func TestLiveCommodityPriceUpdatesBaseline(t *testing.T) {
	g := fastGateway()
	live := &stubAdapter{name: "live", price: 2500}
	g.Register(model.MarketCommodities, live)

	_, err := g.FetchPrice(context.Background(), "XAUUSD", model.MarketCommodities)
	require.NoError(t, err)

	// Kill the provider: fallback should now use the observed 2500.
	live.err = fmt.Errorf("down: %w", ErrUnavailable)
	p, err := g.FetchPrice(context.Background(), "XAUUSD", model.MarketCommodities)
	require.NoError(t, err)
	assert.Equal(t, model.SourceFallback, p.Source)
	assert.InDelta(t, 2500, p.Price, 2500*fallbackJitterPct+1e-9)
}

func TestNoAdaptersRegistered(t *testing.T) {
	g := fastGateway()
	_, err := g.FetchPrice(context.Background(), "AAPL", model.MarketStocks)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPrice))
}

// TestBinanceAdapterParsesTicker exercises the HTTP adapter against a
// local stand-in server.
func TestBinanceAdapterParsesTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `{"symbol":"BTCUSDT","price":"65000.10"}`)
	}))
	defer srv.Close()

	a := NewBinance(srv.URL)
	q, err := a.Quote(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 65000.10, q.Price)
}

func TestBinanceAdapterBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"BTCUSDT","price":"not-a-number"}`)
	}))
	defer srv.Close()

	_, err := NewBinance(srv.URL).Quote(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadPayload))
}

func TestAdapterRateLimitStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewBinance(srv.URL).Quote(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestFrankfurterAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "EUR", r.URL.Query().Get("from"))
		assert.Equal(t, "USD", r.URL.Query().Get("to"))
		fmt.Fprint(w, `{"base":"EUR","rates":{"USD":1.0842}}`)
	}))
	defer srv.Close()

	q, err := NewFrankfurter(srv.URL).Quote(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.0842, q.Price)
}

func TestForexPairValidation(t *testing.T) {
	_, err := NewFrankfurter("http://127.0.0.1:0").Quote(context.Background(), "EUR")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownSymbol))
}

func TestStooqAdapterParsesCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "aapl.us", r.URL.Query().Get("s"))
		fmt.Fprint(w, "Symbol,Date,Time,Open,High,Low,Close,Volume\nAAPL.US,2026-03-02,21:59:59,228.1,231.4,227.9,230.55,41235000\n")
	}))
	defer srv.Close()

	q, err := NewStooq(srv.URL).Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 230.55, q.Price)
}

func TestStooqAdapterUnknownSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Symbol,Date,Time,Open,High,Low,Close,Volume\nWAT.US,N/D,N/D,N/D,N/D,N/D,N/D,N/D\n")
	}))
	defer srv.Close()

	_, err := NewStooq(srv.URL).Quote(context.Background(), "WAT")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownSymbol))
}

func TestFinnhubEmptyQuoteIsUnknownSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"c":0,"t":0}`)
	}))
	defer srv.Close()

	_, err := NewFinnhub(srv.URL, "key").Quote(context.Background(), "NOPE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownSymbol))
}
