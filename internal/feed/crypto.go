package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// BinanceAdapter serves crypto symbols from the Binance spot ticker.
// Key-less; symbols use Binance's concatenated form (BTCUSDT).
type BinanceAdapter struct {
	baseURL string
	client  *http.Client
}

// NewBinance creates the Binance adapter. baseURL "" uses production.
func NewBinance(baseURL string) *BinanceAdapter {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &BinanceAdapter{baseURL: baseURL, client: newHTTPClient()}
}

func (a *BinanceAdapter) Name() string { return "binance" }

func (a *BinanceAdapter) Quote(ctx context.Context, symbol string) (Quote, error) {
	var payload struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	u := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", a.baseURL, url.QueryEscape(symbol))
	if err := httpDo(ctx, a.client, a.Name(), u, nil, &payload); err != nil {
		return Quote{}, err
	}
	price, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil || price <= 0 {
		return Quote{}, fmt.Errorf("%s: price %q: %w", a.Name(), payload.Price, ErrBadPayload)
	}
	return Quote{Price: price, TS: time.Now().UTC()}, nil
}

// MEXCAdapter is the secondary crypto source. MEXC mirrors Binance's
// spot ticker API shape, so the same symbols work unchanged.
type MEXCAdapter struct {
	baseURL string
	client  *http.Client
}

// NewMEXC creates the MEXC adapter. baseURL "" uses production.
func NewMEXC(baseURL string) *MEXCAdapter {
	if baseURL == "" {
		baseURL = "https://api.mexc.com"
	}
	return &MEXCAdapter{baseURL: baseURL, client: newHTTPClient()}
}

func (a *MEXCAdapter) Name() string { return "mexc" }

func (a *MEXCAdapter) Quote(ctx context.Context, symbol string) (Quote, error) {
	var payload struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	u := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", a.baseURL, url.QueryEscape(symbol))
	if err := httpDo(ctx, a.client, a.Name(), u, nil, &payload); err != nil {
		return Quote{}, err
	}
	price, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil || price <= 0 {
		return Quote{}, fmt.Errorf("%s: price %q: %w", a.Name(), payload.Price, ErrBadPayload)
	}
	return Quote{Price: price, TS: time.Now().UTC()}, nil
}
