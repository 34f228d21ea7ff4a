package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// splitPair breaks a six-letter forex pair (EURUSD) into base and quote
// currencies.
func splitPair(symbol string) (base, quote string, err error) {
	if len(symbol) != 6 {
		return "", "", fmt.Errorf("forex symbol %q: %w", symbol, ErrUnknownSymbol)
	}
	return symbol[:3], symbol[3:], nil
}

// FrankfurterAdapter serves forex pairs from the key-less Frankfurter
// ECB-rate API.
type FrankfurterAdapter struct {
	baseURL string
	client  *http.Client
}

// NewFrankfurter creates the Frankfurter adapter. baseURL "" uses production.
func NewFrankfurter(baseURL string) *FrankfurterAdapter {
	if baseURL == "" {
		baseURL = "https://api.frankfurter.app"
	}
	return &FrankfurterAdapter{baseURL: baseURL, client: newHTTPClient()}
}

func (a *FrankfurterAdapter) Name() string { return "frankfurter" }

func (a *FrankfurterAdapter) Quote(ctx context.Context, symbol string) (Quote, error) {
	base, quote, err := splitPair(symbol)
	if err != nil {
		return Quote{}, err
	}

	var payload struct {
		Rates map[string]float64 `json:"rates"`
	}
	u := fmt.Sprintf("%s/latest?from=%s&to=%s", a.baseURL, base, quote)
	if err := httpDo(ctx, a.client, a.Name(), u, nil, &payload); err != nil {
		return Quote{}, err
	}

	rate, ok := payload.Rates[quote]
	if !ok || rate <= 0 {
		return Quote{}, fmt.Errorf("%s: no rate for %s: %w", a.Name(), symbol, ErrBadPayload)
	}
	return Quote{Price: rate, TS: time.Now().UTC()}, nil
}

// ExchangeRateHostAdapter is the secondary forex source.
type ExchangeRateHostAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewExchangeRateHost creates the exchangerate.host adapter. The API key
// is optional on the free tier; baseURL "" uses production.
func NewExchangeRateHost(baseURL, apiKey string) *ExchangeRateHostAdapter {
	if baseURL == "" {
		baseURL = "https://api.exchangerate.host"
	}
	return &ExchangeRateHostAdapter{baseURL: baseURL, apiKey: apiKey, client: newHTTPClient()}
}

func (a *ExchangeRateHostAdapter) Name() string { return "exchangerate_host" }

func (a *ExchangeRateHostAdapter) Quote(ctx context.Context, symbol string) (Quote, error) {
	base, quote, err := splitPair(symbol)
	if err != nil {
		return Quote{}, err
	}

	var payload struct {
		Success bool               `json:"success"`
		Rates   map[string]float64 `json:"rates"`
	}
	u := fmt.Sprintf("%s/latest?base=%s&symbols=%s", a.baseURL, base, quote)
	if a.apiKey != "" {
		u += "&access_key=" + a.apiKey
	}
	if err := httpDo(ctx, a.client, a.Name(), u, nil, &payload); err != nil {
		return Quote{}, err
	}

	rate, ok := payload.Rates[quote]
	if !ok || rate <= 0 {
		return Quote{}, fmt.Errorf("%s: no rate for %s: %w", a.Name(), symbol, ErrBadPayload)
	}
	return Quote{Price: rate, TS: time.Now().UTC()}, nil
}
