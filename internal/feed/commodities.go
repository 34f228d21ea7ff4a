package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// GoldAPIAdapter serves precious-metal spot prices. Requires an API key;
// the gateway only registers it when one is configured. Symbols are
// pair-form (XAUUSD → /XAU/USD).
type GoldAPIAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewGoldAPI creates the goldapi.io adapter. baseURL "" uses production.
func NewGoldAPI(baseURL, apiKey string) *GoldAPIAdapter {
	if baseURL == "" {
		baseURL = "https://www.goldapi.io"
	}
	return &GoldAPIAdapter{baseURL: baseURL, apiKey: apiKey, client: newHTTPClient()}
}

func (a *GoldAPIAdapter) Name() string { return "goldapi" }

func (a *GoldAPIAdapter) Quote(ctx context.Context, symbol string) (Quote, error) {
	if len(symbol) != 6 {
		return Quote{}, fmt.Errorf("commodity symbol %q: %w", symbol, ErrUnknownSymbol)
	}
	metal, currency := strings.ToUpper(symbol[:3]), strings.ToUpper(symbol[3:])

	var payload struct {
		Price     float64 `json:"price"`
		Timestamp int64   `json:"timestamp"`
	}
	u := fmt.Sprintf("%s/api/%s/%s", a.baseURL, metal, currency)
	headers := map[string]string{"x-access-token": a.apiKey}
	if err := httpDo(ctx, a.client, a.Name(), u, headers, &payload); err != nil {
		return Quote{}, err
	}
	if payload.Price <= 0 {
		return Quote{}, fmt.Errorf("%s: empty price for %s: %w", a.Name(), symbol, ErrBadPayload)
	}
	ts := time.Now().UTC()
	if payload.Timestamp > 0 {
		ts = time.Unix(payload.Timestamp, 0).UTC()
	}
	return Quote{Price: payload.Price, TS: ts}, nil
}
