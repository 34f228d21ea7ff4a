package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// FinnhubAdapter serves equity quotes from Finnhub. Requires an API key;
// the gateway only registers it when one is configured.
type FinnhubAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewFinnhub creates the Finnhub adapter. baseURL "" uses production.
func NewFinnhub(baseURL, apiKey string) *FinnhubAdapter {
	if baseURL == "" {
		baseURL = "https://finnhub.io"
	}
	return &FinnhubAdapter{baseURL: baseURL, apiKey: apiKey, client: newHTTPClient()}
}

func (a *FinnhubAdapter) Name() string { return "finnhub" }

func (a *FinnhubAdapter) Quote(ctx context.Context, symbol string) (Quote, error) {
	var payload struct {
		Current   float64 `json:"c"`
		Timestamp int64   `json:"t"`
	}
	u := fmt.Sprintf("%s/api/v1/quote?symbol=%s&token=%s", a.baseURL, url.QueryEscape(symbol), a.apiKey)
	if err := httpDo(ctx, a.client, a.Name(), u, nil, &payload); err != nil {
		return Quote{}, err
	}
	if payload.Current <= 0 {
		// Finnhub answers 200 with zeros for unknown symbols.
		return Quote{}, fmt.Errorf("%s: empty quote for %s: %w", a.Name(), symbol, ErrUnknownSymbol)
	}
	ts := time.Now().UTC()
	if payload.Timestamp > 0 {
		ts = time.Unix(payload.Timestamp, 0).UTC()
	}
	return Quote{Price: payload.Current, TS: ts}, nil
}

// StooqAdapter is the key-less secondary equity source. Stooq answers
// CSV; US tickers are suffixed ".us" on their side.
type StooqAdapter struct {
	baseURL string
	client  *http.Client
}

// NewStooq creates the Stooq adapter. baseURL "" uses production.
func NewStooq(baseURL string) *StooqAdapter {
	if baseURL == "" {
		baseURL = "https://stooq.com"
	}
	return &StooqAdapter{baseURL: baseURL, client: newHTTPClient()}
}

func (a *StooqAdapter) Name() string { return "stooq" }

func (a *StooqAdapter) Quote(ctx context.Context, symbol string) (Quote, error) {
	stooqSym := strings.ToLower(symbol)
	if !strings.Contains(stooqSym, ".") {
		stooqSym += ".us"
	}
	u := fmt.Sprintf("%s/q/l/?s=%s&f=sd2t2ohlcv&h&e=csv", a.baseURL, url.QueryEscape(stooqSym))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("%s: build request: %w", a.Name(), err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %v: %w", a.Name(), err, ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Quote{}, statusErr(a.Name(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return Quote{}, fmt.Errorf("%s: read: %v: %w", a.Name(), err, ErrUnavailable)
	}

	// Header line then one data line:
	// Symbol,Date,Time,Open,High,Low,Close,Volume
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) < 2 {
		return Quote{}, fmt.Errorf("%s: short csv: %w", a.Name(), ErrBadPayload)
	}
	fields := strings.Split(strings.TrimSpace(lines[1]), ",")
	if len(fields) < 7 {
		return Quote{}, fmt.Errorf("%s: csv fields: %w", a.Name(), ErrBadPayload)
	}
	price, err := strconv.ParseFloat(fields[6], 64)
	if err != nil || price <= 0 {
		// Stooq writes "N/D" for unknown symbols.
		return Quote{}, fmt.Errorf("%s: close %q for %s: %w", a.Name(), fields[6], symbol, ErrUnknownSymbol)
	}
	return Quote{Price: price, TS: time.Now().UTC()}, nil
}
