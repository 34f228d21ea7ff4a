// Package feed normalizes heterogeneous external price sources into one
// gateway interface with per-call timeouts, ordered adapter fallback,
// and retry-with-backoff. Adapters are swappable per market class
// without touching scheduler or scorer logic.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Failure kinds for a provider attempt. The gateway's fallback loop
// treats them all the same way (move to the next adapter); the retry
// classifier and metrics distinguish them.
var (
	// ErrNoPrice is returned when every adapter for a market has been
	// exhausted. It is a normal outcome for a cycle, never a panic.
	ErrNoPrice = errors.New("no price available from any provider")

	// ErrBadPayload marks a response that arrived but could not be parsed
	// into a usable price.
	ErrBadPayload = errors.New("malformed provider payload")

	// ErrRateLimited marks an HTTP 429 from a provider.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrUnavailable marks transport failures and 5xx responses.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrUnknownSymbol marks a symbol the adapter cannot serve. Not
	// retryable: the same symbol will fail the same way next attempt.
	ErrUnknownSymbol = errors.New("symbol not served by provider")
)

// Quote is the normalized result of one provider call.
type Quote struct {
	Price float64
	TS    time.Time
}

// Adapter is the contract every concrete price source satisfies.
type Adapter interface {
	// Name identifies the provider, recorded as PricePoint.Source.
	Name() string

	// Quote fetches the current price for a symbol. The caller supplies a
	// context that already carries the per-attempt timeout.
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// statusErr maps an HTTP status to the failure taxonomy.
func statusErr(provider string, code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", provider, ErrRateLimited)
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", provider, ErrUnknownSymbol)
	default:
		return fmt.Errorf("%s: status %d: %w", provider, code, ErrUnavailable)
	}
}

// Retryable classifies gateway errors for the retry combinator:
// transient failures (timeout, rate limit, bad payload, unavailable)
// are retryable; an unknown symbol is not.
func Retryable(err error) bool {
	return !errors.Is(err, ErrUnknownSymbol)
}
