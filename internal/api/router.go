// Package api exposes the REST and WebSocket surface of the signal
// engine: active signals, the position book, account state, and the
// live event stream.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"signal-enginev1/internal/gateway"
	"signal-enginev1/internal/history"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/portfolio"
)

// Config wires the router to the running components. Health may be nil;
// /healthz then reports a bare ok.
type Config struct {
	Positions *portfolio.Book
	Account   *portfolio.SimAccount
	Signals   model.SignalStore
	History   *history.Book
	Hub       *gateway.Hub
	Universe  []model.Instrument
	Health    http.Handler
	Logger    *slog.Logger
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// NewRouter registers all HTTP routes and returns the mux.
func NewRouter(cfg Config) *http.ServeMux {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	markets := make(map[string]model.MarketClass, len(cfg.Universe))
	for _, inst := range cfg.Universe {
		markets[inst.Symbol] = inst.Market
	}

	mux := http.NewServeMux()

	// WebSocket event stream
	mux.HandleFunc("/ws", cfg.Hub.HandleWS)

	// REST: active signals, strongest first
	mux.HandleFunc("/api/v1/signals", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		if r.Method != http.MethodGet {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}

		signals, err := cfg.Signals.ActiveSignals(r.Context(), time.Now().UTC())
		if err != nil {
			log.Error("list signals failed", "error", err)
			http.Error(w, `{"error":"storage unavailable"}`, http.StatusInternalServerError)
			return
		}
		if signals == nil {
			signals = []model.Signal{}
		}
		json.NewEncoder(w).Encode(signals)
	})

	// REST: the instrument universe
	mux.HandleFunc("/api/v1/instruments", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cfg.Universe)
	})

	// REST: account summary
	mux.HandleFunc("/api/v1/account", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		if cfg.Account == nil {
			http.Error(w, `{"error":"no account configured"}`, http.StatusNotFound)
			return
		}
		summary := cfg.Account.Summary()
		json.NewEncoder(w).Encode(struct {
			portfolio.AccountSummary
			UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
			OpenPositions int             `json:"open_positions"`
		}{
			AccountSummary: summary,
			UnrealizedPnL:  cfg.Positions.TotalUnrealizedPnL(),
			OpenPositions:  len(cfg.Positions.OpenPositions()),
		})
	})

	// REST: GET (list) / POST (open) /api/v1/positions
	mux.HandleFunc("/api/v1/positions", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)

		case http.MethodGet:
			if r.URL.Query().Get("status") == "closed" {
				json.NewEncoder(w).Encode(cfg.Positions.ClosedPositions())
				return
			}
			json.NewEncoder(w).Encode(cfg.Positions.OpenPositions())

		case http.MethodPost:
			handleOpenPosition(w, r, cfg, markets, log)

		default:
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		}
	})

	// REST: POST /api/v1/positions/{id}/close
	mux.HandleFunc("/api/v1/positions/", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/positions/")
		idStr, action, _ := strings.Cut(rest, "/")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			http.Error(w, `{"error":"bad position id"}`, http.StatusBadRequest)
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			p, ok := cfg.Positions.Get(id)
			if !ok {
				http.Error(w, `{"error":"position not found"}`, http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(p)

		case action == "close" && r.Method == http.MethodPost:
			handleClosePosition(w, r, cfg, id, log)

		default:
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		}
	})

	// Health check
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			cfg.Health.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	return mux
}

type openRequest struct {
	Symbol      string          `json:"symbol"`
	Direction   model.Direction `json:"direction"`
	Quantity    decimal.Decimal `json:"quantity"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	TargetPrice decimal.Decimal `json:"target_price"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
}

func handleOpenPosition(w http.ResponseWriter, r *http.Request, cfg Config, markets map[string]model.MarketClass, log *slog.Logger) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	market, tracked := markets[symbol]
	if !tracked {
		http.Error(w, `{"error":"unknown symbol"}`, http.StatusBadRequest)
		return
	}

	// No explicit entry price means fill at the latest observation.
	entry := req.EntryPrice
	if entry.IsZero() {
		latest, ok := cfg.History.Latest(symbol)
		if !ok {
			http.Error(w, `{"error":"no price observed yet for symbol"}`, http.StatusConflict)
			return
		}
		entry = decimal.NewFromFloat(latest.Price)
	}

	p, err := cfg.Positions.Open(r.Context(), model.Position{
		Symbol:      symbol,
		Direction:   req.Direction,
		Quantity:    req.Quantity,
		EntryPrice:  entry,
		TargetPrice: req.TargetPrice,
		StopLoss:    req.StopLoss,
		Market:      market,
	})
	if err != nil {
		http.Error(w, `{"error":`+strconv.Quote(err.Error())+`}`, http.StatusBadRequest)
		return
	}

	log.Info("position opened via api",
		"id", p.ID, "symbol", p.Symbol, "direction", p.Direction, "entry", entry)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(p)
}

type closeRequest struct {
	Price decimal.Decimal `json:"price"`
}

func handleClosePosition(w http.ResponseWriter, r *http.Request, cfg Config, id int64, log *slog.Logger) {
	var req closeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
	}

	price := req.Price
	if price.IsZero() {
		p, ok := cfg.Positions.Get(id)
		if !ok {
			http.Error(w, `{"error":"position not found"}`, http.StatusNotFound)
			return
		}
		if latest, ok := cfg.History.Latest(p.Symbol); ok {
			price = decimal.NewFromFloat(latest.Price)
		} else {
			price = p.CurrentPrice
		}
	}

	closed, err := cfg.Positions.Close(r.Context(), id, price, model.CloseManual)
	switch {
	case errors.Is(err, portfolio.ErrPositionNotFound):
		http.Error(w, `{"error":"position not found"}`, http.StatusNotFound)
		return
	case errors.Is(err, portfolio.ErrPositionClosed):
		http.Error(w, `{"error":"position already closed"}`, http.StatusConflict)
		return
	case err != nil:
		// The close took effect in memory; only durability failed.
		log.Error("persist manual close failed", "id", id, "error", err)
	}

	log.Info("position closed via api",
		"id", id, "price", price, "pnl", closed.RealizedPnL)
	json.NewEncoder(w).Encode(closed)
}
