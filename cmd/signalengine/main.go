package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"signal-enginev1/config"
	"signal-enginev1/internal/api"
	"signal-enginev1/internal/feed"
	"signal-enginev1/internal/gateway"
	"signal-enginev1/internal/history"
	"signal-enginev1/internal/ingest"
	"signal-enginev1/internal/logger"
	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/monitor"
	"signal-enginev1/internal/notification"
	"signal-enginev1/internal/portfolio"
	"signal-enginev1/internal/scheduler"
	"signal-enginev1/internal/scorer"
	redisstore "signal-enginev1/internal/store/redis"
	sqlitestore "signal-enginev1/internal/store/sqlite"
)

func main() {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	log := logger.Init("signal-engine", level)
	log.Info("starting")

	cfg := config.Load()

	// ---- Instrument universe (malformed config is fatal) ----
	universe, err := model.ParseInstruments(cfg.Instruments)
	if err != nil {
		log.Error("bad instrument universe", "error", err)
		os.Exit(1)
	}
	symbols := make([]string, len(universe))
	for i, inst := range universe {
		symbols[i] = inst.Symbol
	}
	log.Info("universe loaded", "instruments", len(universe))

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetInstruments(symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Shutdown plumbing ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite (system of record) ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Error("sqlite init failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	health.SetSQLiteOK(true)

	// ---- Redis (latest-price mirror + event republish), optional ----
	var (
		cache    *redisstore.Cache
		buffered *redisstore.Buffered
	)
	cache, err = redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Warn("redis unavailable, continuing without cache", "error", err)
		health.SetRedisConnected(false)
		cache = nil
	} else {
		health.SetRedisConnected(true)
		defer cache.Close()

		cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			log.Warn("redis circuit breaker transition", "from", from.String(), "to", to.String())
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
		}
		buffered = redisstore.NewBuffered(ctx, cache, cb, 0)
		buffered.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
	}

	if cache != nil {
		health.StartLivenessChecker(ctx, cache.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}

	// ---- Rolling price history ----
	histBook := history.NewBook(cfg.HistoryCap)

	// ---- Event hub (WebSocket fan-out + Redis republish) ----
	var sink gateway.Sink
	if buffered != nil {
		sink = buffered
	}
	hub := gateway.NewHub(store, sink)
	hub.OnPublish = func(typ model.EventType) {
		prom.EventsPublished.WithLabelValues(string(typ)).Inc()
	}
	go hub.RunHeartbeat(ctx)
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n := hub.ClientCount()
				prom.WSClients.Set(float64(n))
				health.SetWSClients(n)
			}
		}
	}()

	// ---- Provider gateway ----
	feedGW := feed.NewGateway(feed.GatewayConfig{
		CommodityBaselines: map[string]float64{
			"XAUUSD": 2400,
			"XAGUSD": 28,
		},
		Logger: log,
	})
	feedGW.OnAdapterError = func(adapter, symbol string, err error) {
		prom.ProviderFailures.WithLabelValues(adapter).Inc()
	}

	feedGW.Register(model.MarketCrypto, feed.NewBinance(""))
	feedGW.Register(model.MarketCrypto, feed.NewMEXC(""))
	feedGW.Register(model.MarketForex, feed.NewFrankfurter(""))
	if cfg.ExchangeRateAPIKey != "" {
		feedGW.Register(model.MarketForex, feed.NewExchangeRateHost("", cfg.ExchangeRateAPIKey))
	}
	if cfg.FinnhubAPIKey != "" {
		feedGW.Register(model.MarketStocks, feed.NewFinnhub("", cfg.FinnhubAPIKey))
	}
	feedGW.Register(model.MarketStocks, feed.NewStooq(""))
	if cfg.GoldAPIKey != "" {
		feedGW.Register(model.MarketCommodities, feed.NewGoldAPI("", cfg.GoldAPIKey))
	} else {
		log.Warn("no commodity provider key, relying on synthetic fallback")
	}

	// ---- Operational alerts ----
	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.AlertWebhookURL != "" {
		notifier = notification.NewMulti(
			notification.NewLogNotifier(),
			notification.NewWebhookNotifier(cfg.AlertWebhookURL),
		)
	}

	// ---- Ingestion ----
	ingestCfg := ingest.Config{
		Fetcher:         feedGW,
		Book:            histBook,
		Store:           store,
		InterBatchDelay: cfg.InterBatchDelay,
		AlertThreshold:  cfg.CycleAlertThreshold,
		Notifier:        notifier,
		Logger:          log,
		OnResult: func(symbol, source string, err error) {
			outcome := "success"
			if err != nil {
				outcome = "failure"
			} else {
				health.SetLastFetchTime(time.Now())
			}
			prom.FetchesTotal.WithLabelValues(symbol, outcome).Inc()
		},
	}
	if buffered != nil {
		ingestCfg.Cache = buffered
	}
	ingestor := ingest.New(ingestCfg)

	// ---- Position book ----
	account := portfolio.NewSimAccount(decimal.NewFromFloat(cfg.InitialBalance))
	posBook := portfolio.NewBook(store, account)
	if err := posBook.Restore(ctx); err != nil {
		log.Warn("restore open positions failed", "error", err)
	} else {
		log.Info("open positions restored", "count", len(posBook.OpenPositions()))
	}

	// ---- Scoring ----
	scoreEngine := scorer.New(scorer.Config{
		Book:                histBook,
		Signals:             store,
		Publisher:           hub,
		MinHistory:          cfg.MinHistory,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		StrengthFloor:       cfg.StrengthFloor,
		Logger:              log,
		OnSignal: func(s model.Signal) {
			prom.SignalsTotal.WithLabelValues(string(s.Direction)).Inc()
			prom.SignalStrength.Observe(float64(s.Confidence))
		},
	})

	// ---- Position monitor ----
	posMonitor := monitor.New(monitor.Config{
		Positions: posBook,
		History:   histBook,
		Publisher: hub,
		Logger:    log,
		OnClosure: func(p model.Position) {
			prom.PositionsClosedTotal.WithLabelValues(string(p.CloseReason)).Inc()
		},
	})

	// ---- Scheduler ----
	sched := scheduler.New(scheduler.Config{
		Universe:         universe,
		Ingestor:         ingestor,
		Scorer:           scoreEngine,
		Monitor:          posMonitor,
		ShortCyclePeriod: cfg.ShortCyclePeriod,
		LongCyclePeriod:  cfg.LongCyclePeriod,
		ScorePeriod:      cfg.ScorePeriod,
		MonitorPeriod:    cfg.MonitorPeriod,
		Logger:           log,
		OnCycle: func(job string, d time.Duration) {
			prom.CycleDuration.WithLabelValues(job).Observe(d.Seconds())
		},
	})
	if err := sched.Start(ctx); err != nil {
		log.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}
	health.SetSchedulerOK(true)

	// ---- REST + WebSocket API ----
	apiSrv := &http.Server{
		Addr: cfg.APIAddr,
		Handler: api.NewRouter(api.Config{
			Positions: posBook,
			Account:   account,
			Signals:   store,
			History:   histBook,
			Hub:       hub,
			Universe:  universe,
			Health:    health,
			Logger:    log,
		}),
	}
	go func() {
		log.Info("api server listening", "addr", cfg.APIAddr)
		if err := apiSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("api server error", "error", err)
		}
	}()

	log.Info("pipeline ready",
		"api", cfg.APIAddr,
		"metrics", cfg.MetricsAddr,
		"short_cycle", cfg.ShortCyclePeriod.String(),
		"long_cycle", cfg.LongCyclePeriod.String())

	// ---- Wait for shutdown ----
	<-sigCh
	log.Info("shutdown signal received")
	cancel()

	sched.Stop()
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	log.Info("shutdown complete")
}
