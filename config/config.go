package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Instrument universe, "SYMBOL:market:tier" comma-separated.
	Instruments string

	// Provider API keys. Optional: an empty key unregisters the adapter.
	FinnhubAPIKey      string
	GoldAPIKey         string
	ExchangeRateAPIKey string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	APIAddr       string

	// Cycle cadence
	ShortCyclePeriod time.Duration
	LongCyclePeriod  time.Duration
	MonitorPeriod    time.Duration
	ScorePeriod      time.Duration
	InterBatchDelay  time.Duration

	// Scoring / history knobs
	HistoryCap          int
	MinHistory          int
	ConfidenceThreshold int
	StrengthFloor       int

	// Consecutive fully-failed ingest cycles before an alert fires.
	CycleAlertThreshold int

	// Starting balance of the simulated account.
	InitialBalance float64

	// Operational alert webhook. Empty disables the webhook notifier.
	AlertWebhookURL string
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is merged in first when
// present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	return &Config{
		// Default universe: one liquid symbol per market class.
		Instruments: getEnv("INSTRUMENTS",
			"BTCUSDT:crypto:high,ETHUSDT:crypto:high,EURUSD:forex:medium,GBPUSD:forex:medium,AAPL:stocks:medium,XAUUSD:commodities:low"),

		FinnhubAPIKey:      getEnv("FINNHUB_API_KEY", ""),
		GoldAPIKey:         getEnv("GOLDAPI_KEY", ""),
		ExchangeRateAPIKey: getEnv("EXCHANGERATE_API_KEY", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		APIAddr:       getEnv("API_ADDR", ":8080"),

		ShortCyclePeriod: getDuration("SHORT_CYCLE_PERIOD", 30*time.Second),
		LongCyclePeriod:  getDuration("LONG_CYCLE_PERIOD", 2*time.Minute),
		MonitorPeriod:    getDuration("MONITOR_PERIOD", 60*time.Second),
		ScorePeriod:      getDuration("SCORE_PERIOD", 60*time.Second),
		InterBatchDelay:  getDuration("INTER_BATCH_DELAY", 500*time.Millisecond),

		HistoryCap:          getInt("HISTORY_CAP", 50),
		MinHistory:          getInt("MIN_HISTORY", 20),
		ConfidenceThreshold: getInt("CONFIDENCE_THRESHOLD", 60),
		StrengthFloor:       getInt("STRENGTH_FLOOR", 25),

		CycleAlertThreshold: getInt("CYCLE_ALERT_THRESHOLD", 5),
		InitialBalance:      getFloat("INITIAL_BALANCE", 10000),
		AlertWebhookURL:     getEnv("ALERT_WEBHOOK_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("[config] ignoring invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] ignoring invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
