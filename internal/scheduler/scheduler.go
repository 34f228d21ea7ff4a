// Package scheduler owns every periodic job of the pipeline: the short
// and long ingestion cycles, scoring passes, and the position monitor.
// All job handles live on one lifecycle-managed object; nothing runs on
// a free-floating ticker.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"signal-enginev1/internal/ingest"
	"signal-enginev1/internal/logger"
	"signal-enginev1/internal/model"
)

const (
	defaultShortCycle = 30 * time.Second
	defaultLongCycle  = 2 * time.Minute
	defaultScoreCycle = 60 * time.Second
	defaultMonitor    = 60 * time.Second

	stopGrace = 5 * time.Second
)

// Ingestor is the scheduler's view of the ingestion component.
type Ingestor interface {
	RunCycle(ctx context.Context, instruments []model.Instrument) ingest.CycleStats
}

// Scorer runs a scoring pass over the universe.
type Scorer interface {
	RunCycle(ctx context.Context, instruments []model.Instrument)
}

// Monitor runs one position-monitoring pass.
type Monitor interface {
	RunCycle(ctx context.Context)
}

// Config wires a Scheduler.
type Config struct {
	Universe []model.Instrument

	Ingestor Ingestor
	Scorer   Scorer
	Monitor  Monitor

	ShortCyclePeriod time.Duration
	LongCyclePeriod  time.Duration
	ScorePeriod      time.Duration
	MonitorPeriod    time.Duration

	// OnCycle is an optional metrics hook observing each completed
	// ingestion cycle's duration.
	OnCycle func(job string, d time.Duration)

	Logger *slog.Logger
}

// Scheduler runs the periodic jobs. A run that outlasts its period is
// skipped, never stacked: each job carries its own busy flag, since
// gocron's singleton mode serializes the extra run instead of dropping
// it.
type Scheduler struct {
	cfg    Config
	cron   *gocron.Scheduler
	cancel context.CancelFunc
	log    *slog.Logger

	highTier []model.Instrument

	busyShort   atomic.Bool
	busyLong    atomic.Bool
	busyScore   atomic.Bool
	busyMonitor atomic.Bool
}

func New(cfg Config) *Scheduler {
	if cfg.ShortCyclePeriod <= 0 {
		cfg.ShortCyclePeriod = defaultShortCycle
	}
	if cfg.LongCyclePeriod <= 0 {
		cfg.LongCyclePeriod = defaultLongCycle
	}
	if cfg.ScorePeriod <= 0 {
		cfg.ScorePeriod = defaultScoreCycle
	}
	if cfg.MonitorPeriod <= 0 {
		cfg.MonitorPeriod = defaultMonitor
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scheduler{
		cfg:      cfg,
		cron:     gocron.NewScheduler(time.UTC),
		log:      cfg.Logger,
		highTier: model.PartitionByTier(cfg.Universe)[model.TierHigh],
	}
}

// Start registers and launches all jobs. The returned error only covers
// job registration; job failures are logged, never fatal.
func (s *Scheduler) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	if _, err := s.cron.Every(s.cfg.ShortCyclePeriod).Do(func() {
		s.exclusive(&s.busyShort, "short", func() { s.runIngest(ctx, "short", s.highTier) })
	}); err != nil {
		return err
	}
	if _, err := s.cron.Every(s.cfg.LongCyclePeriod).Do(func() {
		s.exclusive(&s.busyLong, "long", func() { s.runIngest(ctx, "long", s.cfg.Universe) })
	}); err != nil {
		return err
	}
	if _, err := s.cron.Every(s.cfg.ScorePeriod).Do(func() {
		s.exclusive(&s.busyScore, "score", func() { s.runScoring(ctx) })
	}); err != nil {
		return err
	}
	if _, err := s.cron.Every(s.cfg.MonitorPeriod).Do(func() {
		s.exclusive(&s.busyMonitor, "monitor", func() { s.runMonitor(ctx) })
	}); err != nil {
		return err
	}

	s.cron.StartAsync()
	s.log.Info("scheduler started",
		slog.Duration("short_cycle", s.cfg.ShortCyclePeriod),
		slog.Duration("long_cycle", s.cfg.LongCyclePeriod),
		slog.Duration("score_cycle", s.cfg.ScorePeriod),
		slog.Duration("monitor_cycle", s.cfg.MonitorPeriod),
		slog.Int("universe", len(s.cfg.Universe)),
		slog.Int("high_tier", len(s.highTier)))
	return nil
}

// Stop cancels the job context, halts the cron loop, and gives in-flight
// work a bounded grace period.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.cron.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.log.Warn("scheduler stop grace period elapsed")
	}
	s.log.Info("scheduler stopped")
}

// exclusive drops an invocation outright when the previous run of the
// same job has not finished.
func (s *Scheduler) exclusive(busy *atomic.Bool, job string, fn func()) {
	if !busy.CompareAndSwap(false, true) {
		s.log.Warn("previous cycle still running, skipping", slog.String("job", job))
		return
	}
	defer busy.Store(false)
	fn()
}

func (s *Scheduler) runIngest(ctx context.Context, job string, universe []model.Instrument) {
	if ctx.Err() != nil || len(universe) == 0 {
		return
	}
	ctx = logger.WithCycleID(ctx, logger.GenerateCycleID(job, time.Now()))
	start := time.Now()
	stats := s.cfg.Ingestor.RunCycle(ctx, universe)
	elapsed := time.Since(start)

	s.log.Info("ingest cycle done",
		append([]any{
			slog.String("job", job),
			slog.Int("attempted", stats.Attempted),
			slog.Int("fetched", stats.Fetched),
			slog.Int("failed", stats.Failed),
			slog.Duration("elapsed", elapsed),
		}, logger.LogWithCycle(ctx)...)...)

	if s.cfg.OnCycle != nil {
		s.cfg.OnCycle(job, elapsed)
	}
}

func (s *Scheduler) runScoring(ctx context.Context) {
	if ctx.Err() != nil || s.cfg.Scorer == nil {
		return
	}
	start := time.Now()
	s.cfg.Scorer.RunCycle(ctx, s.cfg.Universe)
	if s.cfg.OnCycle != nil {
		s.cfg.OnCycle("score", time.Since(start))
	}
}

func (s *Scheduler) runMonitor(ctx context.Context) {
	if ctx.Err() != nil || s.cfg.Monitor == nil {
		return
	}
	start := time.Now()
	s.cfg.Monitor.RunCycle(ctx)
	if s.cfg.OnCycle != nil {
		s.cfg.OnCycle("monitor", time.Since(start))
	}
}
