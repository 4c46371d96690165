// Package scheduler runs the bridge's periodic jobs: the daily purge of
// abandoned incomplete orders and the recheck of pending KPM reservations.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultPurgeInterval   = 24 * time.Hour
	DefaultPendingInterval = time.Minute
)

// Jobs are the periodic bridge operations. *bridge.Bridge implements it.
type Jobs interface {
	PurgeIncomplete(ctx context.Context) (int, error)
	RunPendingChecks(ctx context.Context) (int, error)
}

// Scheduler runs Jobs on two tickers until its context is cancelled.
type Scheduler struct {
	jobs   Jobs
	logger *slog.Logger

	PurgeInterval   time.Duration
	PendingInterval time.Duration
}

// New returns a scheduler with the default intervals. A nil logger uses
// slog.Default.
func New(jobs Jobs, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:            jobs,
		logger:          logger,
		PurgeInterval:   DefaultPurgeInterval,
		PendingInterval: DefaultPendingInterval,
	}
}

// Run blocks until ctx is done. The purge also runs once at start so a
// service restarted more often than PurgeInterval still purges. A failing
// job is logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.loop(ctx, "purge_incomplete", s.PurgeInterval, true, s.jobs.PurgeIncomplete)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, "pending_checks", s.PendingInterval, false, s.jobs.RunPendingChecks)
	}()
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, atStart bool, job func(context.Context) (int, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduled job started", slog.String("job", name), slog.Duration("interval", interval))
	if atStart {
		s.run(ctx, name, job)
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled job stopped", slog.String("job", name))
			return
		case <-ticker.C:
			s.run(ctx, name, job)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, name string, job func(context.Context) (int, error)) {
	start := time.Now()
	n, err := job(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled job failed",
			slog.String("job", name),
			slog.String("error", err.Error()),
		)
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "scheduled job finished",
			slog.String("job", name),
			slog.Int("processed", n),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
