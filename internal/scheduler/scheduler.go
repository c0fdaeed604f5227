// Package scheduler owns the polling cadence: it decides which feeds are
// due and enqueues fetch jobs, without executing any fetch itself.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/reader-engine/internal/metrics"
	"github.com/JakeFAU/reader-engine/internal/reader"
)

// Config controls the scheduling loop.
type Config struct {
	Tick            time.Duration
	BatchSize       int
	DefaultInterval time.Duration
}

// Scheduler is a single periodic loop. Exactly one instance may run
// against a feed store; the design assumes a single writer for the
// optimistic next_run_at advance.
type Scheduler struct {
	store  reader.FeedStore
	queue  reader.Queue
	clock  reader.Clock
	idGen  reader.IDGenerator
	cfg    Config
	logger *zap.Logger
}

// New constructs a Scheduler.
func New(
	store reader.FeedStore,
	queue reader.Queue,
	clock reader.Clock,
	idGen reader.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 15 * time.Minute
	}
	return &Scheduler{
		store:  store,
		queue:  queue,
		clock:  clock,
		idGen:  idGen,
		cfg:    cfg,
		logger: logger,
	}
}

// Run ticks until the context finishes. Errors inside a tick are logged
// and retried on the next tick; the loop itself never crashes.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick enqueues a fetch job for every due feed, then optimistically
// advances its next_run_at so the feed is not re-selected next tick. The
// result writer overwrites this with the authoritative value when the
// fetch completes. Enqueue failures skip the advance, so a queue outage
// is retried next tick instead of silently skipping an interval.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()
	feeds, err := s.store.ListDueFeeds(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("list due feeds failed", zap.Error(err))
		return
	}
	if len(feeds) == 0 {
		return
	}
	s.logger.Debug("scheduling due feeds", zap.Int("count", len(feeds)))

	for _, feed := range feeds {
		if err := s.enqueue(ctx, feed.ID, now, false); err != nil {
			s.logger.Warn("enqueue failed, will retry next tick",
				zap.String("feed_id", feed.ID), zap.Error(err))
			continue
		}
		next := now.Add(feed.Interval(s.cfg.DefaultInterval))
		if err := s.store.AdvanceNextRun(ctx, feed.ID, next); err != nil {
			// Worst case the feed is re-enqueued next tick; the duplicate
			// fetch is a cheap conditional no-op.
			s.logger.Warn("advance next run failed",
				zap.String("feed_id", feed.ID), zap.Error(err))
		}
	}
}

// TriggerNow enqueues one immediate job for a feed regardless of its
// next_run_at, for feed creation and manual refresh.
func (s *Scheduler) TriggerNow(ctx context.Context, feedID string) error {
	return s.enqueue(ctx, feedID, s.clock.Now(), true)
}

func (s *Scheduler) enqueue(ctx context.Context, feedID string, now time.Time, manual bool) error {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return err
	}
	job := reader.FetchJob{
		JobID:      jobID,
		FeedID:     feedID,
		EnqueuedAt: now,
		Manual:     manual,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return err
	}
	trigger := "scheduled"
	if manual {
		trigger = "manual"
	}
	metrics.IncJobsEnqueued(trigger)
	return nil
}
