// Package worker implements the fetch pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/reader-engine/internal/limiter"
	"github.com/JakeFAU/reader-engine/internal/reader"
	"github.com/JakeFAU/reader-engine/internal/results"
)

// Config controls Worker behavior.
type Config struct {
	// FetchTimeout bounds one fetch attempt, and with it the worst-case
	// concurrency slot hold time.
	FetchTimeout time.Duration
}

// Worker consumes fetch jobs and executes the fetch pipeline: acquire
// slots, fetch, parse, write results, release slots.
type Worker struct {
	queue   reader.Queue
	store   reader.FeedStore
	limiter *limiter.Limiter
	fetcher reader.Fetcher
	parser  reader.Parser
	writer  *results.Writer
	clock   reader.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker.
func New(
	queue reader.Queue,
	store reader.FeedStore,
	lim *limiter.Limiter,
	fetcher reader.Fetcher,
	parser reader.Parser,
	writer *results.Writer,
	clock reader.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &Worker{
		queue:   queue,
		store:   store,
		limiter: lim,
		fetcher: fetcher,
		parser:  parser,
		writer:  writer,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run blocks, consuming jobs until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, reader.ErrNoJob) {
				continue
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job reader.FetchJob) {
	feed, err := w.store.GetFeed(ctx, job.FeedID)
	if err != nil {
		if errors.Is(err, reader.ErrFeedNotFound) {
			// Deleted between schedule and fetch.
			w.logger.Warn("feed not found, skipping job",
				zap.String("job_id", job.JobID), zap.String("feed_id", job.FeedID))
			return
		}
		w.logger.Error("load feed failed",
			zap.String("job_id", job.JobID), zap.String("feed_id", job.FeedID), zap.Error(err))
		return
	}

	host := feedHost(feed.URL)
	release, err := w.limiter.Acquire(ctx, host)
	if err != nil {
		// Only context cancellation reaches here; the job stays lost for
		// this delivery and the scheduler will re-enqueue on cadence.
		return
	}
	defer release()

	outcome := w.fetchAndParse(ctx, feed)
	if err := w.writer.Apply(ctx, outcome); err != nil {
		w.logger.Error("apply outcome failed",
			zap.String("feed_id", feed.ID), zap.Error(err))
	}
}

// fetchAndParse runs the bounded fetch and classifies the result.
func (w *Worker) fetchAndParse(ctx context.Context, feed reader.Feed) results.Outcome {
	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()

	outcome := results.Outcome{
		Feed:      feed,
		FetchedAt: w.clock.Now(),
	}

	resp, err := w.fetcher.Fetch(fetchCtx, reader.FetchRequest{
		URL:          feed.URL,
		ETag:         feed.ETag,
		LastModified: feed.LastModified,
	})
	if err != nil {
		outcome.Err = err
		outcome.ErrKind = reader.ClassifyFetchError(err)
		w.logger.Warn("fetch failed",
			zap.String("feed_id", feed.ID),
			zap.String("kind", string(outcome.ErrKind)),
			zap.Error(err))
		return outcome
	}

	outcome.Duration = resp.Duration
	outcome.Status = resp.StatusCode
	outcome.Bytes = len(resp.Body)
	outcome.ETag = resp.ETag
	outcome.LastModified = resp.LastModified

	switch {
	case resp.StatusCode == http.StatusNotModified:
		w.logger.Debug("feed not modified", zap.String("feed_id", feed.ID))
		return outcome
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		outcome.Err = fmt.Errorf("upstream returned HTTP %d", resp.StatusCode)
		outcome.ErrKind = reader.ErrorKindHTTP
		return outcome
	}

	parsed, err := w.parser.Parse(resp.Body, feed.URL)
	if err != nil {
		outcome.Err = err
		outcome.ErrKind = reader.ClassifyFetchError(err)
		outcome.Body = resp.Body
		w.logger.Warn("parse failed",
			zap.String("feed_id", feed.ID), zap.Error(err))
		return outcome
	}
	outcome.Parsed = &parsed
	return outcome
}

func feedHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
