// Package app initializes and holds long-lived engine services, acting as
// a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/reader-engine/internal/api"
	archivegcs "github.com/JakeFAU/reader-engine/internal/archive/gcs"
	archivelocal "github.com/JakeFAU/reader-engine/internal/archive/local"
	archivememory "github.com/JakeFAU/reader-engine/internal/archive/memory"
	"github.com/JakeFAU/reader-engine/internal/clock/system"
	"github.com/JakeFAU/reader-engine/internal/config"
	"github.com/JakeFAU/reader-engine/internal/dispatcher"
	"github.com/JakeFAU/reader-engine/internal/enricher"
	"github.com/JakeFAU/reader-engine/internal/fetcher"
	"github.com/JakeFAU/reader-engine/internal/hash/sha256"
	"github.com/JakeFAU/reader-engine/internal/id/uuid"
	"github.com/JakeFAU/reader-engine/internal/limiter"
	"github.com/JakeFAU/reader-engine/internal/parser"
	"github.com/JakeFAU/reader-engine/internal/publisher/gcppubsub"
	pubmemory "github.com/JakeFAU/reader-engine/internal/publisher/memory"
	"github.com/JakeFAU/reader-engine/internal/publisher/noop"
	"github.com/JakeFAU/reader-engine/internal/publisher/redispub"
	queuememory "github.com/JakeFAU/reader-engine/internal/queue/memory"
	"github.com/JakeFAU/reader-engine/internal/queue/redisqueue"
	"github.com/JakeFAU/reader-engine/internal/reader"
	"github.com/JakeFAU/reader-engine/internal/results"
	"github.com/JakeFAU/reader-engine/internal/scheduler"
	storememory "github.com/JakeFAU/reader-engine/internal/store/memory"
	storepostgres "github.com/JakeFAU/reader-engine/internal/store/postgres"
	"github.com/JakeFAU/reader-engine/internal/worker"
)

// App owns every long-lived service and their shutdown order.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store      reader.FeedStore
	queue      reader.Queue
	publisher  reader.Publisher
	archive    reader.BlobStore
	scheduler  *scheduler.Scheduler
	dispatcher *dispatcher.Dispatcher
	server     *http.Server

	closers []func()
}

// New builds the engine from configuration, failing fast if any backend
// cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	if err := a.initQueue(); err != nil {
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		return nil, err
	}
	if err := a.initArchive(ctx); err != nil {
		return nil, err
	}

	clk := system.New()
	idGen := uuid.New()
	hasher := sha256.New()

	lim := limiter.New(limiter.Config{
		Global:     int64(cfg.Fetch.Concurrency),
		PerHost:    int64(cfg.Fetch.PerHostConcurrency),
		PerHostRPS: cfg.Fetch.PerHostRPS,
	})
	fetchClient := fetcher.New(fetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	feedParser := parser.New(hasher)

	var enrich reader.Enricher
	if cfg.Enrich.Enabled {
		enrich = enricher.New(enricher.Config{
			Timeout:   cfg.EnrichTimeout(),
			UserAgent: cfg.Fetch.UserAgent,
		}, logger.Named("enricher"))
	}

	writer := results.New(a.store, a.publisher, enrich, a.archive, idGen, results.Config{
		DefaultInterval: cfg.DefaultInterval(),
		BackoffMax:      cfg.BackoffMax(),
		EventChannel:    cfg.Publisher.Channel,
		EnrichTimeout:   cfg.EnrichTimeout(),
		ArchivePrefix:   cfg.Archive.Prefix,
	}, logger.Named("results"))

	workers := make([]*worker.Worker, 0, cfg.Fetch.Concurrency)
	for i := 0; i < cfg.Fetch.Concurrency; i++ {
		workers = append(workers, worker.New(
			a.queue, a.store, lim, fetchClient, feedParser, writer, clk,
			worker.Config{FetchTimeout: cfg.FetchTimeout()},
			logger.Named(fmt.Sprintf("worker-%d", i)),
		))
	}
	a.dispatcher = dispatcher.New(a.queue, workers)

	a.scheduler = scheduler.New(a.store, a.queue, clk, idGen, scheduler.Config{
		Tick:            cfg.SchedulerTick(),
		BatchSize:       cfg.Scheduler.BatchSize,
		DefaultInterval: cfg.DefaultInterval(),
	}, logger.Named("scheduler"))

	apiServer := api.NewServer(a.store, a.scheduler, idGen, logger.Named("api"))
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run starts the scheduler, worker pool, and HTTP server and blocks until
// the context finishes, then drains everything.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("http server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go a.scheduler.Run(ctx)

	done := make(chan struct{})
	go func() {
		a.dispatcher.Run(ctx)
		close(done)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		a.logger.Error("http server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown failed", zap.Error(err))
	}

	// Wait for in-flight fetches to finish so result writes are not torn.
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("worker drain timed out")
	}
	return runErr
}

// Close releases all backends in reverse init order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.Store.Provider {
	case "postgres":
		a.logger.Info("using postgres feed store")
		store, err := storepostgres.New(ctx, storepostgres.Config{
			DSN:      a.cfg.DB.DSN,
			MaxConns: a.cfg.DB.MaxConns,
			MinConns: a.cfg.DB.MinConns,
		})
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	case "memory":
		a.logger.Info("using in-memory feed store, state is lost on restart")
		a.store = storememory.NewFeedStore()
	default:
		return fmt.Errorf("unknown store provider: %s", a.cfg.Store.Provider)
	}
	return nil
}

func (a *App) initQueue() error {
	switch a.cfg.Queue.Provider {
	case "redis":
		a.logger.Info("using redis job queue", zap.String("key", a.cfg.Queue.Key))
		q, err := redisqueue.New(redisqueue.Config{
			URL: a.cfg.Redis.URL,
			Key: a.cfg.Queue.Key,
		})
		if err != nil {
			return fmt.Errorf("init redis queue: %w", err)
		}
		a.queue = q
		a.closers = append(a.closers, func() {
			if err := q.Close(); err != nil {
				a.logger.Warn("close redis queue failed", zap.Error(err))
			}
		})
	case "memory":
		a.logger.Info("using in-memory job queue")
		q := queuememory.NewQueue(a.cfg.Queue.Depth)
		a.queue = q
		a.closers = append(a.closers, q.Close)
	default:
		return fmt.Errorf("unknown queue provider: %s", a.cfg.Queue.Provider)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	switch a.cfg.Publisher.Provider {
	case "redis":
		a.logger.Info("publishing events to redis", zap.String("channel", a.cfg.Publisher.Channel))
		p, err := redispub.New(a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("init redis publisher: %w", err)
		}
		a.publisher = p
		a.closers = append(a.closers, func() {
			if err := p.Close(); err != nil {
				a.logger.Warn("close redis publisher failed", zap.Error(err))
			}
		})
	case "pubsub":
		a.logger.Info("publishing events to pub/sub", zap.String("topic", a.cfg.PubSub.TopicName))
		p, err := gcppubsub.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.publisher = p
		a.closers = append(a.closers, func() {
			if err := p.Close(); err != nil {
				a.logger.Warn("close pubsub publisher failed", zap.Error(err))
			}
		})
	case "memory":
		a.publisher = pubmemory.New()
	case "noop":
		a.logger.Info("event publishing disabled")
		a.publisher = noop.New()
	default:
		return fmt.Errorf("unknown publisher provider: %s", a.cfg.Publisher.Provider)
	}
	return nil
}

func (a *App) initArchive(ctx context.Context) error {
	switch a.cfg.Archive.Provider {
	case "gcs":
		a.logger.Info("archiving snapshots to gcs", zap.String("bucket", a.cfg.Archive.Bucket))
		b, err := archivegcs.New(ctx, a.cfg.Archive.Bucket)
		if err != nil {
			return fmt.Errorf("init gcs archive: %w", err)
		}
		a.archive = b
		a.closers = append(a.closers, func() {
			if err := b.Close(); err != nil {
				a.logger.Warn("close gcs archive failed", zap.Error(err))
			}
		})
	case "local":
		a.logger.Info("archiving snapshots to disk", zap.String("dir", a.cfg.Archive.BaseDir))
		b, err := archivelocal.New(a.cfg.Archive.BaseDir)
		if err != nil {
			return fmt.Errorf("init local archive: %w", err)
		}
		a.archive = b
	case "memory":
		a.archive = archivememory.NewBlobStore()
	case "none":
		a.archive = nil
	default:
		return fmt.Errorf("unknown archive provider: %s", a.cfg.Archive.Provider)
	}
	return nil
}
