// Package redisqueue provides a durable Redis-list job queue.
//
// Jobs are pushed with LPUSH and popped with BRPOP, so scheduling decisions
// survive a consumer-pool restart. Delivery is at-least-once; consumers are
// idempotent against duplicate feed ids because conditional requests make a
// duplicate fetch of an unchanged feed a cheap no-op.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/reader-engine/internal/reader"
)

// Config holds queue connection settings.
type Config struct {
	// URL is the Redis connection URL.
	URL string
	// Key is the Redis list key carrying fetch jobs.
	Key string
	// BlockTimeout is how long Dequeue blocks waiting for a job.
	BlockTimeout time.Duration
}

// Queue is a Redis-backed reader.Queue.
type Queue struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
}

// New connects to Redis and returns a Queue.
func New(cfg Config) (*Queue, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	key := cfg.Key
	if key == "" {
		key = "rss:jobs"
	}
	blockTimeout := cfg.BlockTimeout
	if blockTimeout <= 0 {
		blockTimeout = 5 * time.Second
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Queue{
		client:       redis.NewClient(opts),
		key:          key,
		blockTimeout: blockTimeout,
	}, nil
}

// Enqueue pushes one job onto the list.
func (q *Queue) Enqueue(ctx context.Context, job reader.FetchJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("lpush job: %w", err)
	}
	return nil
}

// Dequeue blocks up to the configured timeout for the next job. An empty
// poll returns reader.ErrNoJob so callers can loop and re-check shutdown.
func (q *Queue) Dequeue(ctx context.Context) (reader.FetchJob, error) {
	res, err := q.client.BRPop(ctx, q.blockTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return reader.FetchJob{}, reader.ErrNoJob
		}
		return reader.FetchJob{}, fmt.Errorf("brpop job: %w", err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return reader.FetchJob{}, fmt.Errorf("unexpected brpop reply length %d", len(res))
	}
	var job reader.FetchJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return reader.FetchJob{}, fmt.Errorf("unmarshal job: %w", err)
	}
	return job, nil
}

// Close releases the Redis client.
func (q *Queue) Close() error {
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
