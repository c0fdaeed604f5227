// Package postgres provides the Postgres-backed feed store.
//
// The engine touches four tables owned by the CRUD layer's schema:
//
//	feeds(id, url, title, interval_seconds, next_run_at, last_fetch_at,
//	      last_status, last_error, etag, last_modified,
//	      consecutive_failures, updated_at)
//	items(id, feed_id, guid, title, url, image_url, content_html,
//	      content_text, hash, published_at, fetched_at)
//	      with UNIQUE (feed_id, guid)
//	fetch_logs(id, feed_id, fetched_at, outcome, status_code, duration_ms,
//	      bytes, item_count, error)
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/reader-engine/internal/reader"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// db is the slice of pgxpool.Pool the store needs; pgxmock satisfies it.
type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// FeedStore implements reader.FeedStore on Postgres.
type FeedStore struct {
	pool db
}

// New creates a Postgres-backed FeedStore using the provided config.
func New(ctx context.Context, cfg Config) (*FeedStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &FeedStore{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool db) (*FeedStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &FeedStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *FeedStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const feedColumns = `
	id,
	url,
	COALESCE(title, ''),
	interval_seconds,
	next_run_at,
	last_fetch_at,
	COALESCE(last_status, 0),
	COALESCE(last_error, ''),
	COALESCE(etag, ''),
	COALESCE(last_modified, ''),
	consecutive_failures`

// ListDueFeeds returns up to limit feeds whose next_run_at has elapsed.
func (s *FeedStore) ListDueFeeds(ctx context.Context, now time.Time, limit int) ([]reader.Feed, error) {
	query := `SELECT` + feedColumns + `
FROM feeds
WHERE next_run_at <= $1
ORDER BY next_run_at
LIMIT $2`
	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due feeds: %w", err)
	}
	defer rows.Close()

	var feeds []reader.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due feed: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due feeds: %w", err)
	}
	return feeds, nil
}

// GetFeed returns a feed by id.
func (s *FeedStore) GetFeed(ctx context.Context, id string) (reader.Feed, error) {
	query := `SELECT` + feedColumns + `
FROM feeds
WHERE id = $1`
	feed, err := scanFeed(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return reader.Feed{}, reader.ErrFeedNotFound
		}
		return reader.Feed{}, fmt.Errorf("get feed %s: %w", id, err)
	}
	return feed, nil
}

// AdvanceNextRun optimistically moves a feed's next_run_at.
func (s *FeedStore) AdvanceNextRun(ctx context.Context, id string, next time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE feeds SET next_run_at = $2, updated_at = now() WHERE id = $1`,
		id, next)
	if err != nil {
		return fmt.Errorf("advance next run for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return reader.ErrFeedNotFound
	}
	return nil
}

// FilterNewGUIDs returns the subset of guids with no item row for the feed.
func (s *FeedStore) FilterNewGUIDs(ctx context.Context, feedID string, guids []string) ([]string, error) {
	if len(guids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT guid FROM items WHERE feed_id = $1 AND guid = ANY($2)`,
		feedID, guids)
	if err != nil {
		return nil, fmt.Errorf("query known guids: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return nil, fmt.Errorf("scan known guid: %w", err)
		}
		known[guid] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known guids: %w", err)
	}

	out := make([]string, 0, len(guids))
	seen := make(map[string]struct{}, len(guids))
	for _, guid := range guids {
		if _, dup := seen[guid]; dup {
			continue
		}
		seen[guid] = struct{}{}
		if _, ok := known[guid]; !ok {
			out = append(out, guid)
		}
	}
	return out, nil
}

// ApplyFetchResult applies the feed update, item inserts, and log append in
// one transaction so concurrent readers never observe a partial write. The
// metadata update is last-write-wins: two racing fetches of the same feed
// both derive from real upstream responses.
func (s *FeedStore) ApplyFetchResult(ctx context.Context, update reader.FeedUpdate) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin apply tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE feeds SET
	last_fetch_at = $2,
	last_status = $3,
	last_error = NULLIF($4, ''),
	next_run_at = $5,
	consecutive_failures = $6,
	etag = COALESCE(NULLIF($7, ''), etag),
	last_modified = COALESCE(NULLIF($8, ''), last_modified),
	title = COALESCE(NULLIF($9, ''), title),
	updated_at = $2
WHERE id = $1`,
		update.FeedID,
		update.FetchedAt,
		update.Status,
		update.ErrorText,
		update.NextRunAt,
		update.ConsecutiveFailures,
		update.ETag,
		update.LastModified,
		update.Title,
	)
	if err != nil {
		return 0, fmt.Errorf("update feed %s: %w", update.FeedID, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, reader.ErrFeedNotFound
	}

	inserted := 0
	for _, item := range update.Items {
		tag, err := tx.Exec(ctx, `
INSERT INTO items (
	id, feed_id, guid, title, url, image_url,
	content_html, content_text, hash, published_at, fetched_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (feed_id, guid) DO NOTHING`,
			newItemID(),
			update.FeedID,
			item.GUID,
			nullable(item.Title),
			nullable(item.URL),
			nullable(item.ImageURL),
			nullable(item.ContentHTML),
			nullable(item.ContentText),
			nullable(item.ContentHash),
			nullableTime(item.PublishedAt),
			update.FetchedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert item %s: %w", item.GUID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	// item_count records what this fetch actually inserted, not the
	// candidate count; conflict suppression may have skipped some.
	log := update.Log
	if _, err := tx.Exec(ctx, `
INSERT INTO fetch_logs (
	id, feed_id, fetched_at, outcome, status_code,
	duration_ms, bytes, item_count, error
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))`,
		log.ID,
		log.FeedID,
		log.FetchedAt,
		string(log.Outcome),
		log.StatusCode,
		log.DurationMs,
		log.Bytes,
		inserted,
		log.Error,
	); err != nil {
		return 0, fmt.Errorf("append fetch log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit apply tx: %w", err)
	}
	return inserted, nil
}

// ListFetchLog returns the most recent fetch log entries, newest first.
func (s *FeedStore) ListFetchLog(ctx context.Context, feedID string, limit int) ([]reader.FetchLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, feed_id, fetched_at, outcome, status_code,
	duration_ms, bytes, item_count, COALESCE(error, '')
FROM fetch_logs
WHERE feed_id = $1
ORDER BY fetched_at DESC
LIMIT $2`,
		feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("list fetch log: %w", err)
	}
	defer rows.Close()

	var entries []reader.FetchLogEntry
	for rows.Next() {
		var entry reader.FetchLogEntry
		var outcome string
		if err := rows.Scan(
			&entry.ID,
			&entry.FeedID,
			&entry.FetchedAt,
			&outcome,
			&entry.StatusCode,
			&entry.DurationMs,
			&entry.Bytes,
			&entry.ItemCount,
			&entry.Error,
		); err != nil {
			return nil, fmt.Errorf("scan fetch log row: %w", err)
		}
		entry.Outcome = reader.FetchOutcome(outcome)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fetch log: %w", err)
	}
	return entries, nil
}

func scanFeed(row pgx.Row) (reader.Feed, error) {
	var feed reader.Feed
	var lastFetch *time.Time
	if err := row.Scan(
		&feed.ID,
		&feed.URL,
		&feed.Title,
		&feed.IntervalSeconds,
		&feed.NextRunAt,
		&lastFetch,
		&feed.LastStatus,
		&feed.LastError,
		&feed.ETag,
		&feed.LastModified,
		&feed.ConsecutiveFailures,
	); err != nil {
		return reader.Feed{}, err
	}
	feed.LastFetchAt = lastFetch
	return feed, nil
}

func newItemID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t
}
