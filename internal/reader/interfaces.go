package reader

import (
	"context"
	"time"
)

// FeedStore persists feed metadata, items, and the fetch log.
type FeedStore interface {
	// ListDueFeeds returns up to limit feeds whose next_run_at has elapsed,
	// oldest first.
	ListDueFeeds(ctx context.Context, now time.Time, limit int) ([]Feed, error)
	// GetFeed returns a feed by id, or ErrFeedNotFound.
	GetFeed(ctx context.Context, id string) (Feed, error)
	// AdvanceNextRun optimistically moves a feed's next_run_at so the
	// scheduler does not re-select it before the fetch completes.
	AdvanceNextRun(ctx context.Context, id string, next time.Time) error
	// FilterNewGUIDs returns the subset of guids not yet stored for the feed.
	FilterNewGUIDs(ctx context.Context, feedID string, guids []string) ([]string, error)
	// ApplyFetchResult applies one fetch's outcome as a single unit and
	// returns the number of newly inserted items. The stored log entry's
	// item count is that insert count, not the caller's candidate count.
	ApplyFetchResult(ctx context.Context, update FeedUpdate) (int, error)
	// ListFetchLog returns the most recent fetch log entries for a feed.
	ListFetchLog(ctx context.Context, feedID string, limit int) ([]FetchLogEntry, error)
}

// Queue provides at-least-once enqueue/dequeue semantics for fetch jobs.
type Queue interface {
	Enqueue(ctx context.Context, job FetchJob) error
	// Dequeue blocks until a job arrives, the internal poll timeout elapses
	// (ErrNoJob), or the context finishes.
	Dequeue(ctx context.Context) (FetchJob, error)
}

// Publisher pushes fire-and-forget events toward the real-time UI layer.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) (string, error)
}

// Fetcher retrieves one feed document with HTTP conditional-request caching.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// Parser normalizes raw feed bytes into item candidates.
type Parser interface {
	Parse(data []byte, feedURL string) (ParsedFeed, error)
}

// Enricher extracts full article content for a newly seen item. Callers
// treat every failure as soft.
type Enricher interface {
	Extract(ctx context.Context, url string) (Enrichment, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher computes digests for dedup keys and content hashes.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job/item/log IDs.
type IDGenerator interface {
	NewID() (string, error)
}
