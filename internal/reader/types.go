// Package reader defines core types shared across the fetch engine.
package reader

import (
	"time"
)

// Feed is the engine's view of a subscribed feed row.
type Feed struct {
	ID                  string     `json:"id"`
	URL                 string     `json:"url"`
	Title               string     `json:"title,omitempty"`
	IntervalSeconds     int        `json:"interval_seconds"`
	NextRunAt           time.Time  `json:"next_run_at"`
	LastFetchAt         *time.Time `json:"last_fetch_at,omitempty"`
	LastStatus          int        `json:"last_status,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	ETag                string     `json:"etag,omitempty"`
	LastModified        string     `json:"last_modified,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

// Interval returns the feed's polling interval, falling back to def when unset.
func (f Feed) Interval(def time.Duration) time.Duration {
	if f.IntervalSeconds <= 0 {
		return def
	}
	return time.Duration(f.IntervalSeconds) * time.Second
}

// FetchJob is one queue message: a request to fetch a single feed.
type FetchJob struct {
	JobID      string    `json:"job_id"`
	FeedID     string    `json:"feed_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Manual     bool      `json:"manual,omitempty"`
}

// FetchOutcome classifies a completed fetch attempt.
type FetchOutcome string

// Fetch outcome values recorded in the fetch log.
const (
	OutcomeSuccess     FetchOutcome = "success"
	OutcomeNotModified FetchOutcome = "not_modified"
	OutcomeError       FetchOutcome = "error"
)

// ItemCandidate is a parsed feed entry before deduplication.
type ItemCandidate struct {
	GUID        string     `json:"guid"`
	Title       string     `json:"title,omitempty"`
	URL         string     `json:"url,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	ContentHTML string     `json:"content_html,omitempty"`
	ContentText string     `json:"content_text,omitempty"`
	ContentHash string     `json:"content_hash,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// ParsedFeed is the normalized result of parsing one feed document.
type ParsedFeed struct {
	Title string
	Items []ItemCandidate
}

// FetchRequest carries everything the fetcher needs for one conditional GET.
type FetchRequest struct {
	URL          string
	ETag         string
	LastModified string
}

// FetchResponse is the raw result of one feed retrieval.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Body         []byte
	ETag         string
	LastModified string
	Duration     time.Duration
}

// FetchLogEntry is one append-only fetch log row.
type FetchLogEntry struct {
	ID         string       `json:"id"`
	FeedID     string       `json:"feed_id"`
	FetchedAt  time.Time    `json:"fetched_at"`
	Outcome    FetchOutcome `json:"outcome"`
	StatusCode int          `json:"status_code"`
	DurationMs int64        `json:"duration_ms"`
	Bytes      int          `json:"bytes"`
	ItemCount  int          `json:"item_count"`
	Error      string       `json:"error,omitempty"`
}

// FeedUpdate is the unit of durable state applied for one completed fetch.
// The store must apply the metadata update, item inserts, and log append
// atomically so concurrent readers never observe a partial write.
type FeedUpdate struct {
	FeedID              string
	FetchedAt           time.Time
	Status              int
	ErrorText           string // empty clears last_error
	ETag                string // empty keeps the stored validator
	LastModified        string // empty keeps the stored validator
	Title               string // empty keeps the stored title
	NextRunAt           time.Time
	ConsecutiveFailures int
	Items               []ItemCandidate
	Log                 FetchLogEntry
}

// Enrichment is the best-effort full-text extraction for one item.
type Enrichment struct {
	HTML string
	Text string
}
