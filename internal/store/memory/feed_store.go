// Package memory provides an in-memory feed store for development/testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/reader-engine/internal/reader"
)

// FeedStore implements reader.FeedStore with mutex-guarded maps. The
// single lock gives the same all-or-nothing visibility for ApplyFetchResult
// that the Postgres store gets from a transaction.
type FeedStore struct {
	mu    sync.RWMutex
	feeds map[string]reader.Feed
	items map[string]map[string]reader.ItemCandidate // feed id -> guid -> item
	logs  map[string][]reader.FetchLogEntry
}

// NewFeedStore constructs a FeedStore.
func NewFeedStore() *FeedStore {
	return &FeedStore{
		feeds: make(map[string]reader.Feed),
		items: make(map[string]map[string]reader.ItemCandidate),
		logs:  make(map[string][]reader.FetchLogEntry),
	}
}

// PutFeed inserts or replaces a feed row. Feed registration belongs to the
// CRUD layer; this exists for wiring and tests.
func (s *FeedStore) PutFeed(feed reader.Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[feed.ID] = feed
}

// ListDueFeeds returns up to limit feeds due at now, oldest first.
func (s *FeedStore) ListDueFeeds(_ context.Context, now time.Time, limit int) ([]reader.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	due := make([]reader.Feed, 0)
	for _, feed := range s.feeds {
		if !feed.NextRunAt.After(now) {
			due = append(due, feed)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// GetFeed fetches a feed by id.
func (s *FeedStore) GetFeed(_ context.Context, id string) (reader.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed, ok := s.feeds[id]
	if !ok {
		return reader.Feed{}, reader.ErrFeedNotFound
	}
	return feed, nil
}

// AdvanceNextRun moves a feed's next_run_at.
func (s *FeedStore) AdvanceNextRun(_ context.Context, id string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, ok := s.feeds[id]
	if !ok {
		return reader.ErrFeedNotFound
	}
	feed.NextRunAt = next
	s.feeds[id] = feed
	return nil
}

// FilterNewGUIDs returns the guids not yet stored for the feed.
func (s *FeedStore) FilterNewGUIDs(_ context.Context, feedID string, guids []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	known := s.items[feedID]
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

// ApplyFetchResult applies one fetch's outcome under a single lock hold.
func (s *FeedStore) ApplyFetchResult(_ context.Context, update reader.FeedUpdate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed, ok := s.feeds[update.FeedID]
	if !ok {
		return 0, reader.ErrFeedNotFound
	}

	fetchedAt := update.FetchedAt
	feed.LastFetchAt = &fetchedAt
	feed.LastStatus = update.Status
	feed.LastError = update.ErrorText
	feed.NextRunAt = update.NextRunAt
	feed.ConsecutiveFailures = update.ConsecutiveFailures
	if update.ETag != "" {
		feed.ETag = update.ETag
	}
	if update.LastModified != "" {
		feed.LastModified = update.LastModified
	}
	if update.Title != "" {
		feed.Title = update.Title
	}
	s.feeds[update.FeedID] = feed

	known := s.items[update.FeedID]
	if known == nil {
		known = make(map[string]reader.ItemCandidate)
		s.items[update.FeedID] = known
	}
	inserted := 0
	for _, item := range update.Items {
		if _, exists := known[item.GUID]; exists {
			continue
		}
		known[item.GUID] = item
		inserted++
	}

	// The log records how many items this fetch actually inserted; a
	// concurrent duplicate fetch may have claimed some candidates first.
	entry := update.Log
	entry.ItemCount = inserted
	s.logs[update.FeedID] = append(s.logs[update.FeedID], entry)
	return inserted, nil
}

// ListFetchLog returns the most recent log entries, newest first.
func (s *FeedStore) ListFetchLog(_ context.Context, feedID string, limit int) ([]reader.FetchLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.logs[feedID]
	out := make([]reader.FetchLogEntry, len(logs))
	copy(out, logs)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ItemCount reports how many items are stored for a feed (test helper).
func (s *FeedStore) ItemCount(feedID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items[feedID])
}
