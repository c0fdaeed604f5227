package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reader-engine/internal/reader"
)

func testFeed(id string, nextRun time.Time) reader.Feed {
	return reader.Feed{
		ID:              id,
		URL:             "https://" + id + ".example.com/feed",
		IntervalSeconds: 900,
		NextRunAt:       nextRun,
	}
}

func TestListDueFeedsOrdersAndLimits(t *testing.T) {
	t.Parallel()

	s := NewFeedStore()
	now := time.Unix(1000, 0)
	s.PutFeed(testFeed("late", now.Add(-time.Minute)))
	s.PutFeed(testFeed("early", now.Add(-time.Hour)))
	s.PutFeed(testFeed("future", now.Add(time.Hour)))

	due, err := s.ListDueFeeds(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, "early", due[0].ID)
	require.Equal(t, "late", due[1].ID)

	one, err := s.ListDueFeeds(context.Background(), now, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	require.Equal(t, "early", one[0].ID)
}

func TestGetFeedNotFound(t *testing.T) {
	t.Parallel()

	s := NewFeedStore()
	_, err := s.GetFeed(context.Background(), "missing")
	require.ErrorIs(t, err, reader.ErrFeedNotFound)
}

func TestAdvanceNextRun(t *testing.T) {
	t.Parallel()

	s := NewFeedStore()
	now := time.Unix(1000, 0)
	s.PutFeed(testFeed("f1", now))

	next := now.Add(15 * time.Minute)
	require.NoError(t, s.AdvanceNextRun(context.Background(), "f1", next))

	feed, err := s.GetFeed(context.Background(), "f1")
	require.NoError(t, err)
	require.Equal(t, next, feed.NextRunAt)

	require.ErrorIs(t, s.AdvanceNextRun(context.Background(), "nope", next), reader.ErrFeedNotFound)
}

func TestApplyFetchResultInsertsOnlyNewItems(t *testing.T) {
	t.Parallel()

	s := NewFeedStore()
	now := time.Unix(1000, 0)
	s.PutFeed(testFeed("f1", now))

	update := reader.FeedUpdate{
		FeedID:    "f1",
		FetchedAt: now,
		Status:    200,
		NextRunAt: now.Add(15 * time.Minute),
		Items: []reader.ItemCandidate{
			{GUID: "a", Title: "A"},
			{GUID: "b", Title: "B"},
		},
		Log: reader.FetchLogEntry{ID: "log-1", FeedID: "f1", Outcome: reader.OutcomeSuccess},
	}
	inserted, err := s.ApplyFetchResult(context.Background(), update)
	require.NoError(t, err)
	require.Equal(t, 2, inserted)

	// Refetching the same items is a no-op on the item table.
	update.Log.ID = "log-2"
	update.Log.ItemCount = 2 // stale candidate count from the caller
	inserted, err = s.ApplyFetchResult(context.Background(), update)
	require.NoError(t, err)
	require.Equal(t, 0, inserted)
	require.Equal(t, 2, s.ItemCount("f1"))

	// The log rows record what each fetch actually inserted, not what it
	// attempted.
	logs, err := s.ListFetchLog(context.Background(), "f1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, 0, logs[0].ItemCount)
	require.Equal(t, 2, logs[1].ItemCount)
}

func TestApplyFetchResultKeepsValidatorsWhenEmpty(t *testing.T) {
	t.Parallel()

	s := NewFeedStore()
	now := time.Unix(1000, 0)
	feed := testFeed("f1", now)
	feed.ETag = `"old"`
	feed.LastModified = "Mon, 02 Jan 2006 15:04:05 GMT"
	feed.Title = "Kept Title"
	s.PutFeed(feed)

	_, err := s.ApplyFetchResult(context.Background(), reader.FeedUpdate{
		FeedID:    "f1",
		FetchedAt: now,
		Status:    304,
		NextRunAt: now.Add(15 * time.Minute),
	})
	require.NoError(t, err)

	got, err := s.GetFeed(context.Background(), "f1")
	require.NoError(t, err)
	require.Equal(t, `"old"`, got.ETag)
	require.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", got.LastModified)
	require.Equal(t, "Kept Title", got.Title)
	require.Equal(t, 304, got.LastStatus)
	require.NotNil(t, got.LastFetchAt)
}

func TestApplyFetchResultErrorState(t *testing.T) {
	t.Parallel()

	s := NewFeedStore()
	now := time.Unix(1000, 0)
	s.PutFeed(testFeed("f1", now))

	_, err := s.ApplyFetchResult(context.Background(), reader.FeedUpdate{
		FeedID:              "f1",
		FetchedAt:           now,
		Status:              503,
		ErrorText:           "upstream returned HTTP 503",
		NextRunAt:           now.Add(30 * time.Minute),
		ConsecutiveFailures: 2,
	})
	require.NoError(t, err)

	got, err := s.GetFeed(context.Background(), "f1")
	require.NoError(t, err)
	require.Equal(t, 2, got.ConsecutiveFailures)
	require.Equal(t, "upstream returned HTTP 503", got.LastError)

	// A later success clears the error text.
	_, err = s.ApplyFetchResult(context.Background(), reader.FeedUpdate{
		FeedID:    "f1",
		FetchedAt: now.Add(time.Hour),
		Status:    200,
		NextRunAt: now.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	got, err = s.GetFeed(context.Background(), "f1")
	require.NoError(t, err)
	require.Empty(t, got.LastError)
	require.Zero(t, got.ConsecutiveFailures)
}

func TestFilterNewGUIDs(t *testing.T) {
	t.Parallel()

	s := NewFeedStore()
	now := time.Unix(1000, 0)
	s.PutFeed(testFeed("f1", now))
	_, err := s.ApplyFetchResult(context.Background(), reader.FeedUpdate{
		FeedID:    "f1",
		FetchedAt: now,
		Status:    200,
		NextRunAt: now.Add(time.Minute),
		Items:     []reader.ItemCandidate{{GUID: "known"}},
	})
	require.NoError(t, err)

	fresh, err := s.FilterNewGUIDs(context.Background(), "f1", []string{"known", "new", "new", "other"})
	require.NoError(t, err)
	require.Equal(t, []string{"new", "other"}, fresh)
}

func TestListFetchLogNewestFirst(t *testing.T) {
	t.Parallel()

	s := NewFeedStore()
	now := time.Unix(1000, 0)
	s.PutFeed(testFeed("f1", now))

	for i, id := range []string{"log-1", "log-2", "log-3"} {
		_, err := s.ApplyFetchResult(context.Background(), reader.FeedUpdate{
			FeedID:    "f1",
			FetchedAt: now.Add(time.Duration(i) * time.Minute),
			Status:    200,
			NextRunAt: now.Add(time.Hour),
			Log:       reader.FetchLogEntry{ID: id, FeedID: "f1"},
		})
		require.NoError(t, err)
	}

	logs, err := s.ListFetchLog(context.Background(), "f1", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "log-3", logs[0].ID)
	require.Equal(t, "log-2", logs[1].ID)
}
