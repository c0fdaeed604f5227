package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/reader-engine/internal/limiter"
	queuememory "github.com/JakeFAU/reader-engine/internal/queue/memory"
	"github.com/JakeFAU/reader-engine/internal/reader"
	"github.com/JakeFAU/reader-engine/internal/results"
	storememory "github.com/JakeFAU/reader-engine/internal/store/memory"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeIDGen struct{ n int }

func (g *fakeIDGen) NewID() (string, error) {
	g.n++
	return "id", nil
}

type fakeFetcher struct {
	resp    reader.FetchResponse
	err     error
	lastReq reader.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req reader.FetchRequest) (reader.FetchResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return reader.FetchResponse{}, f.err
	}
	return f.resp, nil
}

type fakeParser struct {
	parsed reader.ParsedFeed
	err    error
}

func (p *fakeParser) Parse([]byte, string) (reader.ParsedFeed, error) {
	if p.err != nil {
		return reader.ParsedFeed{}, p.err
	}
	return p.parsed, nil
}

type workerFixture struct {
	worker  *Worker
	store   *storememory.FeedStore
	queue   *queuememory.Queue
	fetcher *fakeFetcher
	parser  *fakeParser
	clock   *fakeClock
}

func newFixture(t *testing.T) *workerFixture {
	t.Helper()
	store := storememory.NewFeedStore()
	queue := queuememory.NewQueue(8)
	fetch := &fakeFetcher{}
	parse := &fakeParser{}
	clock := &fakeClock{now: time.Unix(20000, 0)}
	writer := results.New(store, nil, nil, nil, &fakeIDGen{}, results.Config{
		DefaultInterval: 15 * time.Minute,
		BackoffMax:      6 * time.Hour,
	}, zap.NewNop())
	w := New(queue, store, limiter.New(limiter.Config{Global: 4, PerHost: 2}),
		fetch, parse, writer, clock, Config{FetchTimeout: 5 * time.Second}, zap.NewNop())
	return &workerFixture{worker: w, store: store, queue: queue, fetcher: fetch, parser: parse, clock: clock}
}

func (f *workerFixture) seedFeed(feed reader.Feed) reader.Feed {
	if feed.ID == "" {
		feed.ID = "f1"
	}
	if feed.URL == "" {
		feed.URL = "https://example.com/feed"
	}
	if feed.IntervalSeconds == 0 {
		feed.IntervalSeconds = 900
	}
	f.store.PutFeed(feed)
	return feed
}

func TestProcessJobSuccessPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	feed := f.seedFeed(reader.Feed{ETag: `"v1"`, LastModified: "Mon, 02 Jan 2006 15:04:05 GMT"})
	f.fetcher.resp = reader.FetchResponse{
		URL:        feed.URL,
		StatusCode: 200,
		Body:       []byte("<rss/>"),
		ETag:       `"v2"`,
		Duration:   50 * time.Millisecond,
	}
	f.parser.parsed = reader.ParsedFeed{Items: []reader.ItemCandidate{{GUID: "a"}}}

	f.worker.processJob(context.Background(), reader.FetchJob{JobID: "j1", FeedID: feed.ID})

	// Stored validators were sent with the request.
	require.Equal(t, `"v1"`, f.fetcher.lastReq.ETag)
	require.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", f.fetcher.lastReq.LastModified)

	got, err := f.store.GetFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, `"v2"`, got.ETag)
	require.Equal(t, 200, got.LastStatus)
	require.Equal(t, 1, f.store.ItemCount(feed.ID))

	logs, err := f.store.ListFetchLog(context.Background(), feed.ID, 1)
	require.NoError(t, err)
	require.Equal(t, reader.OutcomeSuccess, logs[0].Outcome)
	require.Equal(t, len("<rss/>"), logs[0].Bytes)
}

func TestProcessJobNotModified(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	feed := f.seedFeed(reader.Feed{ETag: `"v1"`, ConsecutiveFailures: 2})
	f.fetcher.resp = reader.FetchResponse{URL: feed.URL, StatusCode: 304}

	f.worker.processJob(context.Background(), reader.FetchJob{JobID: "j1", FeedID: feed.ID})

	got, err := f.store.GetFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, 304, got.LastStatus)
	require.Zero(t, got.ConsecutiveFailures)
	require.Equal(t, `"v1"`, got.ETag)
	require.Zero(t, f.store.ItemCount(feed.ID))
}

func TestProcessJobHTTPError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	feed := f.seedFeed(reader.Feed{})
	f.fetcher.resp = reader.FetchResponse{URL: feed.URL, StatusCode: 503}

	f.worker.processJob(context.Background(), reader.FetchJob{JobID: "j1", FeedID: feed.ID})

	got, err := f.store.GetFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.ConsecutiveFailures)
	require.Contains(t, got.LastError, "HTTP 503")

	logs, err := f.store.ListFetchLog(context.Background(), feed.ID, 1)
	require.NoError(t, err)
	require.Equal(t, reader.OutcomeError, logs[0].Outcome)
	require.Equal(t, 503, logs[0].StatusCode)
}

func TestProcessJobTransportError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	feed := f.seedFeed(reader.Feed{})
	f.fetcher.err = errors.New("dial tcp: connection refused")

	f.worker.processJob(context.Background(), reader.FetchJob{JobID: "j1", FeedID: feed.ID})

	got, err := f.store.GetFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.ConsecutiveFailures)
	require.Contains(t, got.LastError, "connection refused")
}

func TestProcessJobMalformedFeed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	feed := f.seedFeed(reader.Feed{})
	f.fetcher.resp = reader.FetchResponse{URL: feed.URL, StatusCode: 200, Body: []byte("<html/>")}
	f.parser.err = reader.ErrMalformedFeed

	f.worker.processJob(context.Background(), reader.FetchJob{JobID: "j1", FeedID: feed.ID})

	got, err := f.store.GetFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.ConsecutiveFailures)
	require.Zero(t, f.store.ItemCount(feed.ID))
}

func TestProcessJobFeedDeleted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	// No feed seeded; the job must be dropped without touching the fetcher.
	f.worker.processJob(context.Background(), reader.FetchJob{JobID: "j1", FeedID: "gone"})
	require.Empty(t, f.fetcher.lastReq.URL)
}

func TestProcessJobDuplicateDeliveryIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	feed := f.seedFeed(reader.Feed{})
	f.fetcher.resp = reader.FetchResponse{URL: feed.URL, StatusCode: 200, Body: []byte("<rss/>")}
	f.parser.parsed = reader.ParsedFeed{Items: []reader.ItemCandidate{{GUID: "a"}}}

	job := reader.FetchJob{JobID: "j1", FeedID: feed.ID}
	f.worker.processJob(context.Background(), job)
	f.worker.processJob(context.Background(), job)

	require.Equal(t, 1, f.store.ItemCount(feed.ID))
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.worker.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestRunConsumesQueuedJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	feed := f.seedFeed(reader.Feed{})
	f.fetcher.resp = reader.FetchResponse{URL: feed.URL, StatusCode: 200, Body: []byte("<rss/>")}
	f.parser.parsed = reader.ParsedFeed{Items: []reader.ItemCandidate{{GUID: "a"}}}

	require.NoError(t, f.queue.Enqueue(context.Background(), reader.FetchJob{JobID: "j1", FeedID: feed.ID}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.worker.Run(ctx)

	require.Eventually(t, func() bool {
		return f.store.ItemCount(feed.ID) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
