package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reader-engine/internal/reader"
)

func TestQueueRoundTrip(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	job := reader.FetchJob{JobID: "job-1", FeedID: "feed-1", EnqueuedAt: time.Unix(100, 0)}
	require.NoError(t, q.Enqueue(context.Background(), job))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, job, got)
}

func TestQueuePreservesOrder(t *testing.T) {
	t.Parallel()

	q := NewQueue(8)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), reader.FetchJob{JobID: id}))
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, got.JobID)
	}
}

func TestDequeueRespectsCancel(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, reader.ErrNoJob)
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), reader.FetchJob{JobID: "first"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, reader.FetchJob{JobID: "second"})
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	q.Close()

	_, err := q.Dequeue(context.Background())
	require.Error(t, err)
}

func TestEnqueueAfterCloseReturnsError(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()

	err := q.Enqueue(context.Background(), reader.FetchJob{JobID: "late"})
	require.ErrorIs(t, err, errClosed)
}

func TestCloseUnblocksPendingEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), reader.FetchJob{JobID: "first"}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Enqueue(context.Background(), reader.FetchJob{JobID: "blocked"})
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, errClosed)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not return after close")
	}
}
