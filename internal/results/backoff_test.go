package results

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayDoublesPerFailure(t *testing.T) {
	t.Parallel()

	interval := 15 * time.Minute
	max := 6 * time.Hour

	require.Equal(t, 15*time.Minute, backoffDelay(interval, 1, max))
	require.Equal(t, 30*time.Minute, backoffDelay(interval, 2, max))
	require.Equal(t, 60*time.Minute, backoffDelay(interval, 3, max))
	require.Equal(t, 120*time.Minute, backoffDelay(interval, 4, max))
}

func TestBackoffDelayCapped(t *testing.T) {
	t.Parallel()

	interval := 15 * time.Minute
	max := 6 * time.Hour

	require.Equal(t, max, backoffDelay(interval, 6, max))
	require.Equal(t, max, backoffDelay(interval, 50, max))
}

func TestBackoffDelayMonotonic(t *testing.T) {
	t.Parallel()

	interval := time.Minute
	max := time.Hour
	prev := time.Duration(0)
	for failures := 1; failures <= 20; failures++ {
		d := backoffDelay(interval, failures, max)
		require.GreaterOrEqual(t, d, prev, "failures=%d", failures)
		require.GreaterOrEqual(t, d, interval)
		prev = d
	}
}

func TestBackoffDelayNeverBelowInterval(t *testing.T) {
	t.Parallel()

	// A cap smaller than the interval must not drag the delay below the
	// polling interval itself.
	interval := time.Hour
	require.Equal(t, interval, backoffDelay(interval, 3, time.Minute))

	// Zero or negative failure counts behave like the first failure.
	require.Equal(t, interval, backoffDelay(interval, 0, 6*time.Hour))
	require.Equal(t, interval, backoffDelay(interval, -4, 6*time.Hour))
}
