package results

import "time"

// maxDoublings caps the exponent so the shift below cannot overflow and the
// delay curve flattens once a feed has been broken for a while.
const maxDoublings = 5

// backoffDelay returns the delay before the next run after a failed fetch:
// interval doubled per consecutive failure beyond the first, capped at max.
// It is monotonically non-decreasing in failures and never below interval.
func backoffDelay(interval time.Duration, failures int, max time.Duration) time.Duration {
	if failures < 1 {
		failures = 1
	}
	doublings := failures - 1
	if doublings > maxDoublings {
		doublings = maxDoublings
	}
	delay := interval << uint(doublings)
	if max > 0 && delay > max {
		delay = max
	}
	if delay < interval {
		delay = interval
	}
	return delay
}
