// ABOUTME: Shared exponential backoff schedule for transport reconnects.
// ABOUTME: Doubles an initial delay per attempt, optionally capped at a maximum.

package transport

import "time"

// backoffDelay returns the delay before retry number attempt (zero-based):
// initial on the first retry, doubling each time. A max of zero means uncapped.
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
