package sdk

import (
	"math/bits"
	"time"

	"github.com/eapache/go-resiliency/retrier"
)

// Backoff returns the delay after the given attempt, counted from 1: base
// first, doubled at each attempt and capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	// past this many attempts the delay is above max anyway
	if limit := 1 + bits.Len64(uint64(max/base)); attempt > limit {
		attempt = limit
	}
	d := retrier.ExponentialBackoff(attempt, base)[attempt-1]
	if max > 0 && d > max {
		d = max
	}
	return d
}
