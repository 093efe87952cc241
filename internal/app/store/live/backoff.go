// internal/app/store/live/backoff.go
package live

import "time"

// Backoff computes capped exponential retry delays for transient watch
// failures. Attempt numbering starts at 1; once Attempts delays have
// been consumed the failure is treated as persistent.
type Backoff struct {
	Base     time.Duration // delay before the first retry
	Cap      time.Duration // upper bound on any single delay
	Attempts int           // retries before giving up
}

// DefaultBackoff is the retry policy used when a Broker is constructed
// without an explicit one: 500ms doubling to a 30s cap, 10 attempts.
var DefaultBackoff = Backoff{
	Base:     500 * time.Millisecond,
	Cap:      30 * time.Second,
	Attempts: 10,
}

// Delay returns the delay before retry number attempt (1-based).
// Attempts outside [1, Attempts] return the boundary values.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Cap {
			return b.Cap
		}
	}
	if d > b.Cap {
		return b.Cap
	}
	return d
}

// Exhausted reports whether attempt exceeds the retry budget.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt > b.Attempts
}
