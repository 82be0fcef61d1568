package embed

import (
	"sync/atomic"
	"time"
)

const (
	DefaultBreakerThreshold = 3
	DefaultBreakerCooldown  = 60 * time.Second
)

// breaker is a per-provider circuit breaker. Counters are updated with
// atomics; concurrent failures may race a little around the threshold.
type breaker struct {
	threshold int32
	cooldown  time.Duration

	failures    atomic.Int32
	lastFailure atomic.Int64 // unix nanos
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	return &breaker{threshold: int32(threshold), cooldown: cooldown}
}

// allow reports whether a call may proceed. Once the cool-down has
// elapsed the breaker closes again and the failure count restarts.
func (b *breaker) allow(now time.Time) bool {
	if b.failures.Load() < b.threshold {
		return true
	}
	last := time.Unix(0, b.lastFailure.Load())
	if now.Sub(last) >= b.cooldown {
		b.failures.Store(0)
		return true
	}
	return false
}

func (b *breaker) recordFailure(now time.Time) {
	b.failures.Add(1)
	b.lastFailure.Store(now.UnixNano())
}

func (b *breaker) recordSuccess() {
	b.failures.Store(0)
}

// open reports the breaker state without mutating it.
func (b *breaker) open(now time.Time) bool {
	if b.failures.Load() < b.threshold {
		return false
	}
	last := time.Unix(0, b.lastFailure.Load())
	return now.Sub(last) < b.cooldown
}
