package client

import (
	"math/rand/v2"
	"time"
)

// minRenewRetry is the floor on retransmission in RENEWING and REBINDING
// (RFC 2131 §4.4.5).
const minRenewRetry = 60 * time.Second

// Backoff computes retransmission delays: Base doubled per attempt up to
// Max, randomised by up to a second either way (RFC 2131 §4.1).
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	rng  *rand.Rand
}

// NewBackoff returns a Backoff drawing jitter from rng.
func NewBackoff(base, ceiling time.Duration, rng *rand.Rand) *Backoff {
	return &Backoff{Base: base, Max: ceiling, rng: rng}
}

// Delay returns the wait before retransmission number attempt (1-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 1; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	d = min(d, b.Max)
	d += b.jitter()
	return max(d, 0)
}

// jitter is uniform in ±1s, narrowed to ±Base/2 for sub-second bases.
func (b *Backoff) jitter() time.Duration {
	if b.rng == nil {
		return 0
	}
	span := min(time.Second, b.Base/2)
	if span <= 0 {
		return 0
	}
	return time.Duration(b.rng.Int64N(int64(2*span)+1)) - span
}

// renewRetry returns the wait before retransmitting in RENEWING or
// REBINDING: half the time left until deadline, but at least a minute.
func renewRetry(now, deadline time.Time) time.Duration {
	return max(deadline.Sub(now)/2, minRenewRetry)
}
