package worker

import (
	"math/rand"
	"time"
)

// Backoff computes the delay before a failed notification becomes eligible
// again: exponential in the retry count with full jitter, capped at Max.
// A zero Base means retry on the next run.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	rand func() float64 // [0,1), rand.Float64 when nil
}

// Delay returns the wait after the retry-th failure. A server supplied
// Retry-After wins when it is longer, still bounded by Max.
func (b Backoff) Delay(retry int, retryAfter time.Duration) time.Duration {
	var d time.Duration
	if b.Base > 0 && retry > 0 {
		ceil := b.Base
		for i := 1; i < retry && i < 62 && (b.Max <= 0 || ceil < b.Max); i++ {
			ceil *= 2
		}
		if b.Max > 0 && ceil > b.Max {
			ceil = b.Max
		}
		d = time.Duration(b.jitter() * float64(ceil))
	}

	if retryAfter > d {
		d = retryAfter
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

func (b Backoff) jitter() float64 {
	if b.rand != nil {
		return b.rand()
	}
	return rand.Float64()
}
