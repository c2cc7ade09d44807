package submit

import (
	"math/rand"
	"time"
)

// Policy bounds the retry loop around one submission. It is independent of
// any concurrency primitive: callers sleep between attempts however they run.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 4
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = time.Minute
	}
	return p
}

// Backoff returns the wait before the next attempt after attempt failures:
// exponential from BaseDelay with ±25% jitter, capped at MaxDelay. The shift
// cap prevents integer overflow on pathological attempt counts.
func (p Policy) Backoff(attempt int) time.Duration {
	shift := attempt
	if shift < 0 {
		shift = 0
	}
	if shift > 20 {
		shift = 20
	}
	d := p.BaseDelay * time.Duration(1<<shift)
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 2 {
		return d
	}
	jitter := time.Duration(rand.Int63n(int64(d/2))) - d/4
	return d + jitter
}
