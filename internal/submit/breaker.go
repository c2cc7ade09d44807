package submit

import (
	"sync"
	"time"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig tunes one endpoint's breaker.
type BreakerConfig struct {
	// FailureThreshold opens the breaker once this many failures land within
	// Window.
	FailureThreshold int
	Window           time.Duration
	// Cooldown is how long the breaker stays open before allowing a trial
	// call. A failed trial reopens with the cooldown doubled, up to
	// MaxCooldown.
	Cooldown    time.Duration
	MaxCooldown time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.MaxCooldown <= 0 {
		c.MaxCooldown = 10 * time.Minute
	}
	return c
}

// Breaker is a per-endpoint circuit breaker. One instance per downstream,
// injected into whichever worker submits there; state lives in the process
// and is re-learned after a restart.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    BreakerState
	failures []time.Time
	openUntil time.Time
	cooldown  time.Duration
	trialBusy bool
	now       func() time.Time
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg = cfg.withDefaults()
	return &Breaker{
		cfg:      cfg,
		state:    BreakerClosed,
		cooldown: cfg.Cooldown,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Allow reports whether a call may proceed. While open it fails fast with
// ErrCircuitOpen; once the cooldown elapses exactly one caller gets the
// half-open trial slot until its outcome is recorded.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Before(b.openUntil) {
			return ErrCircuitOpen
		}
		b.state = BreakerHalfOpen
		b.trialBusy = true
		return nil
	case BreakerHalfOpen:
		if b.trialBusy {
			return ErrCircuitOpen
		}
		b.trialBusy = true
		return nil
	}
	return nil
}

// RecordSuccess closes the breaker and resets counters. Called after any
// response that proves the downstream is up, including permanent 4xx
// rejections.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failures = b.failures[:0]
	b.cooldown = b.cfg.Cooldown
	b.trialBusy = false
}

// RecordFailure counts a transient failure. In half-open it reopens with an
// extended cooldown; in closed it opens once the rolling window fills.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case BreakerHalfOpen:
		b.cooldown *= 2
		if b.cooldown > b.cfg.MaxCooldown {
			b.cooldown = b.cfg.MaxCooldown
		}
		b.open(now)
	case BreakerClosed:
		b.failures = append(b.failures, now)
		b.prune(now)
		if len(b.failures) >= b.cfg.FailureThreshold {
			b.open(now)
		}
	case BreakerOpen:
		// Late failure from a call that started before opening. Nothing to do.
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) open(now time.Time) {
	b.state = BreakerOpen
	b.openUntil = now.Add(b.cooldown)
	b.failures = b.failures[:0]
	b.trialBusy = false
}

func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}
