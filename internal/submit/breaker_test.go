package submit

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testBreaker(clock *fakeClock) *Breaker {
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 3,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		MaxCooldown:      2 * time.Minute,
	})
	b.SetClock(clock.now)
	return b
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if b.State() != BreakerClosed {
			t.Fatalf("breaker opened after %d failures", i+1)
		}
	}

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatal("breaker did not open at the failure threshold")
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() while open = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_WindowExpiryForgetsFailures(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)

	b.RecordFailure()
	b.RecordFailure()

	// The first two failures age out of the rolling window.
	clock.advance(2 * time.Minute)

	b.RecordFailure()
	if b.State() != BreakerOpen {
		// Two stale + one fresh = one in-window failure.
		if b.State() != BreakerClosed {
			t.Fatalf("unexpected state %s", b.State())
		}
	} else {
		t.Error("stale failures counted toward the threshold")
	}
}

func TestBreaker_HalfOpenSingleTrial(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.advance(31 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatalf("trial call after cooldown rejected: %v", err)
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state after cooldown = %s, want half_open", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Error("second caller got the trial slot")
	}
}

func TestBreaker_TrialSuccessCloses(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.advance(31 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatal(err)
	}
	b.RecordSuccess()

	if b.State() != BreakerClosed {
		t.Fatalf("state after trial success = %s, want closed", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() after close = %v", err)
	}
}

func TestBreaker_TrialFailureDoublesCooldown(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.advance(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatal(err)
	}
	b.RecordFailure()

	if b.State() != BreakerOpen {
		t.Fatalf("state after trial failure = %s, want open", b.State())
	}

	// Original cooldown has passed but the doubled one has not.
	clock.advance(45 * time.Second)
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Error("breaker allowed a call before the doubled cooldown elapsed")
	}

	clock.advance(16 * time.Second)
	if err := b.Allow(); err != nil {
		t.Errorf("breaker still rejecting after doubled cooldown: %v", err)
	}
}

func TestBreaker_CooldownCapped(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)

	// Fail enough trials to push the cooldown past the cap.
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	for trial := 0; trial < 5; trial++ {
		clock.advance(3 * time.Minute)
		if err := b.Allow(); err != nil {
			t.Fatalf("trial %d rejected: %v", trial, err)
		}
		b.RecordFailure()
	}

	// Cooldown is capped at 2 minutes, so 2m1s is always enough.
	clock.advance(2*time.Minute + time.Second)
	if err := b.Allow(); err != nil {
		t.Errorf("breaker rejecting past the max cooldown: %v", err)
	}
}

func TestBreaker_SuccessResetsCooldownEscalation(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.advance(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatal(err)
	}
	b.RecordFailure() // cooldown now 60s

	clock.advance(61 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatal(err)
	}
	b.RecordSuccess()

	// A fresh open uses the base cooldown again.
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.advance(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Errorf("base cooldown not restored after success: %v", err)
	}
}
