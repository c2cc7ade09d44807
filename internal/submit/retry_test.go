package submit

import (
	"testing"
	"time"
)

func TestPolicy_Defaults(t *testing.T) {
	p := Policy{}.withDefaults()
	if p.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", p.MaxAttempts)
	}
	if p.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", p.BaseDelay)
	}
	if p.MaxDelay != time.Minute {
		t.Errorf("MaxDelay = %v, want 1m", p.MaxDelay)
	}
}

func TestPolicy_BackoffGrowsExponentially(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Hour}.withDefaults()

	for attempt := 0; attempt < 5; attempt++ {
		base := time.Second * time.Duration(1<<attempt)
		// Jitter stays within ±25% of the exponential value.
		lo, hi := base*3/4, base*5/4
		for i := 0; i < 50; i++ {
			d := p.Backoff(attempt)
			if d < lo || d > hi {
				t.Fatalf("Backoff(%d) = %v, want within [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}

func TestPolicy_BackoffCapped(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}.withDefaults()

	for i := 0; i < 50; i++ {
		d := p.Backoff(10)
		if d > 5*time.Second*5/4 {
			t.Fatalf("Backoff(10) = %v exceeds cap with jitter", d)
		}
	}
}

func TestPolicy_BackoffExtremeAttempts(t *testing.T) {
	p := Policy{}.withDefaults()

	// Neither negative nor huge attempt counts may panic or overflow.
	for _, attempt := range []int{-1, 0, 63, 1 << 30} {
		d := p.Backoff(attempt)
		if d < 0 {
			t.Errorf("Backoff(%d) = %v, negative", attempt, d)
		}
	}
}
