package streamclient

import (
	"testing"
	"time"
)

func TestBackoffDelays(t *testing.T) {
	tests := []struct {
		name string
		r    float64
	}{
		{"no jitter draw", 0},
		{"mid jitter draw", 0.5},
		{"max jitter draw", 0.999},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := DefaultBackoff()
			b.rand = func() float64 { return tc.r }
			var prev time.Duration
			for n := 0; n < 20; n++ {
				d := b.Delay(n)
				if d < prev {
					t.Fatalf("delay(%d)=%v < delay(%d)=%v", n, d, n-1, prev)
				}
				if d > b.Max {
					t.Fatalf("delay(%d)=%v exceeds max %v", n, d, b.Max)
				}
				prev = d
			}
			if prev != b.Max {
				t.Fatalf("delays should reach the cap, got %v", prev)
			}
		})
	}
}

func TestBackoffNonDecreasingAcrossDraws(t *testing.T) {
	// Worst case: maximum jitter on retry n, none on retry n+1.
	hi := DefaultBackoff()
	hi.rand = func() float64 { return 0.999 }
	lo := DefaultBackoff()
	lo.rand = func() float64 { return 0 }
	for n := 0; n < 10; n++ {
		if lo.Delay(n+1) < hi.Delay(n) {
			t.Fatalf("retry %d can wait less than retry %d", n+1, n)
		}
	}
}

func TestBackoffFirstDelay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Jitter: 0.2, rand: func() float64 { return 0.5 }}
	if got := b.Delay(0); got != 110*time.Millisecond {
		t.Fatalf("Delay(0) = %v", got)
	}
	if got := b.Delay(2); got != 440*time.Millisecond {
		t.Fatalf("Delay(2) = %v", got)
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := Backoff{Jitter: 3}.withDefaults()
	if b.Initial != 500*time.Millisecond || b.Max != 15*time.Second || b.MaxRetries != 8 {
		t.Fatalf("defaults: %+v", b)
	}
	if b.Jitter >= 1 {
		t.Fatalf("jitter must be clamped below 1, got %v", b.Jitter)
	}
}
