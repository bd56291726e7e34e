package streamclient

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays as
// min(Initial * 2^n * (1 + Jitter*r), Max) with r uniform in [0,1). Jitter
// below 1 keeps successive delays non-decreasing.
type Backoff struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Jitter     float64       `yaml:"jitter"`
	MaxRetries int           `yaml:"max_retries"`

	rand func() float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    500 * time.Millisecond,
		Max:        15 * time.Second,
		Jitter:     0.2,
		MaxRetries: 8,
	}
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	if b.Jitter >= 1 {
		b.Jitter = 0.99
	}
	if b.MaxRetries <= 0 {
		b.MaxRetries = d.MaxRetries
	}
	return b
}

// Delay returns the wait before retry n, counting from zero.
func (b Backoff) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	r := rand.Float64
	if b.rand != nil {
		r = b.rand
	}
	d := float64(b.Initial) * math.Pow(2, float64(n)) * (1 + b.Jitter*r())
	if d >= float64(b.Max) || math.IsInf(d, 0) {
		return b.Max
	}
	return time.Duration(d)
}
