package retry

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes the wait before the next attempt. attempt starts at 1
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles the delay each attempt up to MaxDelay
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// Jitter spreads each delay over ±25%
	Jitter bool
}

// NewExponentialBackoff creates a new exponential backoff
func NewExponentialBackoff(baseDelay, maxDelay time.Duration, jitter bool) *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  baseDelay,
		MaxDelay:   maxDelay,
		Multiplier: 2.0,
		Jitter:     jitter,
	}
}

func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(e.BaseDelay) * math.Pow(e.Multiplier, float64(attempt-1))
	if e.MaxDelay > 0 && delay > float64(e.MaxDelay) {
		delay = float64(e.MaxDelay)
	}
	if e.Jitter {
		delay = jitter(delay)
	}
	return time.Duration(delay)
}

// FixedDelay waits the same time before every attempt
type FixedDelay struct {
	Delay  time.Duration
	Jitter bool
}

func (f *FixedDelay) NextDelay(int) time.Duration {
	if f.Jitter {
		return time.Duration(jitter(float64(f.Delay)))
	}
	return f.Delay
}

func jitter(d float64) float64 {
	return d * (0.75 + rand.Float64()*0.5)
}
