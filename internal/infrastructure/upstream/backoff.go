package upstream

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy is immutable retry configuration for the upstream client.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Factor     float64
}

// DefaultRetryPolicy matches the upstream client defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, Factor: 2.0}
}

const maxBackoff = 60 * time.Second

// Delay returns the pre-jitter backoff for a 0-based attempt:
// base * factor^attempt, capped at maxBackoff.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		return p.BaseDelay
	}
	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt))
	if d > float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(d)
}

// Jitter spreads a delay uniformly over [0.8d, 1.2d] so concurrent callers
// do not resynchronize their retries against the upstream.
func Jitter(d time.Duration) time.Duration {
	factor := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * factor)
}
