// retry.go holds the backoff policy for retryable delivery failures.

package temps

import (
	"math"
	"math/rand"
	"time"
)

// retryPolicy bounds delivery retries and shapes their exponential backoff.
type retryPolicy struct {
	maxAttempts    int
	initialBackoff time.Duration
	multiplier     float64
	maxBackoff     time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts:    3,
		initialBackoff: 500 * time.Millisecond,
		multiplier:     2.0,
		maxBackoff:     30 * time.Second,
	}
}

// backoff returns the wait before the given retry attempt (1-based), with
// ±25% jitter to avoid thundering herds, capped at maxBackoff.
func (p retryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return p.initialBackoff
	}
	base := float64(p.initialBackoff) * math.Pow(p.multiplier, float64(attempt-1))
	jitter := base * 0.25 * (2*rand.Float64() - 1)
	d := time.Duration(base + jitter)
	if d > p.maxBackoff {
		d = p.maxBackoff
	}
	if d < 0 {
		d = p.initialBackoff
	}
	return d
}
