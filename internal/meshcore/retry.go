package meshcore

import (
	"math/rand"
	"time"
)

// RetryPolicy configures exponential backoff with optional jitter, grounded
// on the teacher's fixed ExchangeTimeout/PunchInterval retry loop in
// pkg/discovery/exchange.go, generalized into the presets spec.md §7 names.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction, e.g. 0.25 for ±25%
}

// Presets named by spec.md §7.
var (
	RetryQuick      = RetryPolicy{MaxAttempts: 2, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, Jitter: 0.25}
	RetryNetwork    = RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Jitter: 0.25}
	RetryPersistent = RetryPolicy{MaxAttempts: 5, BaseDelay: 1 * time.Second, MaxDelay: 30 * time.Second, Jitter: 0.25}
)

// Delay returns the backoff delay before attempt n (0-indexed), with jitter
// applied and capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		j := (rand.Float64()*2 - 1) * p.Jitter
		d = time.Duration(float64(d) * (1 + j))
	}
	if d < 0 {
		d = 0
	}
	return d
}
