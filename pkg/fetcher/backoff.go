package fetcher

import (
	"fmt"
	"time"
)

// BackoffPolicy controls the delay between failed background refreshes.
// Each failure multiplies the current backoff by Multiplier; once the
// grown value exceeds Ceiling the refresh is abandoned.
type BackoffPolicy struct {
	// Base is the backoff after a successful fetch.
	Base time.Duration

	// Multiplier is the growth factor applied on each failure.
	Multiplier float64

	// Ceiling is the largest backoff still retried.
	Ceiling time.Duration
}

// DefaultBackoffPolicy returns the default policy: 1s, tripled on each
// failure, abandoned above 65.536s. With these values a failing refresh is
// retried after 1s, 3s and 9s and then abandoned.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:       1 * time.Second,
		Multiplier: 3.0,
		Ceiling:    65536 * time.Millisecond,
	}
}

// Next returns the backoff that follows current and whether it is still
// within the ceiling.
func (p BackoffPolicy) Next(current time.Duration) (time.Duration, bool) {
	next := time.Duration(float64(current) * p.Multiplier)
	return next, next <= p.Ceiling
}

func (p BackoffPolicy) validate() error {
	if p.Base <= 0 {
		return fmt.Errorf("base_backoff must be > 0 (got %s)", p.Base)
	}
	if p.Multiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1 (got %g)", p.Multiplier)
	}
	if p.Ceiling < p.Base {
		return fmt.Errorf("backoff_ceiling must be >= base_backoff (got %s < %s)", p.Ceiling, p.Base)
	}
	return nil
}
