package worker

import (
	"math"
	"time"
)

// RetryPolicy is exponential backoff shared by the background jobs.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// withDefaults fills zero fields; explicit values win.
func (r RetryPolicy) withDefaults(maxRetries int, initial, maxDelay time.Duration) RetryPolicy {
	if r.MaxRetries == 0 {
		r.MaxRetries = maxRetries
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = initial
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = maxDelay
	}
	if r.BackoffFactor == 0 {
		r.BackoffFactor = 2
	}
	return r
}

// Exhausted reports whether attempt (1-based) was the last one allowed.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.MaxRetries
}

// NextDelay is the wait after the given failed attempt, capped at MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}
	exp := float64(max(attempt, 1) - 1)

	d := time.Duration(float64(initial) * math.Pow(factor, exp))
	switch {
	case d <= 0:
		return initial
	case r.MaxDelay > 0 && d > r.MaxDelay:
		return r.MaxDelay
	}
	return d
}
