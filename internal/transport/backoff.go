package transport

import (
	"math"
	"time"
)

// BackoffPolicy controls how reconnects are paced after an unexpected drop.
// A Multiplier of 1.0 gives a fixed delay between attempts.
type BackoffPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultBackoffPolicy returns the default reconnect pacing: a fixed 5s
// delay, giving up after 5 attempts.
func DefaultBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		MaxAttempts: 5,
		Delay:       5 * time.Second,
		Multiplier:  1.0,
		MaxDelay:    30 * time.Second,
	}
}

// NextDelay returns the delay before the given attempt number (1-indexed).
// The delay is Delay * Multiplier^(attempt-1), capped at MaxDelay.
func (p *BackoffPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.Delay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Exhausted reports whether the attempt count has passed MaxAttempts.
func (p *BackoffPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}
