// Package circuit implements a failure-threshold circuit breaker, adapted
// from the provider-resiliency pattern used elsewhere in this codebase's
// lineage, and wired here to fast-fail the command engine's new commands
// against a host debugger whose calls keep failing.
package circuit

import (
	"sync"
	"time"
)

// Breaker blocks new work once failureCount reaches threshold, for
// cooldown, then resets.
type Breaker struct {
	mu             sync.RWMutex
	threshold      int
	cooldownPeriod time.Duration
	failureCount   int
	cooldownUntil  time.Time
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and stays open for cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold:      threshold,
		cooldownPeriod: cooldown,
	}
}

// RecordFailure records a failure and returns true if this failure caused
// the breaker to open.
func (cb *Breaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	if cb.failureCount >= cb.threshold {
		cb.cooldownUntil = time.Now().Add(cb.cooldownPeriod)
		cb.failureCount = 0
		return true
	}
	return false
}

// RecordSuccess clears the failure count, so a streak of failures doesn't
// carry over once the host starts responding again.
func (cb *Breaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
}

// IsInCooldown reports whether the breaker currently rejects work.
func (cb *Breaker) IsInCooldown() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return time.Now().Before(cb.cooldownUntil)
}

// CooldownRemaining returns the time left in cooldown, or 0 if not open.
func (cb *Breaker) CooldownRemaining() time.Duration {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	if time.Now().Before(cb.cooldownUntil) {
		return time.Until(cb.cooldownUntil)
	}
	return 0
}

// Reset clears the failure count and any open cooldown.
func (cb *Breaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.cooldownUntil = time.Time{}
}

// FailureCount returns the current consecutive-failure count.
func (cb *Breaker) FailureCount() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failureCount
}
