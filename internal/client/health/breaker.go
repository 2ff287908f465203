// Package health implements the origin health prober and circuit breaker
// (C5): a cached HEAD-based liveness probe, and a consecutive-error breaker
// that protects a struggling origin from a pile-up of forwarded requests.
package health

import (
	"sync"
	"time"
)

const (
	// ErrorThreshold is the number of consecutive forwarder failures that
	// trips the breaker open.
	ErrorThreshold = 5

	// CooldownPeriod is how long the breaker stays open before a probe is
	// allowed to auto-reset it.
	CooldownPeriod = 30 * time.Second
)

// CircuitBreaker tracks consecutive origin failures. Unlike a three-state
// (closed/open/half-open) breaker, it only ever reports open or closed: once
// open, it self-resets purely on elapsed time, with no half-open trial
// traffic — matching the simpler two-state model the tunnel's forwarder
// needs.
type CircuitBreaker struct {
	mu                sync.Mutex
	consecutiveErrors int
	lastErrorTime     time.Time
	isOpen            bool

	onOpen  func()
	onClose func()
}

// NewCircuitBreaker creates a closed circuit breaker. onOpen and onClose are
// invoked (synchronously, under no lock) on the open/close transitions, so
// the Session can emit its `circuit-breaker-open`/`circuit-breaker-closed`
// events; either may be nil.
func NewCircuitBreaker(onOpen, onClose func()) *CircuitBreaker {
	return &CircuitBreaker{onOpen: onOpen, onClose: onClose}
}

// RecordError registers a forwarder failure. If consecutive failures reach
// ErrorThreshold, the breaker opens.
func (b *CircuitBreaker) RecordError(now time.Time) {
	b.mu.Lock()
	b.consecutiveErrors++
	b.lastErrorTime = now
	opened := false
	if !b.isOpen && b.consecutiveErrors >= ErrorThreshold {
		b.isOpen = true
		opened = true
	}
	b.mu.Unlock()

	if opened && b.onOpen != nil {
		b.onOpen()
	}
}

// RecordSuccess clears the failure count. If the breaker was open, it closes
// and fires onClose.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	wasOpen := b.isOpen
	b.consecutiveErrors = 0
	b.isOpen = false
	b.mu.Unlock()

	if wasOpen && b.onClose != nil {
		b.onClose()
	}
}

// IsOpen reports whether the breaker is currently blocking requests. A
// breaker open for longer than CooldownPeriod auto-resets and reports
// closed, firing onClose.
func (b *CircuitBreaker) IsOpen(now time.Time) bool {
	b.mu.Lock()
	if !b.isOpen {
		b.mu.Unlock()
		return false
	}
	if now.Sub(b.lastErrorTime) > CooldownPeriod {
		b.isOpen = false
		b.consecutiveErrors = 0
		b.mu.Unlock()
		if b.onClose != nil {
			b.onClose()
		}
		return false
	}
	b.mu.Unlock()
	return true
}

// ConsecutiveErrors reports the current streak, for diagnostics/tests.
func (b *CircuitBreaker) ConsecutiveErrors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveErrors
}
