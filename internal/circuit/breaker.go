// Package circuit implements the CLOSED/OPEN/HALF_OPEN circuit breaker used
// by the RPC dispatcher and the yield scanner's per-adapter protection.
// Grounded on the teacher's unimplemented strategy_api.go CircuitBreaker
// shape (ErrorWindow/ErrorThreshold/LastErrors) generalized into a
// general-purpose, lazily-transitioning breaker per spec.md §4.2.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call when the breaker is open. A HALF_OPEN breaker
// lets calls through.
var ErrOpen = errors.New("circuit: breaker open")

// State is one of CLOSED, OPEN, HALF_OPEN.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// Breaker is safe for concurrent use. Transition from OPEN to HALF_OPEN is
// lazy: it only happens on the next read of the state, not on a background
// timer, matching spec.md §4.2's "any read of is_open" transition rule.
type Breaker struct {
	mu sync.Mutex

	threshold       int
	recoveryTimeout time.Duration

	state    State
	failures int
	openedAt time.Time
}

// New creates a breaker with the given failure threshold and recovery
// timeout. Initial state is CLOSED.
func New(threshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		threshold:       threshold,
		recoveryTimeout: recoveryTimeout,
		state:           Closed,
	}
}

// State returns the current state, first applying the lazy OPEN->HALF_OPEN
// transition if the recovery timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover(time.Now())
	return b.state
}

// maybeRecover must be called with b.mu held.
func (b *Breaker) maybeRecover(now time.Time) {
	if b.state == Open && now.Sub(b.openedAt) >= b.recoveryTimeout {
		b.state = HalfOpen
	}
}

// Allow reports whether a call should proceed. It is the same lazy check as
// State but returns a bool for call sites that only care about gating.
func (b *Breaker) Allow() bool {
	return b.State() != Open
}

// RecordSuccess transitions CLOSED->CLOSED (counter reset) or
// HALF_OPEN->CLOSED.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = Closed
}

// RecordFailure increments the failure counter in CLOSED state, opening the
// breaker once the threshold is reached; in HALF_OPEN it reopens
// immediately with a fresh opened_at.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = now
	default:
		b.failures++
		if b.failures >= b.threshold {
			b.state = Open
			b.openedAt = now
		}
	}
}

// Call runs op if the breaker allows it, recording the outcome. It returns
// ErrOpen without invoking op when the breaker is open.
func (b *Breaker) Call(op func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := op()
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Failures returns the current consecutive-failure counter (for metrics and
// audit logging).
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
