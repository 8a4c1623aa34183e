package rpc

import (
	"sync"
	"time"

	"github.com/onchain-yield/optimizer/internal/circuit"
	"github.com/onchain-yield/optimizer/pkg/types"
)

// Endpoint wraps one RPC provider's connection info, rate-limit buckets,
// health tracking, and circuit breaker. It holds no chain client: the
// Chain Gateway's ops dial URL themselves, so Endpoint is chain-client
// agnostic and can front any network.
type Endpoint struct {
	Name       string
	URL        string
	Priority   types.EndpointPriority
	PerSecond  int
	PerMinute  int

	breaker *circuit.Breaker

	mu sync.Mutex

	secondCount     int
	secondBoundary  time.Time
	minuteCount     int
	minuteBoundary  time.Time

	consecutiveFailures int
	avgLatencyMs        float64
	healthy             bool
}

// NewEndpoint constructs an endpoint with its own circuit breaker. Healthy
// starts true; the first three consecutive failures mark it unhealthy per
// spec.md §4.1.
func NewEndpoint(name, url string, priority types.EndpointPriority, perSecond, perMinute int, breakerThreshold int, recovery time.Duration) *Endpoint {
	return &Endpoint{
		Name:      name,
		URL:       url,
		Priority:  priority,
		PerSecond: perSecond,
		PerMinute: perMinute,
		breaker:   circuit.New(breakerThreshold, recovery),
		healthy:   true,
	}
}

// RedactedURL is the only form of URL this type should ever hand to a
// logger, error, or audit event.
func (e *Endpoint) RedactedURL() string {
	return RedactURL(e.URL)
}

// Healthy reports the endpoint's health flag and whether its breaker
// currently allows calls.
func (e *Endpoint) Healthy() bool {
	e.mu.Lock()
	h := e.healthy
	e.mu.Unlock()
	return h && e.breaker.Allow()
}

// RateLimited reports whether either bucket is exhausted for the current
// wall-clock window, resetting counters when the elapsed time since the
// stored boundary crosses the second/minute mark. This is a deliberately
// cheap reset-on-crossing scheme, not a token bucket (see DESIGN.md).
func (e *Endpoint) RateLimited(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetBucketsLocked(now)
	if e.PerSecond > 0 && e.secondCount >= e.PerSecond {
		return true
	}
	if e.PerMinute > 0 && e.minuteCount >= e.PerMinute {
		return true
	}
	return false
}

// resetBucketsLocked must be called with e.mu held.
func (e *Endpoint) resetBucketsLocked(now time.Time) {
	if e.secondBoundary.IsZero() || now.Sub(e.secondBoundary) >= time.Second {
		e.secondBoundary = now
		e.secondCount = 0
	}
	if e.minuteBoundary.IsZero() || now.Sub(e.minuteBoundary) >= time.Minute {
		e.minuteBoundary = now
		e.minuteCount = 0
	}
}

// RecordRequest increments both buckets for a request issued at now.
func (e *Endpoint) RecordRequest(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetBucketsLocked(now)
	e.secondCount++
	e.minuteCount++
}

// RecordSuccess updates the EMA latency (alpha 0.3), resets the failure
// counter, restores health, and resets the breaker.
func (e *Endpoint) RecordSuccess(latency time.Duration) {
	e.mu.Lock()
	ms := float64(latency.Milliseconds())
	if e.avgLatencyMs == 0 {
		e.avgLatencyMs = ms
	} else {
		const alpha = 0.3
		e.avgLatencyMs = alpha*ms + (1-alpha)*e.avgLatencyMs
	}
	e.consecutiveFailures = 0
	e.healthy = true
	e.mu.Unlock()
	e.breaker.RecordSuccess()
}

// RecordFailure increments the consecutive-failure counter, marking the
// endpoint unhealthy at 3, and trips the breaker.
func (e *Endpoint) RecordFailure() {
	e.mu.Lock()
	e.consecutiveFailures++
	if e.consecutiveFailures >= 3 {
		e.healthy = false
	}
	e.mu.Unlock()
	e.breaker.RecordFailure()
}

// Breaker exposes the underlying circuit breaker for Call-style dispatch
// and for audit logging of open/close transitions.
func (e *Endpoint) Breaker() *circuit.Breaker {
	return e.breaker
}

// Stats snapshots this endpoint's state for usage reporting.
func (e *Endpoint) Stats() types.RpcEndpointStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.RpcEndpointStats{
		Name:                e.Name,
		Priority:            e.Priority,
		Healthy:             e.healthy && e.breaker.Allow(),
		ConsecutiveFailures: e.consecutiveFailures,
		AvgLatencyMs:        e.avgLatencyMs,
		RequestsThisWindow:  e.minuteCount,
	}
}
