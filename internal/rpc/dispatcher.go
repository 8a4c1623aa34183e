// Package rpc implements the multi-tier RPC dispatcher of spec.md §4.1:
// endpoint selection with gradual PREMIUM rollout, automatic failover,
// per-endpoint rate limiting and health tracking, usage accounting, and URL
// redaction. Grounded on original_source/src/utils/rpc_manager.py.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/onchain-yield/optimizer/internal/circuit"
	"github.com/onchain-yield/optimizer/pkg/audit"
	"github.com/onchain-yield/optimizer/pkg/metrics"
	"github.com/onchain-yield/optimizer/pkg/types"
)

// ErrAllEndpointsFailed is returned when every candidate for a network has
// been exhausted without a success.
var ErrAllEndpointsFailed = errors.New("rpc: all endpoints failed")

// Op is an opaque unit of work executed against a connected client. The
// Chain Gateway supplies client connection/lookup; the dispatcher only
// knows how to pick an Endpoint and wrap the call with rate limiting,
// breaker protection, and latency measurement.
type Op func(ctx context.Context, e *Endpoint) (any, error)

// Dispatcher routes calls across a set of endpoints for one network.
type Dispatcher struct {
	network           string
	endpoints         []*Endpoint
	premiumPercentage int // 0..100, gradual rollout probability
	usage             *UsageTracker
	auditLog          audit.Sink
	log               zerolog.Logger
	metrics           *metrics.Registry

	// rollout is injected for deterministic tests; defaults to
	// rand.Float64 scaled to a percentage.
	rollout func() float64
}

// NewDispatcher constructs a dispatcher over the given endpoints (any
// priority mix) for a single network. m may be nil, in which case metrics
// are skipped; auditLog may be nil, in which case RPC audit events are
// skipped.
func NewDispatcher(network string, endpoints []*Endpoint, premiumPercentage int, usage *UsageTracker, auditLog audit.Sink, log zerolog.Logger, m *metrics.Registry) *Dispatcher {
	return &Dispatcher{
		network:           network,
		endpoints:         endpoints,
		premiumPercentage: premiumPercentage,
		usage:             usage,
		auditLog:          auditLog,
		log:               log,
		metrics:           m,
		rollout:           rand.Float64,
	}
}

// candidates builds the ordered PREMIUM->BACKUP->PUBLIC healthy list,
// applying gradual rollout to the PREMIUM tier.
func (d *Dispatcher) candidates(now time.Time) []*Endpoint {
	keepPremium := d.rollout() < float64(d.premiumPercentage)/100.0

	var out []*Endpoint
	for _, e := range d.endpoints {
		if e.Priority == types.PriorityPremium && !keepPremium {
			continue
		}
		if !e.Healthy() {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank(out[i].Priority) < priorityRank(out[j].Priority)
	})
	return out
}

func priorityRank(p types.EndpointPriority) int {
	switch p {
	case types.PriorityPremium:
		return 0
	case types.PriorityBackup:
		return 1
	default:
		return 2
	}
}

// Execute runs op against the best available endpoint, failing over
// through candidates in priority order. It returns ErrAllEndpointsFailed
// when every candidate was skipped (rate-limited/breaker-open) or failed.
func (d *Dispatcher) Execute(ctx context.Context, op Op) (any, error) {
	now := time.Now()
	for _, e := range d.candidates(now) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.RateLimited(now) {
			continue
		}
		e.RecordRequest(now)

		start := time.Now()
		result, callErr := op(ctx, e)
		latency := time.Since(start)

		if d.metrics != nil {
			priority := string(e.Priority)
			d.metrics.RPCRequestsTotal.WithLabelValues(d.network, e.Name, priority).Inc()
			d.metrics.RPCLatencySeconds.WithLabelValues(d.network, e.Name).Observe(latency.Seconds())
			healthy := 0.0
			if e.Healthy() {
				healthy = 1.0
			}
			d.metrics.RPCEndpointHealthy.WithLabelValues(d.network, e.Name).Set(healthy)
		}

		if callErr == nil {
			e.RecordSuccess(latency)
			if d.usage != nil {
				d.usage.RecordSuccess(e.Priority, now)
			}
			return result, nil
		}

		e.RecordFailure()
		if d.metrics != nil {
			d.metrics.RPCFailuresTotal.WithLabelValues(d.network, e.Name, string(e.Priority)).Inc()
		}
		if d.usage != nil {
			d.usage.RecordFailure(e.Priority, now)
		}
		d.log.Warn().
			Str("network", d.network).
			Str("endpoint", e.RedactedURL()).
			Err(callErr).
			Msg("rpc endpoint failed, trying next candidate")
		d.emitEndpointFailure(e, callErr)
		if e.Breaker().State() == circuit.Open {
			d.emitCircuitBreakerOpened(e)
		}
	}
	return nil, fmt.Errorf("%w: network=%s", ErrAllEndpointsFailed, d.network)
}

func (d *Dispatcher) emitEndpointFailure(e *Endpoint, callErr error) {
	if d.auditLog == nil {
		return
	}
	d.auditLog.LogEvent(types.AuditEvent{
		EventType: types.EventRPCEndpointFailure,
		Severity:  types.SeverityWarning,
		Component: "rpc",
		Message:   fmt.Sprintf("rpc endpoint failed: %v", callErr),
		Metadata: map[string]string{
			"network":  d.network,
			"provider": e.Name,
			"priority": string(e.Priority),
		},
	})
}

func (d *Dispatcher) emitCircuitBreakerOpened(e *Endpoint) {
	if d.auditLog == nil {
		return
	}
	d.auditLog.LogEvent(types.AuditEvent{
		EventType: types.EventRPCCircuitBreakerOpened,
		Severity:  types.SeverityError,
		Component: "rpc",
		Message:   fmt.Sprintf("circuit breaker opened for %s", e.Name),
		Metadata: map[string]string{
			"network":  d.network,
			"provider": e.Name,
			"failures": strconv.Itoa(e.Breaker().Failures()),
		},
	})
}

// LogUsageSummary emits the current daily RPC usage as an audit event,
// matching original_source's get_daily_summary/rpc_usage_summary shape.
// Callers invoke this periodically (e.g. hourly) rather than per-request.
func (d *Dispatcher) LogUsageSummary(now time.Time) {
	if d.auditLog == nil || d.usage == nil {
		return
	}
	summary := d.usage.Summary(now)
	d.auditLog.LogEvent(types.AuditEvent{
		EventType: types.EventRPCUsageSummary,
		Severity:  types.SeverityInfo,
		Component: "rpc",
		Message:   "daily rpc usage summary",
		Metadata: map[string]string{
			"network":          d.network,
			"premium_requests": strconv.Itoa(summary.PremiumRequests),
			"backup_requests":  strconv.Itoa(summary.BackupRequests),
			"public_requests":  strconv.Itoa(summary.PublicRequests),
			"failures":         strconv.Itoa(summary.Failures),
			"approaching_limit": strconv.FormatBool(summary.ApproachingLimit),
		},
	})
}
