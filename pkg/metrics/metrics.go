// Package metrics exposes the operator-facing Prometheus surface
// referenced throughout spec.md's External Interfaces (§6): per-endpoint
// RPC health/latency and per-cycle scheduler activity, so the same
// operator who watches audit events can also watch a Grafana dashboard.
// Grounded on the teacher's dependency on prometheus/client_golang (listed
// in go.mod but, in the source Blackhole bot, wired only transitively
// through gopsutil's process collector) and on elys-network-LP-Rebalancing-Vault
// from the retrieval pack, which pairs zerolog+prometheus+sentry for
// exactly this kind of LP-rebalancing service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric this module emits behind one struct so
// callers construct it once and pass it down instead of reaching for
// package-level global state.
type Registry struct {
	RPCRequestsTotal   *prometheus.CounterVec
	RPCFailuresTotal   *prometheus.CounterVec
	RPCLatencySeconds  *prometheus.HistogramVec
	RPCEndpointHealthy *prometheus.GaugeVec

	SchedulerCyclesTotal      prometheus.Counter
	SchedulerCycleErrorsTotal prometheus.Counter
	SchedulerRebalancesTotal  prometheus.Counter
	SchedulerSkippedTotal     prometheus.Counter
	SchedulerGasSpentUSD      prometheus.Counter
	SchedulerCycleDuration    prometheus.Histogram
}

// NewRegistry registers every metric against reg and returns the bundle.
// Pass prometheus.NewRegistry() in production, or a fresh registry per test
// to avoid duplicate-registration panics across parallel tests.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		RPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optimizer_rpc_requests_total",
			Help: "Total RPC requests dispatched, by network/endpoint/priority.",
		}, []string{"network", "endpoint", "priority"}),
		RPCFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optimizer_rpc_failures_total",
			Help: "Total RPC requests that failed, by network/endpoint/priority.",
		}, []string{"network", "endpoint", "priority"}),
		RPCLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optimizer_rpc_latency_seconds",
			Help:    "RPC call latency, by network/endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"network", "endpoint"}),
		RPCEndpointHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "optimizer_rpc_endpoint_healthy",
			Help: "1 if the endpoint is currently healthy, else 0.",
		}, []string{"network", "endpoint"}),

		SchedulerCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimizer_scheduler_cycles_total",
			Help: "Total scan cycles run by the scheduler.",
		}),
		SchedulerCycleErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimizer_scheduler_cycle_errors_total",
			Help: "Total scan cycles that returned an error (including watchdog timeouts).",
		}),
		SchedulerRebalancesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimizer_scheduler_rebalances_total",
			Help: "Total rebalances successfully executed.",
		}),
		SchedulerSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimizer_scheduler_opportunities_skipped_total",
			Help: "Total opportunities skipped (daily caps, read-only mode, execution failure).",
		}),
		SchedulerGasSpentUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimizer_scheduler_gas_spent_usd_total",
			Help: "Cumulative gas cost in USD across all executed rebalances.",
		}),
		SchedulerCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "optimizer_scheduler_cycle_duration_seconds",
			Help:    "Wall-clock duration of each scan cycle.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	reg.MustRegister(
		r.RPCRequestsTotal, r.RPCFailuresTotal, r.RPCLatencySeconds, r.RPCEndpointHealthy,
		r.SchedulerCyclesTotal, r.SchedulerCycleErrorsTotal, r.SchedulerRebalancesTotal,
		r.SchedulerSkippedTotal, r.SchedulerGasSpentUSD, r.SchedulerCycleDuration,
	)
	return r
}
