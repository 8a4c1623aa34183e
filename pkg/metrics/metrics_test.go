package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistry_RegistersEveryMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.RPCRequestsTotal.WithLabelValues("mainnet", "primary", "PUBLIC").Inc()
	m.RPCFailuresTotal.WithLabelValues("mainnet", "primary", "PUBLIC").Inc()
	m.RPCLatencySeconds.WithLabelValues("mainnet", "primary").Observe(0.5)
	m.RPCEndpointHealthy.WithLabelValues("mainnet", "primary").Set(1)
	m.SchedulerCyclesTotal.Inc()
	m.SchedulerCycleErrorsTotal.Inc()
	m.SchedulerRebalancesTotal.Inc()
	m.SchedulerSkippedTotal.Inc()
	m.SchedulerGasSpentUSD.Add(12.5)
	m.SchedulerCycleDuration.Observe(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	want := map[string]bool{
		"optimizer_rpc_requests_total":                    false,
		"optimizer_rpc_failures_total":                    false,
		"optimizer_rpc_latency_seconds":                   false,
		"optimizer_rpc_endpoint_healthy":                   false,
		"optimizer_scheduler_cycles_total":                false,
		"optimizer_scheduler_cycle_errors_total":          false,
		"optimizer_scheduler_rebalances_total":            false,
		"optimizer_scheduler_opportunities_skipped_total": false,
		"optimizer_scheduler_gas_spent_usd_total":         false,
		"optimizer_scheduler_cycle_duration_seconds":      false,
	}

	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("expected metric %s to be registered and gathered", name)
		}
	}
}

func TestNewRegistry_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRegistry(reg)

	defer func() {
		if recover() == nil {
			t.Fatal("expected MustRegister to panic on duplicate registration against the same registry")
		}
	}()
	NewRegistry(reg)
}
