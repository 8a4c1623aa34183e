package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/onchain-yield/optimizer/pkg/types"
)

type fakeAuditSink struct {
	events []types.AuditEvent
}

func (f *fakeAuditSink) LogEvent(e types.AuditEvent) {
	f.events = append(f.events, e)
}

func (f *fakeAuditSink) countType(t types.EventType) int {
	n := 0
	for _, e := range f.events {
		if e.EventType == t {
			n++
		}
	}
	return n
}

func TestDispatcher_EmitsEndpointFailureAndCircuitBreakerOpened(t *testing.T) {
	sink := &fakeAuditSink{}
	endpoint := NewEndpoint("primary", "https://example.invalid", types.PriorityPublic, 0, 0, 2, time.Minute)
	d := NewDispatcher("avalanche", []*Endpoint{endpoint}, 0, NewUsageTracker(nil), sink, zerolog.Nop(), nil)

	boom := errors.New("rpc call failed")
	op := func(ctx context.Context, e *Endpoint) (any, error) { return nil, boom }

	// First failure: endpoint unhealthy only after 3 consecutive, breaker
	// opens at threshold 2.
	if _, err := d.Execute(context.Background(), op); err == nil {
		t.Fatal("expected failure on first call")
	}
	if sink.countType(types.EventRPCEndpointFailure) != 1 {
		t.Fatalf("expected 1 endpoint failure event, got %d", sink.countType(types.EventRPCEndpointFailure))
	}
	if sink.countType(types.EventRPCCircuitBreakerOpened) != 0 {
		t.Fatalf("breaker should not be open after 1 failure, got %d opened events", sink.countType(types.EventRPCCircuitBreakerOpened))
	}

	// Second failure trips the breaker (threshold 2).
	if _, err := d.Execute(context.Background(), op); err == nil {
		t.Fatal("expected failure on second call")
	}
	if sink.countType(types.EventRPCEndpointFailure) != 2 {
		t.Fatalf("expected 2 endpoint failure events, got %d", sink.countType(types.EventRPCEndpointFailure))
	}
	if sink.countType(types.EventRPCCircuitBreakerOpened) != 1 {
		t.Fatalf("expected circuit breaker opened event once threshold is hit, got %d", sink.countType(types.EventRPCCircuitBreakerOpened))
	}
}

func TestDispatcher_LogUsageSummaryEmitsEvent(t *testing.T) {
	sink := &fakeAuditSink{}
	usage := NewUsageTracker(nil)
	d := NewDispatcher("avalanche", nil, 0, usage, sink, zerolog.Nop(), nil)

	d.LogUsageSummary(time.Now())

	if sink.countType(types.EventRPCUsageSummary) != 1 {
		t.Fatalf("expected 1 usage summary event, got %d", sink.countType(types.EventRPCUsageSummary))
	}
}

func TestDispatcher_LogUsageSummaryNilAuditLogIsNoop(t *testing.T) {
	d := NewDispatcher("avalanche", nil, 0, NewUsageTracker(nil), nil, zerolog.Nop(), nil)
	d.LogUsageSummary(time.Now()) // must not panic with a nil audit sink
}
