package scheduler

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/onchain-yield/optimizer/pkg/adapter"
	"github.com/onchain-yield/optimizer/pkg/executor"
	"github.com/onchain-yield/optimizer/pkg/types"
)

type fakePositionStore struct {
	positions []types.Position
	err       error
}

func (f *fakePositionStore) GetCurrentPositions() ([]types.Position, error) {
	return f.positions, f.err
}
func (f *fakePositionStore) UpsertPosition(types.Position) error        { return nil }
func (f *fakePositionStore) ClosePosition(string, string, string) error { return nil }

type fakeRecommender struct {
	recs []types.RebalanceRecommendation
	err  error
	n    int
}

func (f *fakeRecommender) Recommend(ctx context.Context, positions []types.Position) ([]types.RebalanceRecommendation, error) {
	f.n++
	return f.recs, f.err
}

func newTestScheduler(positions *fakePositionStore, rec *fakeRecommender, readOnly bool, caps DailyCaps) *Scheduler {
	return New(positions, rec, nil, nil, zerolog.Nop(), nil, time.Hour, caps, readOnly)
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	s := newTestScheduler(&fakePositionStore{}, &fakeRecommender{}, true, DailyCaps{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	if s.Status().State != types.SchedulerRunning {
		t.Fatalf("expected RUNNING after Start, got %s", s.Status().State)
	}

	// Starting again while running is a no-op, not a second goroutine.
	s.Start(ctx)
	if s.Status().State != types.SchedulerRunning {
		t.Fatalf("expected RUNNING after duplicate Start, got %s", s.Status().State)
	}

	s.Stop()
	if s.Status().State != types.SchedulerStopped {
		t.Fatalf("expected STOPPED after Stop, got %s", s.Status().State)
	}

	// Stop on an already-stopped scheduler must not block or panic.
	s.Stop()
}

func TestScheduler_ReadOnlySkipsEveryRecommendation(t *testing.T) {
	rec := &fakeRecommender{recs: []types.RebalanceRecommendation{
		{ToProtocol: "aave", Token: "USDC", AmountUSD: decimal.NewFromInt(1000), ExpectedAPY: decimal.NewFromFloat(0.05)},
	}}
	s := newTestScheduler(&fakePositionStore{}, rec, true, DailyCaps{})

	if err := s.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}
	if s.status.OpportunitiesFound != 1 {
		t.Fatalf("expected 1 opportunity found, got %d", s.status.OpportunitiesFound)
	}
	if s.status.OpportunitiesSkipped != 1 {
		t.Fatalf("expected 1 opportunity skipped in read-only mode, got %d", s.status.OpportunitiesSkipped)
	}
	if s.status.OpportunitiesExecuted != 0 {
		t.Fatalf("read-only mode must never execute, got %d executed", s.status.OpportunitiesExecuted)
	}
}

func TestScheduler_NoExecutorSkipsRecommendations(t *testing.T) {
	rec := &fakeRecommender{recs: []types.RebalanceRecommendation{
		{ToProtocol: "aave", Token: "USDC", AmountUSD: decimal.NewFromInt(1000)},
	}}
	s := newTestScheduler(&fakePositionStore{}, rec, false, DailyCaps{})

	if err := s.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}
	if s.status.OpportunitiesSkipped != 1 {
		t.Fatalf("expected skip when no executor is wired, got %d skipped", s.status.OpportunitiesSkipped)
	}
}

func TestScheduler_DailyCapsStopProcessingRemainingRecommendations(t *testing.T) {
	rec := &fakeRecommender{recs: []types.RebalanceRecommendation{
		{ToProtocol: "aave", Token: "USDC", AmountUSD: decimal.NewFromInt(1000)},
		{ToProtocol: "compound", Token: "USDC", AmountUSD: decimal.NewFromInt(1000)},
	}}
	s := newTestScheduler(&fakePositionStore{}, rec, false, DailyCaps{MaxRebalancesPerDay: 1})
	s.status.DailyRebalanceCount = 1 // cap already reached before this cycle

	if err := s.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}
	if s.status.OpportunitiesSkipped != 2 {
		t.Fatalf("expected both recommendations skipped once the daily cap is reached, got %d", s.status.OpportunitiesSkipped)
	}
}

type fakeAdapter struct{ name string }

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) GetPools(ctx context.Context) ([]types.YieldOpportunity, error) {
	return nil, nil
}
func (f *fakeAdapter) Deposit(ctx context.Context, poolID, token string, amount *big.Int) (string, error) {
	return "0xtest", nil
}
func (f *fakeAdapter) Withdraw(ctx context.Context, poolID, token string, amount *big.Int) (string, error) {
	return "0xtest", nil
}
func (f *fakeAdapter) GetUserBalance(ctx context.Context, poolID, address string) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeAdapter) EstimateGas(ctx context.Context, op adapter.GasOp, params map[string]any) (uint64, error) {
	return 0, nil
}

// TestScheduler_DailyCapTripMidCycleCountsOnlyRemainderAsSkipped reproduces
// the five-recommendation, cap-of-two scenario: the first two must execute
// and only the remaining three count as skipped, not all five.
func TestScheduler_DailyCapTripMidCycleCountsOnlyRemainderAsSkipped(t *testing.T) {
	registry := adapter.NewRegistry()
	registry.Register(&fakeAdapter{name: "aave"})
	exec := executor.New(registry, nil, nil, nil, zerolog.Nop(), true)

	var recs []types.RebalanceRecommendation
	for i := 0; i < 5; i++ {
		recs = append(recs, types.RebalanceRecommendation{
			ToProtocol:  "aave",
			Token:       "USDC",
			AmountUSD:   decimal.NewFromInt(1000),
			ExpectedAPY: decimal.NewFromFloat(0.05),
		})
	}
	rec := &fakeRecommender{recs: recs}

	s := New(&fakePositionStore{}, rec, exec, nil, zerolog.Nop(), nil, time.Hour, DailyCaps{MaxRebalancesPerDay: 2}, false)

	if err := s.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}
	if s.status.OpportunitiesExecuted != 2 {
		t.Fatalf("expected 2 executed before the daily cap trips, got %d", s.status.OpportunitiesExecuted)
	}
	if s.status.OpportunitiesSkipped != 3 {
		t.Fatalf("expected only the remaining 3 recommendations counted as skipped, got %d", s.status.OpportunitiesSkipped)
	}
}

func TestScheduler_DailyCapsReached(t *testing.T) {
	tests := []struct {
		name   string
		caps   DailyCaps
		status SchedulerStatus
		want   bool
	}{
		{"no caps configured", DailyCaps{}, SchedulerStatus{}, false},
		{"under rebalance cap", DailyCaps{MaxRebalancesPerDay: 5}, SchedulerStatus{DailyRebalanceCount: 4}, false},
		{"at rebalance cap", DailyCaps{MaxRebalancesPerDay: 5}, SchedulerStatus{DailyRebalanceCount: 5}, true},
		{"under gas cap", DailyCaps{MaxGasPerDayUSD: decimal.NewFromInt(100)}, SchedulerStatus{DailyGasSpentUSD: 50}, false},
		{"at gas cap", DailyCaps{MaxGasPerDayUSD: decimal.NewFromInt(100)}, SchedulerStatus{DailyGasSpentUSD: 100}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Scheduler{caps: tt.caps, status: tt.status}
			if got := s.dailyCapsReached(); got != tt.want {
				t.Errorf("dailyCapsReached() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduler_RunCyclePropagatesPositionStoreError(t *testing.T) {
	boom := errors.New("db unreachable")
	s := newTestScheduler(&fakePositionStore{err: boom}, &fakeRecommender{}, true, DailyCaps{})

	err := s.runCycle(context.Background())
	if err == nil {
		t.Fatal("expected error when position store fails")
	}
}

func TestScheduler_RunCyclePropagatesRecommenderError(t *testing.T) {
	boom := errors.New("scan failed")
	s := newTestScheduler(&fakePositionStore{}, &fakeRecommender{err: boom}, true, DailyCaps{})

	err := s.runCycle(context.Background())
	if err == nil {
		t.Fatal("expected error when the recommender fails")
	}
}

func TestScheduler_WaitOrStopReturnsFalseOnStop(t *testing.T) {
	s := newTestScheduler(&fakePositionStore{}, &fakeRecommender{}, true, DailyCaps{})
	s.stopCh = make(chan struct{})
	close(s.stopCh)

	if s.waitOrStop(time.Minute) {
		t.Fatal("expected waitOrStop to return false once stopCh is closed")
	}
}

func TestScheduler_WaitOrStopReturnsTrueAfterElapsed(t *testing.T) {
	s := newTestScheduler(&fakePositionStore{}, &fakeRecommender{}, true, DailyCaps{})
	s.stopCh = make(chan struct{})

	start := time.Now()
	if !s.waitOrStop(20 * time.Millisecond) {
		t.Fatal("expected waitOrStop to return true once the duration elapses")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("waitOrStop returned before its duration elapsed")
	}
}
