package executor

import (
	"context"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/onchain-yield/optimizer/pkg/adapter"
	"github.com/onchain-yield/optimizer/pkg/limits"
	"github.com/onchain-yield/optimizer/pkg/types"
)

type fakeAdapter struct {
	name string
}

func (a *fakeAdapter) Name() string { return a.name }
func (a *fakeAdapter) GetPools(ctx context.Context) ([]types.YieldOpportunity, error) {
	return nil, nil
}
func (a *fakeAdapter) Deposit(ctx context.Context, poolID, token string, amount *big.Int) (string, error) {
	return "0xdeposit", nil
}
func (a *fakeAdapter) Withdraw(ctx context.Context, poolID, token string, amount *big.Int) (string, error) {
	return "0xwithdraw", nil
}
func (a *fakeAdapter) GetUserBalance(ctx context.Context, poolID, address string) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (a *fakeAdapter) EstimateGas(ctx context.Context, op adapter.GasOp, params map[string]any) (uint64, error) {
	return 0, nil
}

func newTestExecutor(dryRun bool) *Executor {
	registry := adapter.NewRegistry()
	registry.Register(&fakeAdapter{name: "compound"})
	registry.Register(&fakeAdapter{name: "aave"})
	return New(registry, nil, nil, nil, zerolog.Nop(), dryRun)
}

// TestExecutor_GasUnitsMatchAcrossRealAndDryRunPaths locks in the fix where
// a real (non-dry-run) deposit previously used withdraw's 150k estimate
// instead of its own 120k one.
func TestExecutor_GasUnitsMatchAcrossRealAndDryRunPaths(t *testing.T) {
	for _, dryRun := range []bool{true, false} {
		e := newTestExecutor(dryRun)
		rec := types.RebalanceRecommendation{
			FromProtocol: "compound",
			ToProtocol:   "aave",
			Token:        "USDC",
			AmountUSD:    decimal.NewFromInt(1000),
		}

		exec, err := e.Execute(context.Background(), rec, nil)
		if err != nil {
			t.Fatalf("Execute failed (dryRun=%v): %v", dryRun, err)
		}

		gasByStep := make(map[types.ExecutionStep]uint64)
		for _, s := range exec.Steps {
			gasByStep[s.Step] = s.GasUsed
		}

		if got := gasByStep[types.StepWithdraw]; got != 150_000 {
			t.Errorf("dryRun=%v: withdraw gas = %d, want 150000", dryRun, got)
		}
		if got := gasByStep[types.StepApproveDeposit]; got != 50_000 {
			t.Errorf("dryRun=%v: approve_deposit gas = %d, want 50000", dryRun, got)
		}
		if got := gasByStep[types.StepDeposit]; got != 120_000 {
			t.Errorf("dryRun=%v: deposit gas = %d, want 120000", dryRun, got)
		}
	}
}

func TestExecutor_NewCapitalAllocationSkipsWithdraw(t *testing.T) {
	e := newTestExecutor(true)
	rec := types.RebalanceRecommendation{
		ToProtocol: "aave",
		Token:      "USDC",
		AmountUSD:  decimal.NewFromInt(1000),
	}

	exec, err := e.Execute(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	for _, s := range exec.Steps {
		if s.Step == types.StepWithdraw {
			t.Fatalf("expected no WITHDRAW step recorded for a new-capital allocation")
		}
	}
	if !exec.Success {
		t.Fatal("expected a same-token new-capital allocation to succeed")
	}
}

func TestExecutor_RejectsNonPositiveAmount(t *testing.T) {
	e := newTestExecutor(true)
	rec := types.RebalanceRecommendation{ToProtocol: "aave", Token: "USDC", AmountUSD: decimal.Zero}

	_, err := e.Execute(context.Background(), rec, nil)
	if err == nil {
		t.Fatal("expected VALIDATION to reject a non-positive amount")
	}
}

func TestExecutor_RejectsMissingDestination(t *testing.T) {
	e := newTestExecutor(true)
	rec := types.RebalanceRecommendation{Token: "USDC", AmountUSD: decimal.NewFromInt(1000)}

	_, err := e.Execute(context.Background(), rec, nil)
	if err == nil {
		t.Fatal("expected VALIDATION to reject a recommendation with no destination protocol")
	}
}

// TestExecutor_SuccessfulExecuteRecordsSpend locks in the fix where a
// successful Execute never told the spending Enforcer about the money that
// moved, leaving the rolling daily cap unable to ever trip.
func TestExecutor_SuccessfulExecuteRecordsSpend(t *testing.T) {
	registry := adapter.NewRegistry()
	registry.Register(&fakeAdapter{name: "aave"})
	enforcer := limits.New(limits.Config{
		MaxTransactionUSD:    decimal.NewFromInt(10_000),
		DailyLimitUSD:        decimal.NewFromInt(50_000),
		ApprovalThresholdUSD: decimal.NewFromInt(10_000),
	}, nil)
	e := New(registry, nil, enforcer, nil, zerolog.Nop(), true)

	rec := types.RebalanceRecommendation{ToProtocol: "aave", Token: "USDC", AmountUSD: decimal.NewFromInt(1000)}
	if _, err := e.Execute(context.Background(), rec, nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !enforcer.DailySpent().Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected daily spent to reflect the executed amount, got %s", enforcer.DailySpent())
	}

	if _, err := e.Execute(context.Background(), rec, nil); err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if !enforcer.DailySpent().Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("expected daily spent to accumulate across executions, got %s", enforcer.DailySpent())
	}
}

func TestExecutor_UnregisteredDestinationFailsAtDeposit(t *testing.T) {
	e := newTestExecutor(true)
	rec := types.RebalanceRecommendation{
		FromProtocol: "compound",
		ToProtocol:   "unregistered",
		Token:        "USDC",
		AmountUSD:    decimal.NewFromInt(1000),
	}

	exec, err := e.Execute(context.Background(), rec, nil)
	if err == nil {
		t.Fatal("expected an error for a destination protocol with no registered adapter")
	}
	last, ok := exec.LastStep()
	if !ok || last.Step != types.StepDeposit {
		t.Fatalf("expected the failure to be recorded at DEPOSIT, got %+v", last)
	}
	if exec.Success {
		t.Fatal("expected Success=false after a failed step")
	}
}
