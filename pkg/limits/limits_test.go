package limits

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func cfg() Config {
	return Config{
		MaxTransactionUSD:    decimal.NewFromInt(1000),
		DailyLimitUSD:        decimal.NewFromInt(5000),
		ApprovalThresholdUSD: decimal.NewFromInt(500),
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		c       Config
		wantErr bool
	}{
		{"valid hierarchy", cfg(), false},
		{"approval above transaction cap", Config{MaxTransactionUSD: decimal.NewFromInt(100), DailyLimitUSD: decimal.NewFromInt(1000), ApprovalThresholdUSD: decimal.NewFromInt(200)}, true},
		{"transaction above daily cap", Config{MaxTransactionUSD: decimal.NewFromInt(2000), DailyLimitUSD: decimal.NewFromInt(1000), ApprovalThresholdUSD: decimal.NewFromInt(100)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnforcer_RejectsOverPerTransactionCap(t *testing.T) {
	e := New(cfg(), nil)
	err := e.CheckTransaction(decimal.NewFromInt(1500))
	if !errors.Is(err, ErrExceedsTransactionCap) {
		t.Fatalf("expected ErrExceedsTransactionCap, got %v", err)
	}
}

func TestEnforcer_RejectsOverDailyCap(t *testing.T) {
	e := New(cfg(), func(decimal.Decimal) bool { return true })
	e.RecordSpend(decimal.NewFromInt(4800))

	err := e.CheckTransaction(decimal.NewFromInt(400))
	if !errors.Is(err, ErrExceedsDailyCap) {
		t.Fatalf("expected ErrExceedsDailyCap, got %v", err)
	}
}

func TestEnforcer_RequiresApprovalAboveThreshold(t *testing.T) {
	e := New(cfg(), nil) // nil hook refuses every approval-gated transaction
	err := e.CheckTransaction(decimal.NewFromInt(600))
	if err == nil {
		t.Fatal("expected an error when no approval hook is configured and amount is above threshold")
	}
}

func TestEnforcer_ApprovalHookGrantsPassage(t *testing.T) {
	e := New(cfg(), func(amount decimal.Decimal) bool { return amount.LessThanOrEqual(decimal.NewFromInt(800)) })

	if err := e.CheckTransaction(decimal.NewFromInt(700)); err != nil {
		t.Fatalf("expected approval hook to grant passage, got %v", err)
	}
}

func TestEnforcer_BelowApprovalThresholdNeverConsultsHook(t *testing.T) {
	called := false
	e := New(cfg(), func(decimal.Decimal) bool {
		called = true
		return false
	})

	if err := e.CheckTransaction(decimal.NewFromInt(100)); err != nil {
		t.Fatalf("expected a small transaction to pass without approval, got %v", err)
	}
	if called {
		t.Fatal("expected the approval hook not to be consulted below the threshold")
	}
}

func TestEnforcer_CheckTransactionDoesNotRecordSpend(t *testing.T) {
	e := New(cfg(), func(decimal.Decimal) bool { return true })
	if err := e.CheckTransaction(decimal.NewFromInt(400)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.DailySpent().IsZero() {
		t.Fatalf("expected CheckTransaction to be a pure check, got daily spent = %s", e.DailySpent())
	}
}

func TestEnforcer_RecordSpendAccumulates(t *testing.T) {
	e := New(cfg(), nil)
	e.RecordSpend(decimal.NewFromInt(100))
	e.RecordSpend(decimal.NewFromInt(200))
	if !e.DailySpent().Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected accumulated spend 300, got %s", e.DailySpent())
	}
}
