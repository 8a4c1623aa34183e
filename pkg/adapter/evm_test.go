package adapter

import (
	"context"
	"testing"
)

func TestEVMAdapter_EstimateGas(t *testing.T) {
	a := NewEVMAdapter("aave", nil, nil, nil, nil)

	tests := []struct {
		op   GasOp
		want uint64
	}{
		{GasOpWithdraw, 150_000},
		{GasOpDeposit, 120_000},
		{GasOpApprove, 50_000},
		{GasOpSwap, 200_000},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			got, err := a.EstimateGas(context.Background(), tt.op, nil)
			if err != nil {
				t.Fatalf("EstimateGas(%s) returned error: %v", tt.op, err)
			}
			if got != tt.want {
				t.Errorf("EstimateGas(%s) = %d, want %d", tt.op, got, tt.want)
			}
		})
	}
}

func TestEVMAdapter_EstimateGasUnknownOp(t *testing.T) {
	a := NewEVMAdapter("aave", nil, nil, nil, nil)
	if _, err := a.EstimateGas(context.Background(), GasOp("unknown"), nil); err == nil {
		t.Fatal("expected an error for an unrecognized gas op")
	}
}
