package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStep enumerates the canonical, strictly-ordered pipeline steps of
// a rebalance. Grounded on original_source/src/blockchain/rebalance_executor.py
// (RebalanceStep) — the same eight steps, same order.
type ExecutionStep string

const (
	StepValidation     ExecutionStep = "VALIDATION"
	StepBalanceCheck   ExecutionStep = "BALANCE_CHECK"
	StepWithdraw       ExecutionStep = "WITHDRAW"
	StepApproveSwap    ExecutionStep = "APPROVE_SWAP"
	StepSwap           ExecutionStep = "SWAP"
	StepApproveDeposit ExecutionStep = "APPROVE_DEPOSIT"
	StepDeposit        ExecutionStep = "DEPOSIT"
	StepVerification   ExecutionStep = "VERIFICATION"
)

// StepOrder is the canonical ordering used to validate that a
// RebalanceExecution's steps never appear out of sequence.
var StepOrder = []ExecutionStep{
	StepValidation,
	StepBalanceCheck,
	StepWithdraw,
	StepApproveSwap,
	StepSwap,
	StepApproveDeposit,
	StepDeposit,
	StepVerification,
}

// StepResult records the outcome of one execution step.
type StepResult struct {
	Step      ExecutionStep
	Success   bool
	TxHash    string // empty when the step performed no transaction
	GasUsed   uint64
	Error     string
	Timestamp time.Time
}

// RebalanceExecution is the ordered log of an in-flight or completed
// rebalance, plus its aggregate cost accounting.
type RebalanceExecution struct {
	Recommendation RebalanceRecommendation
	Steps          []StepResult

	TotalGasUsed    uint64
	TotalGasCostETH decimal.Decimal
	TotalGasCostUSD decimal.Decimal

	StartedAt   time.Time
	CompletedAt *time.Time
	Success     bool
}

// AppendStep records a step result, keeping the aggregate gas total in sync.
// Invariant: aggregate gas = sum of per-step gas (spec.md §3).
func (e *RebalanceExecution) AppendStep(s StepResult) {
	e.Steps = append(e.Steps, s)
	e.TotalGasUsed += s.GasUsed
}

// Finish marks the execution complete. success is true only if every
// recorded step succeeded (spec.md §3 invariant).
func (e *RebalanceExecution) Finish(now time.Time) {
	e.CompletedAt = &now
	success := len(e.Steps) > 0
	for _, s := range e.Steps {
		if !s.Success {
			success = false
			break
		}
	}
	e.Success = success
}

// LastStep returns the most recently recorded step, or the zero value if
// none has been recorded yet.
func (e *RebalanceExecution) LastStep() (StepResult, bool) {
	if len(e.Steps) == 0 {
		return StepResult{}, false
	}
	return e.Steps[len(e.Steps)-1], true
}
