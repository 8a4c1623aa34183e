package types

import "github.com/shopspring/decimal"

// RebalancingCosts is the itemized cost table for a candidate move.
// Invariant: TotalCost equals the sum of the six fields.
type RebalancingCosts struct {
	GasWithdraw  decimal.Decimal
	GasApprove   decimal.Decimal
	GasSwap      decimal.Decimal
	GasDeposit   decimal.Decimal
	Slippage     decimal.Decimal
	ProtocolFees decimal.Decimal
	TotalCost    decimal.Decimal
}

// Sum recomputes TotalCost from the six components. Callers that build a
// RebalancingCosts by hand should call this before using TotalCost.
func (c RebalancingCosts) Sum() decimal.Decimal {
	return c.GasWithdraw.Add(c.GasApprove).Add(c.GasSwap).Add(c.GasDeposit).Add(c.Slippage).Add(c.ProtocolFees)
}

// NeverBreaksEven is the sentinel break-even day count used when a move
// never recovers its cost (annual_gain_usd <= 0).
const NeverBreaksEven = -1

// MoveProfitability is the full output of the profitability gate.
type MoveProfitability struct {
	APYImprovement     decimal.Decimal
	PositionSize       decimal.Decimal
	AnnualGainUSD      decimal.Decimal
	Costs              RebalancingCosts
	NetGainFirstYear   decimal.Decimal
	BreakEvenDays      int // NeverBreaksEven sentinel when undefined
	ROIOnCosts         decimal.Decimal
	ROIInfinite        bool // true when TotalCost == 0 (ROI conceptually infinite)
	IsProfitable       bool
	RejectionReasons   []string
	DetailedBreakdown  string
}
