// Package types defines the core data model shared across the optimization
// engine: yield opportunities, positions, recommendations, profitability and
// risk results, execution traces, and RPC endpoint state. Every variant
// enumerated in the specification (risk levels, step kinds, endpoint
// priorities, circuit states) is a typed string constant rather than an
// ad-hoc map key.
package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// YieldOpportunity is an immutable snapshot of a yield-bearing pool on a
// single protocol. APY and TVL may be zero when undetermined; callers must
// treat zero as "unknown", never as "none".
type YieldOpportunity struct {
	Protocol string
	PoolID   string
	PoolName string
	APY      decimal.Decimal
	TVLUSD   decimal.Decimal
	Tokens   []string
	Metadata map[string]string
}

// Position is a yield-bearing holding. It is created when a deposit
// completes or is first observed on-chain, mutated only by reconciliation
// after a completed execution, and logically closed once Amount is zero.
type Position struct {
	Protocol   string
	PoolID     string
	Token      string
	AmountRaw  *big.Int
	Decimals   int32
	ValueUSD   decimal.Decimal
	CurrentAPY decimal.Decimal
}

// RebalanceRecommendation is produced once by a Strategy and consumed once
// by the Executor. It is never mutated; a retry requires a fresh value.
type RebalanceRecommendation struct {
	// FromProtocol is empty for new-capital allocation (no existing position
	// to withdraw from).
	FromProtocol string
	ToProtocol   string
	Token        string
	AmountUSD    decimal.Decimal
	// CurrentAPY is nil for new-capital allocation.
	CurrentAPY  *decimal.Decimal
	ExpectedAPY decimal.Decimal
	Reason      string
	Confidence  int // 0..100
}

// HasSource reports whether this recommendation withdraws from an existing
// position (as opposed to allocating idle/new capital).
func (r RebalanceRecommendation) HasSource() bool {
	return r.FromProtocol != ""
}

// RequiresSwap reports whether moving this recommendation involves a token
// conversion. Per the spec's resolved Open Question, cross-token moves are
// recognized here but refused by the Executor rather than executed.
func (r RebalanceRecommendation) RequiresSwap(fromToken string) bool {
	return r.HasSource() && fromToken != "" && fromToken != r.Token
}
