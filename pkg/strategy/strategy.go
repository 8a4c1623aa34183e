// Package strategy implements the two Strategy instances of spec.md §4.7:
// SimpleYield (aggressive, single best target) and RiskAdjusted
// (conservative, diversified + risk-vetoed). Grounded on
// original_source/src/strategies/risk_adjusted.py
// (calculate_optimal_allocation, should_rebalance) and the simpler
// single-best-target sibling it contrasts itself against in that file's
// docstring.
package strategy

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/onchain-yield/optimizer/pkg/profitability"
	"github.com/onchain-yield/optimizer/pkg/types"
)

// Thresholds are the Strategy-level gate parameters (spec.md §6
// min_apy_improvement, min_rebalance_amount).
type Thresholds struct {
	MinAPYImprovement  decimal.Decimal
	MinRebalanceAmount decimal.Decimal
}

// ShouldRebalance is a decision helper combining the strategy thresholds
// with a gas-cost check (spec.md §4.7). SimpleYield and RiskAdjusted do not
// call it; their Evaluate methods apply the two thresholds inline.
func ShouldRebalance(currentAPY, targetAPY, gasCostUSD, amount decimal.Decimal, thresholds Thresholds) bool {
	improvement := targetAPY.Sub(currentAPY)
	if improvement.LessThan(thresholds.MinAPYImprovement) {
		return false
	}
	if amount.LessThan(thresholds.MinRebalanceAmount) {
		return false
	}
	annualGain := amount.Mul(improvement).Div(decimal.NewFromInt(100))
	return annualGain.GreaterThanOrEqual(gasCostUSD)
}

// Confidence computes the base-plus-bonus confidence score shared by both
// strategies (spec.md §4.7: base 40-60, additive bonuses up to +30).
func Confidence(profit types.MoveProfitability, lowRiskBonus bool) int {
	base := 40
	gain, _ := profit.AnnualGainUSD.Float64()
	if gain > 1000 {
		base += 20
	} else if gain > 100 {
		base += 10
	}

	bonus := 0
	if !profit.ROIInfinite {
		roi, _ := profit.ROIOnCosts.Float64()
		if roi > 500 {
			bonus += 10
		}
	}
	if profit.BreakEvenDays != types.NeverBreaksEven && profit.BreakEvenDays <= 7 {
		bonus += 10
	}
	if lowRiskBonus {
		bonus += 10
	}

	score := base + bonus
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// CandidateTarget is one whitelisted protocol opportunity a strategy may
// route capital to.
type CandidateTarget struct {
	Opportunity types.YieldOpportunity
}

// bestTarget returns the highest-APY candidate, nil if none supplied.
func bestTarget(candidates []CandidateTarget) (CandidateTarget, bool) {
	if len(candidates) == 0 {
		return CandidateTarget{}, false
	}
	sorted := append([]CandidateTarget(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Opportunity.APY.GreaterThan(sorted[j].Opportunity.APY)
	})
	return sorted[0], true
}

// SimpleYield is the aggressive strategy: always the single best candidate,
// 100% allocation.
type SimpleYield struct {
	Thresholds    Thresholds
	Profitability *profitability.Calculator
}

// Strategy is the common shape both SimpleYield and RiskAdjusted satisfy,
// letting a scheduler depend on either without knowing which is active.
// portfolio is ignored by SimpleYield; RiskAdjusted uses it for the
// concentration veto.
type Strategy interface {
	Evaluate(ctx context.Context, position *types.Position, candidates []CandidateTarget, portfolio PortfolioState) (*types.RebalanceRecommendation, error)
}

// Evaluate considers one existing position (nil for new-capital allocation)
// against candidates, returning a recommendation when profitable. portfolio
// is accepted for interface parity with RiskAdjusted but not consulted:
// SimpleYield never vetoes on concentration.
func (s *SimpleYield) Evaluate(ctx context.Context, position *types.Position, candidates []CandidateTarget, portfolio PortfolioState) (*types.RebalanceRecommendation, error) {
	best, ok := bestTarget(candidates)
	if !ok {
		return nil, nil
	}

	currentAPY := decimal.Zero
	fromProtocol := ""
	amount := best.Opportunity.TVLUSD // placeholder sizing signal when no position exists is irrelevant; real sizing comes from caller-supplied amount below
	if position != nil {
		currentAPY = position.CurrentAPY
		fromProtocol = position.Protocol
		amount = position.ValueUSD
	}

	if amount.LessThan(s.Thresholds.MinRebalanceAmount) {
		return nil, nil
	}
	improvement := best.Opportunity.APY.Sub(currentAPY)
	if improvement.LessThan(s.Thresholds.MinAPYImprovement) {
		return nil, nil
	}

	profit, err := s.Profitability.Calculate(ctx, profitability.Input{
		CurrentAPY:      currentAPY,
		TargetAPY:       best.Opportunity.APY,
		PositionSizeUSD: amount,
		RequiresSwap:    position != nil && requiresSwapFor(position, best.Opportunity),
	})
	if err != nil {
		return nil, err
	}
	if !profit.IsProfitable {
		return nil, nil
	}

	var currentAPYPtr *decimal.Decimal
	if position != nil {
		v := currentAPY
		currentAPYPtr = &v
	}

	token := best.Opportunity.Tokens[0]
	return &types.RebalanceRecommendation{
		FromProtocol: fromProtocol,
		ToProtocol:   best.Opportunity.Protocol,
		Token:        token,
		AmountUSD:    amount,
		CurrentAPY:   currentAPYPtr,
		ExpectedAPY:  best.Opportunity.APY,
		Reason:       "highest available APY",
		Confidence:   Confidence(profit, false),
	}, nil
}

func requiresSwapFor(position *types.Position, target types.YieldOpportunity) bool {
	for _, t := range target.Tokens {
		if t == position.Token {
			return false
		}
	}
	return true
}
