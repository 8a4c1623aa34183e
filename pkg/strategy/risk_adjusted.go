package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/onchain-yield/optimizer/pkg/profitability"
	"github.com/onchain-yield/optimizer/pkg/risk"
	"github.com/onchain-yield/optimizer/pkg/types"
)

// RiskAdjusted is the conservative strategy: same candidate enumeration as
// SimpleYield, but every recommendation is risk-vetoed, and new-capital
// allocation is diversified across the top N candidates instead of going
// all-in on the single best one.
type RiskAdjusted struct {
	Thresholds       Thresholds
	Profitability    *profitability.Calculator
	Risk             *risk.Assessor
	AllowHighRisk    bool
	DiversificationN int             // default 3
	MaxConcentration decimal.Decimal // default 0.4
}

// PortfolioState is the information RiskAdjusted needs to simulate
// post-move concentration, grounded on
// original_source/src/strategies/risk_adjusted.py's
// assess_position_concentration pre-check.
type PortfolioState struct {
	TotalValueUSD         decimal.Decimal
	ValueByProtocol        map[string]decimal.Decimal
}

// Evaluate mirrors SimpleYield.Evaluate but applies the risk veto before
// returning a recommendation.
func (r *RiskAdjusted) Evaluate(ctx context.Context, position *types.Position, candidates []CandidateTarget, portfolio PortfolioState) (*types.RebalanceRecommendation, error) {
	best, ok := bestTarget(candidates)
	if !ok {
		return nil, nil
	}

	currentAPY := decimal.Zero
	fromProtocol := ""
	amount := decimal.Zero
	if position != nil {
		currentAPY = position.CurrentAPY
		fromProtocol = position.Protocol
		amount = position.ValueUSD
	}
	if amount.LessThan(r.Thresholds.MinRebalanceAmount) {
		return nil, nil
	}
	improvement := best.Opportunity.APY.Sub(currentAPY)
	if improvement.LessThan(r.Thresholds.MinAPYImprovement) {
		return nil, nil
	}

	requiresSwap := position != nil && requiresSwapFor(position, best.Opportunity)

	profit, err := r.Profitability.Calculate(ctx, profitability.Input{
		CurrentAPY:      currentAPY,
		TargetAPY:       best.Opportunity.APY,
		PositionSizeUSD: amount,
		RequiresSwap:    requiresSwap,
	})
	if err != nil {
		return nil, err
	}
	if !profit.IsProfitable {
		return nil, nil
	}

	assessment := r.assessMove(position, best.Opportunity, amount, requiresSwap, portfolio)
	if !risk.ShouldProceed(assessment, r.AllowHighRisk) {
		return nil, nil
	}

	var currentAPYPtr *decimal.Decimal
	if position != nil {
		v := currentAPY
		currentAPYPtr = &v
	}

	lowRisk := assessment.RiskLevel == types.RiskLow
	return &types.RebalanceRecommendation{
		FromProtocol: fromProtocol,
		ToProtocol:   best.Opportunity.Protocol,
		Token:        best.Opportunity.Tokens[0],
		AmountUSD:    amount,
		CurrentAPY:   currentAPYPtr,
		ExpectedAPY:  best.Opportunity.APY,
		Reason:       "best risk-adjusted APY improvement",
		Confidence:   Confidence(profit, lowRisk),
	}, nil
}

// AllocateNewCapital diversifies amountUSD across the top
// DiversificationN candidates weighted by APY, capped per-protocol at
// MaxConcentration, with the last protocol absorbing the remainder
// (spec.md §4.7).
func (r *RiskAdjusted) AllocateNewCapital(amountUSD decimal.Decimal, candidates []CandidateTarget) []types.RebalanceRecommendation {
	n := r.DiversificationN
	if n <= 0 {
		n = 3
	}
	sorted := append([]CandidateTarget(nil), candidates...)
	sortByAPYDescending(sorted)
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	if len(sorted) == 0 {
		return nil
	}

	maxConcentration := r.MaxConcentration
	if maxConcentration.IsZero() {
		maxConcentration = decimal.NewFromFloat(0.4)
	}
	perProtocolCap := amountUSD.Mul(maxConcentration)

	apySum := decimal.Zero
	for _, c := range sorted {
		apySum = apySum.Add(c.Opportunity.APY)
	}

	allocated := decimal.Zero
	recs := make([]types.RebalanceRecommendation, 0, len(sorted))
	for i, c := range sorted {
		var share decimal.Decimal
		if i == len(sorted)-1 {
			share = amountUSD.Sub(allocated)
		} else if apySum.IsPositive() {
			share = amountUSD.Mul(c.Opportunity.APY).Div(apySum)
			if share.GreaterThan(perProtocolCap) {
				share = perProtocolCap
			}
		}
		allocated = allocated.Add(share)
		if !share.IsPositive() {
			continue
		}
		recs = append(recs, types.RebalanceRecommendation{
			ToProtocol:  c.Opportunity.Protocol,
			Token:       c.Opportunity.Tokens[0],
			AmountUSD:   share,
			ExpectedAPY: c.Opportunity.APY,
			Reason:      "diversified new-capital allocation",
			Confidence:  50,
		})
	}
	return recs
}

func (r *RiskAdjusted) assessMove(position *types.Position, target types.YieldOpportunity, amount decimal.Decimal, requiresSwap bool, portfolio PortfolioState) types.RiskAssessment {
	isNewCapital := position == nil
	isSameToken := !isNewCapital && !requiresSwap

	maxShare, protocolCount := simulatePostMoveConcentration(portfolio, position, target, amount)

	return r.Risk.Assess(risk.Input{
		Protocol:                 target.Protocol,
		TVLUSD:                   target.TVLUSD,
		UtilizationPct:           decimal.Zero,
		PositionSizeUSD:          amount,
		RequiresSwap:             requiresSwap,
		IsSameToken:              isSameToken,
		IsNewCapital:             isNewCapital,
		PortfolioValueUSD:        portfolio.TotalValueUSD,
		PostMoveMaxProtocolShare: maxShare,
		ProtocolCountAfterMove:   protocolCount,
	})
}

// simulatePostMoveConcentration computes the max-single-protocol share and
// protocol count the portfolio would have after this move, without
// mutating the caller's state.
func simulatePostMoveConcentration(portfolio PortfolioState, position *types.Position, target types.YieldOpportunity, amount decimal.Decimal) (decimal.Decimal, int) {
	byProtocol := make(map[string]decimal.Decimal, len(portfolio.ValueByProtocol)+1)
	for k, v := range portfolio.ValueByProtocol {
		byProtocol[k] = v
	}
	if position != nil {
		byProtocol[position.Protocol] = byProtocol[position.Protocol].Sub(amount)
	}
	byProtocol[target.Protocol] = byProtocol[target.Protocol].Add(amount)

	total := portfolio.TotalValueUSD
	if position == nil {
		total = total.Add(amount)
	}

	maxShare := decimal.Zero
	count := 0
	for _, v := range byProtocol {
		if !v.IsPositive() {
			continue
		}
		count++
		if total.IsPositive() {
			share := v.Div(total)
			if share.GreaterThan(maxShare) {
				maxShare = share
			}
		}
	}
	return maxShare, count
}

func sortByAPYDescending(targets []CandidateTarget) {
	for i := 1; i < len(targets); i++ {
		for j := i; j > 0 && targets[j].Opportunity.APY.GreaterThan(targets[j-1].Opportunity.APY); j-- {
			targets[j], targets[j-1] = targets[j-1], targets[j]
		}
	}
}
