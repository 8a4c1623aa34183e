package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/onchain-yield/optimizer/pkg/scanner"
	"github.com/onchain-yield/optimizer/pkg/types"
)

// Orchestrator ties the Yield Scanner to a Strategy instance, presenting a
// single Recommend(positions) -> recommendations entrypoint for the
// scheduler. One scan is shared across every position in a cycle so all
// recommendations are judged against the same snapshot of the market.
type Orchestrator struct {
	Scanner  *scanner.Scanner
	Strategy Strategy
	MinAPY   float64
	MinTVL   float64
}

// Recommend satisfies scheduler.Recommender: scan once, then evaluate each
// existing position against the shared candidate set and the portfolio
// state implied by positions.
func (o *Orchestrator) Recommend(ctx context.Context, positions []types.Position) ([]types.RebalanceRecommendation, error) {
	opportunities, err := o.Scanner.ScanAll(ctx)
	if err != nil {
		return nil, err
	}
	filtered := scanner.Filter(opportunities, o.MinAPY, o.MinTVL, "")
	candidates := make([]CandidateTarget, len(filtered))
	for i, f := range filtered {
		candidates[i] = CandidateTarget{Opportunity: f}
	}

	portfolio := portfolioStateOf(positions)

	var recs []types.RebalanceRecommendation
	for i := range positions {
		rec, err := o.Strategy.Evaluate(ctx, &positions[i], candidates, portfolio)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			recs = append(recs, *rec)
		}
	}
	return recs, nil
}

func portfolioStateOf(positions []types.Position) PortfolioState {
	byProtocol := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, p := range positions {
		byProtocol[p.Protocol] = byProtocol[p.Protocol].Add(p.ValueUSD)
		total = total.Add(p.ValueUSD)
	}
	return PortfolioState{TotalValueUSD: total, ValueByProtocol: byProtocol}
}
