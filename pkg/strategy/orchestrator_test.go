package strategy

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/onchain-yield/optimizer/pkg/adapter"
	"github.com/onchain-yield/optimizer/pkg/scanner"
	"github.com/onchain-yield/optimizer/pkg/types"
)

// stubAdapter is a minimal adapter.ProtocolAdapter exposing one pool, used
// only to give the Scanner something to fan out to.
type stubAdapter struct {
	name string
	apy  decimal.Decimal
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) GetPools(ctx context.Context) ([]types.YieldOpportunity, error) {
	return []types.YieldOpportunity{{
		Protocol: s.name,
		PoolID:   "main",
		APY:      s.apy,
		TVLUSD:   decimal.NewFromInt(1_000_000),
		Tokens:   []string{"USDC"},
	}}, nil
}
func (s *stubAdapter) Deposit(ctx context.Context, poolID, token string, amount *big.Int) (string, error) {
	return "0xdeposit", nil
}
func (s *stubAdapter) Withdraw(ctx context.Context, poolID, token string, amount *big.Int) (string, error) {
	return "0xwithdraw", nil
}
func (s *stubAdapter) GetUserBalance(ctx context.Context, poolID, address string) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (s *stubAdapter) EstimateGas(ctx context.Context, op adapter.GasOp, params map[string]any) (uint64, error) {
	return 100_000, nil
}

// recordingStrategy captures the portfolio and candidates each Evaluate
// call was given, returning a fixed recommendation for every position.
type recordingStrategy struct {
	portfolios []PortfolioState
	candidates []int
}

func (r *recordingStrategy) Evaluate(ctx context.Context, position *types.Position, candidates []CandidateTarget, portfolio PortfolioState) (*types.RebalanceRecommendation, error) {
	r.portfolios = append(r.portfolios, portfolio)
	r.candidates = append(r.candidates, len(candidates))
	return &types.RebalanceRecommendation{
		FromProtocol: position.Protocol,
		ToProtocol:   "better",
		Token:        position.Token,
		AmountUSD:    position.ValueUSD,
		ExpectedAPY:  decimal.NewFromFloat(0.2),
	}, nil
}

func TestOrchestrator_RecommendSharesOneScanAcrossPositions(t *testing.T) {
	registry := adapter.NewRegistry()
	registry.Register(&stubAdapter{name: "aave", apy: decimal.NewFromFloat(0.1)})

	rs := &recordingStrategy{}
	orch := &Orchestrator{
		Scanner:  scanner.New(registry),
		Strategy: rs,
	}

	positions := []types.Position{
		{Protocol: "compound", Token: "USDC", ValueUSD: decimal.NewFromInt(1000)},
		{Protocol: "compound", Token: "USDC", ValueUSD: decimal.NewFromInt(2000)},
	}

	recs, err := orch.Recommend(context.Background(), positions)
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	if len(rs.portfolios) != 2 {
		t.Fatalf("expected Strategy.Evaluate called once per position, got %d calls", len(rs.portfolios))
	}
	for _, p := range rs.portfolios {
		if !p.TotalValueUSD.Equal(decimal.NewFromInt(3000)) {
			t.Errorf("expected portfolio total 3000 shared across both calls, got %s", p.TotalValueUSD)
		}
		if !p.ValueByProtocol["compound"].Equal(decimal.NewFromInt(3000)) {
			t.Errorf("expected compound exposure 3000, got %s", p.ValueByProtocol["compound"])
		}
	}
	for _, n := range rs.candidates {
		if n != 1 {
			t.Errorf("expected 1 candidate surfaced by the scanner, got %d", n)
		}
	}
}

func TestOrchestrator_RecommendSkipsNilRecommendations(t *testing.T) {
	registry := adapter.NewRegistry()
	registry.Register(&stubAdapter{name: "aave", apy: decimal.NewFromFloat(0.1)})

	orch := &Orchestrator{
		Scanner:  scanner.New(registry),
		Strategy: &SimpleYield{Thresholds: Thresholds{MinAPYImprovement: decimal.NewFromFloat(100)}},
	}

	positions := []types.Position{
		{Protocol: "compound", Token: "USDC", ValueUSD: decimal.NewFromInt(1000), CurrentAPY: decimal.NewFromFloat(0.05)},
	}

	recs, err := orch.Recommend(context.Background(), positions)
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no recommendations when the APY improvement threshold can't be met, got %d", len(recs))
	}
}

func TestPortfolioStateOf(t *testing.T) {
	positions := []types.Position{
		{Protocol: "aave", ValueUSD: decimal.NewFromInt(100)},
		{Protocol: "aave", ValueUSD: decimal.NewFromInt(50)},
		{Protocol: "compound", ValueUSD: decimal.NewFromInt(25)},
	}

	state := portfolioStateOf(positions)

	if !state.TotalValueUSD.Equal(decimal.NewFromInt(175)) {
		t.Errorf("expected total 175, got %s", state.TotalValueUSD)
	}
	if !state.ValueByProtocol["aave"].Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected aave exposure 150, got %s", state.ValueByProtocol["aave"])
	}
	if !state.ValueByProtocol["compound"].Equal(decimal.NewFromInt(25)) {
		t.Errorf("expected compound exposure 25, got %s", state.ValueByProtocol["compound"])
	}
}
