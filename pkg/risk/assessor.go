// Package risk implements the seven-factor additive risk scorer of
// spec.md §4.6, grounded on
// original_source/src/strategies/risk_adjusted.py's concentration/
// diversification handling, generalized into the standalone factor table
// the spec defines (the prototype left the factor table itself largely
// stubbed behind an external risk_assessor collaborator).
package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/onchain-yield/optimizer/pkg/types"
)

// DefaultProtocolRiskScores is the fallback safety table used when
// config.ProtocolRiskScores is empty or omits a protocol. Resolves
// spec.md §9's Open Question on where the lookup table lives; the
// authoritative table is configs.Config.ProtocolRiskScores (see
// DESIGN.md decision 2).
var DefaultProtocolRiskScores = map[string]int{
	"aave":  5,
	"compound": 8,
	"lido":  5,
	"curve": 12,
}

// Thresholds bundles the tunable knobs the factor table depends on.
type Thresholds struct {
	PositionSizeThresholdUSD decimal.Decimal // below this, position-size factor is zero
	LargePositionUSD         decimal.Decimal // above this, logarithmic scaling kicks in
	MaxConcentrationPct      decimal.Decimal // risk factor 6 target (spec.md §6 max_concentration_pct)
	DiversificationTarget    int             // risk factor 7 target (spec.md §6 diversification_target)
	ProtocolRiskScores       map[string]int
}

// DefaultThresholds matches the prototype's documented defaults
// (max_concentration_pct=0.4, diversification_target=3).
func DefaultThresholds() Thresholds {
	return Thresholds{
		PositionSizeThresholdUSD: decimal.NewFromInt(100),
		LargePositionUSD:         decimal.NewFromInt(100_000),
		MaxConcentrationPct:      decimal.NewFromFloat(0.4),
		DiversificationTarget:    3,
		ProtocolRiskScores:       DefaultProtocolRiskScores,
	}
}

// Assessor computes RiskAssessment values per spec.md §4.6.
type Assessor struct {
	thresholds Thresholds
}

// New constructs an Assessor.
func New(thresholds Thresholds) *Assessor {
	return &Assessor{thresholds: thresholds}
}

// Input bundles everything the seven factors need.
type Input struct {
	Protocol          string
	TVLUSD            decimal.Decimal
	UtilizationPct    decimal.Decimal // 0..100
	PositionSizeUSD   decimal.Decimal
	RequiresSwap      bool
	IsSameToken       bool
	IsNewCapital      bool
	PortfolioValueUSD decimal.Decimal
	// PostMoveMaxProtocolShare is the max-single-protocol share of the
	// portfolio *after* this move completes (spec.md §4.6 factor 6:
	// "based on max-single-protocol share", simulated post-move per
	// original_source's assess_position_concentration pattern).
	PostMoveMaxProtocolShare decimal.Decimal
	ProtocolCountAfterMove   int
}

// Assess scores Input across all seven factors and bands the result.
func (a *Assessor) Assess(in Input) types.RiskAssessment {
	factors := map[types.RiskFactor]int{
		types.FactorProtocolSafety:  a.protocolSafety(in.Protocol),
		types.FactorTVLAdequacy:     tvlAdequacy(in.TVLUSD),
		types.FactorUtilization:     utilization(in.UtilizationPct),
		types.FactorPositionSize:    a.positionSize(in.PositionSizeUSD),
		types.FactorSwapRequirement: swapRequirement(in.RequiresSwap, in.IsSameToken, in.IsNewCapital),
		types.FactorConcentration:   a.concentration(in.PostMoveMaxProtocolShare),
		types.FactorDiversification: a.diversification(in.ProtocolCountAfterMove),
	}

	total := 0
	for _, v := range factors {
		total += v
	}
	if total > 100 {
		total = 100
	}

	level := types.RiskLevelForScore(total)
	return types.RiskAssessment{
		RiskScore:      total,
		RiskLevel:      level,
		Factors:        factors,
		Recommendation: recommendationFor(level),
	}
}

// ShouldProceed is the decision gate: refuses CRITICAL always, refuses HIGH
// unless allowHighRisk is set.
func ShouldProceed(a types.RiskAssessment, allowHighRisk bool) bool {
	if a.RiskLevel == types.RiskCritical {
		return false
	}
	if a.RiskLevel == types.RiskHigh && !allowHighRisk {
		return false
	}
	return true
}

func (a *Assessor) protocolSafety(protocol string) int {
	table := a.thresholds.ProtocolRiskScores
	if len(table) == 0 {
		table = DefaultProtocolRiskScores
	}
	score, ok := table[protocol]
	if !ok {
		score, ok = DefaultProtocolRiskScores[protocol]
	}
	if !ok {
		return 40 // unknown protocol -> max contribution
	}
	if score > 40 {
		return 40
	}
	return score
}

func tvlAdequacy(tvlUSD decimal.Decimal) int {
	million := decimal.NewFromInt(1_000_000)
	tenMillion := decimal.NewFromInt(10_000_000)
	switch {
	case tvlUSD.LessThan(million):
		return 30
	case tvlUSD.LessThan(tenMillion):
		return 15
	default:
		return 0
	}
}

func utilization(pct decimal.Decimal) int {
	f, _ := pct.Float64()
	switch {
	case f > 95:
		return 30
	case f > 90:
		return 15
	case f < 80:
		return 0
	default:
		return 8
	}
}

func (a *Assessor) positionSize(sizeUSD decimal.Decimal) int {
	if sizeUSD.LessThan(a.thresholds.PositionSizeThresholdUSD) {
		return 0
	}
	if sizeUSD.LessThanOrEqual(a.thresholds.LargePositionUSD) {
		return 0
	}
	size, _ := sizeUSD.Float64()
	large, _ := a.thresholds.LargePositionUSD.Float64()
	ratio := size / large
	score := int(math.Round(10 * math.Log2(ratio)))
	if score > 30 {
		return 30
	}
	if score < 0 {
		return 0
	}
	return score
}

func swapRequirement(requiresSwap, isSameToken, isNewCapital bool) int {
	switch {
	case isNewCapital:
		return 0
	case requiresSwap:
		return 20
	case isSameToken:
		return 5
	default:
		return 0
	}
}

func (a *Assessor) concentration(maxShare decimal.Decimal) int {
	if maxShare.LessThanOrEqual(a.thresholds.MaxConcentrationPct) {
		return 0
	}
	excess, _ := maxShare.Sub(a.thresholds.MaxConcentrationPct).Float64()
	score := int(math.Round(excess * 100 * 1.25)) // scaled so full concentration (100%) over a 40% target saturates near cap
	if score > 50 {
		return 50
	}
	return score
}

func (a *Assessor) diversification(protocolCount int) int {
	target := a.thresholds.DiversificationTarget
	if target <= 0 || protocolCount >= target {
		return 0
	}
	deficit := target - protocolCount
	score := deficit * (20 / target)
	if score > 20 {
		return 20
	}
	return score
}

func recommendationFor(level types.RiskLevel) string {
	switch level {
	case types.RiskLow:
		return "proceed"
	case types.RiskMedium:
		return "proceed with monitoring"
	case types.RiskHigh:
		return "proceed only if high risk explicitly allowed"
	default:
		return "refuse"
	}
}
