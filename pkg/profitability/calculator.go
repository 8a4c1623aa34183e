// Package profitability implements the hard financial gate of spec.md §4.5:
// every candidate rebalance move is proven profitable before it reaches the
// Executor. Grounded on
// original_source/src/strategies/profitability_calculator.py, with
// break_even_days computed by ceiling division per spec.md §4.5 (the
// Python prototype truncates; this diverges deliberately — see SPEC_FULL.md).
package profitability

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/onchain-yield/optimizer/pkg/gateway"
	"github.com/onchain-yield/optimizer/pkg/types"
)

var (
	defaultSlippageBps = decimal.NewFromInt(50) // 0.5%, matches the prototype's SlippageCalculator default
)

// Thresholds holds the parameters of the three configurable gates (the
// APY-improvement gate has none), each independently configurable (spec.md §6 options min_annual_gain_usd, max_break_even_days,
// max_cost_pct).
type Thresholds struct {
	MinAnnualGainUSD decimal.Decimal
	MaxBreakEvenDays int
	MaxCostPct       decimal.Decimal // e.g. 0.01 for 1%
}

// DefaultThresholds matches spec.md §4.5's stated defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinAnnualGainUSD: decimal.NewFromInt(10),
		MaxBreakEvenDays: 30,
		MaxCostPct:       decimal.NewFromFloat(0.01),
	}
}

// Calculator applies the four profitability gates to a candidate move.
type Calculator struct {
	thresholds  Thresholds
	gasSource   gateway.GasSource
	slippageBps decimal.Decimal
}

// New constructs a Calculator. gasSource may be nil, in which case gas
// costs come from gasCostUSD's static fallback estimate.
func New(thresholds Thresholds, gasSource gateway.GasSource) *Calculator {
	return &Calculator{thresholds: thresholds, gasSource: gasSource, slippageBps: defaultSlippageBps}
}

// Input bundles every parameter the gate needs for one candidate move.
type Input struct {
	CurrentAPY      decimal.Decimal
	TargetAPY       decimal.Decimal
	PositionSizeUSD decimal.Decimal
	RequiresSwap    bool
	SwapAmountUSD   decimal.Decimal // defaults to PositionSizeUSD when zero
	ProtocolFeePct  decimal.Decimal
}

// Calculate runs the full profitability analysis and gate checks.
func (c *Calculator) Calculate(ctx context.Context, in Input) (types.MoveProfitability, error) {
	apyImprovement := in.TargetAPY.Sub(in.CurrentAPY)
	annualGain := in.PositionSizeUSD.Mul(apyImprovement).Div(decimal.NewFromInt(100))

	swapAmount := in.SwapAmountUSD
	if swapAmount.IsZero() {
		swapAmount = in.PositionSizeUSD
	}

	costs, err := c.calculateCosts(ctx, in.PositionSizeUSD, in.RequiresSwap, swapAmount, in.ProtocolFeePct)
	if err != nil {
		return types.MoveProfitability{}, fmt.Errorf("profitability: costs: %w", err)
	}

	netGainFirstYear := annualGain.Sub(costs.TotalCost)

	breakEvenDays := types.NeverBreaksEven
	if annualGain.IsPositive() {
		days := costs.TotalCost.Div(annualGain).Mul(decimal.NewFromInt(365))
		breakEvenDays = int(days.Ceil().IntPart())
	}

	roiInfinite := costs.TotalCost.IsZero()
	var roiOnCosts decimal.Decimal
	if !roiInfinite {
		roiOnCosts = netGainFirstYear.Div(costs.TotalCost).Mul(decimal.NewFromInt(100))
	}

	var reasons []string
	profitable := true

	if !apyImprovement.IsPositive() {
		reasons = append(reasons, fmt.Sprintf("no APY improvement (current: %s%%, target: %s%%)", in.CurrentAPY, in.TargetAPY))
		profitable = false
	}
	if netGainFirstYear.LessThan(c.thresholds.MinAnnualGainUSD) {
		reasons = append(reasons, fmt.Sprintf("net gain $%s/year < minimum $%s", netGainFirstYear.StringFixed(2), c.thresholds.MinAnnualGainUSD))
		profitable = false
	}
	if breakEvenDays == types.NeverBreaksEven || breakEvenDays > c.thresholds.MaxBreakEvenDays {
		reasons = append(reasons, fmt.Sprintf("break-even %d days > maximum %d days", breakEvenDays, c.thresholds.MaxBreakEvenDays))
		profitable = false
	}
	costPct := decimal.Zero
	if in.PositionSizeUSD.IsPositive() {
		costPct = costs.TotalCost.Div(in.PositionSizeUSD)
	}
	if costPct.GreaterThan(c.thresholds.MaxCostPct) {
		reasons = append(reasons, fmt.Sprintf("costs %s%% of position > maximum %s%%", costPct.Mul(decimal.NewFromInt(100)).StringFixed(2), c.thresholds.MaxCostPct.Mul(decimal.NewFromInt(100))))
		profitable = false
	}

	result := types.MoveProfitability{
		APYImprovement:    apyImprovement,
		PositionSize:      in.PositionSizeUSD,
		AnnualGainUSD:     annualGain,
		Costs:             costs,
		NetGainFirstYear:  netGainFirstYear,
		BreakEvenDays:     breakEvenDays,
		ROIOnCosts:        roiOnCosts,
		ROIInfinite:       roiInfinite,
		IsProfitable:      profitable,
		RejectionReasons:  reasons,
	}
	result.DetailedBreakdown = breakdown(result)
	return result, nil
}

func (c *Calculator) calculateCosts(ctx context.Context, positionSizeUSD decimal.Decimal, requiresSwap bool, swapAmountUSD, protocolFeePct decimal.Decimal) (types.RebalancingCosts, error) {
	gasWithdraw, err := c.gasCostUSD(ctx, 150_000)
	if err != nil {
		return types.RebalancingCosts{}, err
	}
	gasDeposit, err := c.gasCostUSD(ctx, 120_000)
	if err != nil {
		return types.RebalancingCosts{}, err
	}

	gasApprove := decimal.Zero
	gasSwap := decimal.Zero
	slippage := decimal.Zero
	if requiresSwap {
		gasApprove, err = c.gasCostUSD(ctx, 50_000)
		if err != nil {
			return types.RebalancingCosts{}, err
		}
		gasSwap, err = c.gasCostUSD(ctx, 200_000)
		if err != nil {
			return types.RebalancingCosts{}, err
		}
		slippage = swapAmountUSD.Mul(c.slippageBps).Div(decimal.NewFromInt(10000))
	}

	protocolFees := positionSizeUSD.Mul(protocolFeePct).Div(decimal.NewFromInt(100))

	costs := types.RebalancingCosts{
		GasWithdraw:  gasWithdraw,
		GasApprove:   gasApprove,
		GasSwap:      gasSwap,
		GasDeposit:   gasDeposit,
		Slippage:     slippage,
		ProtocolFees: protocolFees,
	}
	costs.TotalCost = costs.Sum()
	return costs, nil
}

// gasCostUSD falls back to a conservative static estimate when no GasSource
// is wired (matches the prototype's "Base L2 fallback" behavior).
func (c *Calculator) gasCostUSD(ctx context.Context, units uint64) (decimal.Decimal, error) {
	if c.gasSource == nil {
		gasPriceGwei := decimal.NewFromFloat(0.01)
		ethPriceUSD := decimal.NewFromInt(2500)
		gasCostEth := decimal.NewFromInt(int64(units)).Mul(gasPriceGwei).Div(decimal.NewFromInt(1_000_000_000))
		return gasCostEth.Mul(ethPriceUSD), nil
	}
	cost, err := c.gasSource.CalculateGasCostUSD(ctx, units)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("gas source: %w", err)
	}
	return cost, nil
}

func breakdown(r types.MoveProfitability) string {
	var b strings.Builder
	sep := strings.Repeat("=", 60)
	fmt.Fprintf(&b, "%s\nPROFITABILITY ANALYSIS\n%s\n\n", sep, sep)
	fmt.Fprintf(&b, "REVENUE:\n  APY Improvement:     +%s%%\n  Position Size:       $%s\n  Annual Gain:         $%s/year\n\n",
		r.APYImprovement.StringFixed(2), r.PositionSize.StringFixed(2), r.AnnualGainUSD.StringFixed(2))
	fmt.Fprintf(&b, "COSTS:\n  Gas (Withdraw):      $%s\n  Gas (Approve):       $%s\n  Gas (Swap):          $%s\n  Gas (Deposit):       $%s\n  Slippage:            $%s\n  Protocol Fees:       $%s\n  Total Costs:         $%s\n\n",
		r.Costs.GasWithdraw.StringFixed(4), r.Costs.GasApprove.StringFixed(4), r.Costs.GasSwap.StringFixed(4),
		r.Costs.GasDeposit.StringFixed(4), r.Costs.Slippage.StringFixed(4), r.Costs.ProtocolFees.StringFixed(4), r.Costs.TotalCost.StringFixed(4))
	fmt.Fprintf(&b, "PROFITABILITY:\n  Net Gain (Year 1):   $%s\n  Break-even:          %d days\n",
		r.NetGainFirstYear.StringFixed(2), r.BreakEvenDays)
	if r.ROIInfinite {
		b.WriteString("  ROI on Costs:        infinite (zero cost)\n\n")
	} else {
		fmt.Fprintf(&b, "  ROI on Costs:        %s%%\n\n", r.ROIOnCosts.StringFixed(0))
	}
	if r.IsProfitable {
		fmt.Fprintf(&b, "DECISION: PROFITABLE\n  All profitability gates passed.\n%s", sep)
	} else {
		b.WriteString("DECISION: UNPROFITABLE\n  Rejection reasons:\n")
		for _, reason := range r.RejectionReasons {
			fmt.Fprintf(&b, "    - %s\n", reason)
		}
		b.WriteString(sep)
	}
	return b.String()
}
