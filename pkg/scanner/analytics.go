package scanner

import (
	"math"
	"sort"

	"github.com/onchain-yield/optimizer/pkg/types"
)

// Comparison is the aggregate analytics report spec.md §4.4 requires from
// compare_yields.
type Comparison struct {
	Count             int
	Best              *types.YieldOpportunity
	Worst             *types.YieldOpportunity
	MeanAPY           float64
	MedianAPY         float64
	SpreadAPY         float64 // best - worst
	StdDevAPY         float64
	PerProtocolCount  map[string]int
	PerProtocolMeanAPY map[string]float64
}

// CompareYields computes the comparison analytics over a set of
// opportunities, typically the output of ScanAll or Filter.
func CompareYields(opportunities []types.YieldOpportunity) Comparison {
	c := Comparison{
		PerProtocolCount:   make(map[string]int),
		PerProtocolMeanAPY: make(map[string]float64),
	}
	c.Count = len(opportunities)
	if c.Count == 0 {
		return c
	}

	apys := make([]float64, c.Count)
	perProtocolSum := make(map[string]float64)

	for i, o := range opportunities {
		apy, _ := o.APY.Float64()
		apys[i] = apy
		perProtocolSum[o.Protocol] += apy
		c.PerProtocolCount[o.Protocol]++
	}
	for protocol, sum := range perProtocolSum {
		c.PerProtocolMeanAPY[protocol] = sum / float64(c.PerProtocolCount[protocol])
	}

	sorted := append([]float64(nil), apys...)
	sort.Float64s(sorted)

	bestIdx, worstIdx := 0, 0
	for i, o := range opportunities {
		a, _ := o.APY.Float64()
		best, _ := opportunities[bestIdx].APY.Float64()
		worst, _ := opportunities[worstIdx].APY.Float64()
		if a > best {
			bestIdx = i
		}
		if a < worst {
			worstIdx = i
		}
	}
	c.Best = &opportunities[bestIdx]
	c.Worst = &opportunities[worstIdx]

	var sum float64
	for _, a := range apys {
		sum += a
	}
	c.MeanAPY = sum / float64(c.Count)
	c.MedianAPY = median(sorted)
	bestAPY, _ := c.Best.APY.Float64()
	worstAPY, _ := c.Worst.APY.Float64()
	c.SpreadAPY = bestAPY - worstAPY

	var variance float64
	for _, a := range apys {
		d := a - c.MeanAPY
		variance += d * d
	}
	variance /= float64(c.Count)
	c.StdDevAPY = math.Sqrt(variance)

	return c
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
