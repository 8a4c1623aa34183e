// Package scanner implements the Yield Scanner of spec.md §4.4: a parallel
// fan-out across registered protocol adapters, each guarded by an
// individual timeout and circuit breaker, producing a stably APY-sorted
// result that one slow or failing adapter can never block.
package scanner

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onchain-yield/optimizer/internal/circuit"
	"github.com/onchain-yield/optimizer/pkg/adapter"
	"github.com/onchain-yield/optimizer/pkg/types"
)

const (
	defaultAdapterTimeout   = 30 * time.Second
	defaultBreakerThreshold = 3
	defaultBreakerCooldown  = 300 * time.Second
)

// Scanner fans out scan_all() across every registered adapter.
type Scanner struct {
	registry *adapter.Registry
	timeout  time.Duration

	mu       sync.Mutex
	breakers map[string]*circuit.Breaker
}

// New constructs a Scanner with spec.md §4.4's defaults (30s per-adapter
// timeout, threshold=3/cooldown=300s per-adapter breaker).
func New(registry *adapter.Registry) *Scanner {
	return &Scanner{
		registry: registry,
		timeout:  defaultAdapterTimeout,
		breakers: make(map[string]*circuit.Breaker),
	}
}

func (s *Scanner) breakerFor(name string) *circuit.Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[name]
	if !ok {
		b = circuit.New(defaultBreakerThreshold, defaultBreakerCooldown)
		s.breakers[name] = b
	}
	return b
}

// ScanAll queries every registered, breaker-closed adapter in parallel,
// each bounded by its own deadline, and returns the concatenation stably
// sorted by APY descending. A failing or open-breaker adapter is skipped;
// it never prevents other results from returning.
func (s *Scanner) ScanAll(ctx context.Context) ([]types.YieldOpportunity, error) {
	adapters := s.registry.All()
	// Pre-sized, ordered slice (not an unordered channel) so that
	// equal-APY ordering stays deterministic on adapter registration order
	// before the final stable sort (spec.md §5).
	perAdapter := make([][]types.YieldOpportunity, len(adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range adapters {
		i, a := i, a
		breaker := s.breakerFor(a.Name())
		if !breaker.Allow() {
			continue
		}
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()

			pools, err := a.GetPools(taskCtx)
			if err != nil {
				breaker.RecordFailure()
				return nil // swallow: one adapter's failure must not abort the group
			}
			breaker.RecordSuccess()
			perAdapter[i] = pools
			return nil
		})
	}
	// errgroup with no task ever returning a real error, so Wait returns
	// nil; a cancelled caller ctx only shows up as adapter failures.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []types.YieldOpportunity
	for _, pools := range perAdapter {
		all = append(all, pools...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].APY.GreaterThan(all[j].APY)
	})
	return all, nil
}

// BestYieldForToken returns the first opportunity offering token, if any.
// That is the highest-APY one when opportunities is sorted by APY
// descending, as ScanAll returns it.
func BestYieldForToken(opportunities []types.YieldOpportunity, token string) (types.YieldOpportunity, bool) {
	for _, o := range opportunities {
		if containsToken(o.Tokens, token) {
			return o, true
		}
	}
	return types.YieldOpportunity{}, false
}

// Filter returns opportunities meeting all three thresholds; a zero
// threshold is treated as "no constraint" for that dimension.
func Filter(opportunities []types.YieldOpportunity, minAPY, minTVL float64, token string) []types.YieldOpportunity {
	var out []types.YieldOpportunity
	for _, o := range opportunities {
		apy, _ := o.APY.Float64()
		tvl, _ := o.TVLUSD.Float64()
		if minAPY > 0 && apy < minAPY {
			continue
		}
		if minTVL > 0 && tvl < minTVL {
			continue
		}
		if token != "" && !containsToken(o.Tokens, token) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func containsToken(tokens []string, token string) bool {
	for _, t := range tokens {
		if t == token {
			return true
		}
	}
	return false
}
