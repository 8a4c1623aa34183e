// Package adapter defines the Protocol Adapter interface and registry of
// spec.md §4.3, plus a dry-run wrapper that makes dry-run mode an
// adapter-level concern as the spec requires (mutating calls return
// synthetic hashes and log intent, without touching the Chain Gateway).
package adapter

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/rs/zerolog"

	"github.com/onchain-yield/optimizer/pkg/types"
)

// GasOp names the operation kind passed to EstimateGas, so adapters can
// return the right order-of-magnitude estimate without a live simulation.
type GasOp string

const (
	GasOpDeposit  GasOp = "deposit"
	GasOpWithdraw GasOp = "withdraw"
	GasOpApprove  GasOp = "approve"
	GasOpSwap     GasOp = "swap"
)

// ProtocolAdapter is implemented once per yield source (spec.md §4.3).
type ProtocolAdapter interface {
	Name() string
	GetPools(ctx context.Context) ([]types.YieldOpportunity, error)
	Deposit(ctx context.Context, poolID, token string, amount *big.Int) (txHash string, err error)
	Withdraw(ctx context.Context, poolID, token string, amount *big.Int) (txHash string, err error)
	GetUserBalance(ctx context.Context, poolID, address string) (*big.Int, error)
	EstimateGas(ctx context.Context, op GasOp, params map[string]any) (uint64, error)
}

// Registry looks adapters up by name; Strategy, Scanner, and Executor all
// route through it rather than holding adapters directly.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]ProtocolAdapter
	// order preserves registration order, used as the Scanner's stable
	// equal-APY tiebreak (spec.md §5).
	order []string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]ProtocolAdapter)}
}

// Register adds an adapter under its own Name(). Registering twice under
// the same name replaces the previous adapter but keeps its original
// position in registration order.
func (r *Registry) Register(a ProtocolAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := a.Name()
	if _, exists := r.adapters[name]; !exists {
		r.order = append(r.order, name)
	}
	r.adapters[name] = a
}

// Get returns the adapter registered under name, if any.
func (r *Registry) Get(name string) (ProtocolAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// All returns every registered adapter in registration order.
func (r *Registry) All() []ProtocolAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProtocolAdapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name])
	}
	return out
}

// DryRunAdapter wraps a live ProtocolAdapter so that mutating operations
// (Deposit, Withdraw) are synthesized rather than executed. Reads pass
// through unchanged.
type DryRunAdapter struct {
	Inner ProtocolAdapter
	Log   zerolog.Logger

	mu      sync.Mutex
	counter int
}

func (d *DryRunAdapter) Name() string { return d.Inner.Name() }

func (d *DryRunAdapter) GetPools(ctx context.Context) ([]types.YieldOpportunity, error) {
	return d.Inner.GetPools(ctx)
}

func (d *DryRunAdapter) GetUserBalance(ctx context.Context, poolID, address string) (*big.Int, error) {
	return d.Inner.GetUserBalance(ctx, poolID, address)
}

func (d *DryRunAdapter) EstimateGas(ctx context.Context, op GasOp, params map[string]any) (uint64, error) {
	return d.Inner.EstimateGas(ctx, op, params)
}

func (d *DryRunAdapter) Deposit(ctx context.Context, poolID, token string, amount *big.Int) (string, error) {
	hash := d.syntheticHash("deposit", poolID)
	d.Log.Info().
		Str("adapter", d.Name()).
		Str("pool", poolID).
		Str("token", token).
		Str("amount", amount.String()).
		Str("synthetic_tx", hash).
		Msg("dry-run deposit")
	return hash, nil
}

func (d *DryRunAdapter) Withdraw(ctx context.Context, poolID, token string, amount *big.Int) (string, error) {
	hash := d.syntheticHash("withdraw", poolID)
	d.Log.Info().
		Str("adapter", d.Name()).
		Str("pool", poolID).
		Str("token", token).
		Str("amount", amount.String()).
		Str("synthetic_tx", hash).
		Msg("dry-run withdraw")
	return hash, nil
}

func (d *DryRunAdapter) syntheticHash(op, poolID string) string {
	d.mu.Lock()
	d.counter++
	n := d.counter
	d.mu.Unlock()
	return fmt.Sprintf("0xdryrun%s_%s_%d", op, poolID, n)
}
