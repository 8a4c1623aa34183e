package adapter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/onchain-yield/optimizer/pkg/contractclient"
	"github.com/onchain-yield/optimizer/pkg/txlistener"
	"github.com/onchain-yield/optimizer/pkg/types"
)

// PoolConfig describes one pool this adapter instance exposes, generalized
// from the teacher's per-pool contract wiring in blackhole.go (there
// specific to one DEX's Mint/Stake/Unstake calls; here any deposit/
// withdraw/balance ABI method names).
type PoolConfig struct {
	PoolID           string
	PoolName         string
	Token            string
	DepositMethod    string
	WithdrawMethod   string
	BalanceOfMethod  string
	APYSource        func(ctx context.Context) (decimal.Decimal, error)
	TVLSource        func(ctx context.Context) (decimal.Decimal, error)
}

// EVMAdapter is a ProtocolAdapter backed by one or more pool contracts on
// an EVM chain, generalizing the teacher's Blackhole-specific Mint/Stake/
// Unstake methods into config-driven deposit/withdraw/balance calls.
type EVMAdapter struct {
	name     string
	key      *ecdsa.PrivateKey
	listener *txlistener.TxListener
	clients  map[string]*contractclient.ContractClient // keyed by PoolID
	pools    map[string]PoolConfig
}

// NewEVMAdapter constructs an adapter named name, with one ContractClient
// and PoolConfig per pool.
func NewEVMAdapter(name string, key *ecdsa.PrivateKey, listener *txlistener.TxListener, pools []PoolConfig, clients map[string]*contractclient.ContractClient) *EVMAdapter {
	poolsByID := make(map[string]PoolConfig, len(pools))
	for _, p := range pools {
		poolsByID[p.PoolID] = p
	}
	return &EVMAdapter{
		name:     name,
		key:      key,
		listener: listener,
		clients:  clients,
		pools:    poolsByID,
	}
}

func (a *EVMAdapter) Name() string { return a.name }

func (a *EVMAdapter) GetPools(ctx context.Context) ([]types.YieldOpportunity, error) {
	out := make([]types.YieldOpportunity, 0, len(a.pools))
	for _, p := range a.pools {
		var apy, tvl decimal.Decimal
		var err error
		if p.APYSource != nil {
			if apy, err = p.APYSource(ctx); err != nil {
				return nil, fmt.Errorf("adapter %s: apy for %s: %w", a.name, p.PoolID, err)
			}
		}
		if p.TVLSource != nil {
			if tvl, err = p.TVLSource(ctx); err != nil {
				return nil, fmt.Errorf("adapter %s: tvl for %s: %w", a.name, p.PoolID, err)
			}
		}
		out = append(out, types.YieldOpportunity{
			Protocol: a.name,
			PoolID:   p.PoolID,
			PoolName: p.PoolName,
			APY:      apy,
			TVLUSD:   tvl,
			Tokens:   []string{p.Token},
		})
	}
	return out, nil
}

func (a *EVMAdapter) Deposit(ctx context.Context, poolID, token string, amount *big.Int) (string, error) {
	p, client, err := a.resolve(poolID)
	if err != nil {
		return "", err
	}
	tx, err := client.Send(ctx, a.key, 0, nil, p.DepositMethod, amount)
	if err != nil {
		return "", fmt.Errorf("adapter %s: deposit %s: %w", a.name, poolID, err)
	}
	if _, err := a.listener.WaitForTransaction(ctx, tx.Hash()); err != nil {
		return tx.Hash().Hex(), fmt.Errorf("adapter %s: deposit %s: await receipt: %w", a.name, poolID, err)
	}
	return tx.Hash().Hex(), nil
}

func (a *EVMAdapter) Withdraw(ctx context.Context, poolID, token string, amount *big.Int) (string, error) {
	p, client, err := a.resolve(poolID)
	if err != nil {
		return "", err
	}
	tx, err := client.Send(ctx, a.key, 0, nil, p.WithdrawMethod, amount)
	if err != nil {
		return "", fmt.Errorf("adapter %s: withdraw %s: %w", a.name, poolID, err)
	}
	if _, err := a.listener.WaitForTransaction(ctx, tx.Hash()); err != nil {
		return tx.Hash().Hex(), fmt.Errorf("adapter %s: withdraw %s: await receipt: %w", a.name, poolID, err)
	}
	return tx.Hash().Hex(), nil
}

func (a *EVMAdapter) GetUserBalance(ctx context.Context, poolID, address string) (*big.Int, error) {
	p, client, err := a.resolve(poolID)
	if err != nil {
		return nil, err
	}
	addr := gethcommon.HexToAddress(address)
	outputs, err := client.Call(ctx, &addr, p.BalanceOfMethod, addr)
	if err != nil {
		return nil, fmt.Errorf("adapter %s: balance %s: %w", a.name, poolID, err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("adapter %s: balance %s: empty result", a.name, poolID)
	}
	balance, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("adapter %s: balance %s: unexpected return type", a.name, poolID)
	}
	return balance, nil
}

// EstimateGas returns a rough per-op-kind unit estimate. Real estimation
// goes through the Gas Source; adapters return a static order-of-magnitude
// figure used only when a live simulation isn't available (e.g. computing
// a profitability estimate for a pool not yet touched).
func (a *EVMAdapter) EstimateGas(ctx context.Context, op GasOp, params map[string]any) (uint64, error) {
	switch op {
	case GasOpWithdraw:
		return 150_000, nil
	case GasOpDeposit:
		return 120_000, nil
	case GasOpApprove:
		return 50_000, nil
	case GasOpSwap:
		return 200_000, nil
	default:
		return 0, fmt.Errorf("adapter %s: unknown gas op %q", a.name, op)
	}
}

func (a *EVMAdapter) resolve(poolID string) (PoolConfig, *contractclient.ContractClient, error) {
	p, ok := a.pools[poolID]
	if !ok {
		return PoolConfig{}, nil, fmt.Errorf("adapter %s: unknown pool %q", a.name, poolID)
	}
	client, ok := a.clients[poolID]
	if !ok {
		return PoolConfig{}, nil, fmt.Errorf("adapter %s: no contract client for pool %q", a.name, poolID)
	}
	return p, client, nil
}
