// Package gateway defines the Chain Gateway consumed-interface (spec.md §6)
// and an EVM-backed implementation wired through internal/rpc's dispatcher
// for failover, rate limiting, and redaction.
package gateway

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
)

// ReceiptStatus mirrors the minimal receipt shape the core needs, chain-
// client-library agnostic.
type ReceiptStatus struct {
	Success     bool
	GasUsed     uint64
	BlockNumber uint64
}

// ChainGateway is the minimal surface the core requires from a chain
// client abstraction (spec.md §6).
type ChainGateway interface {
	ChainID(ctx context.Context) (int64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)

	Call(ctx context.Context, to [20]byte, data []byte) ([]byte, error)
	Send(ctx context.Context, signedTxHex []byte) (txHash [32]byte, err error)
	WaitReceipt(ctx context.Context, txHash [32]byte) (ReceiptStatus, error)

	EstimateGas(ctx context.Context, to [20]byte, value *big.Int, data []byte) (uint64, error)
}

// PriceSource is the consumed price-feed interface (spec.md §6). Returned
// decimals must be positive; implementations raise rather than return
// zero/negative for an unknown symbol.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string, quote string) (decimal.Decimal, error)
}

// GasSource is the consumed gas-accounting interface (spec.md §6).
type GasSource interface {
	GetGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, to [20]byte, value *big.Int, data []byte) (uint64, error)
	CalculateGasCostUSD(ctx context.Context, units uint64) (decimal.Decimal, error)
}
