// Package txlistener polls for transaction receipts with a bounded timeout.
// Adapted from the teacher's pkg/txlistener (surviving only by reference in
// cmd/main.go's NewTxListener(client, WithPollInterval(...), WithTimeout(...))
// call, rewritten here in full) and internal/db's TransactionRecord gas
// accounting pattern.
package txlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrTimeout is returned when a transaction's receipt does not appear
// before the listener's timeout elapses.
var ErrTimeout = errors.New("txlistener: timed out waiting for receipt")

// Option configures a TxListener.
type Option func(*TxListener)

// WithPollInterval sets the polling cadence for receipt lookups.
func WithPollInterval(d time.Duration) Option {
	return func(l *TxListener) { l.pollInterval = d }
}

// WithTimeout sets the maximum time to wait for a receipt.
func WithTimeout(d time.Duration) Option {
	return func(l *TxListener) { l.timeout = d }
}

// TxListener polls an RPC client for transaction receipts.
type TxListener struct {
	client       *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// NewTxListener constructs a listener with sane defaults (3s poll, 5m
// timeout), overridable via options.
func NewTxListener(client *ethclient.Client, opts ...Option) *TxListener {
	l := &TxListener{
		client:       client,
		pollInterval: 3 * time.Second,
		timeout:      5 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Receipt is the subset of a mined transaction's outcome this package
// exposes to callers, independent of go-ethereum's receipt type so
// upstream packages (executor, gas accounting) don't import go-ethereum
// directly.
type Receipt struct {
	TxHash  common.Hash
	Status  uint64 // 1 success, 0 reverted
	GasUsed uint64
	BlockNumber uint64
}

// WaitForTransaction polls until the transaction is mined or ctx/the
// listener's own timeout expires, whichever comes first.
func (l *TxListener) WaitForTransaction(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return &Receipt{
				TxHash:      txHash,
				Status:      receipt.Status,
				GasUsed:     receipt.GasUsed,
				BlockNumber: receipt.BlockNumber.Uint64(),
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("txlistener: fetch receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ErrTimeout
		case <-ticker.C:
		}
	}
}

