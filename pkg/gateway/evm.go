package gateway

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/onchain-yield/optimizer/internal/rpc"
	"github.com/onchain-yield/optimizer/pkg/txlistener"
)

func gethCallMsg(to gethcommon.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Data: data}
}

func gethCallMsgValue(to gethcommon.Address, value *big.Int, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Value: value, Data: data}
}

// EVMGateway implements ChainGateway over go-ethereum, dispatching every
// call through an internal/rpc.Dispatcher for failover, rate limiting, and
// redaction. Grounded on the teacher's cmd/main.go (ethclient.Dial,
// txlistener wiring) generalized away from one chain/network.
type EVMGateway struct {
	dispatcher *rpc.Dispatcher
	listener   *txlistener.TxListener
}

// NewEVMGateway constructs a gateway over a dispatcher. Each call's rpc.Op
// dials the selected endpoint's URL with ethclient and closes the client
// when the call returns.
func NewEVMGateway(dispatcher *rpc.Dispatcher, listener *txlistener.TxListener) *EVMGateway {
	return &EVMGateway{dispatcher: dispatcher, listener: listener}
}

func (g *EVMGateway) ChainID(ctx context.Context) (int64, error) {
	res, err := g.dispatcher.Execute(ctx, func(ctx context.Context, e *rpc.Endpoint) (any, error) {
		c, err := ethclient.DialContext(ctx, e.URL)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		id, err := c.NetworkID(ctx)
		if err != nil {
			return nil, err
		}
		return id.Int64(), nil
	})
	if err != nil {
		return 0, fmt.Errorf("gateway: chain id: %w", err)
	}
	return res.(int64), nil
}

func (g *EVMGateway) BlockNumber(ctx context.Context) (uint64, error) {
	res, err := g.dispatcher.Execute(ctx, func(ctx context.Context, e *rpc.Endpoint) (any, error) {
		c, err := ethclient.DialContext(ctx, e.URL)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		return c.BlockNumber(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("gateway: block number: %w", err)
	}
	return res.(uint64), nil
}

func (g *EVMGateway) GasPrice(ctx context.Context) (*big.Int, error) {
	res, err := g.dispatcher.Execute(ctx, func(ctx context.Context, e *rpc.Endpoint) (any, error) {
		c, err := ethclient.DialContext(ctx, e.URL)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		return c.SuggestGasPrice(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: gas price: %w", err)
	}
	return res.(*big.Int), nil
}

func (g *EVMGateway) Call(ctx context.Context, to [20]byte, data []byte) ([]byte, error) {
	addr := gethcommon.BytesToAddress(to[:])
	res, err := g.dispatcher.Execute(ctx, func(ctx context.Context, e *rpc.Endpoint) (any, error) {
		c, err := ethclient.DialContext(ctx, e.URL)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		msg := gethCallMsg(addr, data)
		return c.CallContract(ctx, msg, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: call: %w", err)
	}
	return res.([]byte), nil
}

func (g *EVMGateway) Send(ctx context.Context, signedTxHex []byte) ([32]byte, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(signedTxHex); err != nil {
		return [32]byte{}, fmt.Errorf("gateway: decode signed tx: %w", err)
	}

	res, err := g.dispatcher.Execute(ctx, func(ctx context.Context, e *rpc.Endpoint) (any, error) {
		c, err := ethclient.DialContext(ctx, e.URL)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		if err := c.SendTransaction(ctx, &tx); err != nil {
			return nil, err
		}
		return tx.Hash(), nil
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("gateway: send: %w", err)
	}
	return res.(gethcommon.Hash), nil
}

func (g *EVMGateway) WaitReceipt(ctx context.Context, txHash [32]byte) (ReceiptStatus, error) {
	receipt, err := g.listener.WaitForTransaction(ctx, gethcommon.Hash(txHash))
	if err != nil {
		return ReceiptStatus{}, fmt.Errorf("gateway: wait receipt: %w", err)
	}
	return ReceiptStatus{
		Success:     receipt.Status == 1,
		GasUsed:     receipt.GasUsed,
		BlockNumber: receipt.BlockNumber,
	}, nil
}

func (g *EVMGateway) EstimateGas(ctx context.Context, to [20]byte, value *big.Int, data []byte) (uint64, error) {
	addr := gethcommon.BytesToAddress(to[:])
	res, err := g.dispatcher.Execute(ctx, func(ctx context.Context, e *rpc.Endpoint) (any, error) {
		c, err := ethclient.DialContext(ctx, e.URL)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		msg := gethCallMsgValue(addr, value, data)
		return c.EstimateGas(ctx, msg)
	})
	if err != nil {
		return 0, fmt.Errorf("gateway: estimate gas: %w", err)
	}
	return res.(uint64), nil
}

// GasPriceOracle adapts EVMGateway to the GasSource interface, converting
// wei costs to USD via a PriceSource for the network's native token.
type GasPriceOracle struct {
	Gateway      *EVMGateway
	Prices       PriceSource
	NativeSymbol string // e.g. "ETH"
}

func (o *GasPriceOracle) GetGasPrice(ctx context.Context) (*big.Int, error) {
	return o.Gateway.GasPrice(ctx)
}

func (o *GasPriceOracle) EstimateGas(ctx context.Context, to [20]byte, value *big.Int, data []byte) (uint64, error) {
	return o.Gateway.EstimateGas(ctx, to, value, data)
}

func (o *GasPriceOracle) CalculateGasCostUSD(ctx context.Context, units uint64) (decimal.Decimal, error) {
	weiPrice, err := o.Gateway.GasPrice(ctx)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("gateway: gas cost: %w", err)
	}
	nativePrice, err := o.Prices.GetPrice(ctx, o.NativeSymbol, "USD")
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("gateway: gas cost: native price: %w", err)
	}

	weiCost := new(big.Int).Mul(weiPrice, new(big.Int).SetUint64(units))
	ethCost := decimal.NewFromBigInt(weiCost, -18)
	return ethCost.Mul(nativePrice), nil
}
