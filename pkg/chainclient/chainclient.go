// Package chainclient declares the external chain-RPC capability the core
// consumes (Client), plus EthClient, an adapter over an ethclient.Client /
// rpc.Client pair. Only DialContext opens a network connection; the mempool
// and gas-price manager depend on the Client interface alone, so tests can
// supply doubles.
package chainclient

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Block is the subset of a block header the gas-price manager needs.
type Block struct {
	BaseFeePerGas *big.Int // nil on legacy chains
	GasUsed       uint64
	GasLimit      uint64
}

// LegacyOrDynamicFees is the result of an estimateFeesPerGas-style call: either
// a scalar legacy gas price, or an EIP-1559 fee pair. Either field set may be
// partially nil; the gas-price manager fills gaps per §4.2.
type LegacyOrDynamicFees struct {
	GasPrice             *big.Int // legacy
	MaxFeePerGas         *big.Int // EIP-1559
	MaxPriorityFeePerGas *big.Int // EIP-1559
}

// FeeHistory is the eth_feeHistory response shape the manager needs: the
// per-block reward at the requested percentiles.
type FeeHistory struct {
	Reward [][]*big.Int
}

// NonceCall is one EntryPoint.getNonce(sender, key) invocation batched into a
// multicall.
type NonceCall struct {
	Sender common.Address
	Key    *big.Int
}

// NonceResult is the outcome of one batched NonceCall. Err is set when the
// individual call reverted or otherwise failed; the batch as a whole may
// still have succeeded.
type NonceResult struct {
	Value *big.Int
	Err   error
}

// Client is the chain RPC surface the mempool and gas-price manager consume.
// A real implementation is a thin adapter over *ethclient.Client / *rpc.Client;
// test doubles implement it directly.
type Client interface {
	// LatestBlock returns the current head block.
	LatestBlock(ctx context.Context) (*Block, error)
	// GasPrice calls eth_gasPrice.
	GasPrice(ctx context.Context) (*big.Int, error)
	// EstimateFeesPerGas calls the chain's fee estimator, optionally forcing
	// the legacy (scalar) form.
	EstimateFeesPerGas(ctx context.Context, legacy bool) (*LegacyOrDynamicFees, error)
	// FeeHistory calls eth_feeHistory for the given block count and
	// percentiles, ending at the "latest" block.
	FeeHistory(ctx context.Context, blockCount int, rewardPercentiles []float64) (*FeeHistory, error)
	// GetNonces batches EntryPoint.getNonce(sender, key) calls via a
	// multicall-style reader. A non-nil error means the whole batch failed;
	// otherwise the result slice has exactly len(calls) entries, each of
	// which may independently carry a per-call Err.
	GetNonces(ctx context.Context, entryPoint common.Address, calls []NonceCall) ([]NonceResult, error)
}
