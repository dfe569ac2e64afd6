package chainclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// EthClient adapts a real *ethclient.Client (plus its underlying *rpc.Client
// for batched calls) to the Client interface, the same dial-and-wrap shape
// the node-explorer and trace exercises use.
type EthClient struct {
	eth *ethclient.Client
	rpc *rpc.Client
}

// DialContext connects to url and returns a ready-to-use EthClient.
func DialContext(ctx context.Context, url string) (*EthClient, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chainclient: dial %s: %w", url, err)
	}
	return &EthClient{eth: ethclient.NewClient(rc), rpc: rc}, nil
}

// Close releases the underlying RPC connection.
func (c *EthClient) Close() {
	c.rpc.Close()
}

func (c *EthClient) LatestBlock(ctx context.Context) (*Block, error) {
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chainclient: fetching latest header: %w", err)
	}
	return &Block{
		BaseFeePerGas: header.BaseFee,
		GasUsed:       header.GasUsed,
		GasLimit:      header.GasLimit,
	}, nil
}

func (c *EthClient) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chainclient: eth_gasPrice: %w", err)
	}
	return price, nil
}

// EstimateFeesPerGas mirrors go-ethereum's own suggestion calls: legacy asks
// for eth_gasPrice, the EIP-1559 path asks for the tip-cap suggestion and
// leaves maxFeePerGas nil so the caller derives it from the latest block's
// base fee.
func (c *EthClient) EstimateFeesPerGas(ctx context.Context, legacy bool) (*LegacyOrDynamicFees, error) {
	if legacy {
		price, err := c.GasPrice(ctx)
		if err != nil {
			return nil, err
		}
		return &LegacyOrDynamicFees{GasPrice: price}, nil
	}
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("chainclient: eth_maxPriorityFeePerGas: %w", err)
	}
	return &LegacyOrDynamicFees{MaxPriorityFeePerGas: tip}, nil
}

// feeHistoryResult mirrors the eth_feeHistory JSON response shape; only the
// reward column is consumed.
type feeHistoryResult struct {
	Reward [][]*hexBig `json:"reward"`
}

// hexBig round-trips a quantity encoded as a 0x-prefixed hex string, the
// wire format eth_feeHistory uses for reward entries.
type hexBig big.Int

func (h *hexBig) UnmarshalJSON(data []byte) error {
	var s string
	if err := rpcUnmarshalString(data, &s); err != nil {
		return err
	}
	v, ok := new(big.Int).SetString(trimHexPrefix(s), 16)
	if !ok {
		return fmt.Errorf("chainclient: malformed hex quantity %q", s)
	}
	*h = hexBig(*v)
	return nil
}

func (h *hexBig) big() *big.Int {
	v := big.Int(*h)
	return &v
}

func (c *EthClient) FeeHistory(ctx context.Context, blockCount int, rewardPercentiles []float64) (*FeeHistory, error) {
	var raw feeHistoryResult
	if err := c.rpc.CallContext(ctx, &raw, "eth_feeHistory", blockCount, "latest", rewardPercentiles); err != nil {
		return nil, fmt.Errorf("chainclient: eth_feeHistory: %w", err)
	}
	reward := make([][]*big.Int, len(raw.Reward))
	for i, block := range raw.Reward {
		row := make([]*big.Int, len(block))
		for j, v := range block {
			row[j] = v.big()
		}
		reward[i] = row
	}
	return &FeeHistory{Reward: reward}, nil
}

// GetNonces batches every EntryPoint.getNonce(sender, key) call into a
// single JSON-RPC batch request over eth_call, the same multicall-by-batch
// trick the abigen and trace exercises use instead of N round trips.
func (c *EthClient) GetNonces(ctx context.Context, entryPoint common.Address, calls []NonceCall) ([]NonceResult, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	elems := make([]rpc.BatchElem, len(calls))
	results := make([]string, len(calls))
	for i, call := range calls {
		msg := ethereum.CallMsg{
			To:   &entryPoint,
			Data: encodeGetNonce(call.Sender, call.Key),
		}
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{toCallArg(msg), "latest"},
			Result: &results[i],
		}
	}

	if err := c.rpc.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("chainclient: batched getNonce call: %w", err)
	}

	out := make([]NonceResult, len(calls))
	for i, elem := range elems {
		if elem.Error != nil {
			out[i] = NonceResult{Err: elem.Error}
			continue
		}
		v, ok := new(big.Int).SetString(trimHexPrefix(results[i]), 16)
		if !ok {
			out[i] = NonceResult{Err: fmt.Errorf("chainclient: malformed getNonce result %q", results[i])}
			continue
		}
		out[i] = NonceResult{Value: v}
	}
	return out, nil
}

var _ Client = (*EthClient)(nil)
