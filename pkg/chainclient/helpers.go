package chainclient

import (
	"encoding/json"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// getNonceSelector is the 4-byte selector for EntryPoint's
// getNonce(address,uint192), computed once at package init the same way the
// abigen exercise's hand-rolled calls derive a selector without a generated
// binding.
var getNonceSelector = crypto.Keccak256([]byte("getNonce(address,uint192)"))[:4]

// encodeGetNonce ABI-encodes a getNonce(sender, key) call: selector followed
// by the two arguments, each left-padded to 32 bytes.
func encodeGetNonce(sender common.Address, key *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, getNonceSelector...)
	data = append(data, common.LeftPadBytes(sender.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(key.Bytes(), 32)...)
	return data
}

// toCallArg mirrors ethclient's internal CallMsg->JSON-RPC argument
// conversion, reimplemented here because that helper is unexported.
func toCallArg(msg ethereum.CallMsg) interface{} {
	arg := map[string]interface{}{
		"to":   msg.To,
		"data": hexutil.Bytes(msg.Data),
	}
	if msg.From != (common.Address{}) {
		arg["from"] = msg.From
	}
	return arg
}

func rpcUnmarshalString(data []byte, out *string) error {
	return json.Unmarshal(data, out)
}

func trimHexPrefix(s string) string {
	return strings.TrimPrefix(s, "0x")
}
