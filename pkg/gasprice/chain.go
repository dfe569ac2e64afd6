package gasprice

import "math/big"

// Chain identifies chain-specific gas-price quirks. The zero value is a
// generic EIP-1559 chain with no overrides.
type Chain string

const (
	ChainGeneric       Chain = ""
	ChainPolygon       Chain = "polygon"
	ChainPolygonMumbai Chain = "polygon-mumbai"
	ChainCelo          Chain = "celo"
	ChainCeloAlfajores Chain = "celo-alfajores"
	ChainDFK           Chain = "dfk"
	ChainAvalanche     Chain = "avalanche"
	ChainHedera        Chain = "hedera"
	ChainArbitrum      Chain = "arbitrum"
)

var gwei = big.NewInt(1_000_000_000)

func gweiN(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), gwei)
}

// priorityFeeFloor returns the chain-specific minimum maxPriorityFeePerGas
// applied during the bump step, or nil if the chain has none.
func priorityFeeFloor(c Chain) *big.Int {
	switch c {
	case ChainPolygon:
		return gweiN(31)
	case ChainPolygonMumbai:
		return gweiN(1)
	default:
		return nil
	}
}

// usesGasStation reports whether fee refresh should try the Polygon v2 gas
// station before falling back to on-chain estimation.
func usesGasStation(c Chain) bool {
	return c == ChainPolygon || c == ChainPolygonMumbai
}

// flattenToMax reports whether the chain collapses maxPriorityFeePerGas and
// maxFeePerGas to their maximum after the bump (Celo and its testnet charge
// a single effective fee).
func flattenToMax(c Chain) bool {
	return c == ChainCelo || c == ChainCeloAlfajores
}

// postBumpFloor returns a chain-wide floor applied to both fee fields after
// bumping and any flattening, or nil if the chain has none.
func postBumpFloor(c Chain) *big.Int {
	switch c {
	case ChainDFK:
		return gweiN(5)
	case ChainAvalanche:
		return new(big.Int).Div(gweiN(3), big.NewInt(2)) // 1.5 gwei
	default:
		return nil
	}
}

// hederaScale is applied to window minima before comparing against a
// user-proposed gas price on Hedera, whose JSON-RPC relay reports fees in a
// different base unit.
var hederaScale = big.NewInt(1_000_000_000)
