// Package nonce splits an ERC-4337 256-bit user-operation nonce into its
// 192-bit key and 64-bit value halves.
package nonce

import (
	"math/big"

	"github.com/holiman/uint256"
)

// valueBits is the width of the low half of a packed nonce.
const valueBits = 64

// Nonce is the decoded form of a UserOperation's 256-bit nonce field:
// the upper 192 bits (Key) group operations per sender, the lower 64 bits
// (Value) order them within that group.
type Nonce struct {
	Key   *uint256.Int
	Value uint64
}

// Split decodes a packed 256-bit nonce as key = nonce >> 64, value = nonce & (2^64 - 1).
func Split(packed *uint256.Int) Nonce {
	key := new(uint256.Int).Rsh(packed, valueBits)
	value := packed.Uint64() // low 64 bits; Uint64 already truncates to the low word
	return Nonce{Key: key, Value: value}
}

// SplitBig decodes a packed nonce given as a math/big.Int, for callers that
// receive nonces over JSON-RPC as hex big integers rather than uint256.
func SplitBig(packed *big.Int) Nonce {
	u, overflow := uint256.FromBig(packed)
	if overflow {
		// A 256-bit field cannot overflow uint256; this would indicate a
		// malformed upstream value. Truncate rather than panic.
		u = new(uint256.Int)
		u.SetBytes(packed.Bytes())
	}
	return Split(u)
}

// Pack re-encodes a key/value pair into a single 256-bit nonce.
func Pack(key *uint256.Int, value uint64) *uint256.Int {
	packed := new(uint256.Int).Lsh(key, valueBits)
	return packed.Or(packed, uint256.NewInt(value))
}

// KeyString returns a canonical hex string for the nonce key, suitable for
// use as a map key or log field.
func (n Nonce) KeyString() string {
	return n.Key.Hex()
}
