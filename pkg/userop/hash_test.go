package userop

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

// newFixture builds a UserOperationInfo with a synthetic hash, for tests
// that don't need a real EntryPoint-derived hash.
func newFixture(sender common.Address, key *uint256.Int, value uint64) *UserOperationInfo {
	op := &UserOperation{
		Sender:               sender,
		Nonce:                nonceFor(key, value),
		MaxFeePerGas:         uint256.NewInt(1),
		MaxPriorityFeePerGas: uint256.NewInt(1),
	}
	return &UserOperationInfo{
		UserOp:            FromUserOperation(op),
		UserOperationHash: common.BytesToHash(uuid.New().NodeID()),
		EntryPoint:        common.HexToAddress("0x0000000000000071727De22E5E9d8BAf0edAc6f"),
		FirstSubmitted:    time.Now(),
	}
}

func nonceFor(key *uint256.Int, value uint64) *uint256.Int {
	packed := new(uint256.Int).Lsh(key, 64)
	return packed.Or(packed, uint256.NewInt(value))
}

func TestDeriveProjectsPlainAndCompressed(t *testing.T) {
	op := &UserOperation{Sender: common.HexToAddress("0xA")}
	plain := FromUserOperation(op)
	assert.Same(t, op, plain.Derive())

	compressed := FromCompressed(&CompressedUserOperation{Inflated: op, Wire: []byte{1, 2, 3}})
	assert.Same(t, op, compressed.Derive())
}

func TestUserOperationInfoConvenienceAccessors(t *testing.T) {
	sender := common.HexToAddress("0xABCDEF")
	info := newFixture(sender, uint256.NewInt(9), 3)

	assert.Equal(t, sender, info.Sender())
	n := info.Nonce()
	assert.Equal(t, uint64(3), n.Value)
	assert.True(t, n.Key.Eq(uint256.NewInt(9)))
}
