package nonce

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackSplitRoundTrip(t *testing.T) {
	key := uint256.NewInt(0xA11CE)
	value := uint64(5)

	packed := Pack(key, value)
	got := Split(packed)

	assert.Equal(t, value, got.Value)
	assert.True(t, key.Eq(got.Key), "key round-trips through pack/split")
}

func TestSplitZero(t *testing.T) {
	got := Split(new(uint256.Int))
	assert.Equal(t, uint64(0), got.Value)
	assert.True(t, got.Key.IsZero())
}

func TestSplitBigMatchesSplit(t *testing.T) {
	key := uint256.NewInt(7)
	packed := Pack(key, 42)

	fromBig := SplitBig(packed.ToBig())
	fromUint := Split(packed)

	require.Equal(t, fromUint.Value, fromBig.Value)
	assert.True(t, fromUint.Key.Eq(fromBig.Key))
}

func TestKeyStringIsHex(t *testing.T) {
	n := Split(Pack(uint256.NewInt(1), 1))
	assert.Equal(t, "0x1", n.KeyString())
}
