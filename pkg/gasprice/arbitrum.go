package gasprice

import "math/big"

// arbitrumQueueValidityMS is the slice window for the L1/L2 base-fee queues:
// 15s, versus 1s for the main fee queues.
const arbitrumQueueValidityMS = 15_000

// maxUint128 is the sentinel "unbounded" value for empty-window max
// aggregates: 2**128 - 1.
var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// ArbitrumManager tracks Arbitrum's two-dimensional fee model: an L1 base
// fee (charged for calldata posted to L1) alongside the ordinary L2 base
// fee. It is a sub-manager owned by a GasPriceManager configured for an
// Arbitrum chain.
type ArbitrumManager struct {
	l1BaseFee *history
	l2BaseFee *history
}

// NewArbitrumManager builds an ArbitrumManager with the given FIFO capacity.
func NewArbitrumManager(maxQueueSize int) *ArbitrumManager {
	return &ArbitrumManager{
		l1BaseFee: newHistory(maxQueueSize, arbitrumQueueValidityMS, false),
		l2BaseFee: newHistory(maxQueueSize, arbitrumQueueValidityMS, false),
	}
}

// SaveL1BaseFee records a new L1 base-fee sample.
func (m *ArbitrumManager) SaveL1BaseFee(value *big.Int) {
	m.l1BaseFee.save(value, nowMS())
}

// SaveL2BaseFee records a new L2 base-fee sample.
func (m *ArbitrumManager) SaveL2BaseFee(value *big.Int) {
	m.l2BaseFee.save(value, nowMS())
}

// GetMinL1BaseFee returns the smallest L1 base fee in the current window, or
// 1 if the window is empty.
func (m *ArbitrumManager) GetMinL1BaseFee() *big.Int {
	if v := m.l1BaseFee.min(); v != nil {
		return v
	}
	return big.NewInt(1)
}

// GetMaxL1BaseFee returns the largest L1 base fee in the current window, or
// the unbounded sentinel if the window is empty.
func (m *ArbitrumManager) GetMaxL1BaseFee() *big.Int {
	if v := m.l1BaseFee.max(); v != nil {
		return v
	}
	return new(big.Int).Set(maxUint128)
}

// GetMaxL2BaseFee returns the largest L2 base fee in the current window, or
// the unbounded sentinel if the window is empty.
func (m *ArbitrumManager) GetMaxL2BaseFee() *big.Int {
	if v := m.l2BaseFee.max(); v != nil {
		return v
	}
	return new(big.Int).Set(maxUint128)
}
