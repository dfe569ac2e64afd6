package gasprice

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrBaseFeeUnavailable is returned by GetBaseFee on a legacy-only chain.
var ErrBaseFeeUnavailable = errors.New("gasprice: base fee unavailable on this chain")

// GasPriceTooLowError is returned by ValidateGasPrice when a caller-proposed
// fee falls below the tracked window minimum.
type GasPriceTooLowError struct {
	Field    string
	Proposed *big.Int
	Minimum  *big.Int
}

func (e *GasPriceTooLowError) Error() string {
	return fmt.Sprintf("gasprice: %s too low: proposed %s, minimum %s", e.Field, e.Proposed, e.Minimum)
}
