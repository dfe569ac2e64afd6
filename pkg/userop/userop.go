// Package userop defines the ERC-4337 UserOperation payload and the
// bookkeeping records the mempool attaches to it.
package userop

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/dando385/erc4337-bundler-core/pkg/nonce"
)

// UserOperation is the ERC-4337 pseudo-transaction as submitted by an
// account-abstraction client. Only the fields the mempool and gas/sender
// subsystems reason about are modeled; calldata and signature are kept
// opaque.
type UserOperation struct {
	Sender   common.Address
	Nonce    *uint256.Int
	CallData []byte

	CallGasLimit         *uint256.Int
	VerificationGasLimit *uint256.Int
	PreVerificationGas   *uint256.Int
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int

	PaymasterAndData []byte
	Signature        []byte
}

// SplitNonce decodes the operation's nonce into its key/value halves.
func (op *UserOperation) SplitNonce() nonce.Nonce {
	return nonce.Split(op.Nonce)
}

// CompressedUserOperation wraps an inflated UserOperation produced by a
// compression-aware account (e.g. an intents-style calldata codec). The
// mempool never inspects the compressed wire form directly; it always
// projects through Derive.
type CompressedUserOperation struct {
	Inflated *UserOperation
	Wire     []byte
}

// MempoolUserOperation is the dual representation the mempool stores: either
// a plain UserOperation or a CompressedUserOperation. Exactly one of the two
// fields is non-nil.
type MempoolUserOperation struct {
	Plain      *UserOperation
	Compressed *CompressedUserOperation
}

// FromUserOperation wraps a plain UserOperation.
func FromUserOperation(op *UserOperation) MempoolUserOperation {
	return MempoolUserOperation{Plain: op}
}

// FromCompressed wraps a compressed UserOperation.
func FromCompressed(c *CompressedUserOperation) MempoolUserOperation {
	return MempoolUserOperation{Compressed: c}
}

// Derive projects either representation down to the underlying UserOperation.
func (m MempoolUserOperation) Derive() *UserOperation {
	if m.Plain != nil {
		return m.Plain
	}
	return m.Compressed.Inflated
}

// ReferencedContracts records the set of addresses a UserOperation's
// validation touched, plus a hash summarizing their code, so the mempool can
// detect when a re-validation is warranted after those contracts change.
type ReferencedContracts struct {
	Addresses mapset.Set[common.Address]
	CodeHash  common.Hash
}

// UserOperationInfo is a UserOperation plus the bookkeeping the mempool
// attaches at admission time.
type UserOperationInfo struct {
	UserOp             MempoolUserOperation
	UserOperationHash  common.Hash
	EntryPoint         common.Address
	FirstSubmitted     time.Time
	LastReplaced       time.Time
	ReferencedContract *ReferencedContracts // optional
}

// Sender is a convenience accessor over the wrapped operation.
func (i *UserOperationInfo) Sender() common.Address {
	return i.UserOp.Derive().Sender
}

// Nonce is a convenience accessor over the wrapped operation.
func (i *UserOperationInfo) Nonce() nonce.Nonce {
	return i.UserOp.Derive().SplitNonce()
}

// TransactionInfo is the on-chain side of a submitted bundle transaction.
type TransactionInfo struct {
	TransactionHash     common.Hash
	PreviousHashes      []common.Hash // replacement history, oldest first
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
	Executor             common.Address
	FirstSubmitted       time.Time
	LastReplaced         time.Time
	// IncludedCount counts how many times this transaction has been observed
	// in a block whose finality is not yet confirmed. A reorg that evicts the
	// block should reset it via Mempool.ResetPotentiallyIncluded.
	IncludedCount int
}

// SubmittedUserOperation pairs a UserOperationInfo with the transaction that
// carried it on chain.
type SubmittedUserOperation struct {
	UserOperationInfo
	Transaction TransactionInfo
}
