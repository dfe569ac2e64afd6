// Package sender arbitrates access to a bounded pool of signing accounts
// ("executors") a bundling driver leases to broadcast bundle transactions.
// Two backends are provided: a local semaphore-backed deque for a single
// process, and a Redis-backed list for leasing across processes.
package sender

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet is one signing account in the pool.
type Wallet struct {
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey
}

// WalletFromHex derives a Wallet from a hex-encoded private key, the same
// way the teacher's tx-signing exercises parse -priv flags.
func WalletFromHex(hexKey string) (*Wallet, error) {
	priv, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("sender: parsing private key: %w", err)
	}
	pub, ok := priv.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("sender: unexpected public key type")
	}
	return &Wallet{Address: crypto.PubkeyToAddress(*pub), PrivateKey: priv}, nil
}

// Manager is the SenderManager contract from SPEC_FULL.md §4.3.
type Manager interface {
	// GetAllWallets returns an immutable snapshot of the configured pool.
	GetAllWallets() []*Wallet
	// GetWallet blocks until an account is free and returns it.
	GetWallet(ctx context.Context) (*Wallet, error)
	// PushWallet returns an account to the pool.
	PushWallet(ctx context.Context, w *Wallet) error
}

// ErrWalletPoolExhausted is returned in the should-not-happen case where the
// semaphore admitted an acquire but the deque was empty.
var ErrWalletPoolExhausted = fmt.Errorf("sender: wallet pool exhausted")
