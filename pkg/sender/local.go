package sender

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"golang.org/x/sync/semaphore"
)

// Local is the single-process SenderManager backend: a counting semaphore
// sized to the pool gates an in-memory deque. GetWallet pops the tail
// (LIFO); PushWallet appends to the tail if the wallet isn't already
// present.
type Local struct {
	sem *semaphore.Weighted

	mu    sync.Mutex
	all   []*Wallet
	deque []*Wallet

	available atomic.Int64
	logger    logr.Logger
}

// Option configures a Local manager at construction time.
type Option func(*Local)

// WithLogger overrides the manager's logger.
func WithLogger(l logr.Logger) Option {
	return func(m *Local) { m.logger = l }
}

// NewLocal builds a Local SenderManager over the given wallets, truncated to
// maxExecutors if positive.
func NewLocal(wallets []*Wallet, maxExecutors int, opts ...Option) *Local {
	if maxExecutors > 0 && len(wallets) > maxExecutors {
		wallets = wallets[:maxExecutors]
	}
	pool := append([]*Wallet(nil), wallets...)
	m := &Local{
		sem:    semaphore.NewWeighted(int64(len(pool))),
		all:    append([]*Wallet(nil), pool...),
		deque:  pool,
		logger: logr.Discard(),
	}
	m.available.Store(int64(len(pool)))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetAllWallets returns an immutable snapshot of the configured pool.
func (m *Local) GetAllWallets() []*Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Wallet(nil), m.all...)
}

// GetWallet blocks on the semaphore until an account is free, then pops and
// returns the deque's tail.
func (m *Local) GetWallet(ctx context.Context) (*Wallet, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.deque) == 0 {
		// Unreachable in correct operation: the semaphore's weight tracks
		// the deque's size exactly. Release what we acquired and fail loud.
		m.sem.Release(1)
		return nil, ErrWalletPoolExhausted
	}
	w := m.deque[len(m.deque)-1]
	m.deque = m.deque[:len(m.deque)-1]
	m.available.Add(-1)
	return w, nil
}

// PushWallet returns a wallet to the pool. ctx is accepted to satisfy
// Manager; the local backend never blocks on it.
//
// The semaphore is only released when the wallet is actually re-added: the
// spec's literal "append if absent, then release unconditionally" would let
// a duplicate push over-release the semaphore past its acquired count,
// which golang.org/x/sync/semaphore treats as a fatal accounting error. Here
// a duplicate push is a harmless no-op instead, keeping the semaphore's
// count in lockstep with the deque's.
func (m *Local) PushWallet(ctx context.Context, w *Wallet) error {
	m.mu.Lock()
	alreadyPresent := false
	for _, existing := range m.deque {
		if existing.Address == w.Address {
			alreadyPresent = true
			break
		}
	}
	if !alreadyPresent {
		m.deque = append(m.deque, w)
	}
	m.mu.Unlock()

	if alreadyPresent {
		return nil
	}
	m.sem.Release(1)
	m.available.Add(1)
	return nil
}

// AvailableCount reports the number of currently free wallets, exposed for
// an embedder's own metrics; nothing in this package wires it to a metrics
// backend.
func (m *Local) AvailableCount() int {
	return int(m.available.Load())
}

var _ Manager = (*Local)(nil)
