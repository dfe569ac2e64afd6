package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-logr/logr"
	"github.com/go-redis/redis/v8"
)

// sharedQueueKey is the well-known key the shared backend stores its list
// under, shared by every bundler process pointed at the same store.
const sharedQueueKey = "sender-manager"

// defaultPollInterval matches the 100ms polling period from SPEC_FULL.md
// §4.3. RPop-on-a-ticker is used rather than a blocking pop (BLPOP/BRPOP);
// it works against any Redis-API-compatible store.
const defaultPollInterval = 100 * time.Millisecond

// redisList is the subset of redis.Cmdable the shared backend needs,
// narrowed so tests can supply a fake without standing up a server.
type redisList interface {
	LLen(ctx context.Context, key string) *redis.IntCmd
	RPop(ctx context.Context, key string) *redis.StringCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Shared is the cross-process SenderManager backend: a list in a shared
// key/value store, keyed by sharedQueueKey. GetWallet polls RPOP every
// pollInterval until a non-nil pop; PushWallet uses RPUSH. Both work on the
// list's tail, so the most recently returned address is handed out next,
// and waiting callers are served in whatever order their polls land.
type Shared struct {
	rdb          redisList
	all          []*Wallet
	byAddress    map[common.Address]*Wallet
	pollInterval time.Duration
	logger       logr.Logger
}

// SharedOption configures a Shared manager at construction time.
type SharedOption func(*Shared)

// WithSharedLogger overrides the manager's logger.
func WithSharedLogger(l logr.Logger) SharedOption {
	return func(m *Shared) { m.logger = l }
}

// WithPollInterval overrides the default 100ms poll interval.
func WithPollInterval(d time.Duration) SharedOption {
	return func(m *Shared) { m.pollInterval = d }
}

// NewShared builds a Shared SenderManager. If the shared list is empty, it
// is populated with every configured wallet's address (first-use
// initialization); otherwise the existing list is left as the source of
// truth.
func NewShared(ctx context.Context, rdb redisList, wallets []*Wallet, opts ...SharedOption) (*Shared, error) {
	m := &Shared{
		rdb:          rdb,
		all:          append([]*Wallet(nil), wallets...),
		byAddress:    make(map[common.Address]*Wallet, len(wallets)),
		pollInterval: defaultPollInterval,
		logger:       logr.Discard(),
	}
	for _, w := range wallets {
		m.byAddress[w.Address] = w
	}
	for _, opt := range opts {
		opt(m)
	}

	n, err := m.rdb.LLen(ctx, sharedQueueKey).Result()
	if err != nil {
		return nil, fmt.Errorf("sender: checking shared queue length: %w", err)
	}
	if n == 0 {
		for _, w := range wallets {
			if err := m.rdb.RPush(ctx, sharedQueueKey, w.Address.Hex()).Err(); err != nil {
				return nil, fmt.Errorf("sender: seeding shared queue: %w", err)
			}
		}
	}
	return m, nil
}

// GetAllWallets returns an immutable snapshot of the configured pool.
func (m *Shared) GetAllWallets() []*Wallet {
	return append([]*Wallet(nil), m.all...)
}

// GetWallet polls the shared queue's tail until a non-null pop, then
// resolves the popped address back to the configured wallet.
func (m *Shared) GetWallet(ctx context.Context) (*Wallet, error) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		addr, err := m.rdb.RPop(ctx, sharedQueueKey).Result()
		switch {
		case err == nil:
			w, ok := m.byAddress[common.HexToAddress(addr)]
			if !ok {
				return nil, fmt.Errorf("sender: shared queue returned unknown address %s", addr)
			}
			return w, nil
		case errors.Is(err, redis.Nil):
			// Queue empty; fall through to the poll wait below.
		default:
			return nil, fmt.Errorf("sender: polling shared queue: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// PushWallet appends the wallet's address to the shared queue's tail.
func (m *Shared) PushWallet(ctx context.Context, w *Wallet) error {
	if err := m.rdb.RPush(ctx, sharedQueueKey, w.Address.Hex()).Err(); err != nil {
		return fmt.Errorf("sender: pushing to shared queue: %w", err)
	}
	return nil
}

var _ Manager = (*Shared)(nil)
