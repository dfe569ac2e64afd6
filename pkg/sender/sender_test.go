package sender

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoWallets() []*Wallet {
	return []*Wallet{
		{Address: common.HexToAddress("0x1")},
		{Address: common.HexToAddress("0x2")},
	}
}

func TestLocal_GetAllWalletsIsImmutableSnapshot(t *testing.T) {
	mgr := NewLocal(twoWallets(), 0)
	snap := mgr.GetAllWallets()
	require.Len(t, snap, 2)
	snap[0] = nil // mutating the returned slice must not affect the manager
	assert.Len(t, mgr.GetAllWallets(), 2)
	assert.NotNil(t, mgr.GetAllWallets()[0])
}

func TestLocal_MaxExecutorsTruncates(t *testing.T) {
	mgr := NewLocal(twoWallets(), 1)
	assert.Len(t, mgr.GetAllWallets(), 1)
}

func TestLocal_RoundTripRestoresMultiset_Invariant3(t *testing.T) {
	mgr := NewLocal(twoWallets(), 0)
	ctx := context.Background()

	w, err := mgr.GetWallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, mgr.AvailableCount())

	require.NoError(t, mgr.PushWallet(ctx, w))
	assert.Equal(t, 2, mgr.AvailableCount())

	seen := map[common.Address]bool{}
	for i := 0; i < 2; i++ {
		w, err := mgr.GetWallet(ctx)
		require.NoError(t, err)
		seen[w.Address] = true
	}
	assert.Len(t, seen, 2, "both original wallets are still obtainable")
}

// S6: pool of 2, three concurrent getWallet calls; two resolve immediately,
// the third blocks until a pushWallet, then resolves.
func TestLocal_ContentionBlocksThirdCaller_S6(t *testing.T) {
	mgr := NewLocal(twoWallets(), 0)
	ctx := context.Background()

	w1, err := mgr.GetWallet(ctx)
	require.NoError(t, err)
	_, err = mgr.GetWallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, mgr.AvailableCount())

	var wg sync.WaitGroup
	wg.Add(1)
	resultCh := make(chan *Wallet, 1)
	go func() {
		defer wg.Done()
		w, err := mgr.GetWallet(ctx)
		require.NoError(t, err)
		resultCh <- w
	}()

	select {
	case <-resultCh:
		t.Fatal("third getWallet resolved before any pushWallet")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, mgr.PushWallet(ctx, w1))

	select {
	case w := <-resultCh:
		assert.Equal(t, w1.Address, w.Address)
	case <-time.After(time.Second):
		t.Fatal("third getWallet never resolved after pushWallet")
	}
	wg.Wait()
}

func TestLocal_PushDoesNotDuplicate(t *testing.T) {
	mgr := NewLocal(twoWallets(), 0)
	ctx := context.Background()
	w, err := mgr.GetWallet(ctx)
	require.NoError(t, err)

	require.NoError(t, mgr.PushWallet(ctx, w))
	require.NoError(t, mgr.PushWallet(ctx, w))

	// The second push is a no-op: the wallet is already in the deque, so it
	// is not appended again and the semaphore is not released a second time.
	// Confirm the deque held to one copy by draining exactly the original
	// pool size and getting two distinct wallets.
	a, err := mgr.GetWallet(ctx)
	require.NoError(t, err)
	b, err := mgr.GetWallet(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, b.Address)
}

func TestLocal_GetWalletRespectsContextCancellation(t *testing.T) {
	mgr := NewLocal(nil, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := mgr.GetWallet(ctx)
	assert.Error(t, err)
}
