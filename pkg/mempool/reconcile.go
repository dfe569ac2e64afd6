package mempool

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dando385/erc4337-bundler-core/pkg/chainclient"
)

// senderKey identifies a (sender, nonceKey) group — the unit the EntryPoint's
// getNonce oracle is queried per, and the unit operations are totally
// ordered within (invariant 4).
type senderKey struct {
	sender common.Address
	key    string // nonce.Nonce.KeyString()
}

// UpdateAvailableUserOperations reconciles outstanding against the
// EntryPoint's on-chain nonce oracle and atomically republishes
// available-outstanding (see SPEC_FULL.md §4.1).
//
// Unlike the upstream algorithm, which re-scans outstandingOps once per
// (sender, key) pair (O(pairs × ops)), this builds a single senderKey index
// up front and resolves every pair against it in one pass (O(pairs + ops)) —
// the redesign described in SPEC_FULL.md §4.1.
//
// A whole-batch multicall failure aborts the reconciliation and leaves the
// prior available-outstanding untouched; a per-pair failure is logged and
// simply leaves that pair's operations in outstanding.
func (m *Mempool) UpdateAvailableUserOperations(ctx context.Context, client chainclient.Client, entryPoint common.Address) error {
	snapshot := m.DumpOutstanding()

	distinctKeys := make([]senderKey, 0)
	seen := make(map[senderKey]*big.Int)
	for _, info := range snapshot {
		n := info.Nonce()
		sk := senderKey{sender: info.Sender(), key: n.KeyString()}
		if _, ok := seen[sk]; !ok {
			seen[sk] = n.Key.ToBig()
			distinctKeys = append(distinctKeys, sk)
		}
	}

	if len(distinctKeys) == 0 {
		m.mu.Lock()
		m.available = newOrderedSet(infoHash)
		m.mu.Unlock()
		return nil
	}

	calls := make([]chainclient.NonceCall, len(distinctKeys))
	for i, sk := range distinctKeys {
		calls[i] = chainclient.NonceCall{Sender: sk.sender, Key: seen[sk]}
	}

	results, err := client.GetNonces(ctx, entryPoint, calls)
	if err != nil {
		m.logger.Error(err, "mempool: multicall nonce batch failed, leaving available-outstanding untouched")
		return err
	}

	resolved := make(map[senderKey]uint64, len(distinctKeys))
	for i, res := range results {
		if res.Err != nil {
			m.logger.Info("mempool: nonce oracle call failed for pair, skipping",
				"sender", distinctKeys[i].sender.Hex())
			continue
		}
		resolved[distinctKeys[i]] = res.Value.Uint64()
	}

	newAvailable := newOrderedSet(infoHash)
	for _, info := range snapshot {
		n := info.Nonce()
		sk := senderKey{sender: info.Sender(), key: n.KeyString()}
		if value, ok := resolved[sk]; ok && n.Value == value {
			newAvailable.add(info)
		}
	}

	m.mu.Lock()
	m.available = newAvailable
	m.mu.Unlock()
	return nil
}
