// Package mempool implements the bundler's in-memory user-operation
// lifecycle: the four semantic sets (outstanding, available-outstanding,
// processing, submitted) and the reconciliation that promotes outstanding
// operations into available-outstanding by consulting the EntryPoint's
// nonce oracle.
package mempool

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-logr/logr"

	"github.com/dando385/erc4337-bundler-core/pkg/userop"
)

// SetName identifies one of the three directly-mutable sets. Available-
// outstanding is deliberately excluded: it is a derived view, only ever
// replaced wholesale by reconciliation (see Mempool.UpdateAvailableUserOperations).
type SetName string

const (
	SetOutstanding SetName = "outstanding"
	SetProcessing  SetName = "processing"
	SetSubmitted   SetName = "submitted"
)

func infoHash(i *userop.UserOperationInfo) common.Hash { return i.UserOperationHash }
func submittedHash(s *userop.SubmittedUserOperation) common.Hash {
	return s.UserOperationHash
}

// Mempool holds the bundler's user-operation lifecycle state. All access
// goes through its methods; the zero value is not usable, use New.
type Mempool struct {
	mu sync.RWMutex

	outstanding *orderedSet[*userop.UserOperationInfo]
	available   *orderedSet[*userop.UserOperationInfo]
	processing  *orderedSet[*userop.UserOperationInfo]
	submitted   *orderedSet[*userop.SubmittedUserOperation]

	// maxOutstandingPerSender caps how many outstanding entries one sender
	// may hold at once (supplemented feature, see SPEC_FULL.md).  Zero
	// disables the check.
	maxOutstandingPerSender int

	logger logr.Logger
}

// Option configures a Mempool at construction time.
type Option func(*Mempool)

// WithLogger overrides the mempool's logger.
func WithLogger(l logr.Logger) Option {
	return func(m *Mempool) { m.logger = l }
}

// WithMaxOutstandingPerSender sets the per-sender outstanding cap. Zero (the
// default) disables the check.
func WithMaxOutstandingPerSender(n int) Option {
	return func(m *Mempool) { m.maxOutstandingPerSender = n }
}

// New builds an empty Mempool.
func New(opts ...Option) *Mempool {
	m := &Mempool{
		outstanding: newOrderedSet(infoHash),
		available:   newOrderedSet(infoHash),
		processing:  newOrderedSet(infoHash),
		submitted:   newOrderedSet(submittedHash),
		logger:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// anyMember reports whether hash is present in outstanding, processing, or
// submitted — the union invariant 1 requires to stay disjoint. Caller must
// hold at least a read lock.
func (m *Mempool) anyMember(h common.Hash) bool {
	return m.outstanding.has(h) || m.processing.has(h) || m.submitted.has(h)
}

// AddOutstanding admits a new UserOperationInfo into the outstanding set.
// A hash already present anywhere in outstanding ∪ processing ∪ submitted is
// rejected with ErrDuplicateUserOperation (logged at Info) rather than
// appended a second time, to keep invariant 1 intact.
func (m *Mempool) AddOutstanding(info *userop.UserOperationInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.anyMember(info.UserOperationHash) {
		m.logger.Info("duplicate user operation rejected", "hash", info.UserOperationHash.Hex())
		return ErrDuplicateUserOperation
	}

	if m.maxOutstandingPerSender > 0 {
		sender := info.Sender()
		count := 0
		for _, existing := range m.outstanding.dump() {
			if existing.Sender() == sender {
				count++
			}
		}
		if count >= m.maxOutstandingPerSender {
			return ErrTooManyOutstandingForSender
		}
	}

	m.outstanding.add(info)
	return nil
}

// AddProcessing appends a UserOperationInfo chosen for a bundle.
func (m *Mempool) AddProcessing(info *userop.UserOperationInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.anyMember(info.UserOperationHash) {
		m.logger.Info("duplicate user operation rejected", "hash", info.UserOperationHash.Hex())
		return ErrDuplicateUserOperation
	}
	m.processing.add(info)
	return nil
}

// AddSubmitted appends a broadcast SubmittedUserOperation.
func (m *Mempool) AddSubmitted(sub *userop.SubmittedUserOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.anyMember(sub.UserOperationHash) {
		m.logger.Info("duplicate user operation rejected", "hash", sub.UserOperationHash.Hex())
		return ErrDuplicateUserOperation
	}
	m.submitted.add(sub)
	return nil
}

// RemoveOutstanding removes hash from outstanding, cascading into
// available-outstanding if present there too (invariant 3). A missing hash
// is logged at Info and otherwise treated as a no-op.
func (m *Mempool) RemoveOutstanding(h common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.outstanding.remove(h); !ok {
		m.logger.Info(missingHashWarning(string(SetOutstanding), h))
		return
	}
	m.available.remove(h)
}

// RemoveProcessing removes hash from processing.
func (m *Mempool) RemoveProcessing(h common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processing.remove(h); !ok {
		m.logger.Info(missingHashWarning(string(SetProcessing), h))
	}
}

// RemoveSubmitted removes hash from submitted.
func (m *Mempool) RemoveSubmitted(h common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submitted.remove(h); !ok {
		m.logger.Info(missingHashWarning(string(SetSubmitted), h))
	}
}

// DumpOutstanding returns a snapshot of outstanding in admission order.
func (m *Mempool) DumpOutstanding() []*userop.UserOperationInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.outstanding.dump()
}

// DumpOutstandingFor filters DumpOutstanding to a single sender (supplemented
// feature: a read-only filter over the existing index, not a new set).
func (m *Mempool) DumpOutstandingFor(sender common.Address) []*userop.UserOperationInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*userop.UserOperationInfo
	for _, info := range m.outstanding.dump() {
		if info.Sender() == sender {
			out = append(out, info)
		}
	}
	return out
}

// DumpAvailableOutstanding returns a snapshot of available-outstanding in
// admission order (as of the last reconciliation).
func (m *Mempool) DumpAvailableOutstanding() []*userop.UserOperationInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available.dump()
}

// DumpProcessing returns a snapshot of processing in admission order.
func (m *Mempool) DumpProcessing() []*userop.UserOperationInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.processing.dump()
}

// DumpSubmitted returns a snapshot of submitted in admission order.
func (m *Mempool) DumpSubmitted() []*userop.SubmittedUserOperation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.submitted.dump()
}

// Clear drops all entries from the named set. Clearing "outstanding" does
// NOT implicitly clear available-outstanding — matching the upstream
// behavior documented in SPEC_FULL.md §4.1; callers that need both cleared
// must call Clear(SetOutstanding) and then re-run reconciliation (or clear
// available-outstanding themselves via the next UpdateAvailableUserOperations
// call, which always replaces it wholesale).
func (m *Mempool) Clear(which SetName) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch which {
	case SetOutstanding:
		m.outstanding.clear()
	case SetProcessing:
		m.processing.clear()
	case SetSubmitted:
		m.submitted.clear()
	default:
		return &UnreachableClearTargetError{Target: string(which)}
	}
	return nil
}

// MarkPotentiallyIncluded increments the included-count on a submitted
// operation's transaction info, recording that it was observed in a block
// whose finality isn't yet confirmed.
func (m *Mempool) MarkPotentiallyIncluded(h common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.submitted.index[h]; ok {
		sub := e.Value.(*userop.SubmittedUserOperation)
		sub.Transaction.IncludedCount++
	}
}

// ResetPotentiallyIncluded zeroes the included-count, used when a reorg
// evicts the block the transaction was last seen in.
func (m *Mempool) ResetPotentiallyIncluded(h common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.submitted.index[h]; ok {
		sub := e.Value.(*userop.SubmittedUserOperation)
		sub.Transaction.IncludedCount = 0
	}
}
