package mempool

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrDuplicateUserOperation is returned by AddOutstanding when a hash is
// already present in outstanding ∪ processing ∪ submitted. The entry is
// rejected (not appended) to preserve invariant 1; this is a deliberate
// stricter choice than the permissive source behavior — see DESIGN.md.
var ErrDuplicateUserOperation = errors.New("mempool: user operation hash already admitted")

// ErrTooManyOutstandingForSender is returned by AddOutstanding when a
// sender already holds MaxOutstandingPerSender entries in outstanding.
var ErrTooManyOutstandingForSender = errors.New("mempool: sender has too many outstanding user operations")

// UnreachableClearTargetError is returned by Clear for a set name Clear
// doesn't recognize. The spec calls this fatal; in Go that means "returns
// an error the caller must not ignore" rather than a hard exit.
type UnreachableClearTargetError struct {
	Target string
}

func (e *UnreachableClearTargetError) Error() string {
	return fmt.Sprintf("mempool: unreachable clear target %q", e.Target)
}

// missingHashWarning formats the message logged (at Info, not returned as an
// error) when a removal targets a hash that isn't present.
func missingHashWarning(set string, h common.Hash) string {
	return fmt.Sprintf("mempool: %s: no entry for hash %s", set, h.Hex())
}
