package mempool

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dando385/erc4337-bundler-core/pkg/chainclient"
	"github.com/dando385/erc4337-bundler-core/pkg/userop"
)

// fakeNonceOracle is a chainclient.Client test double whose only
// implemented method the reconciliation tests exercise is GetNonces.
type fakeNonceOracle struct {
	values  map[common.Address]uint64
	failFor map[common.Address]bool
	batchErr error
}

func (f *fakeNonceOracle) LatestBlock(ctx context.Context) (*chainclient.Block, error) { return nil, nil }
func (f *fakeNonceOracle) GasPrice(ctx context.Context) (*big.Int, error)               { return nil, nil }
func (f *fakeNonceOracle) EstimateFeesPerGas(ctx context.Context, legacy bool) (*chainclient.LegacyOrDynamicFees, error) {
	return nil, nil
}
func (f *fakeNonceOracle) FeeHistory(ctx context.Context, blockCount int, rewardPercentiles []float64) (*chainclient.FeeHistory, error) {
	return nil, nil
}
func (f *fakeNonceOracle) GetNonces(ctx context.Context, entryPoint common.Address, calls []chainclient.NonceCall) ([]chainclient.NonceResult, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([]chainclient.NonceResult, len(calls))
	for i, c := range calls {
		if f.failFor[c.Sender] {
			out[i] = chainclient.NonceResult{Err: context.DeadlineExceeded}
			continue
		}
		out[i] = chainclient.NonceResult{Value: new(big.Int).SetUint64(f.values[c.Sender])}
	}
	return out, nil
}

func makeOp(t *testing.T, sender common.Address, keyVal uint64, nonceValue uint64) *userop.UserOperationInfo {
	t.Helper()
	key := uint256.NewInt(keyVal)
	packed := new(uint256.Int).Lsh(key, 64)
	packed.Or(packed, uint256.NewInt(nonceValue))

	op := &userop.UserOperation{Sender: sender, Nonce: packed}
	return &userop.UserOperationInfo{
		UserOp:            userop.FromUserOperation(op),
		UserOperationHash: common.BytesToHash(append(sender.Bytes(), byte(keyVal), byte(nonceValue>>8), byte(nonceValue))),
		EntryPoint:        common.HexToAddress("0x0000000000000071727De22E5E9d8BAf0edAc6f"),
		FirstSubmitted:    time.Now(),
	}
}

var entryPoint = common.HexToAddress("0x0000000000000071727De22E5E9d8BAf0edAc6f")

func TestAddOutstandingRejectsDuplicateHash(t *testing.T) {
	mp := New()
	op := makeOp(t, common.HexToAddress("0xA"), 0, 1)

	require.NoError(t, mp.AddOutstanding(op))
	err := mp.AddOutstanding(op)
	assert.ErrorIs(t, err, ErrDuplicateUserOperation)
	assert.Len(t, mp.DumpOutstanding(), 1)
}

func TestMaxOutstandingPerSender(t *testing.T) {
	mp := New(WithMaxOutstandingPerSender(1))
	sender := common.HexToAddress("0xA")

	require.NoError(t, mp.AddOutstanding(makeOp(t, sender, 0, 1)))
	err := mp.AddOutstanding(makeOp(t, sender, 0, 2))
	assert.ErrorIs(t, err, ErrTooManyOutstandingForSender)
}

// S1: admit UO sender=0xA nonce(key=0,value=5); oracle returns 5 -> promoted;
// oracle then returns 6 -> demoted but still outstanding.
func TestReconciliation_S1_Promotion(t *testing.T) {
	mp := New()
	sender := common.HexToAddress("0xA")
	op := makeOp(t, sender, 0, 5)
	require.NoError(t, mp.AddOutstanding(op))

	oracle := &fakeNonceOracle{values: map[common.Address]uint64{sender: 5}}
	require.NoError(t, mp.UpdateAvailableUserOperations(context.Background(), oracle, entryPoint))

	avail := mp.DumpAvailableOutstanding()
	require.Len(t, avail, 1)
	assert.Equal(t, op.UserOperationHash, avail[0].UserOperationHash)

	oracle.values[sender] = 6
	require.NoError(t, mp.UpdateAvailableUserOperations(context.Background(), oracle, entryPoint))

	assert.Empty(t, mp.DumpAvailableOutstanding())
	assert.Len(t, mp.DumpOutstanding(), 1)
}

// S2: two UOs promoted; removeOutstanding(h1) cascades into available-outstanding.
func TestReconciliation_S2_RemovalCascade(t *testing.T) {
	mp := New()
	sender := common.HexToAddress("0xB")
	op1 := makeOp(t, sender, 0, 0)
	op2 := makeOp(t, sender, 1, 0)
	require.NoError(t, mp.AddOutstanding(op1))
	require.NoError(t, mp.AddOutstanding(op2))

	oracle := &fakeNonceOracle{values: map[common.Address]uint64{sender: 0}}
	require.NoError(t, mp.UpdateAvailableUserOperations(context.Background(), oracle, entryPoint))
	require.Len(t, mp.DumpAvailableOutstanding(), 2)

	mp.RemoveOutstanding(op1.UserOperationHash)

	outstanding := mp.DumpOutstanding()
	require.Len(t, outstanding, 1)
	assert.Equal(t, op2.UserOperationHash, outstanding[0].UserOperationHash)

	available := mp.DumpAvailableOutstanding()
	require.Len(t, available, 1)
	assert.Equal(t, op2.UserOperationHash, available[0].UserOperationHash)
}

func TestReconciliation_PerPairFailureDegradesGracefully(t *testing.T) {
	mp := New()
	good := common.HexToAddress("0xC")
	bad := common.HexToAddress("0xD")
	opGood := makeOp(t, good, 0, 0)
	opBad := makeOp(t, bad, 0, 0)
	require.NoError(t, mp.AddOutstanding(opGood))
	require.NoError(t, mp.AddOutstanding(opBad))

	oracle := &fakeNonceOracle{
		values:  map[common.Address]uint64{good: 0, bad: 0},
		failFor: map[common.Address]bool{bad: true},
	}
	require.NoError(t, mp.UpdateAvailableUserOperations(context.Background(), oracle, entryPoint))

	avail := mp.DumpAvailableOutstanding()
	require.Len(t, avail, 1)
	assert.Equal(t, opGood.UserOperationHash, avail[0].UserOperationHash)
	assert.Len(t, mp.DumpOutstanding(), 2, "the failed pair's op stays in outstanding")
}

func TestReconciliation_BatchFailureLeavesAvailableUntouched(t *testing.T) {
	mp := New()
	sender := common.HexToAddress("0xE")
	op := makeOp(t, sender, 0, 0)
	require.NoError(t, mp.AddOutstanding(op))

	oracle := &fakeNonceOracle{values: map[common.Address]uint64{sender: 0}}
	require.NoError(t, mp.UpdateAvailableUserOperations(context.Background(), oracle, entryPoint))
	require.Len(t, mp.DumpAvailableOutstanding(), 1)

	oracle.batchErr = context.DeadlineExceeded
	err := mp.UpdateAvailableUserOperations(context.Background(), oracle, entryPoint)
	assert.Error(t, err)
	assert.Len(t, mp.DumpAvailableOutstanding(), 1, "prior available-outstanding is untouched on batch failure")
}

func TestReconciliation_Idempotent(t *testing.T) {
	mp := New()
	sender := common.HexToAddress("0xF")
	require.NoError(t, mp.AddOutstanding(makeOp(t, sender, 0, 2)))

	oracle := &fakeNonceOracle{values: map[common.Address]uint64{sender: 2}}
	require.NoError(t, mp.UpdateAvailableUserOperations(context.Background(), oracle, entryPoint))
	first := mp.DumpAvailableOutstanding()
	require.NoError(t, mp.UpdateAvailableUserOperations(context.Background(), oracle, entryPoint))
	second := mp.DumpAvailableOutstanding()

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].UserOperationHash, second[i].UserOperationHash)
	}
}

func TestClear_OutstandingDoesNotClearAvailable(t *testing.T) {
	mp := New()
	sender := common.HexToAddress("0x1")
	require.NoError(t, mp.AddOutstanding(makeOp(t, sender, 0, 0)))

	oracle := &fakeNonceOracle{values: map[common.Address]uint64{sender: 0}}
	require.NoError(t, mp.UpdateAvailableUserOperations(context.Background(), oracle, entryPoint))
	require.Len(t, mp.DumpAvailableOutstanding(), 1)

	require.NoError(t, mp.Clear(SetOutstanding))

	assert.Empty(t, mp.DumpOutstanding())
	assert.Len(t, mp.DumpAvailableOutstanding(), 1, "clearing outstanding leaves available-outstanding untouched per spec")
}

func TestClear_UnknownTargetIsFatal(t *testing.T) {
	mp := New()
	err := mp.Clear(SetName("bogus"))
	var target *UnreachableClearTargetError
	require.ErrorAs(t, err, &target)
}

func TestRemoveMissingHashIsWarnedNotFatal(t *testing.T) {
	mp := New()
	assert.NotPanics(t, func() {
		mp.RemoveOutstanding(common.HexToHash("0xdead"))
		mp.RemoveProcessing(common.HexToHash("0xdead"))
		mp.RemoveSubmitted(common.HexToHash("0xdead"))
	})
}

func TestDumpOutstandingFor(t *testing.T) {
	mp := New()
	a := common.HexToAddress("0xA")
	b := common.HexToAddress("0xB")
	require.NoError(t, mp.AddOutstanding(makeOp(t, a, 0, 1)))
	require.NoError(t, mp.AddOutstanding(makeOp(t, b, 0, 1)))

	forA := mp.DumpOutstandingFor(a)
	require.Len(t, forA, 1)
	assert.Equal(t, a, forA[0].Sender())
}

func TestMarkAndResetPotentiallyIncluded(t *testing.T) {
	mp := New()
	sub := &userop.SubmittedUserOperation{
		UserOperationInfo: *makeOp(t, common.HexToAddress("0x2"), 0, 0),
	}
	require.NoError(t, mp.AddSubmitted(sub))

	mp.MarkPotentiallyIncluded(sub.UserOperationHash)
	mp.MarkPotentiallyIncluded(sub.UserOperationHash)
	dumped := mp.DumpSubmitted()
	require.Len(t, dumped, 1)
	assert.Equal(t, 2, dumped[0].Transaction.IncludedCount)

	mp.ResetPotentiallyIncluded(sub.UserOperationHash)
	assert.Equal(t, 0, mp.DumpSubmitted()[0].Transaction.IncludedCount)
}
