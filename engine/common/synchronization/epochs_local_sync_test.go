package synchronization

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncmock "github.com/ledgerbft/node/engine/common/synchronization/mock"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/utils/unittest"
)

type epochsHarness struct {
	recorder *events.Recorder
	metrics  *syncMetrics
	created  map[uint64]*syncmock.LocalSyncProcessor
	sync     *EpochsLocalSync
}

func newEpochsHarness(t *testing.T, epoch uint64) *epochsHarness {
	h := &epochsHarness{
		recorder: events.NewRecorder(time.Unix(0, 0)),
		metrics:  newSyncMetrics(),
		created:  make(map[uint64]*syncmock.LocalSyncProcessor),
	}
	factory := func(epoch uint64, _ *flow.ValidatorSet) (LocalSyncProcessor, error) {
		if _, exists := h.created[epoch]; exists {
			return nil, fmt.Errorf("ledger sync of epoch %d created twice", epoch)
		}
		inner := syncmock.NewLocalSyncProcessor(t)
		h.created[epoch] = inner
		return inner, nil
	}

	var err error
	h.sync, err = NewEpochsLocalSync(unittest.Logger(), DefaultConfig(), epoch, unittest.ParticipantsFixture(4).Set, factory, h.recorder, h.metrics)
	require.NoError(t, err)
	return h
}

func syncRequestFixture(epoch uint64, height uint64) messages.LocalSyncRequest {
	return messages.LocalSyncRequest{
		Target:      &flow.LedgerProof{Header: flow.LedgerHeader{Epoch: epoch, View: 1, Height: height}},
		TargetNodes: flow.IdentifierList{unittest.IdentifierFixture()},
	}
}

func epochChangeFixture(epoch uint64, height uint64) *flow.LedgerUpdate {
	proof := &flow.LedgerProof{Header: flow.LedgerHeader{
		Epoch:          epoch,
		View:           9,
		Height:         height,
		NextValidators: unittest.ParticipantsFixture(5).Set,
	}}
	change, err := flow.NewEpochChange(proof)
	if err != nil {
		panic(err)
	}
	return &flow.LedgerUpdate{Proof: proof, EpochChange: change}
}

// TestStaleEpochRequestDropped checks a sync request of a past epoch never
// reaches the ledger sync of the current one.
func TestStaleEpochRequestDropped(t *testing.T) {
	h := newEpochsHarness(t, 2)

	require.NoError(t, h.sync.ProcessLocalSyncRequest(syncRequestFixture(1, 40)))
	assert.Equal(t, 1, h.metrics.stale)
	h.created[2].AssertNotCalled(t, "ProcessLocalSyncRequest", syncRequestFixture(1, 40))
}

func TestForwardCurrentEpochRequest(t *testing.T) {
	h := newEpochsHarness(t, 2)
	req := syncRequestFixture(2, 10)
	h.created[2].On("ProcessLocalSyncRequest", req).Return(nil).Once()

	require.NoError(t, h.sync.ProcessLocalSyncRequest(req))
	assert.Zero(t, h.metrics.stale)
}

// TestResumeTargetInNextEpoch checks an outstanding target of a later epoch
// is handed to the ledger sync of the next epoch.
func TestResumeTargetInNextEpoch(t *testing.T) {
	h := newEpochsHarness(t, 1)
	req := syncRequestFixture(2, 20)
	h.created[1].On("ProcessLocalSyncRequest", req).Return(nil).Once()
	require.NoError(t, h.sync.ProcessLocalSyncRequest(req))

	// a lower target does not replace the remembered one
	lower := syncRequestFixture(2, 15)
	h.created[1].On("ProcessLocalSyncRequest", lower).Return(nil).Once()
	require.NoError(t, h.sync.ProcessLocalSyncRequest(lower))

	// the expectation on the next epoch's service is set as soon as it exists
	update := epochChangeFixture(1, 8)
	factory := h.sync.factory
	h.sync.factory = func(epoch uint64, validators *flow.ValidatorSet) (LocalSyncProcessor, error) {
		inner, err := factory(epoch, validators)
		if err != nil {
			return nil, err
		}
		h.created[epoch].On("ProcessLocalSyncRequest", req).Return(nil).Once()
		return inner, nil
	}
	require.NoError(t, h.sync.ProcessLedgerUpdate(update))

	assert.Equal(t, uint64(2), h.sync.Epoch())
	require.Contains(t, h.created, uint64(2))
	h.created[1].AssertNotCalled(t, "ProcessLedgerUpdate", update)
}

// TestReachedTargetIsForgotten checks nothing is resumed once the ledger
// passed the remembered target.
func TestReachedTargetIsForgotten(t *testing.T) {
	h := newEpochsHarness(t, 1)
	req := syncRequestFixture(1, 5)
	h.created[1].On("ProcessLocalSyncRequest", req).Return(nil).Once()
	require.NoError(t, h.sync.ProcessLocalSyncRequest(req))

	progress := &flow.LedgerUpdate{Proof: &flow.LedgerProof{Header: flow.LedgerHeader{Epoch: 1, View: 3, Height: 5}}}
	h.created[1].On("ProcessLedgerUpdate", progress).Return(nil).Once()
	require.NoError(t, h.sync.ProcessLedgerUpdate(progress))
	assert.Nil(t, h.sync.target)

	require.NoError(t, h.sync.ProcessLedgerUpdate(epochChangeFixture(1, 8)))
	require.Contains(t, h.created, uint64(2))
	// the mock of epoch 2 has no expectations, so any forwarded call fails the test
}

func TestSyncCheckTriggerRearms(t *testing.T) {
	h := newEpochsHarness(t, 1)
	h.sync.Start()
	require.Len(t, h.recorder.Delayed(), 1)

	h.created[1].On("ProcessSyncCheckTrigger").Return(nil).Once()
	require.NoError(t, h.sync.ProcessSyncCheckTrigger())

	delayed := h.recorder.Delayed()
	require.Len(t, delayed, 2)
	assert.Equal(t, messages.SyncCheckTrigger{}, delayed[1].Event)
	assert.Equal(t, DefaultConfig().SyncCheckInterval, delayed[1].Delay)
}

// TestEventsFollowEpoch checks network events reach the ledger sync of the
// current epoch only.
func TestEventsFollowEpoch(t *testing.T) {
	h := newEpochsHarness(t, 1)
	require.NoError(t, h.sync.ProcessLedgerUpdate(epochChangeFixture(1, 8)))

	peerID := unittest.IdentifierFixture()
	resp := &messages.SyncResponse{Nonce: 7}
	timeout := messages.SyncRequestTimeout{PeerID: peerID, Nonce: 7}
	status := &messages.StatusResponse{Nonce: 3}
	statusTimeout := messages.SyncCheckReceiveStatusTimeout{Round: 3}
	h.created[2].On("ProcessSyncResponse", peerID, resp).Return(nil).Once()
	h.created[2].On("ProcessSyncRequestTimeout", timeout).Return(nil).Once()
	h.created[2].On("ProcessStatusResponse", peerID, status).Return(nil).Once()
	h.created[2].On("ProcessSyncCheckReceiveStatusTimeout", statusTimeout).Return(nil).Once()

	require.NoError(t, h.sync.ProcessSyncResponse(peerID, resp))
	require.NoError(t, h.sync.ProcessSyncRequestTimeout(timeout))
	require.NoError(t, h.sync.ProcessStatusResponse(peerID, status))
	require.NoError(t, h.sync.ProcessSyncCheckReceiveStatusTimeout(statusTimeout))
	h.created[1].AssertNotCalled(t, "ProcessSyncResponse", peerID, resp)
}
