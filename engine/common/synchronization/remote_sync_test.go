package synchronization

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module/events"
	mocknetwork "github.com/ledgerbft/node/network/mock"
	bstorage "github.com/ledgerbft/node/storage/badger"
	"github.com/ledgerbft/node/utils/unittest"
)

type remoteHarness struct {
	participants *unittest.Participants
	store        *bstorage.Ledger
	recorder     *events.Recorder
	sent         []sent
	handler      *RemoteSyncHandler
}

func newRemoteHarness(t *testing.T, opts ...OptionFunc) *remoteHarness {
	h := &remoteHarness{
		participants: unittest.ParticipantsFixture(4),
		store:        bstorage.NewLedger(unittest.InMemoryBadgerDB(t)),
		recorder:     events.NewRecorder(time.Unix(0, 0)),
	}
	conduit := mocknetwork.NewConduit(t)
	conduit.On("Unicast", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			h.sent = append(h.sent, sent{event: args.Get(0), peerID: args.Get(1).(flow.Identifier)})
		}).
		Return(nil).
		Maybe()

	var err error
	h.handler, err = NewRemoteSyncHandler(unittest.Logger(), NewConfig(opts...), h.store, conduit, h.recorder)
	require.NoError(t, err)
	return h
}

func (h *remoteHarness) commit(t *testing.T, batches ...*flow.CommandsAndProof) {
	for _, batch := range batches {
		require.NoError(t, h.store.Store(batch.Commands, batch.Proof))
	}
}

func TestServeSyncRequest(t *testing.T) {
	h := newRemoteHarness(t)
	genesis := unittest.GenesisHeaderFixture()
	first := batchFixture(h.participants, genesis, 2, 3, 3)
	second := batchFixture(h.participants, &first.Proof.Header, 4, 2, 3)
	h.commit(t, first, second)
	requester := unittest.IdentifierFixture()

	req := &messages.SyncRequest{Nonce: 11, FromEpoch: 1}
	require.NoError(t, h.handler.ProcessSyncRequest(requester, req))
	require.Len(t, h.sent, 1)
	assert.Equal(t, requester, h.sent[0].peerID)
	resp := h.sent[0].event.(*messages.SyncResponse)
	assert.Equal(t, uint64(11), resp.Nonce)
	assert.Equal(t, second.Proof.ID(), resp.CommandsAndProof.Proof.ID())
	assert.Equal(t, append(first.Commands, second.Commands...), resp.CommandsAndProof.Commands)

	// nothing above our state is answered with an empty response
	top := second.Proof.Header
	req = &messages.SyncRequest{Nonce: 12, FromEpoch: top.Epoch, FromView: top.View, FromHeight: top.Height}
	require.NoError(t, h.handler.ProcessSyncRequest(requester, req))
	require.Len(t, h.sent, 2)
	assert.Equal(t, &messages.SyncResponse{Nonce: 12}, h.sent[1].event)
}

func TestServeSyncRequestBatchLimit(t *testing.T) {
	h := newRemoteHarness(t, WithMaxBatchSize(3))
	genesis := unittest.GenesisHeaderFixture()
	first := batchFixture(h.participants, genesis, 2, 3, 3)
	second := batchFixture(h.participants, &first.Proof.Header, 4, 2, 3)
	h.commit(t, first, second)

	require.NoError(t, h.handler.ProcessSyncRequest(unittest.IdentifierFixture(), &messages.SyncRequest{FromEpoch: 1}))
	require.Len(t, h.sent, 1)
	resp := h.sent[0].event.(*messages.SyncResponse)
	assert.Equal(t, first.Proof.ID(), resp.CommandsAndProof.Proof.ID())
}

func TestServeStatusRequest(t *testing.T) {
	h := newRemoteHarness(t)
	requester := unittest.IdentifierFixture()

	require.NoError(t, h.handler.ProcessStatusRequest(requester, &messages.StatusRequest{Nonce: 1}))
	require.Len(t, h.sent, 1)
	assert.Equal(t, &messages.StatusResponse{Nonce: 1}, h.sent[0].event)

	batch := batchFixture(h.participants, unittest.GenesisHeaderFixture(), 2, 3, 3)
	h.commit(t, batch)
	require.NoError(t, h.handler.ProcessStatusRequest(requester, &messages.StatusRequest{Nonce: 2}))
	require.Len(t, h.sent, 2)
	resp := h.sent[1].event.(*messages.StatusResponse)
	assert.Equal(t, uint64(2), resp.Nonce)
	assert.Equal(t, batch.Proof.ID(), resp.Proof.ID())
}

func TestRemoteSyncThrottling(t *testing.T) {
	h := newRemoteHarness(t, WithInboundRateLimit(1, 2))
	requester := unittest.IdentifierFixture()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.handler.ProcessStatusRequest(requester, &messages.StatusRequest{Nonce: uint64(i)}))
	}
	assert.Len(t, h.sent, 2)

	h.recorder.Advance(time.Second)
	require.NoError(t, h.handler.ProcessStatusRequest(requester, &messages.StatusRequest{Nonce: 3}))
	assert.Len(t, h.sent, 3)
}
