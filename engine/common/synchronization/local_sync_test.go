package synchronization

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/ledger"
	"github.com/ledgerbft/node/module/metrics"
	"github.com/ledgerbft/node/module/signature"
	mocknetwork "github.com/ledgerbft/node/network/mock"
	bstorage "github.com/ledgerbft/node/storage/badger"
	"github.com/ledgerbft/node/utils/unittest"
)

type sent struct {
	event  interface{}
	peerID flow.Identifier
}

type syncMetrics struct {
	*metrics.NoopCollector
	sent     int
	timedOut int
	rejected []string
	applied  int
	stale    int
	failed   int
}

func newSyncMetrics() *syncMetrics {
	return &syncMetrics{NoopCollector: metrics.NewNoopCollector()}
}

func (m *syncMetrics) LedgerSyncRequestSent()     { m.sent++ }
func (m *syncMetrics) LedgerSyncRequestTimedOut() { m.timedOut++ }
func (m *syncMetrics) LedgerSyncResponseRejected(reason string) {
	m.rejected = append(m.rejected, reason)
}
func (m *syncMetrics) LedgerSyncApplied(commands int) { m.applied += commands }
func (m *syncMetrics) LedgerSyncStaleRequestDropped() { m.stale++ }
func (m *syncMetrics) LedgerSyncFailed()              { m.failed++ }

// batchFixture returns n commands on top of base and a proof of the header
// they lead to, signed by the first `signers` participants.
func batchFixture(p *unittest.Participants, base *flow.LedgerHeader, view uint64, n int, signers int) *flow.CommandsAndProof {
	commands := unittest.CommandsFixture(n)
	header := flow.LedgerHeader{
		Epoch:       base.Epoch,
		View:        view,
		Height:      base.Height + uint64(n),
		Accumulator: ledger.Accumulate(base.Accumulator, commands),
	}
	return &flow.CommandsAndProof{
		Commands: commands,
		Proof:    unittest.LedgerProofFixture(p, header, signers),
	}
}

func TestLocalSync(t *testing.T) {
	suite.Run(t, new(LocalSyncSuite))
}

type LocalSyncSuite struct {
	suite.Suite

	participants *unittest.Participants
	self         flow.Identifier
	recorder     *events.Recorder
	conduit      *mocknetwork.Conduit
	sent         []sent
	executor     *ledger.Executor
	metrics      *syncMetrics
	sync         *LocalSync
}

func (s *LocalSyncSuite) SetupTest() {
	s.participants = unittest.ParticipantsFixture(4)
	s.self = unittest.PrivateKeyFixture(10).NodeID()
	s.recorder = events.NewRecorder(time.Unix(0, 0))
	s.metrics = newSyncMetrics()
	s.sent = nil

	s.conduit = mocknetwork.NewConduit(s.T())
	s.conduit.On("Unicast", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			s.sent = append(s.sent, sent{event: args.Get(0), peerID: args.Get(1).(flow.Identifier)})
		}).
		Return(nil).
		Maybe()

	var err error
	s.executor, err = ledger.New(
		unittest.Logger(),
		ledger.Config{},
		bstorage.NewLedger(unittest.InMemoryBadgerDB(s.T())),
		unittest.GenesisHeaderFixture(),
		s.recorder,
		metrics.NewNoopCollector(),
	)
	s.Require().NoError(err)

	s.sync = NewLocalSync(
		unittest.Logger(),
		DefaultConfig(),
		s.self,
		1,
		s.participants.Set,
		s.participants.Set.NodeIDs(),
		s.executor,
		signature.NewECDSAVerifier(),
		NewPeerHealth(DefaultConfig(), s.recorder.Now),
		s.conduit,
		s.recorder,
		s.metrics,
	)
}

// syncRequest returns the i-th message sent, which must be a SyncRequest.
func (s *LocalSyncSuite) syncRequest(i int) (*messages.SyncRequest, flow.Identifier) {
	s.Require().Greater(len(s.sent), i)
	req, ok := s.sent[i].event.(*messages.SyncRequest)
	s.Require().True(ok, "message %d is a %T", i, s.sent[i].event)
	return req, s.sent[i].peerID
}

func (s *LocalSyncSuite) startSync(target *flow.LedgerProof, nodes ...flow.Identifier) {
	err := s.sync.ProcessLocalSyncRequest(messages.LocalSyncRequest{Target: target, TargetNodes: nodes})
	s.Require().NoError(err)
}

// TestSyncAppliesQuorumProof checks a batch certified by three of four
// validators is applied and the sync ends at the target.
func (s *LocalSyncSuite) TestSyncAppliesQuorumProof() {
	batch := batchFixture(s.participants, s.executor.CurrentHeader(), 5, 10, 3)
	s.startSync(batch.Proof, s.participants.NodeID(0), s.participants.NodeID(1))

	req, peerID := s.syncRequest(0)
	s.Contains(flow.IdentifierList{s.participants.NodeID(0), s.participants.NodeID(1)}, peerID)
	s.Equal(uint64(0), req.FromHeight)
	s.Equal(uint64(1), req.FromEpoch)
	s.Require().Len(s.recorder.Delayed(), 1)
	s.Equal(messages.SyncRequestTimeout{PeerID: peerID, Nonce: req.Nonce}, s.recorder.Delayed()[0].Event)

	err := s.sync.ProcessSyncResponse(peerID, &messages.SyncResponse{Nonce: req.Nonce, CommandsAndProof: *batch})
	s.Require().NoError(err)

	s.Equal(uint64(10), s.executor.CurrentHeader().Height)
	s.Equal(batch.Proof.ID(), s.executor.CurrentProof().ID())
	s.Equal(10, s.metrics.applied)
	s.Empty(s.metrics.rejected)
	s.Equal(stateIdle, s.sync.state)
	s.Len(s.sent, 1)
}

// TestSyncRejectsMinorityProof checks a batch signed by a single validator
// is rejected and the next request goes to another peer.
func (s *LocalSyncSuite) TestSyncRejectsMinorityProof() {
	target := batchFixture(s.participants, s.executor.CurrentHeader(), 5, 10, 3)
	s.startSync(target.Proof, s.participants.NodeID(0), s.participants.NodeID(1))
	req, first := s.syncRequest(0)

	forged := batchFixture(s.participants, s.executor.CurrentHeader(), 5, 10, 1)
	err := s.sync.ProcessSyncResponse(first, &messages.SyncResponse{Nonce: req.Nonce, CommandsAndProof: *forged})
	s.Require().NoError(err)

	s.Equal(uint64(0), s.executor.CurrentHeader().Height)
	s.Equal([]string{ReasonQuorum}, s.metrics.rejected)

	_, second := s.syncRequest(1)
	s.NotEqual(first, second)
	s.Equal(stateSyncing, s.sync.state)
}

func (s *LocalSyncSuite) TestSyncRejectsInvalidSignature() {
	batch := batchFixture(s.participants, s.executor.CurrentHeader(), 5, 4, 3)
	s.startSync(batch.Proof, s.participants.NodeID(0), s.participants.NodeID(1))
	req, peerID := s.syncRequest(0)

	tampered := *batch.Proof
	tampered.Header.View = 6
	err := s.sync.ProcessSyncResponse(peerID, &messages.SyncResponse{
		Nonce:            req.Nonce,
		CommandsAndProof: flow.CommandsAndProof{Commands: batch.Commands, Proof: &tampered},
	})
	s.Require().NoError(err)

	s.Equal([]string{ReasonSignatures}, s.metrics.rejected)
	s.Equal(uint64(0), s.executor.CurrentHeader().Height)
	s.Len(s.sent, 2)
}

func (s *LocalSyncSuite) TestSyncRejectsAccumulatorMismatch() {
	batch := batchFixture(s.participants, s.executor.CurrentHeader(), 5, 4, 3)
	s.startSync(batch.Proof, s.participants.NodeID(0))
	req, peerID := s.syncRequest(0)

	err := s.sync.ProcessSyncResponse(peerID, &messages.SyncResponse{
		Nonce:            req.Nonce,
		CommandsAndProof: flow.CommandsAndProof{Commands: unittest.CommandsFixture(4), Proof: batch.Proof},
	})
	s.Require().NoError(err)

	s.Equal([]string{ReasonAccumulator}, s.metrics.rejected)
	s.Equal(uint64(0), s.executor.CurrentHeader().Height)
	// the only candidate is gone, so peers are asked for their status
	s.Equal(1, s.metrics.failed)
	s.Equal(stateSyncCheck, s.sync.state)
}

// TestTimeoutRotatesPeer checks an unanswered request moves the sync to
// another candidate and late timeouts are ignored.
func (s *LocalSyncSuite) TestTimeoutRotatesPeer() {
	batch := batchFixture(s.participants, s.executor.CurrentHeader(), 5, 4, 3)
	s.startSync(batch.Proof, s.participants.NodeID(0), s.participants.NodeID(1))
	req, first := s.syncRequest(0)

	stale := messages.SyncRequestTimeout{PeerID: first, Nonce: req.Nonce + 1}
	s.Require().NoError(s.sync.ProcessSyncRequestTimeout(stale))
	s.Len(s.sent, 1)

	s.Require().NoError(s.sync.ProcessSyncRequestTimeout(messages.SyncRequestTimeout{PeerID: first, Nonce: req.Nonce}))
	s.Equal(1, s.metrics.timedOut)
	next, second := s.syncRequest(1)
	s.NotEqual(first, second)

	// the answer of the first peer arrives too late
	err := s.sync.ProcessSyncResponse(first, &messages.SyncResponse{Nonce: req.Nonce, CommandsAndProof: *batch})
	s.Require().NoError(err)
	s.Equal(uint64(0), s.executor.CurrentHeader().Height)

	err = s.sync.ProcessSyncResponse(second, &messages.SyncResponse{Nonce: next.Nonce, CommandsAndProof: *batch})
	s.Require().NoError(err)
	s.Equal(uint64(4), s.executor.CurrentHeader().Height)
}

func (s *LocalSyncSuite) TestEmptyResponseRemovesCandidate() {
	batch := batchFixture(s.participants, s.executor.CurrentHeader(), 5, 4, 3)
	s.startSync(batch.Proof, s.participants.NodeID(0))
	req, peerID := s.syncRequest(0)

	err := s.sync.ProcessSyncResponse(peerID, &messages.SyncResponse{Nonce: req.Nonce})
	s.Require().NoError(err)

	s.Equal([]string{ReasonEmpty}, s.metrics.rejected)
	s.Equal(stateSyncCheck, s.sync.state)
	statusRequests := 0
	for _, msg := range s.sent[1:] {
		if _, ok := msg.event.(*messages.StatusRequest); ok {
			statusRequests++
		}
	}
	s.Equal(DefaultConfig().SyncCheckMaxPeers, statusRequests)
}

// TestSyncBatches checks the sync keeps requesting until the target is reached.
func (s *LocalSyncSuite) TestSyncBatches() {
	first := batchFixture(s.participants, s.executor.CurrentHeader(), 3, 4, 3)
	second := batchFixture(s.participants, &first.Proof.Header, 6, 4, 4)
	s.startSync(second.Proof, s.participants.NodeID(2))

	req, peerID := s.syncRequest(0)
	s.Require().NoError(s.sync.ProcessSyncResponse(peerID, &messages.SyncResponse{Nonce: req.Nonce, CommandsAndProof: *first}))
	req, peerID = s.syncRequest(1)
	s.Equal(uint64(4), req.FromHeight)
	s.Equal(uint64(3), req.FromView)
	s.Require().NoError(s.sync.ProcessSyncResponse(peerID, &messages.SyncResponse{Nonce: req.Nonce, CommandsAndProof: *second}))

	s.Equal(uint64(8), s.executor.CurrentHeader().Height)
	s.Equal(8, s.metrics.applied)
	s.Equal(stateIdle, s.sync.state)
}

// TestStopsAtEndOfEpoch checks the sync goes idle once the ledger reaches
// the end of its epoch, even if the target lies in a later epoch.
func (s *LocalSyncSuite) TestStopsAtEndOfEpoch() {
	next := unittest.ParticipantsFixture(5)
	batch := batchFixture(s.participants, s.executor.CurrentHeader(), 9, 4, 3)
	batch.Proof = unittest.LedgerProofFixture(s.participants, flow.LedgerHeader{
		Epoch:          1,
		View:           9,
		Height:         4,
		Accumulator:    batch.Proof.Header.Accumulator,
		NextValidators: next.Set,
	}, 3)
	target := unittest.LedgerProofFixture(next, flow.LedgerHeader{Epoch: 2, View: 4, Height: 10}, 4)
	s.startSync(target, s.participants.NodeID(0))

	req, peerID := s.syncRequest(0)
	s.Require().NoError(s.sync.ProcessSyncResponse(peerID, &messages.SyncResponse{Nonce: req.Nonce, CommandsAndProof: *batch}))

	s.Equal(uint64(4), s.executor.CurrentHeader().Height)
	s.Equal(stateIdle, s.sync.state)
	s.Len(s.sent, 1)

	dispatched := s.recorder.Dispatched()
	s.Require().Len(dispatched, 1)
	update, ok := dispatched[0].(*flow.LedgerUpdate)
	s.Require().True(ok)
	s.Require().NotNil(update.EpochChange)
	s.Equal(uint64(2), update.EpochChange.Epoch)
}

// TestSyncCheck checks the highest verified status becomes the sync target
// with every peer reporting it as a candidate.
func (s *LocalSyncSuite) TestSyncCheck() {
	s.Require().NoError(s.sync.ProcessSyncCheckTrigger())
	s.Require().Len(s.sent, 3)
	s.Require().Len(s.recorder.Delayed(), 1)
	s.IsType(messages.SyncCheckReceiveStatusTimeout{}, s.recorder.Delayed()[0].Event)

	// a second trigger while checking is ignored
	s.Require().NoError(s.sync.ProcessSyncCheckTrigger())
	s.Len(s.sent, 3)

	genesis := s.executor.CurrentHeader()
	best := batchFixture(s.participants, genesis, 7, 6, 3).Proof
	lower := batchFixture(s.participants, genesis, 4, 2, 4).Proof
	forged := batchFixture(s.participants, genesis, 8, 9, 2).Proof

	statuses := []*flow.LedgerProof{best, lower, forged}
	for i, msg := range s.sent {
		req := msg.event.(*messages.StatusRequest)
		err := s.sync.ProcessStatusResponse(msg.peerID, &messages.StatusResponse{Nonce: req.Nonce, Proof: statuses[i]})
		s.Require().NoError(err)
	}

	s.Equal([]string{ReasonQuorum}, s.metrics.rejected)
	s.Equal(stateIdle, s.sync.state)
	dispatched := s.recorder.Dispatched()
	s.Require().Len(dispatched, 1)
	s.Equal(messages.LocalSyncRequest{
		Target:      best,
		TargetNodes: flow.IdentifierList{s.sent[0].peerID},
	}, dispatched[0])
}

func (s *LocalSyncSuite) TestSyncCheckTimeout() {
	s.Run("no status received", func() {
		s.SetupTest()
		s.Require().NoError(s.sync.ProcessSyncCheckTrigger())
		timeout := s.recorder.Delayed()[0].Event.(messages.SyncCheckReceiveStatusTimeout)

		s.Require().NoError(s.sync.ProcessSyncCheckReceiveStatusTimeout(timeout))
		s.Equal(stateIdle, s.sync.state)
		s.Empty(s.recorder.Dispatched())
	})

	s.Run("partial statuses", func() {
		s.SetupTest()
		s.Require().NoError(s.sync.ProcessSyncCheckTrigger())
		timeout := s.recorder.Delayed()[0].Event.(messages.SyncCheckReceiveStatusTimeout)

		proof := batchFixture(s.participants, s.executor.CurrentHeader(), 3, 3, 3).Proof
		req := s.sent[0].event.(*messages.StatusRequest)
		s.Require().NoError(s.sync.ProcessStatusResponse(s.sent[0].peerID, &messages.StatusResponse{Nonce: req.Nonce, Proof: proof}))
		s.Equal(stateSyncCheck, s.sync.state)

		// a timeout of an earlier round is ignored
		s.Require().NoError(s.sync.ProcessSyncCheckReceiveStatusTimeout(messages.SyncCheckReceiveStatusTimeout{Round: timeout.Round + 1}))
		s.Equal(stateSyncCheck, s.sync.state)

		s.Require().NoError(s.sync.ProcessSyncCheckReceiveStatusTimeout(timeout))
		s.Require().Len(s.recorder.Dispatched(), 1)
		s.Equal(proof, s.recorder.Dispatched()[0].(messages.LocalSyncRequest).Target)
	})

	s.Run("unsolicited status", func() {
		s.SetupTest()
		s.Require().NoError(s.sync.ProcessSyncCheckTrigger())
		proof := batchFixture(s.participants, s.executor.CurrentHeader(), 3, 3, 3).Proof

		err := s.sync.ProcessStatusResponse(unittest.IdentifierFixture(), &messages.StatusResponse{Proof: proof})
		s.Require().NoError(err)
		s.Len(s.sync.asked, 3)
	})
}

// TestLaterEpochStatusIsHint checks statuses of a later epoch are used as a
// target without verification.
func (s *LocalSyncSuite) TestLaterEpochStatusIsHint() {
	s.Require().NoError(s.sync.ProcessSyncCheckTrigger())
	next := unittest.ParticipantsFixture(5)
	hint := unittest.LedgerProofFixture(next, flow.LedgerHeader{Epoch: 2, View: 1, Height: 20}, 4)

	for _, msg := range s.sent {
		req := msg.event.(*messages.StatusRequest)
		s.Require().NoError(s.sync.ProcessStatusResponse(msg.peerID, &messages.StatusResponse{Nonce: req.Nonce, Proof: hint}))
	}
	s.Empty(s.metrics.rejected)
	s.Require().Len(s.recorder.Dispatched(), 1)
	req := s.recorder.Dispatched()[0].(messages.LocalSyncRequest)
	s.Equal(hint, req.Target)
	s.Len(req.TargetNodes, 3)
}

// TestLedgerUpdateEndsSync checks the sync ends once consensus commits past
// the target.
func (s *LocalSyncSuite) TestLedgerUpdateEndsSync() {
	batch := batchFixture(s.participants, s.executor.CurrentHeader(), 5, 4, 3)
	s.startSync(batch.Proof, s.participants.NodeID(0))

	require.NoError(s.T(), s.executor.ApplySynced(batch))
	s.Require().NoError(s.sync.ProcessLedgerUpdate(&flow.LedgerUpdate{Commands: batch.Commands, Proof: batch.Proof}))
	s.Equal(stateIdle, s.sync.state)
}
