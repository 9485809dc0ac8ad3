package eventhandler

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/committees"
	"github.com/ledgerbft/node/consensus/hotstuff/mocks"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/consensus/hotstuff/notifications"
	"github.com/ledgerbft/node/consensus/hotstuff/pacemaker"
	"github.com/ledgerbft/node/consensus/hotstuff/pacemaker/timeout"
	"github.com/ledgerbft/node/consensus/hotstuff/persister"
	"github.com/ledgerbft/node/consensus/hotstuff/safetyrules"
	"github.com/ledgerbft/node/consensus/hotstuff/verification"
	"github.com/ledgerbft/node/consensus/hotstuff/vertexstore"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/ledger"
	"github.com/ledgerbft/node/module/metrics"
	"github.com/ledgerbft/node/module/signature"
	bstorage "github.com/ledgerbft/node/storage/badger"
	"github.com/ledgerbft/node/utils/unittest"
)

// invalidRecorder counts the invalid messages reported by the event handler.
type invalidRecorder struct {
	notifications.NoopConsumer
	invalid []error
}

func (r *invalidRecorder) OnInvalidMessage(_ flow.Identifier, err error) {
	r.invalid = append(r.invalid, err)
}

type harness struct {
	participants *unittest.Participants
	genesisQC    *flow.QuorumCertificate
	committee    *committees.Static
	recorder     *events.Recorder
	store        *vertexstore.VertexStore
	paceMaker    *pacemaker.ActivePaceMaker
	sync         *mocks.VertexSync
	communicator *mocks.Communicator
	notifier     *invalidRecorder
	handler      *EventHandler
}

// newHarness wires an event handler of the participant with the given index
// to real consensus components on an in-memory database. Vertex sync and the
// network are mocked.
func newHarness(t *testing.T, self int) *harness {
	h := &harness{
		participants: unittest.ParticipantsFixture(4),
		recorder:     events.NewRecorder(time.Unix(0, 0)),
		sync:         mocks.NewVertexSync(t),
		communicator: mocks.NewCommunicator(t),
		notifier:     &invalidRecorder{},
	}
	db := unittest.InMemoryBadgerDB(t)
	t.Cleanup(func() { _ = db.Close() })

	header := unittest.GenesisHeaderFixture()
	var genesis *flow.Vertex
	genesis, h.genesisQC = unittest.GenesisFixture(header)

	var err error
	h.committee, err = committees.NewStaticCommittee(1, h.participants.Set, h.participants.NodeID(self))
	require.NoError(t, err)

	h.handler = h.build(t, db, genesis, self)
	return h
}

func (h *harness) build(t *testing.T, db *badger.DB, genesis *flow.Vertex, self int) *EventHandler {
	noop := metrics.NewNoopCollector()
	executor, err := ledger.New(unittest.Logger(), ledger.Config{}, bstorage.NewLedger(db), genesis.Genesis, h.recorder, noop)
	require.NoError(t, err)
	persist := persister.New(db)

	h.store, err = vertexstore.New(unittest.Logger(), vertexstore.GenesisState(genesis), executor, persist, h.notifier, noop)
	require.NoError(t, err)

	controller := timeout.NewController(timeout.DefaultConfig(), 1, h.recorder)
	h.paceMaker, err = pacemaker.New(unittest.Logger(), pacemaker.GenesisLivenessData(h.genesisQC), controller, h.notifier, persist, noop)
	require.NoError(t, err)

	key := h.participants.Key(self)
	safety, err := safetyrules.New(key, h.committee, persist, h.recorder.Now)
	require.NoError(t, err)

	handler, err := NewEventHandler(
		unittest.Logger(),
		h.committee,
		h.paceMaker,
		h.store,
		h.sync,
		verification.NewVerifier(h.committee, h.genesisQC, signature.NewECDSAVerifier()),
		safety,
		ledger.NewSyntheticPayload(key.NodeID(), 1),
		key,
		h.communicator,
		h.recorder,
		h.notifier,
		noop,
	)
	require.NoError(t, err)
	return handler
}

func (h *harness) proposal(parentQC *flow.QuorumCertificate, view uint64) *messages.Proposal {
	vertex := unittest.VertexFixture(parentQC, view, h.committee.LeaderForView(view))
	return unittest.ProposalFixture(h.participants, vertex)
}

func indexOf(participants *unittest.Participants, nodeID flow.Identifier) int {
	for i := range participants.Set.Validators {
		if participants.NodeID(i) == nodeID {
			return i
		}
	}
	panic("unknown node")
}

// TestStartAsLeader checks the leader of the first view proposes on top of
// the genesis QC and loops its proposal back through the dispatcher.
func TestStartAsLeader(t *testing.T) {
	participants := unittest.ParticipantsFixture(4)
	committee, err := committees.NewStaticCommittee(1, participants.Set, participants.NodeID(0))
	require.NoError(t, err)
	h := newHarness(t, indexOf(participants, committee.LeaderForView(1)))

	h.communicator.On("BroadcastProposal", mock.Anything).Return(nil).Once()
	require.NoError(t, h.handler.Start())

	dispatched := h.recorder.Dispatched()
	require.Len(t, dispatched, 1)
	proposal, ok := dispatched[0].(*messages.Proposal)
	require.True(t, ok)
	assert.Equal(t, uint64(1), proposal.View())
	assert.Equal(t, h.genesisQC, proposal.Vertex.QC)
	assert.Nil(t, proposal.LastViewTC)
	assert.Len(t, proposal.Vertex.Commands, 1)

	// processing the own proposal inserts it and votes for it
	h.sync.On("SyncToQC", mock.Anything, mock.Anything).Return(hotstuff.SyncResultSynced, nil)
	h.communicator.On("SendVote", mock.Anything, committee.LeaderForView(2)).Return(nil).Once()
	require.NoError(t, h.handler.OnReceiveProposal(h.committee.Self(), proposal))
	assert.True(t, h.store.ContainsVertex(proposal.Vertex.ID()))
}

// TestVoteForProposal checks a replica votes for the proposal of the current
// view and sends the vote to the next leader.
func TestVoteForProposal(t *testing.T) {
	h := newHarness(t, 0)
	h.sync.On("SyncToQC", mock.Anything, mock.Anything).Return(hotstuff.SyncResultSynced, nil)

	proposal := h.proposal(h.genesisQC, 1)
	nextLeader := h.committee.LeaderForView(2)
	h.communicator.On("SendVote", mock.MatchedBy(func(vote *messages.Vote) bool {
		return vote.View() == 1 && vote.VoteData.VertexID == proposal.Vertex.ID() && vote.VoteData.Committed == nil
	}), nextLeader).Return(nil).Once()

	require.NoError(t, h.handler.OnReceiveProposal(proposal.Vertex.ProposerID, proposal))
	assert.True(t, h.store.ContainsVertex(proposal.Vertex.ID()))

	// a repeated proposal neither inserts twice nor votes again
	require.NoError(t, h.handler.OnReceiveProposal(proposal.Vertex.ProposerID, proposal))
}

// TestMissingParentWaitsForSync checks a proposal whose parent is missing is
// processed once vertex sync fetched the parent, and the vote then signs the
// ledger state the 2-chain commits.
func TestMissingParentWaitsForSync(t *testing.T) {
	h := newHarness(t, 0)

	vertex1 := unittest.VertexFixture(h.genesisQC, 1, h.committee.LeaderForView(1))
	qc1 := unittest.QCFixture(h.participants, unittest.VoteDataFixture(vertex1, nil), 3)
	proposal := h.proposal(qc1, 2)

	h.sync.On("SyncToQC", proposal.HighQC(), proposal.Vertex.ProposerID).Return(hotstuff.SyncResultInProgress, nil).Once()
	require.NoError(t, h.handler.OnReceiveProposal(proposal.Vertex.ProposerID, proposal))
	assert.False(t, h.store.ContainsVertex(proposal.Vertex.ID()))
	assert.Equal(t, uint64(1), h.paceMaker.CurView())

	// vertex sync fetched the parent
	_, err := h.store.InsertVertex(vertex1, nil)
	require.NoError(t, err)
	prepared, ok := h.store.PreparedHeader(vertex1.ID())
	require.True(t, ok)

	h.sync.On("SyncToQC", proposal.HighQC(), proposal.Vertex.ProposerID).Return(hotstuff.SyncResultSynced, nil).Once()
	h.communicator.On("SendVote", mock.MatchedBy(func(vote *messages.Vote) bool {
		return vote.View() == 2 && vote.VoteData.Committed != nil && vote.VoteData.Committed.ID() == prepared.ID()
	}), h.committee.LeaderForView(3)).Return(nil).Once()

	require.NoError(t, h.handler.OnVertexSynced(model.VertexSyncedEvent{Epoch: 1, VertexID: vertex1.ID()}))
	assert.True(t, h.store.ContainsVertex(proposal.Vertex.ID()))
	assert.Equal(t, uint64(2), h.paceMaker.CurView())
	assert.Empty(t, h.handler.pending)
}

// TestInvalidProposal checks a proposal with a bad signature is reported and dropped.
func TestInvalidProposal(t *testing.T) {
	h := newHarness(t, 0)
	proposal := h.proposal(h.genesisQC, 1)
	proposal.Signature = h.participants.Key(3).Sign(proposal.Vertex.ID())

	require.NoError(t, h.handler.OnReceiveProposal(proposal.Vertex.ProposerID, proposal))
	assert.Len(t, h.notifier.invalid, 1)
	assert.True(t, model.IsInvalidVertexError(h.notifier.invalid[0]))
	assert.False(t, h.store.ContainsVertex(proposal.Vertex.ID()))
}

// TestVotesBuildQC checks the next leader builds a QC from its own and two
// received votes, enters the next view and proposes on top of the QC.
func TestVotesBuildQC(t *testing.T) {
	participants := unittest.ParticipantsFixture(4)
	committee, err := committees.NewStaticCommittee(1, participants.Set, participants.NodeID(0))
	require.NoError(t, err)
	self := indexOf(participants, committee.LeaderForView(2))
	h := newHarness(t, self)
	h.sync.On("SyncToQC", mock.Anything, mock.Anything).Return(hotstuff.SyncResultSynced, nil)

	proposal := h.proposal(h.genesisQC, 1)
	require.NoError(t, h.handler.OnReceiveProposal(proposal.Vertex.ProposerID, proposal))
	require.True(t, h.store.ContainsVertex(proposal.Vertex.ID()))

	data := unittest.VoteDataFixture(proposal.Vertex, nil)
	voters := make([]int, 0, 2)
	for i := 0; i < 4 && len(voters) < 2; i++ {
		if i != self {
			voters = append(voters, i)
		}
	}

	require.NoError(t, h.handler.OnReceiveVote(h.participants.NodeID(voters[0]), unittest.VoteFixture(h.participants.Key(voters[0]), data, 5)))
	assert.Equal(t, uint64(1), h.paceMaker.CurView())

	h.communicator.On("BroadcastProposal", mock.MatchedBy(func(p *messages.Proposal) bool {
		return p.View() == 2 && p.Vertex.QC.VertexID() == proposal.Vertex.ID()
	})).Return(nil).Once()
	require.NoError(t, h.handler.OnReceiveVote(h.participants.NodeID(voters[1]), unittest.VoteFixture(h.participants.Key(voters[1]), data, 6)))
	assert.Equal(t, uint64(2), h.paceMaker.CurView())
	assert.Equal(t, uint64(1), h.store.HighQC().HighestQC.View())
}

// TestVoteNotForUs checks votes are only collected by the next leader.
func TestVoteNotForUs(t *testing.T) {
	h := newHarness(t, 0)
	proposal := h.proposal(h.genesisQC, 1)
	collector := indexOf(h.participants, h.committee.LeaderForView(2))
	require.NotEqual(t, 0, collector)

	vote := unittest.VoteFixture(h.participants.Key(1), unittest.VoteDataFixture(proposal.Vertex, nil), 1)
	require.NoError(t, h.handler.OnReceiveVote(h.participants.NodeID(1), vote))
	assert.Zero(t, h.handler.votes.Size())
}

// TestLocalTimeout checks the timer of the current view produces a timeout
// vote carrying the committed QC, and stale timers are ignored.
func TestLocalTimeout(t *testing.T) {
	h := newHarness(t, 0)
	require.NoError(t, h.handler.Start())

	delayed := h.recorder.Delayed()
	require.Len(t, delayed, 1)
	lt, ok := delayed[0].Event.(model.LocalTimeout)
	require.True(t, ok)
	assert.Equal(t, model.LocalTimeout{Epoch: 1, View: 1}, lt)

	h.communicator.On("BroadcastTimeout", mock.MatchedBy(func(vote *messages.TimeoutVote) bool {
		return vote.View == 1 && vote.HighQC.ID() == h.genesisQC.ID() && vote.CommittedQC.ID() == h.genesisQC.ID()
	})).Return(nil).Once()
	require.NoError(t, h.handler.OnLocalTimeout(lt))

	// stale timer of another view
	require.NoError(t, h.handler.OnLocalTimeout(model.LocalTimeout{Epoch: 1, View: 7}))
}

// TestTimeoutsBuildTC checks a partial TC triggers the own timeout and a full
// TC moves the replica into the next view.
func TestTimeoutsBuildTC(t *testing.T) {
	h := newHarness(t, 0)
	h.sync.On("SyncToQC", mock.Anything, mock.Anything).Return(hotstuff.SyncResultSynced, nil)
	require.NoError(t, h.handler.Start())

	for i := 1; i <= 2; i++ {
		vote := unittest.TimeoutVoteFixture(h.participants.Key(i), 1, 1, h.genesisQC, uint64(i))
		require.NoError(t, h.handler.OnReceiveTimeout(h.participants.NodeID(i), vote))
	}
	// two of four validators timed out: the replica times out early
	dispatched := h.recorder.Dispatched()
	require.NotEmpty(t, dispatched)
	assert.Equal(t, model.LocalTimeout{Epoch: 1, View: 1, Tick: 0}, dispatched[len(dispatched)-1])
	assert.Equal(t, uint64(1), h.paceMaker.CurView())

	vote := unittest.TimeoutVoteFixture(h.participants.Key(3), 1, 1, h.genesisQC, 3)
	require.NoError(t, h.handler.OnReceiveTimeout(h.participants.NodeID(3), vote))
	assert.Equal(t, uint64(2), h.paceMaker.CurView())
	require.NotNil(t, h.store.HighQC().HighestTC)
	assert.Equal(t, uint64(1), h.store.HighQC().HighestTC.View)
	assert.Equal(t, uint64(1), h.paceMaker.LastViewTC().View)
}

// TestInvalidTimeout checks a timeout with a forged signature is reported.
func TestInvalidTimeout(t *testing.T) {
	h := newHarness(t, 0)
	vote := unittest.TimeoutVoteFixture(h.participants.Key(1), 1, 1, h.genesisQC, 1)
	vote.SignerID = h.participants.NodeID(2)

	require.NoError(t, h.handler.OnReceiveTimeout(h.participants.NodeID(1), vote))
	require.Len(t, h.notifier.invalid, 1)
	assert.True(t, model.IsInvalidVoteError(h.notifier.invalid[0]))
}
