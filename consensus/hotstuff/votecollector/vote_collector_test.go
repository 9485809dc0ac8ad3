package votecollector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbft/node/consensus/hotstuff/committees"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/consensus/hotstuff/verification"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module/signature"
	"github.com/ledgerbft/node/utils/unittest"
)

func setup(t *testing.T) (*unittest.Participants, *flow.QuorumCertificate, *VoteCollectors, *verification.Verifier) {
	participants := unittest.ParticipantsFixture(4)
	_, genesisQC := unittest.GenesisFixture(unittest.GenesisHeaderFixture())
	committee, err := committees.NewStaticCommittee(1, participants.Set, participants.NodeID(0))
	require.NoError(t, err)
	return participants, genesisQC, NewVoteCollectors(committee), verification.NewVerifier(committee, genesisQC, signature.NewECDSAVerifier())
}

// TestBuildQC checks a QC is built once the third of four votes arrives and
// that it verifies.
func TestBuildQC(t *testing.T) {
	participants, genesisQC, collectors, verifier := setup(t)
	vertex := unittest.VertexFixture(genesisQC, 1, participants.NodeID(1))
	data := unittest.VoteDataFixture(vertex, nil)

	for i := 0; i < 2; i++ {
		qc, err := collectors.AddVote(unittest.VoteFixture(participants.Key(i), data, uint64(100+i)))
		require.NoError(t, err)
		require.Nil(t, qc)
	}
	// repeated vote adds no weight
	qc, err := collectors.AddVote(unittest.VoteFixture(participants.Key(1), data, 101))
	require.NoError(t, err)
	require.Nil(t, qc)

	qc, err = collectors.AddVote(unittest.VoteFixture(participants.Key(2), data, 102))
	require.NoError(t, err)
	require.NotNil(t, qc)
	assert.Equal(t, data, qc.VoteData)
	assert.Len(t, qc.Signatures, 3)
	assert.NoError(t, verifier.VerifyQC(qc))

	qc, err = collectors.AddVote(unittest.VoteFixture(participants.Key(3), data, 103))
	require.NoError(t, err)
	assert.Nil(t, qc, "the QC of a view is built once")
}

func TestDoubleVote(t *testing.T) {
	participants, genesisQC, collectors, _ := setup(t)
	first := unittest.VoteDataFixture(unittest.VertexFixture(genesisQC, 1, participants.NodeID(1)), nil)
	second := unittest.VoteDataFixture(unittest.VertexFixture(genesisQC, 1, participants.NodeID(1), unittest.CommandsFixture(1)...), nil)

	_, err := collectors.AddVote(unittest.VoteFixture(participants.Key(2), first, 1))
	require.NoError(t, err)
	_, err = collectors.AddVote(unittest.VoteFixture(participants.Key(2), second, 1))
	require.True(t, model.IsDoubleVoteError(err))

	var doubleVote model.DoubleVoteError
	require.True(t, errors.As(err, &doubleVote))
	assert.Equal(t, participants.NodeID(2), doubleVote.SignerID)
	assert.Equal(t, first.ID(), doubleVote.FirstVoteData)
	assert.Equal(t, second.ID(), doubleVote.ConflictingVoteData)
}

func TestPrunedViewsIgnored(t *testing.T) {
	participants, genesisQC, collectors, _ := setup(t)
	data := unittest.VoteDataFixture(unittest.VertexFixture(genesisQC, 1, participants.NodeID(1)), nil)
	collectors.PruneUpToView(2)
	for i := 0; i < 4; i++ {
		qc, err := collectors.AddVote(unittest.VoteFixture(participants.Key(i), data, 1))
		require.NoError(t, err)
		require.Nil(t, qc)
	}
	assert.Empty(t, collectors.views)
}
