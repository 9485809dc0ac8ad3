package timeoutcollector

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ledgerbft/node/consensus/hotstuff/committees"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module/signature"
	"github.com/ledgerbft/node/utils/unittest"
)

func TestTimeoutCollectors(t *testing.T) {
	suite.Run(t, new(TimeoutCollectorsTestSuite))
}

type TimeoutCollectorsTestSuite struct {
	suite.Suite

	view         uint64
	participants *unittest.Participants
	genesisQC    *flow.QuorumCertificate
	collectors   *TimeoutCollectors
}

func (s *TimeoutCollectorsTestSuite) SetupTest() {
	s.view = 1000
	s.participants = unittest.ParticipantsFixture(4)
	_, s.genesisQC = unittest.GenesisFixture(unittest.GenesisHeaderFixture())
	committee, err := committees.NewStaticCommittee(1, s.participants.Set, s.participants.NodeID(0))
	require.NoError(s.T(), err)
	s.collectors = NewTimeoutCollectors(committee)
}

func (s *TimeoutCollectorsTestSuite) qc(view uint64) *flow.QuorumCertificate {
	vertex := unittest.VertexFixture(s.genesisQC, view, s.participants.NodeID(int(view)%4))
	return unittest.QCFixture(s.participants, unittest.VoteDataFixture(vertex, nil), 3)
}

// TestBuildTC checks the partial TC is reported at more than a third of the
// weight and the TC is built once at a quorum, carrying the highest QC.
func (s *TimeoutCollectorsTestSuite) TestBuildTC() {
	highQCs := []*flow.QuorumCertificate{s.qc(10), s.qc(998), s.qc(500), s.qc(999)}

	result, err := s.collectors.AddTimeout(unittest.TimeoutVoteFixture(s.participants.Key(0), 1, s.view, highQCs[0], 1))
	s.Require().NoError(err)
	s.Require().False(result.PartialTC)
	s.Require().Nil(result.TC)

	result, err = s.collectors.AddTimeout(unittest.TimeoutVoteFixture(s.participants.Key(1), 1, s.view, highQCs[1], 1))
	s.Require().NoError(err)
	s.Require().True(result.PartialTC)
	s.Require().Nil(result.TC)

	result, err = s.collectors.AddTimeout(unittest.TimeoutVoteFixture(s.participants.Key(2), 1, s.view, highQCs[2], 1))
	s.Require().NoError(err)
	s.Require().False(result.PartialTC, "partial TC is reported once")
	s.Require().NotNil(result.TC)

	tc := result.TC
	s.Equal(s.view, tc.View)
	s.Equal(highQCs[1], tc.HighQC)
	s.Len(tc.Signatures, 3)
	s.Require().Len(tc.HighQCViews, 3)
	for i, sig := range tc.Signatures {
		for j := 0; j < 3; j++ {
			if s.participants.NodeID(j) == sig.SignerID {
				s.Equal(highQCs[j].View(), tc.HighQCViews[i])
			}
		}
	}

	// the TC built from verified timeouts verifies
	committee, err := committees.NewStaticCommittee(1, s.participants.Set, s.participants.NodeID(0))
	s.Require().NoError(err)
	state := committees.NewValidationState(committee.Validators())
	verifier := signature.NewECDSAVerifier()
	for i, sig := range tc.Signatures {
		validator, ok := s.participants.Set.ByNodeID(sig.SignerID)
		s.Require().True(ok)
		digest := flow.TimeoutDigest(tc.Epoch, tc.View, tc.HighQCViews[i], sig.Timestamp)
		s.Require().NoError(verifier.Verify(digest, sig.Signature, validator.PublicKey))
		_, err := state.AddSignature(sig.SignerID, sig.Timestamp, sig.Signature)
		s.Require().NoError(err)
	}
	s.True(state.Complete())

	// a fourth timeout does not build a second TC
	result, err = s.collectors.AddTimeout(unittest.TimeoutVoteFixture(s.participants.Key(3), 1, s.view, highQCs[3], 1))
	s.Require().NoError(err)
	s.Nil(result.TC)
}

// TestRebroadcastIgnored checks repeated timeouts of a signer do not add weight.
func (s *TimeoutCollectorsTestSuite) TestRebroadcastIgnored() {
	for i := 0; i < 5; i++ {
		result, err := s.collectors.AddTimeout(unittest.TimeoutVoteFixture(s.participants.Key(0), 1, s.view, s.genesisQC, uint64(i)))
		s.Require().NoError(err)
		s.False(result.PartialTC)
		s.Nil(result.TC)
	}
}

func (s *TimeoutCollectorsTestSuite) TestUnknownSigner() {
	stranger, err := signature.GeneratePrivateKey()
	s.Require().NoError(err)
	_, err = s.collectors.AddTimeout(unittest.TimeoutVoteFixture(stranger, 1, s.view, s.genesisQC, 1))
	s.True(model.IsInvalidSignerError(err))
}

// TestPrune checks timeouts of pruned views are dropped.
func (s *TimeoutCollectorsTestSuite) TestPrune() {
	for i := 0; i < 2; i++ {
		_, err := s.collectors.AddTimeout(unittest.TimeoutVoteFixture(s.participants.Key(i), 1, s.view, s.genesisQC, 1))
		s.Require().NoError(err)
	}
	s.collectors.PruneUpToView(s.view + 1)
	s.Empty(s.collectors.collectors)

	result, err := s.collectors.AddTimeout(unittest.TimeoutVoteFixture(s.participants.Key(2), 1, s.view, s.genesisQC, 1))
	s.Require().NoError(err)
	s.Nil(result.TC)
	s.Empty(s.collectors.collectors)
}
