package message_hub

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ledgerbft/node/model/flow"
	netmock "github.com/ledgerbft/node/network/mock"
	"github.com/ledgerbft/node/utils/unittest"
)

func TestMessageHub(t *testing.T) {
	suite.Run(t, new(MessageHubSuite))
}

type MessageHubSuite struct {
	suite.Suite

	participants *unittest.Participants
	conduit      *netmock.Conduit
	hub          *MessageHub
}

func (s *MessageHubSuite) SetupTest() {
	s.participants = unittest.ParticipantsFixture(4)
	s.conduit = netmock.NewConduit(s.T())
	s.hub = NewMessageHub(unittest.Logger(), s.participants.NodeID(0), s.conduit, func() *flow.ValidatorSet {
		return s.participants.Set
	})
}

func (s *MessageHubSuite) others() []interface{} {
	var ids []interface{}
	for i := 1; i < 4; i++ {
		ids = append(ids, s.participants.NodeID(i))
	}
	return ids
}

func (s *MessageHubSuite) TestSendVote() {
	_, qc := unittest.GenesisFixture(unittest.GenesisHeaderFixture())
	vertex := unittest.VertexFixture(qc, 1, s.participants.NodeID(1))
	vote := unittest.VoteFixture(s.participants.Key(0), unittest.VoteDataFixture(vertex, nil), 1)
	leader := s.participants.NodeID(2)

	s.conduit.On("Unicast", vote, leader).Return(nil).Once()
	require.NoError(s.T(), s.hub.SendVote(vote, leader))
}

func (s *MessageHubSuite) TestBroadcastProposalSkipsSelf() {
	_, qc := unittest.GenesisFixture(unittest.GenesisHeaderFixture())
	vertex := unittest.VertexFixture(qc, 1, s.participants.NodeID(0), unittest.CommandsFixture(2)...)
	proposal := unittest.ProposalFixture(s.participants, vertex)

	args := append([]interface{}{proposal}, s.others()...)
	s.conduit.On("Publish", args...).Return(nil).Once()
	require.NoError(s.T(), s.hub.BroadcastProposal(proposal))
}

func (s *MessageHubSuite) TestBroadcastTimeout() {
	_, qc := unittest.GenesisFixture(unittest.GenesisHeaderFixture())
	timeout := unittest.TimeoutVoteFixture(s.participants.Key(0), 1, 3, qc, 7)

	args := append([]interface{}{timeout}, s.others()...)
	s.conduit.On("Publish", args...).Return(nil).Once()
	require.NoError(s.T(), s.hub.BroadcastTimeout(timeout))
}

func (s *MessageHubSuite) TestSendErrorsAreWrapped() {
	sendErr := errors.New("unreachable")
	s.conduit.On("Unicast", mock.Anything, mock.Anything).Return(sendErr).Once()
	_, qc := unittest.GenesisFixture(unittest.GenesisHeaderFixture())
	vertex := unittest.VertexFixture(qc, 1, s.participants.NodeID(1))
	vote := unittest.VoteFixture(s.participants.Key(0), unittest.VoteDataFixture(vertex, unittest.GenesisHeaderFixture()), 1)

	err := s.hub.SendVote(vote, s.participants.NodeID(1))
	require.ErrorIs(s.T(), err, sendErr)
}
