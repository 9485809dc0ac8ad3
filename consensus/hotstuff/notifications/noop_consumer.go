package notifications

import (
	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
)

// NoopConsumer is an implementation of the notifications consumer that
// doesn't do anything.
type NoopConsumer struct {
	NoopVertexStoreConsumer
	NoopPacemakerConsumer
	NoopParticipantConsumer
}

var _ hotstuff.Consumer = (*NoopConsumer)(nil)

func NewNoopConsumer() *NoopConsumer {
	nc := &NoopConsumer{}
	return nc
}

// no-op implementation of hotstuff.VertexStoreConsumer

type NoopVertexStoreConsumer struct{}

var _ hotstuff.VertexStoreConsumer = (*NoopVertexStoreConsumer)(nil)

func (*NoopVertexStoreConsumer) OnVertexInserted(*flow.Vertex) {}

func (*NoopVertexStoreConsumer) OnHighQCUpdated(*flow.QuorumCertificate) {}

func (*NoopVertexStoreConsumer) OnVerticesCommitted([]*flow.Vertex, *flow.LedgerProof) {}

func (*NoopVertexStoreConsumer) OnDoubleCertification(*flow.QuorumCertificate, *flow.QuorumCertificate) {
}

// no-op implementation of hotstuff.PacemakerConsumer

type NoopPacemakerConsumer struct{}

var _ hotstuff.PacemakerConsumer = (*NoopPacemakerConsumer)(nil)

func (*NoopPacemakerConsumer) OnViewChange(uint64, uint64) {}

func (*NoopPacemakerConsumer) OnQCTriggeredViewChange(uint64, uint64, *flow.QuorumCertificate) {}

func (*NoopPacemakerConsumer) OnTCTriggeredViewChange(uint64, uint64, *flow.TimeoutCertificate) {}

func (*NoopPacemakerConsumer) OnStartingTimeout(model.TimerInfo) {}

func (*NoopPacemakerConsumer) OnLocalTimeout(uint64) {}

// no-op implementation of hotstuff.ParticipantConsumer

type NoopParticipantConsumer struct{}

var _ hotstuff.ParticipantConsumer = (*NoopParticipantConsumer)(nil)

func (*NoopParticipantConsumer) OnReceiveProposal(uint64, *messages.Proposal) {}

func (*NoopParticipantConsumer) OnOwnProposal(*messages.Proposal) {}

func (*NoopParticipantConsumer) OnOwnVote(*messages.Vote, flow.Identifier) {}

func (*NoopParticipantConsumer) OnOwnTimeout(*messages.TimeoutVote) {}

func (*NoopParticipantConsumer) OnQCConstructedFromVotes(*flow.QuorumCertificate) {}

func (*NoopParticipantConsumer) OnTCConstructedFromTimeouts(*flow.TimeoutCertificate) {}

func (*NoopParticipantConsumer) OnInvalidMessage(flow.Identifier, error) {}
