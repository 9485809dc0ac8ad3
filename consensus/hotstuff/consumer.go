package hotstuff

import (
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
)

// VertexStoreConsumer consumes notifications about the vertex tree.
// Implementations must be non-blocking and must not call back into the
// vertex store.
type VertexStoreConsumer interface {
	// OnVertexInserted notifications are produced when a vertex joined the tree.
	OnVertexInserted(vertex *flow.Vertex)

	// OnHighQCUpdated notifications are produced when a QC of a higher view was added.
	OnHighQCUpdated(qc *flow.QuorumCertificate)

	// OnVerticesCommitted notifications are produced when the commit rule fired.
	// Vertices are ordered oldest first.
	OnVerticesCommitted(vertices []*flow.Vertex, proof *flow.LedgerProof)

	// OnDoubleCertification notifications are produced when two valid QCs
	// certify different vertices in the same view. This can only happen if
	// the byzantine threshold was exceeded.
	OnDoubleCertification(first *flow.QuorumCertificate, second *flow.QuorumCertificate)
}

// PacemakerConsumer consumes notifications about view progression.
type PacemakerConsumer interface {
	// OnViewChange notifications are produced when the current view advanced.
	OnViewChange(oldView, newView uint64)

	// OnQCTriggeredViewChange notifications are produced when a QC moved the view forward.
	OnQCTriggeredViewChange(oldView uint64, newView uint64, qc *flow.QuorumCertificate)

	// OnTCTriggeredViewChange notifications are produced when a TC moved the view forward.
	OnTCTriggeredViewChange(oldView uint64, newView uint64, tc *flow.TimeoutCertificate)

	// OnStartingTimeout notifications are produced when the timer of a view is armed.
	OnStartingTimeout(info model.TimerInfo)

	// OnLocalTimeout notifications are produced when the timer of the current view fired.
	OnLocalTimeout(view uint64)
}

// ParticipantConsumer consumes notifications about the replica's own
// participation and about faulty inputs from other replicas.
type ParticipantConsumer interface {
	// OnReceiveProposal notifications are produced for every processed proposal.
	OnReceiveProposal(currentView uint64, proposal *messages.Proposal)

	// OnOwnProposal notifications are produced when this replica proposed.
	OnOwnProposal(proposal *messages.Proposal)

	// OnOwnVote notifications are produced when this replica voted.
	OnOwnVote(vote *messages.Vote, recipientID flow.Identifier)

	// OnOwnTimeout notifications are produced when this replica timed out.
	OnOwnTimeout(timeout *messages.TimeoutVote)

	// OnQCConstructedFromVotes notifications are produced when collected votes formed a QC.
	OnQCConstructedFromVotes(qc *flow.QuorumCertificate)

	// OnTCConstructedFromTimeouts notifications are produced when collected timeouts formed a TC.
	OnTCConstructedFromTimeouts(tc *flow.TimeoutCertificate)

	// OnInvalidMessage notifications are produced when a peer sent an input
	// that failed validation. err describes the violation.
	OnInvalidMessage(originID flow.Identifier, err error)
}

// Consumer consumes all notifications of the consensus core.
type Consumer interface {
	VertexStoreConsumer
	PacemakerConsumer
	ParticipantConsumer
}
