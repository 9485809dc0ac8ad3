package hotstuff

import (
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
)

// Verifier validates proposals, votes and certificates against the epoch's
// validator set.
type Verifier interface {
	// VerifyProposal checks the proposer is the leader of the view and its
	// signature over the vertex ID.
	// Expected errors: model.InvalidVertexError.
	VerifyProposal(proposal *messages.Proposal) error

	// VerifyVote checks the vote's signer and signature.
	// Expected errors: model.InvalidVoteError.
	VerifyVote(vote *messages.Vote) error

	// VerifyTimeout checks the timeout vote's signer, signature and high QC.
	// Expected errors: model.InvalidVoteError.
	VerifyTimeout(timeout *messages.TimeoutVote) error

	// VerifyQC checks that the QC carries valid signatures of a quorum.
	// Expected errors: model.InvalidQCError.
	VerifyQC(qc *flow.QuorumCertificate) error

	// VerifyTC checks that the TC carries valid signatures of a quorum and
	// that its high QC matches the signed views.
	// Expected errors: model.InvalidTCError.
	VerifyTC(tc *flow.TimeoutCertificate) error
}

// SafetyRules produces votes and timeouts according to the voting rules.
type SafetyRules interface {
	// ProduceVote decides whether to vote for the vertex proposed in the current view.
	// Returns:
	//  * (vote, nil): on the _first_ vertex of the current view that is safe to vote for.
	//  * (nil, model.NoVoteError): if the replica does not vote for the vertex.
	// All other errors are unexpected and potential symptoms of corrupted internal state (fatal).
	ProduceVote(proposal *messages.Proposal, curView uint64, committed *flow.LedgerHeader) (*messages.Vote, error)

	// ProduceTimeout returns the timeout vote for the current view. After
	// producing it, the replica never votes in that view.
	// Expected errors: model.NoTimeoutError.
	ProduceTimeout(curView uint64, highQC *flow.QuorumCertificate, lastViewTC *flow.TimeoutCertificate) (*messages.TimeoutVote, error)
}
