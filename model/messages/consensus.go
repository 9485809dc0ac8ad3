package messages

import (
	"github.com/ledgerbft/node/model/flow"
)

// Proposal is a leader's proposal of a new vertex. LastViewTC is set when
// the leader entered the proposal's view through a timeout certificate.
type Proposal struct {
	Vertex     *flow.Vertex
	LastViewTC *flow.TimeoutCertificate
	// CommittedQC is the QC that committed the proposer's current root.
	CommittedQC *flow.QuorumCertificate
	Signature   []byte // proposer's signature over the vertex ID
}

// Epoch returns the epoch of the proposed vertex.
func (p *Proposal) Epoch() uint64 { return p.Vertex.Epoch }

// View returns the view of the proposed vertex.
func (p *Proposal) View() uint64 { return p.Vertex.View }

// HighQC returns the certificates the proposal carries.
func (p *Proposal) HighQC() flow.HighQC {
	return flow.HighQC{
		HighestQC:          p.Vertex.QC,
		HighestCommittedQC: p.CommittedQC,
		HighestTC:          p.LastViewTC,
	}
}

// Vote is a validator's vote for a vertex, sent to the leader of the next view.
type Vote struct {
	VoteData  flow.VoteData
	SignerID  flow.Identifier
	Timestamp uint64
	Signature []byte
}

// Epoch returns the epoch of the vote.
func (v *Vote) Epoch() uint64 { return v.VoteData.Epoch }

// View returns the view of the vertex voted for.
func (v *Vote) View() uint64 { return v.VoteData.View }

// Digest returns the digest the vote signature covers.
func (v *Vote) Digest() flow.Identifier {
	return flow.VoteDigest(v.VoteData.Core(), v.VoteData.Committed, v.Timestamp)
}

// TimeoutVote is broadcast by a validator that timed out on a view. It carries
// the validator's highest QC and, if it entered the view through a TC, that TC.
type TimeoutVote struct {
	Epoch       uint64
	View        uint64
	HighQC      *flow.QuorumCertificate
	CommittedQC *flow.QuorumCertificate
	LastViewTC  *flow.TimeoutCertificate
	SignerID    flow.Identifier
	Timestamp   uint64
	Signature   []byte
}

// Certificates returns the certificates the timeout vote carries.
func (t *TimeoutVote) Certificates() flow.HighQC {
	return flow.HighQC{
		HighestQC:          t.HighQC,
		HighestCommittedQC: t.CommittedQC,
		HighestTC:          t.LastViewTC,
	}
}

// Digest returns the digest the timeout signature covers.
func (t *TimeoutVote) Digest() flow.Identifier {
	return flow.TimeoutDigest(t.Epoch, t.View, t.HighQC.View(), t.Timestamp)
}
