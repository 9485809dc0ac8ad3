package votecollector

import (
	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/committees"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
)

type viewVotes struct {
	// vote data each signer voted for in the view
	votedFor map[flow.Identifier]flow.Identifier
	byData   map[flow.Identifier]*pendingQC
	qcBuilt  bool
}

type pendingQC struct {
	data  flow.VoteData
	state *committees.ValidationState
}

// VoteCollectors accumulates verified votes per view and builds a QC the
// first time the votes for one vote data reach a quorum. Not concurrency safe.
type VoteCollectors struct {
	committee  hotstuff.Committee
	lowestView uint64
	views      map[uint64]*viewVotes
}

// NewVoteCollectors creates the vote collectors of the committee's epoch.
func NewVoteCollectors(committee hotstuff.Committee) *VoteCollectors {
	return &VoteCollectors{
		committee: committee,
		views:     make(map[uint64]*viewVotes),
	}
}

// AddVote adds a verified vote and returns the QC if this vote completed one.
// Votes of pruned views and repeated votes are ignored.
// Expected errors during normal operations:
//   - model.DoubleVoteError if the signer already voted for other data in the view
//   - model.InvalidSignerError if the signer is not a validator of the epoch
func (c *VoteCollectors) AddVote(vote *messages.Vote) (*flow.QuorumCertificate, error) {
	view := vote.View()
	if view < c.lowestView {
		return nil, nil
	}
	votes, ok := c.views[view]
	if !ok {
		votes = &viewVotes{
			votedFor: make(map[flow.Identifier]flow.Identifier),
			byData:   make(map[flow.Identifier]*pendingQC),
		}
		c.views[view] = votes
	}

	dataID := vote.VoteData.ID()
	if previous, voted := votes.votedFor[vote.SignerID]; voted {
		if previous != dataID {
			return nil, model.NewDoubleVoteErrorf(vote.SignerID, previous, dataID, "signer %x voted twice in view %d", vote.SignerID, view)
		}
		return nil, nil
	}

	pending, ok := votes.byData[dataID]
	if !ok {
		pending = &pendingQC{
			data:  vote.VoteData,
			state: committees.NewValidationState(c.committee.Validators()),
		}
		votes.byData[dataID] = pending
	}
	_, err := pending.state.AddSignature(vote.SignerID, vote.Timestamp, vote.Signature)
	if err != nil {
		return nil, err
	}
	votes.votedFor[vote.SignerID] = dataID

	if votes.qcBuilt || !pending.state.Complete() {
		return nil, nil
	}
	votes.qcBuilt = true
	return &flow.QuorumCertificate{
		VoteData:   pending.data,
		Signatures: pending.state.Signatures(),
	}, nil
}

// Size returns the number of views votes are collected for.
func (c *VoteCollectors) Size() int {
	return len(c.views)
}

// PruneUpToView drops the votes of all views below the given one.
func (c *VoteCollectors) PruneUpToView(view uint64) {
	if view <= c.lowestView {
		return
	}
	for v := range c.views {
		if v < view {
			delete(c.views, v)
		}
	}
	c.lowestView = view
}
