package safetyrules

import (
	"errors"
	"fmt"
	"time"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module/signature"
	"github.com/ledgerbft/node/storage"
)

// SafetyRules produces votes and timeouts while guaranteeing that the replica
// never votes twice in a view and never votes in a view it timed out on.
type SafetyRules struct {
	signer     signature.Signer
	committee  hotstuff.Committee
	persist    hotstuff.Persister
	now        func() time.Time
	safetyData *hotstuff.SafetyData
}

var _ hotstuff.SafetyRules = (*SafetyRules)(nil)

// New creates a new SafetyRules instance. Safety data of an earlier epoch is
// reset, as views restart in every epoch.
func New(
	signer signature.Signer,
	committee hotstuff.Committee,
	persist hotstuff.Persister,
	now func() time.Time,
) (*SafetyRules, error) {
	safetyData, err := persist.GetSafetyData()
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("could not load safety data: %w", err)
	}
	if safetyData == nil || safetyData.Epoch != committee.Epoch() {
		safetyData = &hotstuff.SafetyData{Epoch: committee.Epoch()}
	}
	return &SafetyRules{
		signer:     signer,
		committee:  committee,
		persist:    persist,
		now:        now,
		safetyData: safetyData,
	}, nil
}

// ProduceVote will make a decision on whether it will vote for the given proposal, the returned
// error indicates whether to vote or not.
// The curView is taken as input to ensure SafetyRules will only vote for proposals at current view and prevent double voting.
// committed is the ledger state a QC over the vote would commit, nil if none.
// Returns:
//   - (vote, nil): On the _first_ vertex for the current view that is safe to vote for.
//     Subsequently, the replica does _not_ vote for any other vertex with the same (or lower) view.
//   - (nil, model.NoVoteError): If the replica decides that it does not want to vote for the given vertex.
//     This is a sentinel error and _expected_ during normal operation.
//
// All other errors are unexpected and potential symptoms of uncovered edge cases or corrupted internal state (fatal).
func (r *SafetyRules) ProduceVote(proposal *messages.Proposal, curView uint64, committed *flow.LedgerHeader) (*messages.Vote, error) {
	vertex := proposal.Vertex
	if curView != vertex.View {
		return nil, fmt.Errorf("expecting vertex for current view %d, but vertex's view is %d", curView, vertex.View)
	}
	if vertex.Epoch != r.committee.Epoch() {
		return nil, fmt.Errorf("vertex of epoch %d presented to safety rules of epoch %d", vertex.Epoch, r.committee.Epoch())
	}
	if curView <= r.safetyData.LastVotedView {
		return nil, model.NoVoteError{Msg: fmt.Sprintf("already voted or timed out in view %d", r.safetyData.LastVotedView)}
	}

	_, err := r.committee.IdentityByNodeID(r.signer.NodeID())
	if model.IsInvalidSignerError(err) {
		return nil, model.NoVoteError{Msg: "not a validator of the epoch"}
	}
	if err != nil {
		return nil, fmt.Errorf("could not get self identity: %w", err)
	}

	if !isSafeToVote(proposal) {
		return nil, model.NoVoteError{Msg: "vertex extends neither the previous view's QC nor its TC"}
	}

	vote := &messages.Vote{
		VoteData: flow.VoteData{
			Epoch:      vertex.Epoch,
			View:       vertex.View,
			VertexID:   vertex.ID(),
			ParentID:   vertex.ParentID(),
			ParentView: vertex.ParentView(),
			Committed:  committed,
		},
		SignerID:  r.signer.NodeID(),
		Timestamp: r.timestamp(),
	}
	vote.Signature = r.signer.Sign(vote.Digest())

	// vote for the current view has been produced, update lastVotedView
	// to prevent from voting for the same view again
	err = r.update(&hotstuff.SafetyData{
		Epoch:         r.safetyData.Epoch,
		LastVotedView: curView,
	})
	if err != nil {
		return nil, err
	}
	return vote, nil
}

// ProduceTimeout takes current view, highest locally known QC and the TC of the previous view
// and decides whether to produce a timeout for the current view.
// Returns:
//   - (timeout, nil): the timeout vote for the current view. Repeated calls in the
//     same view return the same timeout, for re-broadcasting.
//   - (nil, model.NoTimeoutError): If the replica may not time out in the view.
//     This is a sentinel error and _expected_ during normal operation.
//
// All other errors are unexpected and potential symptoms of uncovered edge cases or corrupted internal state (fatal).
func (r *SafetyRules) ProduceTimeout(curView uint64, highQC *flow.QuorumCertificate, lastViewTC *flow.TimeoutCertificate) (*messages.TimeoutVote, error) {
	last := r.safetyData.LastTimeout
	if last != nil && last.View == curView {
		return last, nil
	}
	if curView < r.safetyData.LastVotedView {
		return nil, model.NoTimeoutError{Msg: fmt.Sprintf("view %d below last voted view %d", curView, r.safetyData.LastVotedView)}
	}
	if highQC == nil || highQC.View() >= curView {
		return nil, fmt.Errorf("high QC must be below current view %d", curView)
	}
	enteredByTC := lastViewTC != nil && lastViewTC.View+1 == curView
	if highQC.View()+1 != curView && !enteredByTC {
		return nil, model.NoTimeoutError{Msg: fmt.Sprintf("view %d entered neither by QC nor by TC", curView)}
	}

	_, err := r.committee.IdentityByNodeID(r.signer.NodeID())
	if model.IsInvalidSignerError(err) {
		return nil, model.NoTimeoutError{Msg: "not a validator of the epoch"}
	}
	if err != nil {
		return nil, fmt.Errorf("could not get self identity: %w", err)
	}

	timeout := &messages.TimeoutVote{
		Epoch:     r.committee.Epoch(),
		View:      curView,
		HighQC:    highQC,
		SignerID:  r.signer.NodeID(),
		Timestamp: r.timestamp(),
	}
	if enteredByTC {
		timeout.LastViewTC = lastViewTC
	}
	timeout.Signature = r.signer.Sign(timeout.Digest())

	err = r.update(&hotstuff.SafetyData{
		Epoch:         r.safetyData.Epoch,
		LastVotedView: curView,
		LastTimeout:   timeout,
	})
	if err != nil {
		return nil, err
	}
	return timeout, nil
}

// LastVotedView returns the highest view the replica voted or timed out in.
func (r *SafetyRules) LastVotedView() uint64 {
	return r.safetyData.LastVotedView
}

// isSafeToVote holds if the vertex extends the QC of the previous view, or
// the previous view timed out and the vertex extends a QC at least as high as
// the TC's high QC.
func isSafeToVote(proposal *messages.Proposal) bool {
	vertex := proposal.Vertex
	if vertex.ParentView()+1 == vertex.View {
		return true
	}
	tc := proposal.LastViewTC
	return tc != nil && tc.View+1 == vertex.View && vertex.ParentView() >= tc.HighQC.View()
}

func (r *SafetyRules) update(safetyData *hotstuff.SafetyData) error {
	err := r.persist.PutSafetyData(safetyData)
	if err != nil {
		return fmt.Errorf("could not persist safety data: %w", err)
	}
	r.safetyData = safetyData
	return nil
}

func (r *SafetyRules) timestamp() uint64 {
	return uint64(r.now().UnixMilli())
}
