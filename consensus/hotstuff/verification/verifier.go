package verification

import (
	"fmt"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/committees"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module/signature"
)

// Verifier checks consensus messages and certificates of one epoch against
// the epoch's validator set. Certificate signatures are checked on a worker
// pool.
type Verifier struct {
	committee hotstuff.Committee
	genesisQC *flow.QuorumCertificate
	verifier  signature.Verifier
	batch     *signature.BatchVerifier
}

var _ hotstuff.Verifier = (*Verifier)(nil)

// NewVerifier creates a verifier for the committee's epoch. genesisQC is the
// self-certifying QC of the epoch's genesis vertex, the only QC accepted
// without signatures.
func NewVerifier(committee hotstuff.Committee, genesisQC *flow.QuorumCertificate, verifier signature.Verifier) *Verifier {
	return &Verifier{
		committee: committee,
		genesisQC: genesisQC,
		verifier:  verifier,
		batch:     signature.NewBatchVerifier(verifier, signature.DefaultBatchWorkers),
	}
}

// VerifyProposal checks the proposer is the leader of the view, its signature
// over the vertex ID and every certificate the proposal carries.
func (v *Verifier) VerifyProposal(proposal *messages.Proposal) error {
	vertex := proposal.Vertex
	if vertex == nil || vertex.QC == nil {
		return model.InvalidVertexError{Err: fmt.Errorf("proposal without vertex or parent QC")}
	}
	if vertex.Epoch != v.committee.Epoch() {
		return model.NewInvalidVertexErrorf(vertex, "proposal of epoch %d verified against epoch %d", vertex.Epoch, v.committee.Epoch())
	}
	leader := v.committee.LeaderForView(vertex.View)
	if vertex.ProposerID != leader {
		return model.NewInvalidVertexErrorf(vertex, "proposer %x is not the leader %x of view %d", vertex.ProposerID, leader, vertex.View)
	}
	proposer, err := v.committee.IdentityByNodeID(vertex.ProposerID)
	if err != nil {
		return model.NewInvalidVertexErrorf(vertex, "unknown proposer: %w", err)
	}
	err = v.verifier.Verify(vertex.ID(), proposal.Signature, proposer.PublicKey)
	if err != nil {
		return model.NewInvalidVertexErrorf(vertex, "invalid proposer signature: %w", err)
	}

	err = v.VerifyQC(vertex.QC)
	if err != nil {
		return model.NewInvalidVertexErrorf(vertex, "invalid parent QC: %w", err)
	}
	if proposal.LastViewTC != nil {
		err = v.VerifyTC(proposal.LastViewTC)
		if err != nil {
			return model.NewInvalidVertexErrorf(vertex, "invalid last view TC: %w", err)
		}
	}
	if proposal.CommittedQC != nil {
		err = v.VerifyQC(proposal.CommittedQC)
		if err != nil {
			return model.NewInvalidVertexErrorf(vertex, "invalid committed QC: %w", err)
		}
	}
	return nil
}

// VerifyVote checks the vote's signer and signature.
func (v *Verifier) VerifyVote(vote *messages.Vote) error {
	if vote.Epoch() != v.committee.Epoch() {
		return model.NewInvalidVoteErrorf(vote.SignerID, vote.View(), "vote of epoch %d verified against epoch %d", vote.Epoch(), v.committee.Epoch())
	}
	voter, err := v.committee.IdentityByNodeID(vote.SignerID)
	if err != nil {
		return model.NewInvalidVoteErrorf(vote.SignerID, vote.View(), "unknown voter: %w", err)
	}
	err = v.verifier.Verify(vote.Digest(), vote.Signature, voter.PublicKey)
	if err != nil {
		return model.NewInvalidVoteErrorf(vote.SignerID, vote.View(), "invalid vote signature: %w", err)
	}
	return nil
}

// VerifyTimeout checks the timeout vote's signer, signature and certificates.
func (v *Verifier) VerifyTimeout(timeout *messages.TimeoutVote) error {
	if timeout.Epoch != v.committee.Epoch() {
		return model.NewInvalidVoteErrorf(timeout.SignerID, timeout.View, "timeout of epoch %d verified against epoch %d", timeout.Epoch, v.committee.Epoch())
	}
	if timeout.HighQC == nil {
		return model.NewInvalidVoteErrorf(timeout.SignerID, timeout.View, "timeout without high QC")
	}
	if timeout.HighQC.View() >= timeout.View {
		return model.NewInvalidVoteErrorf(timeout.SignerID, timeout.View, "high QC view %d not below timeout view", timeout.HighQC.View())
	}
	signer, err := v.committee.IdentityByNodeID(timeout.SignerID)
	if err != nil {
		return model.NewInvalidVoteErrorf(timeout.SignerID, timeout.View, "unknown signer: %w", err)
	}
	err = v.verifier.Verify(timeout.Digest(), timeout.Signature, signer.PublicKey)
	if err != nil {
		return model.NewInvalidVoteErrorf(timeout.SignerID, timeout.View, "invalid timeout signature: %w", err)
	}

	err = v.VerifyQC(timeout.HighQC)
	if err != nil {
		return model.NewInvalidVoteErrorf(timeout.SignerID, timeout.View, "invalid high QC: %w", err)
	}
	if timeout.LastViewTC != nil {
		err = v.VerifyTC(timeout.LastViewTC)
		if err != nil {
			return model.NewInvalidVoteErrorf(timeout.SignerID, timeout.View, "invalid last view TC: %w", err)
		}
	}
	if timeout.CommittedQC != nil {
		err = v.VerifyQC(timeout.CommittedQC)
		if err != nil {
			return model.NewInvalidVoteErrorf(timeout.SignerID, timeout.View, "invalid committed QC: %w", err)
		}
	}
	return nil
}

// VerifyQC checks that the QC carries valid signatures of a quorum.
func (v *Verifier) VerifyQC(qc *flow.QuorumCertificate) error {
	if qc.Epoch() != v.committee.Epoch() {
		return model.NewInvalidQCErrorf(qc, "QC of epoch %d verified against epoch %d", qc.Epoch(), v.committee.Epoch())
	}
	if qc.IsGenesis() {
		if qc.ID() != v.genesisQC.ID() {
			return model.NewInvalidQCErrorf(qc, "QC of view 0 is not the epoch's genesis QC")
		}
		return nil
	}

	core := qc.VoteData.Core()
	err := v.verifyQuorum(qc.Signatures, func(sig flow.TimestampedSignature, _ int) flow.Identifier {
		return flow.VoteDigest(core, qc.VoteData.Committed, sig.Timestamp)
	})
	if err != nil {
		return model.NewInvalidQCErrorf(qc, "%w", err)
	}
	return nil
}

// VerifyTC checks that the TC carries valid signatures of a quorum and that
// its high QC is the highest of the QC views the signers signed.
func (v *Verifier) VerifyTC(tc *flow.TimeoutCertificate) error {
	if tc.Epoch != v.committee.Epoch() {
		return model.NewInvalidTCErrorf(tc, "TC of epoch %d verified against epoch %d", tc.Epoch, v.committee.Epoch())
	}
	if tc.HighQC == nil {
		return model.NewInvalidTCErrorf(tc, "TC without high QC")
	}
	if len(tc.HighQCViews) != len(tc.Signatures) {
		return model.NewInvalidTCErrorf(tc, "%d high QC views for %d signatures", len(tc.HighQCViews), len(tc.Signatures))
	}
	var maxView uint64
	for _, view := range tc.HighQCViews {
		if view >= tc.View {
			return model.NewInvalidTCErrorf(tc, "signed high QC view %d not below TC view", view)
		}
		if view > maxView {
			maxView = view
		}
	}
	if tc.HighQC.View() != maxView {
		return model.NewInvalidTCErrorf(tc, "high QC view %d does not match highest signed view %d", tc.HighQC.View(), maxView)
	}

	err := v.verifyQuorum(tc.Signatures, func(sig flow.TimestampedSignature, i int) flow.Identifier {
		return flow.TimeoutDigest(tc.Epoch, tc.View, tc.HighQCViews[i], sig.Timestamp)
	})
	if err != nil {
		return model.NewInvalidTCErrorf(tc, "%w", err)
	}
	err = v.VerifyQC(tc.HighQC)
	if err != nil {
		return model.NewInvalidTCErrorf(tc, "invalid high QC: %w", err)
	}
	return nil
}

// VerifyLedgerProof checks that the proof carries valid signatures of a
// quorum of the epoch's validators over the committed header.
func (v *Verifier) VerifyLedgerProof(proof *flow.LedgerProof) error {
	if proof.Header.Epoch != v.committee.Epoch() {
		return fmt.Errorf("ledger proof of epoch %d verified against epoch %d", proof.Header.Epoch, v.committee.Epoch())
	}
	return v.verifyQuorum(proof.Signatures, func(sig flow.TimestampedSignature, _ int) flow.Identifier {
		return proof.Digest(sig.Timestamp)
	})
}

// verifyQuorum checks that the signers are distinct validators holding a
// quorum of the weight and that every signature verifies over its digest.
func (v *Verifier) verifyQuorum(sigs flow.TimestampedSignatures, digest func(flow.TimestampedSignature, int) flow.Identifier) error {
	state := committees.NewValidationState(v.committee.Validators())
	batch := make([]signature.SignedDigest, 0, len(sigs))
	for i, sig := range sigs {
		validator, err := v.committee.IdentityByNodeID(sig.SignerID)
		if err != nil {
			return err
		}
		added, err := state.AddSignature(sig.SignerID, sig.Timestamp, sig.Signature)
		if err != nil {
			return err
		}
		if !added {
			return model.NewDuplicatedSignerErrorf("signer %x included twice", sig.SignerID)
		}
		batch = append(batch, signature.SignedDigest{
			SignerID:  sig.SignerID,
			Digest:    digest(sig, i),
			Signature: sig.Signature,
			PublicKey: validator.PublicKey,
		})
	}
	if !state.Complete() {
		return model.NewInsufficientSignaturesErrorf("signers hold weight %d, quorum requires %d", state.Weight(), state.Threshold())
	}
	return v.batch.VerifyAll(batch)
}
