package flow

import (
	"fmt"
	"sort"
)

// TimestampedSignature is a validator's signature over a digest that
// includes the validator's local timestamp.
type TimestampedSignature struct {
	SignerID  Identifier
	Timestamp uint64 // unix milliseconds
	Signature []byte
}

// TimestampedSignatures is a set of signatures ordered by signer ID.
type TimestampedSignatures []TimestampedSignature

// Signers returns the signer IDs.
func (s TimestampedSignatures) Signers() IdentifierList {
	signers := make(IdentifierList, 0, len(s))
	for _, sig := range s {
		signers = append(signers, sig.SignerID)
	}
	return signers
}

// Sorted returns a copy of the signatures in canonical signer order.
func (s TimestampedSignatures) Sorted() TimestampedSignatures {
	cpy := make(TimestampedSignatures, len(s))
	copy(cpy, s)
	sort.Slice(cpy, func(i, j int) bool {
		return IsIdentifierCanonical(cpy[i].SignerID, cpy[j].SignerID)
	})
	return cpy
}

// VoteData is the content a validator signs when voting for a vertex.
type VoteData struct {
	Epoch      uint64
	View       uint64
	VertexID   Identifier
	ParentID   Identifier
	ParentView uint64
	// Committed is the ledger state committed by a QC over this vote data,
	// nil when such a QC commits nothing new.
	Committed *LedgerHeader
}

type voteCore struct {
	Epoch      uint64
	View       uint64
	VertexID   Identifier
	ParentID   Identifier
	ParentView uint64
}

// Core returns the digest of the vote data without the committed ledger header.
func (d *VoteData) Core() Identifier {
	return MakeID(voteCore{
		Epoch:      d.Epoch,
		View:       d.View,
		VertexID:   d.VertexID,
		ParentID:   d.ParentID,
		ParentView: d.ParentView,
	})
}

// ID returns the identifier of the full vote data.
func (d *VoteData) ID() Identifier {
	return MakeID(d)
}

type timestampedVoteData struct {
	Core      Identifier
	Committed Identifier
	Timestamp uint64
}

// VoteDigest returns the digest a vote with the given core, committed header
// and timestamp is signed over. Ledger proofs and QCs verify against the same digest.
func VoteDigest(core Identifier, committed *LedgerHeader, timestamp uint64) Identifier {
	committedID := ZeroID
	if committed != nil {
		committedID = committed.ID()
	}
	return MakeID(timestampedVoteData{
		Core:      core,
		Committed: committedID,
		Timestamp: timestamp,
	})
}

// QuorumCertificate proves that validators holding more than two thirds of
// the epoch's weight voted for the same vote data.
type QuorumCertificate struct {
	VoteData   VoteData
	Signatures TimestampedSignatures
}

// NewGenesisQC returns the self-certifying QC of an epoch's genesis vertex.
func NewGenesisQC(genesis *Vertex) *QuorumCertificate {
	return &QuorumCertificate{
		VoteData: VoteData{
			Epoch:     genesis.Epoch,
			View:      genesis.View,
			VertexID:  genesis.ID(),
			Committed: genesis.Genesis,
		},
	}
}

// Epoch returns the epoch of the certified vertex.
func (qc *QuorumCertificate) Epoch() uint64 { return qc.VoteData.Epoch }

// View returns the view of the certified vertex.
func (qc *QuorumCertificate) View() uint64 { return qc.VoteData.View }

// VertexID returns the ID of the certified vertex.
func (qc *QuorumCertificate) VertexID() Identifier { return qc.VoteData.VertexID }

// ParentView returns the view of the certified vertex's parent.
func (qc *QuorumCertificate) ParentView() uint64 { return qc.VoteData.ParentView }

// IsGenesis returns whether the QC certifies an epoch's genesis vertex.
func (qc *QuorumCertificate) IsGenesis() bool { return qc.VoteData.View == 0 }

// ID returns the identifier of the QC.
func (qc *QuorumCertificate) ID() Identifier {
	return MakeID(qc)
}

// CommittedProof returns the ledger proof carried by the QC, or nil if the QC
// commits nothing.
func (qc *QuorumCertificate) CommittedProof() *LedgerProof {
	if qc.VoteData.Committed == nil {
		return nil
	}
	return &LedgerProof{
		Opaque:     qc.VoteData.Core(),
		Header:     *qc.VoteData.Committed,
		Signatures: qc.Signatures,
	}
}

func (qc *QuorumCertificate) String() string {
	return fmt.Sprintf("QC{epoch=%d view=%d vertex=%s signers=%d}",
		qc.Epoch(), qc.View(), qc.VertexID().TerminalString(), len(qc.Signatures))
}
