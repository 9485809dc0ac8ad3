package flow

import "fmt"

type timeoutData struct {
	Epoch      uint64
	View       uint64
	HighQCView uint64
	Timestamp  uint64
}

// TimeoutDigest returns the digest a timeout vote is signed over. Binding the
// signer's highest QC view into the signature lets a TC prove the views of
// the QCs its signers held.
func TimeoutDigest(epoch uint64, view uint64, highQCView uint64, timestamp uint64) Identifier {
	return MakeID(timeoutData{
		Epoch:      epoch,
		View:       view,
		HighQCView: highQCView,
		Timestamp:  timestamp,
	})
}

// TimeoutCertificate proves that validators holding more than two thirds of
// the epoch's weight timed out on the same view.
type TimeoutCertificate struct {
	Epoch uint64
	View  uint64
	// HighQC is the highest QC among the signers' QCs.
	HighQC *QuorumCertificate
	// HighQCViews holds each signer's highest QC view, aligned with Signatures.
	HighQCViews []uint64
	Signatures  TimestampedSignatures
}

// ID returns the identifier of the TC.
func (tc *TimeoutCertificate) ID() Identifier {
	return MakeID(tc)
}

func (tc *TimeoutCertificate) String() string {
	return fmt.Sprintf("TC{epoch=%d view=%d high_qc_view=%d signers=%d}",
		tc.Epoch, tc.View, tc.HighQC.View(), len(tc.Signatures))
}

// HighQC summarizes the certificates a node holds: the highest QC, the QC
// that committed the current root and the highest TC (optional).
type HighQC struct {
	HighestQC          *QuorumCertificate
	HighestCommittedQC *QuorumCertificate
	HighestTC          *TimeoutCertificate
}

// HighestView returns the highest view certified by either the QC or the TC.
func (h HighQC) HighestView() uint64 {
	view := h.HighestQC.View()
	if h.HighestTC != nil && h.HighestTC.View > view {
		view = h.HighestTC.View
	}
	return view
}
