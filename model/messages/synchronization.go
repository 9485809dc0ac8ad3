package messages

import (
	"fmt"

	"github.com/ledgerbft/node/model/flow"
)

// GetVerticesRequest asks a peer for `Count` vertices, starting with the
// vertex `VertexID` and continuing with its ancestors.
type GetVerticesRequest struct {
	VertexID flow.Identifier
	Count    uint32
}

func (r GetVerticesRequest) String() string {
	return fmt.Sprintf("GetVerticesRequest{vertex=%s count=%d}", r.VertexID.TerminalString(), r.Count)
}

// GetVerticesResponse carries the requested vertices, newest first.
type GetVerticesResponse struct {
	Vertices []*flow.Vertex
}

// GetVerticesErrorResponse is returned when the responder does not hold the
// requested vertices. It carries the responder's certificates so the
// requester can chase a higher QC instead of retrying the same request.
type GetVerticesErrorResponse struct {
	HighQC  flow.HighQC
	Request GetVerticesRequest
}

// SyncRequest asks a peer for committed commands above the given ledger
// state. The response never crosses an epoch boundary.
type SyncRequest struct {
	Nonce      uint64
	FromHeight uint64
	FromEpoch  uint64
	FromView   uint64
}

// From returns the ledger position the request starts from, as a header
// suitable for ordering comparisons.
func (r *SyncRequest) From() *flow.LedgerHeader {
	return &flow.LedgerHeader{Epoch: r.FromEpoch, View: r.FromView, Height: r.FromHeight}
}

// SyncResponse carries committed commands and the proof of the header they lead to.
type SyncResponse struct {
	Nonce            uint64
	CommandsAndProof flow.CommandsAndProof
}

// StatusRequest asks a peer for its latest committed ledger proof.
type StatusRequest struct {
	Nonce uint64
}

// StatusResponse carries the responder's latest committed ledger proof.
type StatusResponse struct {
	Nonce uint64
	Proof *flow.LedgerProof
}

// GetEpochRequest asks a peer for the proof that ended the given epoch.
type GetEpochRequest struct {
	Epoch uint64
}

// GetEpochResponse carries the proof ending the requested epoch, nil if the
// responder does not know it yet.
type GetEpochResponse struct {
	Epoch uint64
	Proof *flow.LedgerProof
}
