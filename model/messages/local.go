package messages

import (
	"github.com/ledgerbft/node/model/flow"
)

// VertexRequestTimeout fires when a GetVerticesRequest sent to a peer was not
// answered in time.
type VertexRequestTimeout struct {
	Epoch   uint64
	PeerID  flow.Identifier
	Request GetVerticesRequest
}

// LocalSyncRequest asks the ledger sync service to catch up to Target,
// preferring the listed nodes as sources.
type LocalSyncRequest struct {
	Target      *flow.LedgerProof
	TargetNodes flow.IdentifierList
}

// SyncRequestTimeout fires when a SyncRequest was not answered in time.
type SyncRequestTimeout struct {
	PeerID flow.Identifier
	Nonce  uint64
}

// SyncCheckTrigger starts a round of status requests to discover whether the
// node fell behind.
type SyncCheckTrigger struct{}

// SyncCheckReceiveStatusTimeout ends the collection of status responses.
type SyncCheckReceiveStatusTimeout struct {
	Round uint64
}
