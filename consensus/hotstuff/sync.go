package hotstuff

import (
	"github.com/ledgerbft/node/model/flow"
)

// SyncResult is the outcome of a request to sync to a QC.
type SyncResult int

const (
	// SyncResultSynced means the certified vertex is held and the QC was inserted.
	SyncResultSynced SyncResult = iota
	// SyncResultInProgress means missing vertices are being fetched.
	SyncResultInProgress
	// SyncResultInvalid means the QC is below the committed root and is ignored.
	SyncResultInvalid
)

func (r SyncResult) String() string {
	switch r {
	case SyncResultSynced:
		return "synced"
	case SyncResultInProgress:
		return "in_progress"
	case SyncResultInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// VertexSync fetches vertices the vertex store is missing.
type VertexSync interface {
	// SyncToQC makes sure the vertex store holds the vertices certified by
	// the given certificates, fetching them from the author and the QC signers
	// if needed. No errors are expected during normal operations.
	SyncToQC(highQC flow.HighQC, author flow.Identifier) (SyncResult, error)
}
