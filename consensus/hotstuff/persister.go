package hotstuff

import (
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
)

// SafetyData is the safety-critical state of a replica that must survive restarts.
type SafetyData struct {
	Epoch uint64
	// LastVotedView is the highest view the replica voted in or timed out on.
	LastVotedView uint64
	// LastTimeout is the last timeout vote produced, re-broadcast on ticks of the same view.
	LastTimeout *messages.TimeoutVote
}

// LivenessData is the pacemaker state that should survive restarts.
type LivenessData struct {
	Epoch       uint64
	CurrentView uint64
	NewestQC    *flow.QuorumCertificate
	LastViewTC  *flow.TimeoutCertificate
}

// VertexStoreState is a snapshot of the vertex store.
type VertexStoreState struct {
	Epoch uint64
	Root  *flow.Vertex
	// RootHeader is the committed ledger state after executing Root.
	RootHeader *flow.LedgerHeader
	// RootQC certifies Root.
	RootQC *flow.QuorumCertificate
	// Vertices holds the uncommitted vertices, parents before children.
	Vertices           []*flow.Vertex
	HighestQC          *flow.QuorumCertificate
	HighestCommittedQC *flow.QuorumCertificate
	HighestTC          *flow.TimeoutCertificate
	// QCs holds the QCs of certified uncommitted vertices.
	QCs []*flow.QuorumCertificate
}

// Persister is responsible for persisting state we need to bootstrap after a restart or crash.
type Persister interface {
	// GetSafetyData will retrieve last persisted safety data.
	// During normal operations, no errors are expected.
	GetSafetyData() (*SafetyData, error)

	// PutSafetyData persists the last safety data.
	// During normal operations, no errors are expected.
	PutSafetyData(safetyData *SafetyData) error

	// GetLivenessData will retrieve last persisted liveness data.
	// During normal operations, no errors are expected.
	GetLivenessData() (*LivenessData, error)

	// PutLivenessData persists the last liveness data.
	// During normal operations, no errors are expected.
	PutLivenessData(livenessData *LivenessData) error
}

// VertexStorePersister saves and restores vertex store snapshots.
type VertexStorePersister interface {
	// SaveVertexStoreState persists the snapshot, replacing the previous one.
	SaveVertexStoreState(state *VertexStoreState) error

	// LoadVertexStoreState returns the last snapshot saved for the epoch.
	// Returns storage.ErrNotFound if there is none.
	LoadVertexStoreState(epoch uint64) (*VertexStoreState, error)
}
