package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/ledgerbft/node/consensus/hotstuff"
)

// UpsertSafetyData stores the replica's safety data.
func UpsertSafetyData(safetyData *hotstuff.SafetyData) func(*badger.Txn) error {
	return upsert(makePrefix(codeSafetyData), safetyData)
}

// RetrieveSafetyData retrieves the replica's safety data.
// Returns storage.ErrNotFound if none was stored.
func RetrieveSafetyData(safetyData *hotstuff.SafetyData) func(*badger.Txn) error {
	return retrieve(makePrefix(codeSafetyData), safetyData)
}

// UpsertLivenessData stores the pacemaker's liveness data.
func UpsertLivenessData(livenessData *hotstuff.LivenessData) func(*badger.Txn) error {
	return upsert(makePrefix(codeLivenessData), livenessData)
}

// RetrieveLivenessData retrieves the pacemaker's liveness data.
// Returns storage.ErrNotFound if none was stored.
func RetrieveLivenessData(livenessData *hotstuff.LivenessData) func(*badger.Txn) error {
	return retrieve(makePrefix(codeLivenessData), livenessData)
}

// UpsertVertexStoreState stores the vertex store snapshot of the state's epoch.
func UpsertVertexStoreState(state *hotstuff.VertexStoreState) func(*badger.Txn) error {
	return upsert(makePrefix(codeVertexStoreState, state.Epoch), state)
}

// RetrieveVertexStoreState retrieves the vertex store snapshot of the given epoch.
// Returns storage.ErrNotFound if none was stored.
func RetrieveVertexStoreState(epoch uint64, state *hotstuff.VertexStoreState) func(*badger.Txn) error {
	return retrieve(makePrefix(codeVertexStoreState, epoch), state)
}

// RemoveVertexStoreState removes the vertex store snapshot of the given epoch.
func RemoveVertexStoreState(epoch uint64) func(*badger.Txn) error {
	return remove(makePrefix(codeVertexStoreState, epoch))
}
