package persister

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/storage/badger/operation"
)

// Persister can persist relevant information for hotstuff.
type Persister struct {
	db *badger.DB
}

var _ hotstuff.Persister = (*Persister)(nil)
var _ hotstuff.VertexStorePersister = (*Persister)(nil)

// New creates a new persister using the injected db to persist
// relevant hotstuff data.
func New(db *badger.DB) *Persister {
	return &Persister{db: db}
}

// GetSafetyData will retrieve last persisted safety data.
// Returns storage.ErrNotFound on a fresh database.
func (p *Persister) GetSafetyData() (*hotstuff.SafetyData, error) {
	var safetyData hotstuff.SafetyData
	err := p.db.View(operation.RetrieveSafetyData(&safetyData))
	if err != nil {
		return nil, err
	}
	return &safetyData, nil
}

// GetLivenessData will retrieve last persisted liveness data.
// Returns storage.ErrNotFound on a fresh database.
func (p *Persister) GetLivenessData() (*hotstuff.LivenessData, error) {
	var livenessData hotstuff.LivenessData
	err := p.db.View(operation.RetrieveLivenessData(&livenessData))
	if err != nil {
		return nil, err
	}
	return &livenessData, nil
}

// PutSafetyData persists the last safety data.
func (p *Persister) PutSafetyData(safetyData *hotstuff.SafetyData) error {
	return operation.RetryOnConflict(p.db.Update, operation.UpsertSafetyData(safetyData))
}

// PutLivenessData persists the last liveness data.
func (p *Persister) PutLivenessData(livenessData *hotstuff.LivenessData) error {
	return operation.RetryOnConflict(p.db.Update, operation.UpsertLivenessData(livenessData))
}

// SaveVertexStoreState replaces the vertex store snapshot of the state's epoch
// and drops the snapshot of the previous epoch.
func (p *Persister) SaveVertexStoreState(state *hotstuff.VertexStoreState) error {
	return operation.RetryOnConflict(p.db.Update, func(tx *badger.Txn) error {
		err := operation.UpsertVertexStoreState(state)(tx)
		if err != nil {
			return err
		}
		if state.Epoch > 0 {
			return operation.RemoveVertexStoreState(state.Epoch - 1)(tx)
		}
		return nil
	})
}

// LoadVertexStoreState returns the vertex store snapshot of the given epoch.
// Returns storage.ErrNotFound if there is none.
func (p *Persister) LoadVertexStoreState(epoch uint64) (*hotstuff.VertexStoreState, error) {
	var state hotstuff.VertexStoreState
	err := p.db.View(operation.RetrieveVertexStoreState(epoch, &state))
	if err != nil {
		return nil, err
	}
	return &state, nil
}
