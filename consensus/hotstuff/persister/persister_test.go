package persister_test

import (
	"testing"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/persister"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/storage"
	"github.com/ledgerbft/node/utils/unittest"
)

func TestSafetyAndLivenessData(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		p := persister.New(db)

		_, err := p.GetSafetyData()
		require.ErrorIs(t, err, storage.ErrNotFound)
		_, err = p.GetLivenessData()
		require.ErrorIs(t, err, storage.ErrNotFound)

		participants := unittest.ParticipantsFixture(4)
		_, genesisQC := unittest.GenesisFixture(unittest.GenesisHeaderFixture())
		timeout := unittest.TimeoutVoteFixture(participants.Key(0), 1, 7, genesisQC, 100)

		safety := &hotstuff.SafetyData{Epoch: 1, LastVotedView: 7, LastTimeout: timeout}
		require.NoError(t, p.PutSafetyData(safety))
		liveness := &hotstuff.LivenessData{Epoch: 1, CurrentView: 8, NewestQC: genesisQC}
		require.NoError(t, p.PutLivenessData(liveness))

		storedSafety, err := p.GetSafetyData()
		require.NoError(t, err)
		assert.Equal(t, uint64(7), storedSafety.LastVotedView)
		assert.Equal(t, timeout.Digest(), storedSafety.LastTimeout.Digest())

		storedLiveness, err := p.GetLivenessData()
		require.NoError(t, err)
		assert.Equal(t, uint64(8), storedLiveness.CurrentView)
		assert.Equal(t, genesisQC.ID(), storedLiveness.NewestQC.ID())
	})
}

func TestVertexStoreState(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		p := persister.New(db)
		participants := unittest.ParticipantsFixture(4)

		genesis, genesisQC := unittest.GenesisFixture(unittest.GenesisHeaderFixture())
		v1, qc1 := unittest.CertifiedVertexFixture(participants, genesisQC, 1, nil)

		state := &hotstuff.VertexStoreState{
			Epoch:              1,
			Root:               genesis,
			RootHeader:         genesis.Genesis,
			RootQC:             genesisQC,
			Vertices:           []*flow.Vertex{v1},
			HighestQC:          qc1,
			HighestCommittedQC: genesisQC,
			QCs:                []*flow.QuorumCertificate{qc1},
		}
		require.NoError(t, p.SaveVertexStoreState(state))

		loaded, err := p.LoadVertexStoreState(1)
		require.NoError(t, err)
		assert.Equal(t, genesis.ID(), loaded.Root.ID())
		require.Len(t, loaded.Vertices, 1)
		assert.Equal(t, v1.ID(), loaded.Vertices[0].ID())
		assert.Equal(t, qc1.ID(), loaded.HighestQC.ID())

		// saving the next epoch's state drops the previous one
		next := *state
		next.Epoch = 2
		require.NoError(t, p.SaveVertexStoreState(&next))
		_, err = p.LoadVertexStoreState(1)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
