package badger_test

import (
	"testing"

	"github.com/dgraph-io/badger/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/storage"
	bstorage "github.com/ledgerbft/node/storage/badger"
	"github.com/ledgerbft/node/utils/unittest"
)

func header(epoch, view, height uint64) flow.LedgerHeader {
	return flow.LedgerHeader{Epoch: epoch, View: view, Height: height, Accumulator: unittest.IdentifierFixture()}
}

func TestLedgerStoreAndRetrieve(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		p := unittest.ParticipantsFixture(4)
		ledger := bstorage.NewLedger(db)

		_, err := ledger.LastProof()
		require.ErrorIs(t, err, storage.ErrNotFound)

		proof := unittest.LedgerProofFixture(p, header(1, 3, 2), 3)
		require.NoError(t, ledger.Store(unittest.CommandsFixture(2), proof))

		last, err := ledger.LastProof()
		require.NoError(t, err)
		assert.Equal(t, proof.ID(), last.ID())

		_, err = ledger.EpochProof(1)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestLedgerRejectsTooManyCommands(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		p := unittest.ParticipantsFixture(4)
		ledger := bstorage.NewLedger(db)

		err := ledger.Store(unittest.CommandsFixture(3), unittest.LedgerProofFixture(p, header(1, 1, 2), 3))
		require.Error(t, err)
	})
}

func TestLedgerEpochProof(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		p := unittest.ParticipantsFixture(4)
		ledger := bstorage.NewLedger(db)

		end := header(1, 5, 1)
		end.NextValidators = p.Set
		proof := unittest.LedgerProofFixture(p, end, 3)
		require.NoError(t, ledger.Store(unittest.CommandsFixture(1), proof))

		stored, err := ledger.EpochProof(1)
		require.NoError(t, err)
		assert.Equal(t, proof.ID(), stored.ID())
		require.Empty(t, cmp.Diff(proof, stored, cmpopts.EquateEmpty()))

		// storing the same ending proof again is a no-op
		require.NoError(t, ledger.Store(nil, proof))
		stored, err = ledger.EpochProof(1)
		require.NoError(t, err)
		assert.Equal(t, proof.ID(), stored.ID())
	})
}

// TestCommandsAndProofAfter checks batches are bounded by size and never
// cross an epoch boundary.
func TestCommandsAndProofAfter(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		p := unittest.ParticipantsFixture(4)
		ledger := bstorage.NewLedger(db)
		commands := unittest.CommandsFixture(6)

		// epoch 1: heights 1-2 at view 2, 3-4 at view 4 which ends the epoch
		proof1 := unittest.LedgerProofFixture(p, header(1, 2, 2), 3)
		require.NoError(t, ledger.Store(commands[0:2], proof1))
		end := header(1, 4, 4)
		end.NextValidators = p.Set
		proof2 := unittest.LedgerProofFixture(p, end, 3)
		require.NoError(t, ledger.Store(commands[2:4], proof2))
		// epoch 2: heights 5-6
		proof3 := unittest.LedgerProofFixture(p, header(2, 3, 6), 3)
		require.NoError(t, ledger.Store(commands[4:6], proof3))

		t.Run("batch limited by size", func(t *testing.T) {
			batch, err := ledger.CommandsAndProofAfter(&flow.LedgerHeader{Epoch: 1}, 3)
			require.NoError(t, err)
			assert.Equal(t, proof1.ID(), batch.Proof.ID())
			assert.Equal(t, commands[0:2], batch.Commands)
		})

		t.Run("batch stops at the end of the epoch", func(t *testing.T) {
			batch, err := ledger.CommandsAndProofAfter(&flow.LedgerHeader{Epoch: 1}, 100)
			require.NoError(t, err)
			assert.Equal(t, proof2.ID(), batch.Proof.ID())
			assert.Equal(t, commands[0:4], batch.Commands)
		})

		t.Run("next epoch starts after the ending proof", func(t *testing.T) {
			batch, err := ledger.CommandsAndProofAfter(&proof2.Header, 100)
			require.NoError(t, err)
			assert.Equal(t, proof3.ID(), batch.Proof.ID())
			assert.Equal(t, commands[4:6], batch.Commands)
		})

		t.Run("nothing newer", func(t *testing.T) {
			_, err := ledger.CommandsAndProofAfter(&proof3.Header, 100)
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	})
}
