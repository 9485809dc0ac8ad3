package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/storage"
	"github.com/ledgerbft/node/storage/badger/operation"
)

// Ledger implements the committed ledger storage around a badger DB.
type Ledger struct {
	db          *badger.DB
	epochProofs *Cache[uint64, *flow.LedgerProof]
}

var _ storage.Ledger = (*Ledger)(nil)

func NewLedger(db *badger.DB) *Ledger {
	store := func(epoch uint64, proof *flow.LedgerProof) func(*badger.Txn) error {
		return operation.SkipDuplicates(operation.InsertEpochProof(epoch, proof))
	}

	retrieve := func(epoch uint64) func(*badger.Txn) (*flow.LedgerProof, error) {
		return func(tx *badger.Txn) (*flow.LedgerProof, error) {
			var proof flow.LedgerProof
			err := operation.RetrieveEpochProof(epoch, &proof)(tx)
			return &proof, err
		}
	}

	return &Ledger{
		db: db,
		epochProofs: newCache[uint64, *flow.LedgerProof](
			withLimit[uint64, *flow.LedgerProof](64),
			withStore(store),
			withRetrieve(retrieve),
		),
	}
}

func (l *Ledger) Store(commands []flow.Command, proof *flow.LedgerProof) error {
	header := &proof.Header
	if uint64(len(commands)) > header.Height {
		return fmt.Errorf("%d commands exceed ledger height %d", len(commands), header.Height)
	}
	first := header.Height - uint64(len(commands)) + 1

	err := operation.RetryOnConflict(l.db.Update, func(tx *badger.Txn) error {
		for i, command := range commands {
			err := operation.InsertCommand(first+uint64(i), command)(tx)
			if err != nil {
				return fmt.Errorf("could not insert command at height %d: %w", first+uint64(i), err)
			}
		}
		err := operation.UpsertProof(proof)(tx)
		if err != nil {
			return fmt.Errorf("could not store proof: %w", err)
		}
		err = operation.UpsertLastProof(proof)(tx)
		if err != nil {
			return fmt.Errorf("could not update last proof: %w", err)
		}
		if header.IsEndOfEpoch() {
			err = l.epochProofs.PutTx(header.Epoch, proof)(tx)
			if err != nil {
				return fmt.Errorf("could not index epoch proof: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return operation.TerminateOnFullDisk(err)
	}
	if header.IsEndOfEpoch() {
		l.epochProofs.Insert(header.Epoch, proof)
	}
	return nil
}

func (l *Ledger) LastProof() (*flow.LedgerProof, error) {
	var proof flow.LedgerProof
	err := l.db.View(operation.RetrieveLastProof(&proof))
	if err != nil {
		return nil, err
	}
	return &proof, nil
}

func (l *Ledger) EpochProof(epoch uint64) (*flow.LedgerProof, error) {
	tx := l.db.NewTransaction(false)
	defer tx.Discard()
	return l.epochProofs.Get(epoch)(tx)
}

func (l *Ledger) CommandsAndProofAfter(from *flow.LedgerHeader, maxCommands uint64) (*flow.CommandsAndProof, error) {
	var result *flow.CommandsAndProof
	err := l.db.View(func(tx *badger.Txn) error {
		var end *flow.LedgerProof
		err := operation.IterateProofsAfter(from, func(proof *flow.LedgerProof) (bool, error) {
			if proof.Header.Height < from.Height {
				return false, fmt.Errorf("proof at height %d is behind requested height %d", proof.Header.Height, from.Height)
			}
			if end != nil {
				if proof.Header.Epoch != end.Header.Epoch || proof.Header.Height-from.Height > maxCommands {
					return false, nil
				}
			}
			cpy := *proof
			end = &cpy
			return !end.Header.IsEndOfEpoch(), nil
		})(tx)
		if err != nil {
			return fmt.Errorf("could not iterate proofs: %w", err)
		}
		if end == nil {
			return storage.ErrNotFound
		}

		commands := make([]flow.Command, 0, end.Header.Height-from.Height)
		if end.Header.Height > from.Height {
			err = operation.RetrieveCommandRange(from.Height+1, end.Header.Height, &commands)(tx)
			if err != nil {
				return fmt.Errorf("could not retrieve commands: %w", err)
			}
		}
		result = &flow.CommandsAndProof{Commands: commands, Proof: end}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return result, nil
}
