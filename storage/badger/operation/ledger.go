package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/ledgerbft/node/model/flow"
)

// InsertCommand inserts the command committed at the given height.
// Returns storage.ErrAlreadyExists if a command is already stored at that height.
func InsertCommand(height uint64, command flow.Command) func(*badger.Txn) error {
	return insert(makePrefix(codeCommand, height), command)
}

// RetrieveCommand retrieves the command committed at the given height.
// Returns storage.ErrNotFound if no command is stored at that height.
func RetrieveCommand(height uint64, command *flow.Command) func(*badger.Txn) error {
	return retrieve(makePrefix(codeCommand, height), command)
}

// RetrieveCommandRange retrieves the commands of heights [from, to], in height order.
// Returns storage.ErrNotFound if any of the commands is missing.
func RetrieveCommandRange(from uint64, to uint64, commands *[]flow.Command) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		for height := from; height <= to; height++ {
			var command flow.Command
			err := RetrieveCommand(height, &command)(tx)
			if err != nil {
				return err
			}
			*commands = append(*commands, command)
		}
		return nil
	}
}

func proofKey(header *flow.LedgerHeader) []byte {
	return makePrefix(codeProof, header.Epoch, header.Height, header.View)
}

// UpsertProof stores the ledger proof keyed by the (epoch, height, view) of its
// header, so proofs iterate in ledger order.
func UpsertProof(proof *flow.LedgerProof) func(*badger.Txn) error {
	return upsert(proofKey(&proof.Header), proof)
}

// IterateProofsAfter calls handle with every stored proof strictly after the
// given ledger position, in ledger order, until handle returns false.
func IterateProofsAfter(from *flow.LedgerHeader, handle func(proof *flow.LedgerProof) (bool, error)) func(*badger.Txn) error {
	start := proofKey(from)
	return iterate(makePrefix(codeProof), start, func() (checkFunc, createFunc, handleFunc) {
		var proof flow.LedgerProof
		check := func(key []byte) bool {
			// the iteration starts at `from` itself, which is not after `from`
			return string(key) != string(start)
		}
		create := func() interface{} {
			return &proof
		}
		h := func() (bool, error) {
			return handle(&proof)
		}
		return check, create, h
	})
}

// UpsertLastProof updates the pointer to the latest committed proof.
func UpsertLastProof(proof *flow.LedgerProof) func(*badger.Txn) error {
	return upsert(makePrefix(codeLastProof), proof)
}

// RetrieveLastProof retrieves the latest committed proof.
// Returns storage.ErrNotFound if nothing was committed.
func RetrieveLastProof(proof *flow.LedgerProof) func(*badger.Txn) error {
	return retrieve(makePrefix(codeLastProof), proof)
}

// InsertEpochProof indexes the proof that ended the given epoch.
// Returns storage.ErrAlreadyExists if the epoch already has an ending proof.
func InsertEpochProof(epoch uint64, proof *flow.LedgerProof) func(*badger.Txn) error {
	return insert(makePrefix(codeEpochProof, epoch), proof)
}

// RetrieveEpochProof retrieves the proof that ended the given epoch.
// Returns storage.ErrNotFound if the epoch has not ended.
func RetrieveEpochProof(epoch uint64, proof *flow.LedgerProof) func(*badger.Txn) error {
	return retrieve(makePrefix(codeEpochProof, epoch), proof)
}
