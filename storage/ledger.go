package storage

import (
	"github.com/ledgerbft/node/model/flow"
)

// Ledger persists the committed ledger: commands indexed by height and the
// proofs certifying the headers reached by each commit.
type Ledger interface {
	// Store persists the commands committed on top of the current ledger state
	// together with the proof of the header they lead to. The first command is
	// stored at height proof.Header.Height-len(commands)+1. If the header ends
	// an epoch, the proof is additionally indexed as the epoch's ending proof.
	// No errors are expected during normal operations.
	Store(commands []flow.Command, proof *flow.LedgerProof) error

	// LastProof returns the proof of the latest committed header.
	// Returns storage.ErrNotFound if nothing was committed yet.
	LastProof() (*flow.LedgerProof, error)

	// EpochProof returns the proof of the header that ended the given epoch.
	// Returns storage.ErrNotFound if the epoch has not ended (yet).
	EpochProof(epoch uint64) (*flow.LedgerProof, error)

	// CommandsAndProofAfter returns the commands committed after the given
	// ledger state, ending at the furthest stored proof that keeps the batch
	// within maxCommands and within a single epoch. A batch always ends at the
	// first epoch-ending proof it reaches.
	// Returns storage.ErrNotFound if no proof newer than `from` is stored.
	CommandsAndProofAfter(from *flow.LedgerHeader, maxCommands uint64) (*flow.CommandsAndProof, error)
}
