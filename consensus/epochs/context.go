package epochs

import (
	"fmt"

	"github.com/ledgerbft/node/consensus/bftsync"
	"github.com/ledgerbft/node/consensus/hotstuff/committees"
	"github.com/ledgerbft/node/consensus/hotstuff/eventhandler"
	"github.com/ledgerbft/node/consensus/hotstuff/pacemaker"
	"github.com/ledgerbft/node/consensus/hotstuff/verification"
	"github.com/ledgerbft/node/consensus/hotstuff/vertexstore"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/storage"
)

// Setup describes an epoch: its validator set and the ledger header the
// epoch's genesis vertex starts from.
type Setup struct {
	Epoch      uint64
	Validators *flow.ValidatorSet
	Genesis    *flow.LedgerHeader
}

// SetupFromChange returns the setup of the epoch announced by the change.
func SetupFromChange(change *flow.EpochChange) Setup {
	return Setup{
		Epoch:      change.Epoch,
		Validators: change.Validators,
		Genesis:    change.Genesis(),
	}
}

// CurrentSetup derives the setup of the epoch the committed ledger state is
// in. A header ending its epoch puts the node into the next epoch; otherwise
// the epoch's validator set is taken from the proof that ended the previous
// epoch, or from `initial` for the first epoch.
func CurrentSetup(current *flow.LedgerProof, ledger storage.Ledger, initial Setup) (Setup, error) {
	header := &current.Header
	if header.IsEndOfEpoch() {
		change, err := flow.NewEpochChange(current)
		if err != nil {
			return Setup{}, err
		}
		return SetupFromChange(change), nil
	}
	if header.Epoch <= initial.Epoch {
		return initial, nil
	}

	proof, err := ledger.EpochProof(header.Epoch - 1)
	if err != nil {
		return Setup{}, fmt.Errorf("could not load the proof ending epoch %d: %w", header.Epoch-1, err)
	}
	change, err := flow.NewEpochChange(proof)
	if err != nil {
		return Setup{}, fmt.Errorf("invalid proof stored for the end of epoch %d: %w", header.Epoch-1, err)
	}
	return SetupFromChange(change), nil
}

// EpochContext bundles the consensus components of one epoch. The components
// are discarded as a whole when the next epoch starts. PaceMaker and Handler
// are nil if the node is not a validator of the epoch.
type EpochContext struct {
	Setup     Setup
	Committee *committees.Static
	Verifier  *verification.Verifier
	Store     *vertexstore.VertexStore
	Sync      *bftsync.BFTSync
	Requests  *bftsync.RequestHandler
	PaceMaker *pacemaker.ActivePaceMaker
	Handler   *eventhandler.EventHandler
}

func (c *EpochContext) Epoch() uint64 {
	return c.Setup.Epoch
}

// IsValidator returns whether the node takes part in consensus in this epoch.
func (c *EpochContext) IsValidator() bool {
	return c.Handler != nil
}
