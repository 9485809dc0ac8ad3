package hotstuff

import (
	"github.com/ledgerbft/node/model/flow"
)

// CommittedUpdate is handed to the ledger each time the commit rule fires.
// Vertices are ordered oldest first; Proof certifies the ledger header reached
// after executing all of them.
type CommittedUpdate struct {
	Vertices []*flow.Vertex
	Proof    *flow.LedgerProof
}

// Ledger is the command executor consensus hands committed vertices to.
type Ledger interface {
	// Prepare speculatively executes the vertex on top of the parent's ledger
	// state and returns the resulting header. It must be deterministic and
	// free of side effects.
	Prepare(parent *flow.LedgerHeader, vertex *flow.Vertex) (*flow.LedgerHeader, error)

	// Commit applies the committed vertices to the ledger.
	// No errors are expected during normal operations.
	Commit(update *CommittedUpdate) error
}

// PayloadBuilder produces the commands of a new proposal.
type PayloadBuilder interface {
	// BuildPayload returns the commands for a vertex proposed at the given
	// view on top of a parent with the given ledger state.
	BuildPayload(parent *flow.LedgerHeader, view uint64) []flow.Command
}
