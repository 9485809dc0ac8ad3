package hotstuff

import (
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
)

// EventHandler runs a state machine to process proposals, votes, timeouts and
// local events. Each method processes one event synchronously; the caller
// is the node's event loop and guarantees that no two calls overlap.
//
// Invalid inputs from peers are reported through the notifier and are not
// returned as errors. Any returned error is a symptom of corrupted state and
// is fatal.
type EventHandler interface {
	// Start starts the pacemaker's timer and enters the current view.
	Start() error

	// OnReceiveProposal processes a proposal received from a peer or from the
	// replica itself.
	OnReceiveProposal(originID flow.Identifier, proposal *messages.Proposal) error

	// OnReceiveVote processes a vote sent to this replica as a next leader.
	OnReceiveVote(originID flow.Identifier, vote *messages.Vote) error

	// OnReceiveTimeout processes a timeout vote broadcast by a replica.
	OnReceiveTimeout(originID flow.Identifier, timeout *messages.TimeoutVote) error

	// OnLocalTimeout processes a timer event scheduled by the pacemaker.
	OnLocalTimeout(timeout model.LocalTimeout) error

	// OnVertexSynced resumes the processing of proposals that waited for the
	// synced vertex.
	OnVertexSynced(event model.VertexSyncedEvent) error
}
