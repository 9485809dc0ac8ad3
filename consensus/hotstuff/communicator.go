package hotstuff

import (
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
)

// Communicator is the component that allows the HotStuff core logic to
// send messages to other consensus replicas. Delivery is best effort.
type Communicator interface {
	// SendVote sends the vote to the given recipient, typically the leader of the next view.
	SendVote(vote *messages.Vote, recipientID flow.Identifier) error

	// BroadcastProposal sends the proposal to all other replicas of the epoch.
	BroadcastProposal(proposal *messages.Proposal) error

	// BroadcastTimeout sends the timeout vote to all other replicas of the epoch.
	BroadcastTimeout(timeout *messages.TimeoutVote) error
}
