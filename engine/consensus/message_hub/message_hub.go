package message_hub

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/network"
	"github.com/ledgerbft/node/utils/logging"
)

// Replicas returns the validators of the epoch currently run by consensus.
type Replicas func() *flow.ValidatorSet

// MessageHub sends the consensus messages of the local replica. Proposals and
// timeouts go to all other replicas of the current epoch, votes to the leader
// of the next view.
//
// MessageHub is safe to use in concurrent environment.
type MessageHub struct {
	log      zerolog.Logger
	self     flow.Identifier
	conduit  network.Conduit
	replicas Replicas
}

var _ hotstuff.Communicator = (*MessageHub)(nil)

func NewMessageHub(log zerolog.Logger, self flow.Identifier, conduit network.Conduit, replicas Replicas) *MessageHub {
	return &MessageHub{
		log:      log.With().Str("component", "message_hub").Logger(),
		self:     self,
		conduit:  conduit,
		replicas: replicas,
	}
}

func (h *MessageHub) SendVote(vote *messages.Vote, recipientID flow.Identifier) error {
	err := h.conduit.Unicast(vote, recipientID)
	if err != nil {
		return fmt.Errorf("could not send vote of view %d to %x: %w", vote.View(), recipientID, err)
	}
	h.log.Debug().
		Uint64("view", vote.View()).
		Hex("recipient_id", logging.ID(recipientID)).
		Msg("vote sent")
	return nil
}

func (h *MessageHub) BroadcastProposal(proposal *messages.Proposal) error {
	err := h.conduit.Publish(proposal, h.recipients()...)
	if err != nil {
		return fmt.Errorf("could not broadcast proposal of view %d: %w", proposal.View(), err)
	}
	h.log.Debug().
		Uint64("view", proposal.View()).
		Hex("vertex_id", logging.ID(proposal.Vertex.ID())).
		Msg("proposal broadcast")
	return nil
}

func (h *MessageHub) BroadcastTimeout(timeout *messages.TimeoutVote) error {
	err := h.conduit.Publish(timeout, h.recipients()...)
	if err != nil {
		return fmt.Errorf("could not broadcast timeout of view %d: %w", timeout.View, err)
	}
	h.log.Debug().Uint64("view", timeout.View).Msg("timeout broadcast")
	return nil
}

// recipients returns the other replicas of the current epoch.
func (h *MessageHub) recipients() flow.IdentifierList {
	return h.replicas().NodeIDs().Filter(func(id flow.Identifier) bool {
		return id != h.self
	})
}
