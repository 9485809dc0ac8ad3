package notifications

import (
	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/utils/logging"
)

// LogConsumer is an implementation of the notifications consumer that logs a
// message for each event.
type LogConsumer struct {
	log zerolog.Logger
}

var _ hotstuff.Consumer = (*LogConsumer)(nil)

func NewLogConsumer(log zerolog.Logger) *LogConsumer {
	lc := &LogConsumer{
		log: log,
	}
	return lc
}

func (lc *LogConsumer) OnVertexInserted(vertex *flow.Vertex) {
	entry := lc.log.Debug().
		Uint64("vertex_view", vertex.View).
		Hex("vertex_id", logging.ID(vertex.ID())).
		Hex("proposer_id", logging.ID(vertex.ProposerID)).
		Int("commands", len(vertex.Commands))

	if vertex.QC != nil {
		entry.
			Uint64("qc_view", vertex.QC.View()).
			Hex("qc_vertex_id", logging.ID(vertex.QC.VertexID()))
	}

	entry.Msg("vertex inserted")
}

func (lc *LogConsumer) OnHighQCUpdated(qc *flow.QuorumCertificate) {
	lc.log.Debug().
		Uint64("qc_view", qc.View()).
		Hex("qc_vertex_id", logging.ID(qc.VertexID())).
		Msg("high QC updated")
}

func (lc *LogConsumer) OnVerticesCommitted(vertices []*flow.Vertex, proof *flow.LedgerProof) {
	lc.log.Info().
		Int("vertices", len(vertices)).
		Uint64("ledger_view", proof.Header.View).
		Uint64("ledger_height", proof.Header.Height).
		Bool("end_of_epoch", proof.Header.IsEndOfEpoch()).
		Msg("vertices committed")
}

func (lc *LogConsumer) OnDoubleCertification(first *flow.QuorumCertificate, second *flow.QuorumCertificate) {
	lc.log.Error().
		Uint64("view", first.View()).
		Hex("first_vertex_id", logging.ID(first.VertexID())).
		Hex("second_vertex_id", logging.ID(second.VertexID())).
		Msg("double certification detected")
}

func (lc *LogConsumer) OnViewChange(oldView, newView uint64) {
	lc.log.Debug().
		Uint64("old_view", oldView).
		Uint64("new_view", newView).
		Msg("entered new view")
}

func (lc *LogConsumer) OnQCTriggeredViewChange(oldView uint64, newView uint64, qc *flow.QuorumCertificate) {
	lc.log.Debug().
		Uint64("qc_view", qc.View()).
		Hex("qc_vertex_id", logging.ID(qc.VertexID())).
		Uint64("old_view", oldView).
		Uint64("new_view", newView).
		Msg("QC triggered view change")
}

func (lc *LogConsumer) OnTCTriggeredViewChange(oldView uint64, newView uint64, tc *flow.TimeoutCertificate) {
	lc.log.Debug().
		Uint64("tc_view", tc.View).
		Uint64("tc_newest_qc_view", tc.HighQC.View()).
		Uint64("old_view", oldView).
		Uint64("new_view", newView).
		Msg("TC triggered view change")
}

func (lc *LogConsumer) OnStartingTimeout(info model.TimerInfo) {
	lc.log.Debug().
		Uint64("timeout_view", info.View).
		Time("timeout_cutoff", info.StartTime.Add(info.Duration)).
		Dur("timeout_duration", info.Duration).
		Msg("timeout started")
}

func (lc *LogConsumer) OnLocalTimeout(view uint64) {
	lc.log.Debug().
		Uint64("view", view).
		Msg("local timeout triggered")
}

func (lc *LogConsumer) OnReceiveProposal(currentView uint64, proposal *messages.Proposal) {
	lc.log.Debug().
		Uint64("cur_view", currentView).
		Uint64("proposal_view", proposal.View()).
		Hex("proposer_id", logging.ID(proposal.Vertex.ProposerID)).
		Bool("has_last_view_tc", proposal.LastViewTC != nil).
		Msg("processing proposal")
}

func (lc *LogConsumer) OnOwnProposal(proposal *messages.Proposal) {
	lc.log.Debug().
		Uint64("proposal_view", proposal.View()).
		Int("commands", len(proposal.Vertex.Commands)).
		Msg("publishing own proposal")
}

func (lc *LogConsumer) OnOwnVote(vote *messages.Vote, recipientID flow.Identifier) {
	lc.log.Debug().
		Uint64("vote_view", vote.View()).
		Hex("vertex_id", logging.ID(vote.VoteData.VertexID)).
		Hex("recipient_id", logging.ID(recipientID)).
		Msg("publishing own vote")
}

func (lc *LogConsumer) OnOwnTimeout(timeout *messages.TimeoutVote) {
	lc.log.Debug().
		Uint64("timeout_view", timeout.View).
		Uint64("timeout_newest_qc_view", timeout.HighQC.View()).
		Bool("has_last_view_tc", timeout.LastViewTC != nil).
		Msg("publishing own timeout")
}

func (lc *LogConsumer) OnQCConstructedFromVotes(qc *flow.QuorumCertificate) {
	lc.log.Debug().
		Uint64("qc_view", qc.View()).
		Hex("qc_vertex_id", logging.ID(qc.VertexID())).
		Bool("commits", qc.VoteData.Committed != nil).
		Msg("QC constructed from votes")
}

func (lc *LogConsumer) OnTCConstructedFromTimeouts(tc *flow.TimeoutCertificate) {
	lc.log.Debug().
		Uint64("tc_view", tc.View).
		Uint64("newest_qc_view", tc.HighQC.View()).
		Int("signers", len(tc.Signatures)).
		Msg("TC constructed from timeouts")
}

func (lc *LogConsumer) OnInvalidMessage(originID flow.Identifier, err error) {
	lc.log.Warn().
		Str(logging.KeySuspicious, "true").
		Hex("origin_id", logging.ID(originID)).
		Err(err).
		Msg("invalid message detected")
}
