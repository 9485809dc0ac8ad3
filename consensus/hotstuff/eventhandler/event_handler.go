package eventhandler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/consensus/hotstuff/timeoutcollector"
	"github.com/ledgerbft/node/consensus/hotstuff/votecollector"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/signature"
	"github.com/ledgerbft/node/utils/logging"
)

// pendingProposal is a verified proposal waiting for vertex sync to fetch
// the vertex its QC certifies.
type pendingProposal struct {
	originID flow.Identifier
	proposal *messages.Proposal
}

// EventHandler is the main handler for individual events that trigger state transition.
// It exposes API to handle one event at a time synchronously. The caller is
// responsible for running the event loop to ensure that.
type EventHandler struct {
	log          zerolog.Logger
	committee    hotstuff.Committee
	paceMaker    hotstuff.PaceMaker
	vertexStore  hotstuff.VertexStore
	sync         hotstuff.VertexSync
	verifier     hotstuff.Verifier
	safetyRules  hotstuff.SafetyRules
	votes        *votecollector.VoteCollectors
	timeouts     *timeoutcollector.TimeoutCollectors
	payload      hotstuff.PayloadBuilder
	signer       signature.Signer
	communicator hotstuff.Communicator
	dispatcher   events.Dispatcher
	notifier     hotstuff.Consumer
	metrics      module.HotstuffMetrics

	// proposals waiting for a vertex, keyed by the ID of that vertex
	pending map[flow.Identifier][]pendingProposal
}

var _ hotstuff.EventHandler = (*EventHandler)(nil)

// NewEventHandler creates an EventHandler instance with initial components.
// Own proposals are looped back through the dispatcher, so they are processed
// like every other proposal once they leave the node's queue.
func NewEventHandler(
	log zerolog.Logger,
	committee hotstuff.Committee,
	paceMaker hotstuff.PaceMaker,
	vertexStore hotstuff.VertexStore,
	sync hotstuff.VertexSync,
	verifier hotstuff.Verifier,
	safetyRules hotstuff.SafetyRules,
	payload hotstuff.PayloadBuilder,
	signer signature.Signer,
	communicator hotstuff.Communicator,
	dispatcher events.Dispatcher,
	notifier hotstuff.Consumer,
	metrics module.HotstuffMetrics,
) (*EventHandler, error) {
	if committee.Self() != signer.NodeID() {
		return nil, model.NewConfigurationErrorf("signer %x does not match the committee's own node %x", signer.NodeID(), committee.Self())
	}
	e := &EventHandler{
		log:          log.With().Str("hotstuff", "participant").Uint64("epoch", committee.Epoch()).Logger(),
		committee:    committee,
		paceMaker:    paceMaker,
		vertexStore:  vertexStore,
		sync:         sync,
		verifier:     verifier,
		safetyRules:  safetyRules,
		votes:        votecollector.NewVoteCollectors(committee),
		timeouts:     timeoutcollector.NewTimeoutCollectors(committee),
		payload:      payload,
		signer:       signer,
		communicator: communicator,
		dispatcher:   dispatcher,
		notifier:     notifier,
		metrics:      metrics,
		pending:      make(map[flow.Identifier][]pendingProposal),
	}
	return e, nil
}

// OnReceiveProposal processes the vertex when a proposal is received. If the
// vertex certified by the proposal's QC is missing, the proposal waits until
// vertex sync fetched it.
func (e *EventHandler) OnReceiveProposal(originID flow.Identifier, proposal *messages.Proposal) error {
	vertex := proposal.Vertex
	curView := e.paceMaker.CurView()

	log := e.log.With().
		Uint64("cur_view", curView).
		Uint64("vertex_view", vertex.View).
		Hex("origin_id", logging.ID(originID)).
		Logger()

	// ignore stale proposals
	if vertex.View <= e.vertexStore.Root().View {
		log.Debug().Msg("stale proposal")
		return nil
	}

	err := e.verifier.VerifyProposal(proposal)
	if model.IsInvalidVertexError(err) {
		e.onInvalidMessage(originID, "proposal", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not verify proposal for view %d: %w", vertex.View, err)
	}

	e.notifier.OnReceiveProposal(curView, proposal)
	return e.processProposal(originID, proposal)
}

// processProposal makes sure the parent of the verified proposal is held,
// stores the vertex and votes for it if it is for the current view.
func (e *EventHandler) processProposal(originID flow.Identifier, proposal *messages.Proposal) error {
	vertex := proposal.Vertex
	result, err := e.sync.SyncToQC(proposal.HighQC(), vertex.ProposerID)
	if err != nil {
		return fmt.Errorf("could not sync to QC of proposal for view %d: %w", vertex.View, err)
	}
	switch result {
	case hotstuff.SyncResultInvalid:
		return nil
	case hotstuff.SyncResultInProgress:
		e.addPending(originID, proposal, vertex.ParentID())
		return nil
	}

	_, err = e.vertexStore.InsertVertex(vertex, nil)
	if missing, ok := model.AsMissingParentError(err); ok {
		e.addPending(originID, proposal, missing.ParentID)
		return nil
	}
	if model.IsInvalidVertexError(err) {
		e.onInvalidMessage(originID, "proposal", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot add proposal to vertex store (%x): %w", vertex.ID(), err)
	}

	nve, err := e.paceMaker.ProcessQC(vertex.QC)
	if err != nil {
		return fmt.Errorf("could not process QC for vertex %x: %w", vertex.ID(), err)
	}
	tcNve, err := e.paceMaker.ProcessTC(proposal.LastViewTC)
	if err != nil {
		return fmt.Errorf("could not process TC for vertex %x: %w", vertex.ID(), err)
	}
	if nve != nil || tcNve != nil {
		err = e.startNewView()
		if err != nil {
			return err
		}
	}

	// if the vertex is for the current view, then try voting for this vertex
	err = e.processVertexForCurrentView(proposal)
	if err != nil {
		return fmt.Errorf("failed processing current vertex: %w", err)
	}

	return e.resumePending(vertex.ID())
}

func (e *EventHandler) addPending(originID flow.Identifier, proposal *messages.Proposal, waitingFor flow.Identifier) {
	e.log.Debug().
		Uint64("vertex_view", proposal.View()).
		Hex("waiting_for", logging.ID(waitingFor)).
		Msg("proposal waits for vertex sync")
	e.pending[waitingFor] = append(e.pending[waitingFor], pendingProposal{originID: originID, proposal: proposal})
}

// resumePending processes the proposals that waited for the given vertex.
func (e *EventHandler) resumePending(vertexID flow.Identifier) error {
	waiting, ok := e.pending[vertexID]
	if !ok {
		return nil
	}
	delete(e.pending, vertexID)
	for _, p := range waiting {
		err := e.processProposal(p.originID, p.proposal)
		if err != nil {
			return err
		}
	}
	return nil
}

// OnVertexSynced processes the proposals that waited for the synced vertex
// and picks up the QCs sync inserted.
func (e *EventHandler) OnVertexSynced(event model.VertexSyncedEvent) error {
	nve, err := e.paceMaker.ProcessQC(e.vertexStore.HighQC().HighestQC)
	if err != nil {
		return fmt.Errorf("could not process synced QC: %w", err)
	}
	if nve != nil {
		err = e.startNewView()
		if err != nil {
			return err
		}
	}
	return e.resumePending(event.VertexID)
}

// processVertexForCurrentView votes for the vertex if it is for the current
// view and the safety rules allow it.
func (e *EventHandler) processVertexForCurrentView(proposal *messages.Proposal) error {
	// sanity check that vertex is really for the current view:
	curView := e.paceMaker.CurView()
	vertex := proposal.Vertex
	if vertex.View != curView {
		// ignore outdated proposals in case we have moved forward
		return nil
	}
	nextLeader := e.committee.LeaderForView(curView + 1)
	return e.ownVote(proposal, curView, nextLeader)
}

// ownVote generates and forwards the own vote, if we decide to vote.
// Any errors are potential symptoms of uncovered edge cases or corrupted internal state (fatal).
func (e *EventHandler) ownVote(proposal *messages.Proposal, curView uint64, nextLeader flow.Identifier) error {
	vertex := proposal.Vertex
	log := e.log.With().
		Uint64("vertex_view", vertex.View).
		Hex("vertex_id", logging.ID(vertex.ID())).
		Uint64("parent_view", vertex.ParentView()).
		Hex("parent_id", logging.ID(vertex.ParentID())).
		Hex("signer", logging.ID(vertex.ProposerID)).
		Logger()

	committed := e.vertexStore.CommitHeaderFor(vertex)
	ownVote, err := e.safetyRules.ProduceVote(proposal, curView, committed)
	if err != nil {
		if !model.IsNoVoteError(err) {
			// unknown error, exit the event loop
			return fmt.Errorf("could not produce vote: %w", err)
		}
		log.Debug().Err(err).Msg("should not vote for this vertex")
		return nil
	}

	e.notifier.OnOwnVote(ownVote, nextLeader)
	if e.committee.Self() == nextLeader {
		return e.processVote(ownVote)
	}
	err = e.communicator.SendVote(ownVote, nextLeader)
	if err != nil {
		log.Warn().Err(err).Msg("could not forward vote")
	}
	return nil
}

// OnReceiveVote processes a vote for a vertex this replica leads the next view of.
func (e *EventHandler) OnReceiveVote(originID flow.Identifier, vote *messages.Vote) error {
	if e.committee.LeaderForView(vote.View()+1) != e.committee.Self() {
		e.log.Debug().
			Uint64("vote_view", vote.View()).
			Hex("origin_id", logging.ID(originID)).
			Msg("ignoring vote for a view this replica does not collect")
		return nil
	}
	if vote.View()+1 < e.paceMaker.CurView() {
		return nil
	}

	err := e.verifier.VerifyVote(vote)
	if model.IsInvalidVoteError(err) {
		e.onInvalidMessage(originID, "vote", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not verify vote for view %d: %w", vote.View(), err)
	}
	return e.processVote(vote)
}

func (e *EventHandler) processVote(vote *messages.Vote) error {
	qc, err := e.votes.AddVote(vote)
	if model.IsDoubleVoteError(err) || model.IsInvalidSignerError(err) {
		e.onInvalidMessage(vote.SignerID, "vote", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not add vote for view %d: %w", vote.View(), err)
	}
	if qc == nil {
		return nil
	}

	e.notifier.OnQCConstructedFromVotes(qc)
	return e.OnQCConstructed(qc, vote.SignerID)
}

// OnQCConstructed processes a QC built from the replica's own vote collection.
// If the certified vertex is unknown, it is fetched from lastVoter and the
// other signers.
func (e *EventHandler) OnQCConstructed(qc *flow.QuorumCertificate, lastVoter flow.Identifier) error {
	log := e.log.With().
		Uint64("cur_view", e.paceMaker.CurView()).
		Uint64("qc_view", qc.View()).
		Hex("qc_vertex_id", logging.ID(qc.VertexID())).
		Logger()
	log.Debug().Msg("received constructed QC")

	// ignore stale qc
	if qc.View() < e.vertexStore.Root().View {
		log.Debug().Msg("stale qc")
		return nil
	}

	added, err := e.vertexStore.AddQC(qc)
	if err != nil {
		return fmt.Errorf("could not add constructed QC to vertex store: %w", err)
	}
	if !added {
		// we collected votes for a vertex we never received
		highQC := flow.HighQC{
			HighestQC:          qc,
			HighestCommittedQC: e.vertexStore.HighQC().HighestCommittedQC,
		}
		_, err = e.sync.SyncToQC(highQC, lastVoter)
		if err != nil {
			return fmt.Errorf("could not sync to constructed QC: %w", err)
		}
	}
	return e.processQC(qc)
}

// processQC check whether the QC will trigger view change.
// If triggered, then go to the new view.
func (e *EventHandler) processQC(qc *flow.QuorumCertificate) error {
	newViewEvent, err := e.paceMaker.ProcessQC(qc)
	if err != nil {
		return fmt.Errorf("could not process QC: %w", err)
	}
	if newViewEvent == nil {
		e.log.Debug().Uint64("qc_view", qc.View()).Msg("QC didn't trigger view change, nothing to do")
		return nil
	}

	// current view has changed, go to new view
	return e.startNewView()
}

// OnReceiveTimeout processes a timeout vote. The certificates it carries may
// move the replica forward; the vote itself is collected towards a TC.
func (e *EventHandler) OnReceiveTimeout(originID flow.Identifier, timeout *messages.TimeoutVote) error {
	log := e.log.With().
		Uint64("cur_view", e.paceMaker.CurView()).
		Uint64("timeout_view", timeout.View).
		Hex("signer_id", logging.ID(timeout.SignerID)).
		Logger()

	if timeout.View < e.vertexStore.Root().View {
		log.Debug().Msg("stale timeout")
		return nil
	}

	err := e.verifier.VerifyTimeout(timeout)
	if model.IsInvalidVoteError(err) {
		e.onInvalidMessage(originID, "timeout", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not verify timeout for view %d: %w", timeout.View, err)
	}

	_, err = e.sync.SyncToQC(timeout.Certificates(), timeout.SignerID)
	if err != nil {
		return fmt.Errorf("could not sync to certificates of timeout: %w", err)
	}
	nve, err := e.paceMaker.ProcessQC(timeout.HighQC)
	if err != nil {
		return fmt.Errorf("could not process QC of timeout: %w", err)
	}
	tcNve, err := e.paceMaker.ProcessTC(timeout.LastViewTC)
	if err != nil {
		return fmt.Errorf("could not process TC of timeout: %w", err)
	}
	if nve != nil || tcNve != nil {
		err = e.startNewView()
		if err != nil {
			return err
		}
	}

	return e.processTimeout(timeout)
}

func (e *EventHandler) processTimeout(timeout *messages.TimeoutVote) error {
	if timeout.View < e.paceMaker.CurView() {
		return nil
	}
	result, err := e.timeouts.AddTimeout(timeout)
	if model.IsInvalidSignerError(err) {
		e.onInvalidMessage(timeout.SignerID, "timeout", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not add timeout for view %d: %w", timeout.View, err)
	}
	if result.PartialTC {
		e.paceMaker.OnPartialTC(timeout.View)
	}
	if result.TC == nil {
		return nil
	}

	e.notifier.OnTCConstructedFromTimeouts(result.TC)
	return e.OnTCConstructed(result.TC)
}

// OnTCConstructed processes a TC built from the replica's own timeout collection.
func (e *EventHandler) OnTCConstructed(tc *flow.TimeoutCertificate) error {
	err := e.vertexStore.InsertTC(tc)
	if err != nil {
		return fmt.Errorf("could not store TC for view %d: %w", tc.View, err)
	}
	nve, err := e.paceMaker.ProcessTC(tc)
	if err != nil {
		return fmt.Errorf("could not process constructed TC for view %d: %w", tc.View, err)
	}
	if nve == nil {
		return nil
	}
	return e.startNewView()
}

// OnLocalTimeout is called when the timeout event created by pacemaker looped through the
// event loop.
func (e *EventHandler) OnLocalTimeout(lt model.LocalTimeout) error {
	if !e.paceMaker.ProcessLocalTimeout(lt) {
		return nil
	}

	curView := e.paceMaker.CurView()
	newestQC := e.paceMaker.NewestQC()
	lastViewTC := e.paceMaker.LastViewTC()

	log := e.log.With().
		Uint64("cur_view", curView).
		Uint64("tick", lt.Tick).
		Logger()
	// notifications about time-outs and view-changes are generated by PaceMaker; no need to send a notification here
	log.Debug().Msg("timeout received from event loop")

	produced, err := e.safetyRules.ProduceTimeout(curView, newestQC, lastViewTC)
	if model.IsNoTimeoutError(err) {
		log.Debug().Err(err).Msg("not timing out")
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not produce timeout: %w", err)
	}

	// the committed QC is not signed, it helps lagging replicas find the ledger state to sync to
	timeout := *produced
	timeout.CommittedQC = e.vertexStore.HighQC().HighestCommittedQC

	if lt.Tick == 0 {
		e.notifier.OnOwnTimeout(&timeout)
	}
	err = e.communicator.BroadcastTimeout(&timeout)
	if err != nil {
		log.Warn().Err(err).Msg("could not broadcast timeout")
	}

	// contribute produced timeout to TC aggregation logic
	return e.processTimeout(&timeout)
}

// Start will start the pacemaker's timer and start the new view
func (e *EventHandler) Start() error {
	e.paceMaker.Start()
	return e.startNewView()
}

// startNewView will only be called when there is a view change from pacemaker.
// It reads the current view, and check if it needs to propose in this view.
func (e *EventHandler) startNewView() error {
	curView := e.paceMaker.CurView()
	if curView > 1 {
		e.votes.PruneUpToView(curView - 1)
	}
	e.timeouts.PruneUpToView(curView)
	e.prunePending()

	currentLeader := e.committee.LeaderForView(curView)
	log := e.log.With().
		Uint64("cur_view", curView).
		Hex("leader_id", logging.ID(currentLeader)).
		Logger()
	log.Debug().
		Uint64("root_view", e.vertexStore.Root().View).
		Msg("entering new view")

	if e.committee.Self() != currentLeader {
		return nil
	}
	log.Debug().Msg("generating vertex proposal as leader")

	// as the leader of the current view,
	// build the vertex proposal for the current view
	newestQC := e.paceMaker.NewestQC()
	lastViewTC := e.paceMaker.LastViewTC()

	parentHeader, found := e.vertexStore.PreparedHeader(newestQC.VertexID())
	if !found {
		// we don't know anything about vertex referenced by our newest QC, in this case we can't
		// create a valid proposal since we can't execute the payload on top of it.
		log.Debug().
			Uint64("qc_view", newestQC.View()).
			Hex("vertex_id", logging.ID(newestQC.VertexID())).
			Msg("no parent found for newest QC, can't propose")
		return nil
	}

	// A leader for view N must present a QC or a TC of view N-1. The pacemaker
	// only advances views on such certificates, so failing these checks is a
	// symptom of state corruption.
	if newestQC.View()+1 != curView {
		if lastViewTC == nil {
			return fmt.Errorf("possible state corruption, expected lastViewTC to be not nil")
		}
		if lastViewTC.View+1 != curView {
			return fmt.Errorf("possible state corruption, don't have QC(view=%d) and TC(view=%d) for previous view(currentView=%d)",
				newestQC.View(), lastViewTC.View, curView)
		}
	} else {
		// the last view ended with a QC, only the QC is included
		lastViewTC = nil
	}

	vertex := &flow.Vertex{
		Epoch:      e.committee.Epoch(),
		View:       curView,
		QC:         newestQC,
		ProposerID: e.committee.Self(),
		Commands:   e.payload.BuildPayload(parentHeader, curView),
	}
	proposal := &messages.Proposal{
		Vertex:      vertex,
		LastViewTC:  lastViewTC,
		CommittedQC: e.vertexStore.HighQC().HighestCommittedQC,
		Signature:   e.signer.Sign(vertex.ID()),
	}
	e.notifier.OnOwnProposal(proposal)

	log.Debug().
		Uint64("vertex_view", vertex.View).
		Hex("vertex_id", logging.ID(vertex.ID())).
		Uint64("parent_view", newestQC.View()).
		Hex("parent_id", logging.ID(newestQC.VertexID())).
		Int("commands", len(vertex.Commands)).
		Msg("forwarding proposal to communicator for broadcasting")

	err := e.communicator.BroadcastProposal(proposal)
	if err != nil {
		log.Warn().Err(err).Msg("could not forward proposal")
	}
	// the own proposal enters the vertex store through the event loop
	e.dispatcher.Dispatch(proposal)
	return nil
}

// prunePending drops waiting proposals that can no longer be inserted.
func (e *EventHandler) prunePending() {
	rootView := e.vertexStore.Root().View
	for vertexID, waiting := range e.pending {
		kept := waiting[:0]
		for _, p := range waiting {
			if p.proposal.View() > rootView {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(e.pending, vertexID)
			continue
		}
		e.pending[vertexID] = kept
	}
}

func (e *EventHandler) onInvalidMessage(originID flow.Identifier, kind string, err error) {
	e.log.Warn().
		Err(err).
		Hex("origin_id", logging.ID(originID)).
		Str("message", kind).
		Bool(logging.KeySuspicious, true).
		Msg("invalid message")
	e.metrics.InvalidMessage(kind)
	e.notifier.OnInvalidMessage(originID, err)
}
