package epochs

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/ratelimit"
	"github.com/ledgerbft/node/network"
	"github.com/ledgerbft/node/storage"
	"github.com/ledgerbft/node/utils/logging"
)

// ContextFactory creates the consensus components of an epoch.
type ContextFactory interface {
	Create(setup Setup) (*EpochContext, error)
}

// EpochManager routes epoch-scoped events to the consensus components of the
// current epoch and replaces the components when the committed ledger enters
// a new epoch. Events of other epochs are dropped; an event of a later epoch
// shows the node fell behind, so its origin is asked for the proof that ended
// the current epoch.
//
// EpochManager is not concurrency safe. It must be driven by a single event loop.
type EpochManager struct {
	log        zerolog.Logger
	self       flow.Identifier
	factory    ContextFactory
	ledger     storage.Ledger
	conduit    network.Conduit
	dispatcher events.Dispatcher
	limiter    *ratelimit.RateLimiter
	metrics    module.EpochMetrics

	current *EpochContext
	// peers asked for the end of the current epoch
	epochRequests map[flow.Identifier]struct{}
}

// New creates the epoch manager and the components of the epoch described by
// setup. Call Start to start consensus.
func New(
	log zerolog.Logger,
	config Config,
	self flow.Identifier,
	factory ContextFactory,
	ledger storage.Ledger,
	conduit network.Conduit,
	dispatcher events.Dispatcher,
	metrics module.EpochMetrics,
	setup Setup,
) (*EpochManager, error) {
	limiter, err := ratelimit.NewRateLimiter(
		config.EpochRequestLimit,
		config.EpochRequestBurst,
		ratelimit.DefaultMaxPeers,
		ratelimit.WithGetTimeNowFunc(dispatcher.Now),
		ratelimit.WithLockoutDuration(config.MinEpochRequestInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create epoch request limiter: %w", err)
	}
	current, err := factory.Create(setup)
	if err != nil {
		return nil, fmt.Errorf("could not create components of epoch %d: %w", setup.Epoch, err)
	}

	return &EpochManager{
		log:           log.With().Str("component", "epoch_manager").Logger(),
		self:          self,
		factory:       factory,
		ledger:        ledger,
		conduit:       conduit,
		dispatcher:    dispatcher,
		limiter:       limiter,
		metrics:       metrics,
		current:       current,
		epochRequests: make(map[flow.Identifier]struct{}),
	}, nil
}

// Current returns the components of the current epoch.
func (m *EpochManager) Current() *EpochContext {
	return m.current
}

// Start starts consensus in the current epoch.
func (m *EpochManager) Start() error {
	m.metrics.CurrentEpoch(m.current.Epoch())
	m.log.Info().
		Uint64("epoch", m.current.Epoch()).
		Bool("validator", m.current.IsValidator()).
		Msg("starting consensus")
	if !m.current.IsValidator() {
		return nil
	}
	return m.current.Handler.Start()
}

func (m *EpochManager) ProcessProposal(originID flow.Identifier, proposal *messages.Proposal) error {
	if !m.accept(originID, proposal.Epoch(), proposal) || !m.current.IsValidator() {
		return nil
	}
	return m.current.Handler.OnReceiveProposal(originID, proposal)
}

func (m *EpochManager) ProcessVote(originID flow.Identifier, vote *messages.Vote) error {
	if !m.accept(originID, vote.Epoch(), vote) || !m.current.IsValidator() {
		return nil
	}
	return m.current.Handler.OnReceiveVote(originID, vote)
}

func (m *EpochManager) ProcessTimeoutVote(originID flow.Identifier, timeout *messages.TimeoutVote) error {
	if !m.accept(originID, timeout.Epoch, timeout) || !m.current.IsValidator() {
		return nil
	}
	return m.current.Handler.OnReceiveTimeout(originID, timeout)
}

// ProcessLocalTimeout forwards a pacemaker timer. Timers armed in an earlier
// epoch are dropped.
func (m *EpochManager) ProcessLocalTimeout(timeout model.LocalTimeout) error {
	if !m.acceptLocal(timeout.Epoch, timeout) || !m.current.IsValidator() {
		return nil
	}
	return m.current.Handler.OnLocalTimeout(timeout)
}

func (m *EpochManager) ProcessVertexSynced(event model.VertexSyncedEvent) error {
	if !m.acceptLocal(event.Epoch, event) || !m.current.IsValidator() {
		return nil
	}
	return m.current.Handler.OnVertexSynced(event)
}

// ProcessGetVerticesRequest serves the request from the current vertex store.
// Vertex IDs commit to their epoch, so vertices of other epochs are simply
// not found.
func (m *EpochManager) ProcessGetVerticesRequest(originID flow.Identifier, req *messages.GetVerticesRequest) error {
	return m.current.Requests.ProcessGetVerticesRequest(originID, req)
}

func (m *EpochManager) ProcessGetVerticesResponse(originID flow.Identifier, resp *messages.GetVerticesResponse) error {
	if len(resp.Vertices) > 0 && !m.accept(originID, resp.Vertices[0].Epoch, resp) {
		return nil
	}
	return m.current.Sync.ProcessGetVerticesResponse(originID, resp)
}

func (m *EpochManager) ProcessGetVerticesErrorResponse(originID flow.Identifier, resp *messages.GetVerticesErrorResponse) error {
	if resp.HighQC.HighestQC == nil {
		m.log.Warn().
			Bool(logging.KeySuspicious, true).
			Hex("origin_id", logging.ID(originID)).
			Msg("dropping vertex error response without QC")
		return nil
	}
	if !m.accept(originID, resp.HighQC.HighestQC.Epoch(), resp) {
		return nil
	}
	return m.current.Sync.ProcessGetVerticesErrorResponse(originID, resp)
}

func (m *EpochManager) ProcessVertexRequestTimeout(timeout messages.VertexRequestTimeout) error {
	if !m.acceptLocal(timeout.Epoch, timeout) {
		return nil
	}
	return m.current.Sync.ProcessVertexRequestTimeout(timeout)
}

// ProcessLedgerUpdate switches to the next epoch if the update ends the
// current one, otherwise it lets vertex sync react to the new ledger state.
// No errors are expected during normal operations.
func (m *EpochManager) ProcessLedgerUpdate(update *flow.LedgerUpdate) error {
	change := update.EpochChange
	if change == nil || change.Epoch <= m.current.Epoch() {
		return m.current.Sync.ProcessLedgerUpdate(update)
	}
	return m.switchEpoch(SetupFromChange(change))
}

// ProcessGetEpochRequest answers with the proof that ended the requested
// epoch, or with an empty response if the epoch has not ended for us.
// No errors are expected during normal operations.
func (m *EpochManager) ProcessGetEpochRequest(originID flow.Identifier, req *messages.GetEpochRequest) error {
	proof, err := m.ledger.EpochProof(req.Epoch)
	if errors.Is(err, storage.ErrNotFound) {
		proof = nil
	} else if err != nil {
		return fmt.Errorf("could not load proof ending epoch %d: %w", req.Epoch, err)
	}

	err = m.conduit.Unicast(&messages.GetEpochResponse{Epoch: req.Epoch, Proof: proof}, originID)
	if err != nil {
		m.log.Warn().Err(err).Hex("origin_id", logging.ID(originID)).Msg("could not send epoch response")
	}
	return nil
}

// ProcessGetEpochResponse asks the ledger sync to catch up to the end of the
// current epoch once a peer proved the epoch ended.
func (m *EpochManager) ProcessGetEpochResponse(originID flow.Identifier, resp *messages.GetEpochResponse) error {
	log := m.log.With().
		Hex("origin_id", logging.ID(originID)).
		Uint64("epoch", resp.Epoch).
		Logger()
	if resp.Proof == nil {
		log.Debug().Msg("peer does not know the end of the epoch")
		return nil
	}

	header := &resp.Proof.Header
	current := m.current.Epoch()
	if header.Epoch != current {
		// proofs of other epochs can not be verified against our validator set
		log.Debug().Uint64("proof_epoch", header.Epoch).Msg("dropping epoch proof of another epoch")
		return nil
	}
	if !header.IsEndOfEpoch() {
		log.Warn().Bool(logging.KeySuspicious, true).Msg("epoch response with a proof that does not end the epoch")
		return nil
	}
	err := m.current.Verifier.VerifyLedgerProof(resp.Proof)
	if err != nil {
		log.Warn().Err(err).Bool(logging.KeySuspicious, true).Msg("epoch response with invalid proof")
		return nil
	}

	log.Info().Uint64("height", header.Height).Msg("epoch ended at peer, syncing ledger")
	m.dispatcher.Dispatch(messages.LocalSyncRequest{
		Target:      resp.Proof,
		TargetNodes: flow.IdentifierList{originID},
	})
	return nil
}

// accept returns whether a network event belongs to the current epoch.
func (m *EpochManager) accept(originID flow.Identifier, epoch uint64, event interface{}) bool {
	current := m.current.Epoch()
	if epoch == current {
		return true
	}
	m.drop(epoch, event)
	if epoch > current && originID != m.self {
		m.requestEpoch(originID)
	}
	return false
}

// acceptLocal returns whether a local event belongs to the current epoch.
func (m *EpochManager) acceptLocal(epoch uint64, event interface{}) bool {
	if epoch == m.current.Epoch() {
		return true
	}
	m.drop(epoch, event)
	return false
}

func (m *EpochManager) drop(epoch uint64, event interface{}) {
	eventType := fmt.Sprintf("%T", event)
	m.metrics.EpochEventDropped(eventType)
	m.log.Debug().
		Str("event_type", eventType).
		Uint64("event_epoch", epoch).
		Uint64("current_epoch", m.current.Epoch()).
		Msg("dropping event of another epoch")
}

// requestEpoch asks the peer for the proof ending the current epoch, at most
// once per peer and epoch.
func (m *EpochManager) requestEpoch(peerID flow.Identifier) {
	if _, sent := m.epochRequests[peerID]; sent {
		return
	}
	if !m.limiter.Allow(peerID) {
		return
	}
	m.epochRequests[peerID] = struct{}{}

	err := m.conduit.Unicast(&messages.GetEpochRequest{Epoch: m.current.Epoch()}, peerID)
	if err != nil {
		m.log.Warn().Err(err).Hex("peer_id", logging.ID(peerID)).Msg("could not send epoch request")
	}
}

// switchEpoch discards the components of the current epoch and starts the
// next one.
func (m *EpochManager) switchEpoch(setup Setup) error {
	next, err := m.factory.Create(setup)
	if err != nil {
		return fmt.Errorf("could not create components of epoch %d: %w", setup.Epoch, err)
	}
	previous := m.current.Epoch()
	m.current = next
	m.epochRequests = make(map[flow.Identifier]struct{})
	m.metrics.CurrentEpoch(setup.Epoch)

	m.log.Info().
		Uint64("previous_epoch", previous).
		Uint64("epoch", setup.Epoch).
		Int("validators", setup.Validators.Count()).
		Bool("validator", next.IsValidator()).
		Msg("entering new epoch")
	if !next.IsValidator() {
		return nil
	}
	return next.Handler.Start()
}
