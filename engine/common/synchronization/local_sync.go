package synchronization

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/irrecoverable"
	"github.com/ledgerbft/node/module/signature"
	"github.com/ledgerbft/node/network"
	"github.com/ledgerbft/node/utils/logging"
	"github.com/ledgerbft/node/utils/rand"
)

// Ledger is the committed ledger state the sync service catches up.
type Ledger interface {
	ExtensionVerifier
	CurrentHeader() *flow.LedgerHeader
	ApplySynced(batch *flow.CommandsAndProof) error
}

type syncState int

const (
	stateIdle syncState = iota
	stateSyncCheck
	stateSyncing
)

func (s syncState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSyncCheck:
		return "sync_check"
	case stateSyncing:
		return "syncing"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

type pendingRequest struct {
	peerID flow.Identifier
	nonce  uint64
}

// LocalSync catches the committed ledger up with peers that are ahead. It
// verifies every batch against the validator set of one epoch and stops at
// the end of that epoch; EpochsLocalSync replaces it for the next one.
//
// Idle: waits for a LocalSyncRequest or a SyncCheckTrigger.
// SyncCheck: collects StatusResponses of a sample of peers; the highest
// ledger state ahead of ours becomes a LocalSyncRequest.
// Syncing: asks one candidate at a time for the commands above our ledger
// state until the target is reached or no candidate is left.
//
// LocalSync is not concurrency safe. It must be driven by a single event loop.
type LocalSync struct {
	log        zerolog.Logger
	config     Config
	self       flow.Identifier
	epoch      uint64
	peers      flow.IdentifierList
	ledger     Ledger
	verifier   *ResponseVerifier
	health     *PeerHealth
	conduit    network.Conduit
	dispatcher events.Dispatcher
	metrics    module.LedgerSyncMetrics

	state syncState

	// sync check
	round    uint64
	asked    map[flow.Identifier]uint64
	statuses map[flow.Identifier]*flow.LedgerProof

	// syncing
	target     *flow.LedgerProof
	candidates flow.IdentifierList
	pending    *pendingRequest
}

var _ LocalSyncProcessor = (*LocalSync)(nil)

// NewLocalSync creates the sync service of the given epoch. Peers are the
// nodes asked during a sync check.
func NewLocalSync(
	log zerolog.Logger,
	config Config,
	self flow.Identifier,
	epoch uint64,
	validators *flow.ValidatorSet,
	peers flow.IdentifierList,
	ledger Ledger,
	verifier signature.Verifier,
	health *PeerHealth,
	conduit network.Conduit,
	dispatcher events.Dispatcher,
	metrics module.LedgerSyncMetrics,
) *LocalSync {
	return &LocalSync{
		log:        log.With().Str("component", "local_sync").Uint64("epoch", epoch).Logger(),
		config:     config,
		self:       self,
		epoch:      epoch,
		peers:      peers.Filter(func(id flow.Identifier) bool { return id != self }),
		ledger:     ledger,
		verifier:   NewResponseVerifier(epoch, validators, verifier, ledger),
		health:     health,
		conduit:    conduit,
		dispatcher: dispatcher,
		metrics:    metrics,
		state:      stateIdle,
	}
}

// ProcessSyncCheckTrigger asks a sample of peers for their ledger state,
// unless a sync check or a sync is already running.
func (s *LocalSync) ProcessSyncCheckTrigger() error {
	if s.state != stateIdle {
		s.log.Debug().Str("state", s.state.String()).Msg("skipping sync check")
		return nil
	}
	return s.initSyncCheck()
}

// ProcessStatusResponse records the ledger state reported by a peer we asked.
// A proof of our epoch must be certified by its validators. A proof of a
// later epoch can not be verified yet and only serves as a hint, since every
// batch fetched towards it is verified.
func (s *LocalSync) ProcessStatusResponse(originID flow.Identifier, resp *messages.StatusResponse) error {
	if s.state != stateSyncCheck {
		return nil
	}
	nonce, asked := s.asked[originID]
	if !asked || nonce != resp.Nonce {
		s.log.Debug().Hex("origin_id", logging.ID(originID)).Msg("dropping unexpected status response")
		return nil
	}
	delete(s.asked, originID)

	proof := resp.Proof
	switch {
	case proof == nil || proof.Header.Epoch < s.epoch || !proof.Header.IsNewerThan(s.ledger.CurrentHeader()):
	case proof.Header.Epoch == s.epoch:
		err := s.verifier.VerifyProof(proof)
		if IsInvalidResponseError(err) {
			s.reject(originID, err, "invalid status response")
			break
		}
		if err != nil {
			return fmt.Errorf("could not verify status of %x: %w", originID, err)
		}
		s.statuses[originID] = proof
	default:
		s.statuses[originID] = proof
	}

	if len(s.asked) == 0 {
		s.evaluateSyncCheck()
	}
	return nil
}

// ProcessSyncCheckReceiveStatusTimeout ends the sync check with the status
// responses received so far.
func (s *LocalSync) ProcessSyncCheckReceiveStatusTimeout(timeout messages.SyncCheckReceiveStatusTimeout) error {
	if s.state != stateSyncCheck || timeout.Round != s.round {
		return nil
	}
	if len(s.statuses) == 0 {
		s.log.Debug().Int("unanswered", len(s.asked)).Msg("no status received")
		s.goIdle()
		return nil
	}
	s.evaluateSyncCheck()
	return nil
}

// ProcessLocalSyncRequest starts syncing towards the request's target. While
// syncing, a newer target replaces the current one and the request's nodes
// become additional candidates.
func (s *LocalSync) ProcessLocalSyncRequest(req messages.LocalSyncRequest) error {
	if req.Target == nil {
		return nil
	}
	nodes := req.TargetNodes.Filter(func(id flow.Identifier) bool { return id != s.self })

	switch s.state {
	case stateIdle, stateSyncCheck:
		s.resetSyncCheck()
		s.state = stateSyncing
		s.target = req.Target
		s.candidates = nodes.Copy()
		s.pending = nil
		s.log.Info().
			Uint64("target_epoch", req.Target.Header.Epoch).
			Uint64("target_height", req.Target.Header.Height).
			Int("candidates", len(s.candidates)).
			Msg("starting ledger sync")
	case stateSyncing:
		if req.Target.Header.IsNewerThan(&s.target.Header) {
			s.target = req.Target
		}
		for _, node := range nodes {
			if !s.candidates.Contains(node) {
				s.candidates = append(s.candidates, node)
			}
		}
	}
	return s.processSync()
}

// ProcessSyncResponse verifies and applies a batch served by the peer we are
// waiting for. Invalid batches count as a fault of the peer.
func (s *LocalSync) ProcessSyncResponse(originID flow.Identifier, resp *messages.SyncResponse) error {
	if s.state != stateSyncing || s.pending == nil ||
		s.pending.peerID != originID || s.pending.nonce != resp.Nonce {
		s.log.Debug().Hex("origin_id", logging.ID(originID)).Msg("dropping unexpected sync response")
		return nil
	}
	s.pending = nil

	batch := &resp.CommandsAndProof
	if batch.Proof == nil {
		s.metrics.LedgerSyncResponseRejected(ReasonEmpty)
		s.log.Debug().Hex("origin_id", logging.ID(originID)).Msg("peer has nothing to serve")
		s.removeCandidate(originID)
		return s.processSync()
	}
	if !batch.Proof.Header.IsNewerThan(s.ledger.CurrentHeader()) {
		// our ledger advanced while the request was in flight
		return s.processSync()
	}

	err := s.verifier.VerifyBatch(batch)
	if IsInvalidResponseError(err) {
		s.reject(originID, err, "invalid sync response")
		s.removeCandidate(originID)
		return s.processSync()
	}
	if err != nil {
		return fmt.Errorf("could not verify sync response of %x: %w", originID, err)
	}

	err = s.ledger.ApplySynced(batch)
	if err != nil {
		return fmt.Errorf("could not apply synced commands: %w", err)
	}
	s.health.Success(originID)
	s.metrics.LedgerSyncApplied(len(batch.Commands))
	s.log.Debug().
		Hex("origin_id", logging.ID(originID)).
		Uint64("height", batch.Proof.Header.Height).
		Int("commands", len(batch.Commands)).
		Msg("applied synced commands")
	return s.processSync()
}

// ProcessSyncRequestTimeout moves on to the next candidate if the peer did not
// answer the pending request.
func (s *LocalSync) ProcessSyncRequestTimeout(timeout messages.SyncRequestTimeout) error {
	if s.state != stateSyncing || s.pending == nil ||
		s.pending.peerID != timeout.PeerID || s.pending.nonce != timeout.Nonce {
		return nil
	}
	s.pending = nil
	s.metrics.LedgerSyncRequestTimedOut()
	s.health.Fault(timeout.PeerID)
	s.log.Debug().Hex("peer_id", logging.ID(timeout.PeerID)).Msg("sync request timed out")
	s.removeCandidate(timeout.PeerID)
	return s.processSync()
}

// ProcessLedgerUpdate checks whether the target was reached by consensus.
func (s *LocalSync) ProcessLedgerUpdate(*flow.LedgerUpdate) error {
	if s.state != stateSyncing {
		return nil
	}
	return s.processSync()
}

// processSync requests the next batch unless the target is reached, our epoch
// ended or a request is in flight.
func (s *LocalSync) processSync() error {
	current := s.ledger.CurrentHeader()
	if !s.target.Header.IsNewerThan(current) {
		s.log.Info().Uint64("height", current.Height).Msg("ledger synced")
		s.goIdle()
		return nil
	}
	if current.Epoch > s.epoch || (current.Epoch == s.epoch && current.IsEndOfEpoch()) {
		s.log.Info().Uint64("height", current.Height).Msg("epoch synced")
		s.goIdle()
		return nil
	}
	if s.pending != nil {
		return nil
	}

	for {
		peerID, ok, err := s.nextCandidate()
		if err != nil {
			return irrecoverable.NewExceptionf("could not pick sync candidate: %w", err)
		}
		if !ok {
			s.metrics.LedgerSyncFailed()
			s.log.Info().Msg("no sync candidate left, checking peers")
			s.goIdle()
			return s.initSyncCheck()
		}
		sent, err := s.sendSyncRequest(peerID, current)
		if err != nil {
			return err
		}
		if sent {
			return nil
		}
		s.removeCandidate(peerID)
	}
}

func (s *LocalSync) sendSyncRequest(peerID flow.Identifier, current *flow.LedgerHeader) (bool, error) {
	nonce, err := rand.Uint64()
	if err != nil {
		return false, irrecoverable.NewExceptionf("could not generate sync request nonce: %w", err)
	}
	req := &messages.SyncRequest{
		Nonce:      nonce,
		FromHeight: current.Height,
		FromEpoch:  current.Epoch,
		FromView:   current.View,
	}
	err = s.conduit.Unicast(req, peerID)
	if err != nil {
		s.log.Warn().Err(err).Hex("peer_id", logging.ID(peerID)).Msg("could not send sync request")
		return false, nil
	}
	s.pending = &pendingRequest{peerID: peerID, nonce: req.Nonce}
	s.metrics.LedgerSyncRequestSent()
	s.dispatcher.DispatchAfter(messages.SyncRequestTimeout{PeerID: peerID, Nonce: req.Nonce}, s.config.RequestTimeout)
	return true, nil
}

// nextCandidate picks a random healthy candidate, falling back to any
// candidate if all of them recently failed.
func (s *LocalSync) nextCandidate() (flow.Identifier, bool, error) {
	pool := s.health.Filter(s.candidates)
	if len(pool) == 0 {
		pool = s.candidates
	}
	if len(pool) == 0 {
		return flow.ZeroID, false, nil
	}
	i, err := rand.Intn(len(pool))
	if err != nil {
		return flow.ZeroID, false, err
	}
	return pool[i], true, nil
}

func (s *LocalSync) removeCandidate(peerID flow.Identifier) {
	s.candidates = s.candidates.Filter(func(id flow.Identifier) bool { return id != peerID })
}

func (s *LocalSync) initSyncCheck() error {
	peers := s.peers.Copy()
	err := rand.Shuffle(len(peers), func(i, j int) {
		peers[i], peers[j] = peers[j], peers[i]
	})
	if err != nil {
		return irrecoverable.NewExceptionf("could not sample sync check peers: %w", err)
	}
	if len(peers) > s.config.SyncCheckMaxPeers {
		peers = peers[:s.config.SyncCheckMaxPeers]
	}

	s.round, err = rand.Uint64()
	if err != nil {
		return irrecoverable.NewExceptionf("could not generate sync check round: %w", err)
	}
	s.asked = make(map[flow.Identifier]uint64, len(peers))
	s.statuses = make(map[flow.Identifier]*flow.LedgerProof, len(peers))
	for _, peerID := range peers {
		nonce, err := rand.Uint64()
		if err != nil {
			return irrecoverable.NewExceptionf("could not generate status request nonce: %w", err)
		}
		req := &messages.StatusRequest{Nonce: nonce}
		err = s.conduit.Unicast(req, peerID)
		if err != nil {
			s.log.Warn().Err(err).Hex("peer_id", logging.ID(peerID)).Msg("could not send status request")
			continue
		}
		s.asked[peerID] = req.Nonce
	}
	if len(s.asked) == 0 {
		s.resetSyncCheck()
		return nil
	}

	s.state = stateSyncCheck
	s.dispatcher.DispatchAfter(messages.SyncCheckReceiveStatusTimeout{Round: s.round}, s.config.StatusTimeout)
	return nil
}

// evaluateSyncCheck turns the highest reported ledger state ahead of ours into
// a LocalSyncRequest, with every peer reporting that state as a candidate.
func (s *LocalSync) evaluateSyncCheck() {
	current := s.ledger.CurrentHeader()
	var best *flow.LedgerProof
	for _, proof := range s.statuses {
		if !proof.Header.IsNewerThan(current) {
			continue
		}
		if best == nil || proof.Header.IsNewerThan(&best.Header) {
			best = proof
		}
	}
	if best == nil {
		s.log.Debug().Int("statuses", len(s.statuses)).Msg("ledger up to date")
		s.goIdle()
		return
	}

	var nodes flow.IdentifierList
	for peerID, proof := range s.statuses {
		if proof.Header.Compare(&best.Header) == 0 {
			nodes = append(nodes, peerID)
		}
	}
	s.goIdle()
	s.log.Info().
		Uint64("target_epoch", best.Header.Epoch).
		Uint64("target_height", best.Header.Height).
		Int("candidates", len(nodes)).
		Msg("peers are ahead")
	s.dispatcher.Dispatch(messages.LocalSyncRequest{Target: best, TargetNodes: nodes.Sort()})
}

func (s *LocalSync) reject(originID flow.Identifier, err error, msg string) {
	s.metrics.LedgerSyncResponseRejected(rejectReason(err))
	s.health.Fault(originID)
	s.log.Warn().
		Err(err).
		Bool(logging.KeySuspicious, true).
		Hex("origin_id", logging.ID(originID)).
		Msg(msg)
}

func (s *LocalSync) resetSyncCheck() {
	s.asked = nil
	s.statuses = nil
}

func (s *LocalSync) goIdle() {
	s.state = stateIdle
	s.resetSyncCheck()
	s.target = nil
	s.candidates = nil
	s.pending = nil
}
