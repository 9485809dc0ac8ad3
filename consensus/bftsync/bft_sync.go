package bftsync

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/irrecoverable"
	"github.com/ledgerbft/node/module/ratelimit"
	"github.com/ledgerbft/node/network"
	"github.com/ledgerbft/node/utils/logging"
	"github.com/ledgerbft/node/utils/rand"
)

// committedChainLength is the number of vertices proving a commit under the
// 2-chain rule: the certified vertex and its committed parent.
const committedChainLength = 2

// LedgerState exposes the committed ledger state of the node.
type LedgerState interface {
	CurrentHeader() *flow.LedgerHeader
}

type requestKey struct {
	vertexID flow.Identifier
	count    uint32
}

// request is a GetVerticesRequest in flight. Syncs waiting for the same
// vertices share one request.
type request struct {
	key      requestKey
	syncIDs  []flow.Identifier
	authors  flow.IdentifierList
	peerID   flow.Identifier
	deadline time.Time
	attempts uint
}

type phase int

const (
	phaseFetchingVertices phase = iota
	phaseFetchingCommittedChain
	phaseAwaitingLedger
)

// syncState tracks the catch-up to one high QC. It is keyed by the vertex
// the highest QC certifies.
type syncState struct {
	id             flow.Identifier
	highQC         flow.HighQC
	author         flow.Identifier
	authors        flow.IdentifierList
	phase          phase
	fetched        flow.VertexChain // oldest first
	committedChain []*flow.Vertex   // certified vertex and its committed parent
}

func (s *syncState) committedHeader() *flow.LedgerHeader {
	return s.highQC.HighestCommittedQC.VoteData.Committed
}

// BFTSync fetches the vertices of QCs whose certified vertex the vertex store
// does not hold. Missing ancestors are requested one at a time, walking back
// until the chain connects to the store. When a peer's committed QC is ahead
// of the committed root by more than the store can bridge, the ledger is
// synced first and the store rebuilt on top of the peer's committed vertex.
//
// BFTSync is NOT concurrency safe. It is only accessed from the node's event loop.
type BFTSync struct {
	log        zerolog.Logger
	config     Config
	self       flow.Identifier
	epoch      uint64
	store      hotstuff.VertexStore
	ledger     LedgerState
	verifier   hotstuff.Verifier
	conduit    network.Conduit
	dispatcher events.Dispatcher
	limiter    *ratelimit.RateLimiter
	metrics    module.VertexSyncMetrics

	syncing  map[flow.Identifier]*syncState
	requests map[requestKey]*request
}

var _ hotstuff.VertexSync = (*BFTSync)(nil)

// New creates the vertex sync of the store's epoch. Outbound requests are
// limited per peer on the dispatcher's clock.
func New(
	log zerolog.Logger,
	config Config,
	self flow.Identifier,
	store hotstuff.VertexStore,
	ledger LedgerState,
	verifier hotstuff.Verifier,
	conduit network.Conduit,
	dispatcher events.Dispatcher,
	metrics module.VertexSyncMetrics,
) (*BFTSync, error) {
	if config.MaxAttempts == 0 || config.RequestTimeout <= 0 {
		return nil, model.NewConfigurationErrorf("vertex sync requires positive attempts and request timeout")
	}
	limiter, err := ratelimit.NewRateLimiter(
		config.RequestRateLimit,
		config.RequestBurst,
		ratelimit.DefaultMaxPeers,
		ratelimit.WithGetTimeNowFunc(dispatcher.Now),
		ratelimit.WithLockoutDuration(config.RateLimitLockout),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create request rate limiter: %w", err)
	}

	return &BFTSync{
		log:        log.With().Str("component", "bft_sync").Uint64("epoch", store.Epoch()).Logger(),
		config:     config,
		self:       self,
		epoch:      store.Epoch(),
		store:      store,
		ledger:     ledger,
		verifier:   verifier,
		conduit:    conduit,
		dispatcher: dispatcher,
		limiter:    limiter,
		metrics:    metrics,
		syncing:    make(map[flow.Identifier]*syncState),
		requests:   make(map[requestKey]*request),
	}, nil
}

// SyncToQC makes sure the store holds the vertex certified by the highest QC.
// Certificates below the committed root are invalid. If the vertex is held
// the certificates are added right away, otherwise a sync is started and
// model.VertexSyncedEvent is dispatched once it completes.
// No errors are expected during normal operations.
func (s *BFTSync) SyncToQC(highQC flow.HighQC, author flow.Identifier) (hotstuff.SyncResult, error) {
	qc := highQC.HighestQC
	if qc == nil || qc.Epoch() != s.epoch || qc.View() < s.store.Root().View {
		return hotstuff.SyncResultInvalid, nil
	}

	held, err := s.addCertificates(highQC)
	if err != nil {
		return hotstuff.SyncResultInvalid, err
	}
	if held {
		delete(s.syncing, qc.VertexID())
		return hotstuff.SyncResultSynced, nil
	}

	if _, ok := s.syncing[qc.VertexID()]; ok {
		return hotstuff.SyncResultInProgress, nil
	}
	s.startSync(highQC, author)
	return hotstuff.SyncResultInProgress, nil
}

// IsSyncing returns whether a sync to the given vertex is in progress.
func (s *BFTSync) IsSyncing(vertexID flow.Identifier) bool {
	_, ok := s.syncing[vertexID]
	return ok
}

// addCertificates hands the certificates to the store and returns whether the
// vertex certified by the highest QC is held.
func (s *BFTSync) addCertificates(highQC flow.HighQC) (bool, error) {
	if committed := highQC.HighestCommittedQC; committed != nil && committed.Epoch() == s.epoch {
		_, err := s.store.AddQC(committed)
		if err != nil {
			return false, fmt.Errorf("could not add committed QC %v: %w", committed, err)
		}
	}
	added, err := s.store.AddQC(highQC.HighestQC)
	if err != nil {
		return false, fmt.Errorf("could not add QC %v: %w", highQC.HighestQC, err)
	}
	if !added {
		return false, nil
	}
	if tc := highQC.HighestTC; tc != nil && tc.Epoch == s.epoch {
		err = s.store.InsertTC(tc)
		if err != nil {
			return false, fmt.Errorf("could not insert TC %v: %w", tc, err)
		}
	}
	return true, nil
}

func (s *BFTSync) startSync(highQC flow.HighQC, author flow.Identifier) {
	qc := highQC.HighestQC
	state := &syncState{
		id:      qc.VertexID(),
		highQC:  highQC,
		author:  author,
		authors: s.candidates(author, qc.Signatures.Signers()),
	}
	s.syncing[state.id] = state

	s.log.Debug().
		Uint64("view", qc.View()).
		Hex("vertex_id", logging.ID(state.id)).
		Hex("author_id", logging.ID(author)).
		Msg("starting vertex sync")

	commitQC := highQC.HighestCommittedQC
	if s.requiresLedgerSync(commitQC) {
		state.phase = phaseFetchingCommittedChain
		s.request(state, commitQC.VertexID(), committedChainLength, state.authors)
		return
	}
	s.request(state, state.id, 1, state.authors)
}

// requiresLedgerSync holds if the QC commits a vertex above the root that the
// store does not hold. Peers pruned everything below that vertex, so the gap
// is closed through the ledger.
func (s *BFTSync) requiresLedgerSync(commitQC *flow.QuorumCertificate) bool {
	if commitQC == nil || commitQC.Epoch() != s.epoch || commitQC.VoteData.Committed == nil {
		return false
	}
	return !s.store.ContainsVertex(commitQC.VoteData.ParentID) && s.store.Root().View < commitQC.ParentView()
}

// candidates returns the peers to fetch from: the author first, then the
// signers, without ourselves.
func (s *BFTSync) candidates(author flow.Identifier, signers flow.IdentifierList) flow.IdentifierList {
	seen := map[flow.Identifier]struct{}{s.self: {}}
	result := make(flow.IdentifierList, 0, len(signers)+1)
	for _, id := range append(flow.IdentifierList{author}, signers...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func (s *BFTSync) request(state *syncState, vertexID flow.Identifier, count uint32, authors flow.IdentifierList) {
	key := requestKey{vertexID: vertexID, count: count}
	if req, ok := s.requests[key]; ok {
		req.syncIDs = append(req.syncIDs, state.id)
		return
	}
	if len(authors) == 0 {
		s.fail(state, "no peer to request vertices from")
		return
	}
	req := &request{
		key:     key,
		syncIDs: []flow.Identifier{state.id},
		authors: authors,
	}
	s.requests[key] = req
	s.send(req, authors)
}

// send sends the request to the first candidate whose rate limit allows it.
// If every candidate is rate limited nothing is sent, but the timeout is
// scheduled all the same so the request is retried.
func (s *BFTSync) send(req *request, candidates flow.IdentifierList) {
	peerID := candidates[0]
	allowed := false
	for _, candidate := range candidates {
		if s.limiter.Allow(candidate) {
			peerID, allowed = candidate, true
			break
		}
	}

	msg := messages.GetVerticesRequest{VertexID: req.key.vertexID, Count: req.key.count}
	req.peerID = peerID
	req.attempts++
	req.deadline = s.dispatcher.Now().Add(s.config.RequestTimeout)
	s.dispatcher.DispatchAfter(messages.VertexRequestTimeout{Epoch: s.epoch, PeerID: peerID, Request: msg}, s.config.RequestTimeout)

	log := s.log.With().
		Hex("peer_id", logging.ID(peerID)).
		Hex("vertex_id", logging.ID(msg.VertexID)).
		Uint32("count", msg.Count).
		Uint("attempt", req.attempts).
		Logger()
	if !allowed {
		s.metrics.VertexRequestRateLimited()
		log.Debug().Msg("vertex request rate limited")
		return
	}
	err := s.conduit.Unicast(&msg, peerID)
	if err != nil {
		log.Warn().Err(err).Msg("could not send vertex request")
		return
	}
	s.metrics.VertexRequestSent()
	log.Debug().Msg("vertex request sent")
}

// retry sends the request to another author, or abandons the syncs waiting
// for it once the attempts are exhausted.
func (s *BFTSync) retry(req *request, failed flow.Identifier) error {
	if req.attempts >= s.config.MaxAttempts {
		delete(s.requests, req.key)
		for _, id := range req.syncIDs {
			if state, ok := s.syncing[id]; ok {
				s.fail(state, "request attempts exhausted")
			}
		}
		return nil
	}

	candidates := make(flow.IdentifierList, 0, len(req.authors))
	for _, id := range req.authors {
		if id != failed {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		candidates = req.authors
	}
	err := rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if err != nil {
		return irrecoverable.NewExceptionf("could not shuffle request candidates: %w", err)
	}
	s.send(req, candidates)
	return nil
}

func (s *BFTSync) fail(state *syncState, reason string) {
	delete(s.syncing, state.id)
	s.pruneRequests()
	s.metrics.VertexSyncFailed()
	s.log.Warn().
		Uint64("view", state.highQC.HighestQC.View()).
		Hex("vertex_id", logging.ID(state.id)).
		Str("reason", reason).
		Msg("vertex sync failed")
}

// ProcessGetVerticesResponse feeds fetched vertices into the syncs waiting
// for them. Vertices are authenticated by their IDs: the first must be the
// requested one and each following vertex the parent of its predecessor.
// No errors are expected during normal operations.
func (s *BFTSync) ProcessGetVerticesResponse(originID flow.Identifier, resp *messages.GetVerticesResponse) error {
	if len(resp.Vertices) == 0 {
		s.invalidResponse(originID, fmt.Errorf("empty vertices response"))
		return nil
	}
	key := requestKey{vertexID: resp.Vertices[0].ID(), count: uint32(len(resp.Vertices))}
	req, ok := s.requests[key]
	if !ok {
		s.log.Debug().
			Hex("origin_id", logging.ID(originID)).
			Hex("vertex_id", logging.ID(key.vertexID)).
			Msg("discarding unexpected vertices response")
		return nil
	}
	for i, vertex := range resp.Vertices {
		if vertex.Epoch != s.epoch {
			s.invalidResponse(originID, fmt.Errorf("vertex of epoch %d", vertex.Epoch))
			return nil
		}
		if i > 0 && vertex.ID() != resp.Vertices[i-1].ParentID() {
			s.invalidResponse(originID, fmt.Errorf("vertex %d is not the parent of its predecessor", i))
			return nil
		}
	}

	delete(s.requests, key)
	for _, id := range req.syncIDs {
		state, ok := s.syncing[id]
		if !ok {
			continue
		}
		var err error
		switch state.phase {
		case phaseFetchingVertices:
			err = s.onVertex(state, resp.Vertices[0])
		case phaseFetchingCommittedChain:
			err = s.onCommittedChain(state, resp.Vertices)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *BFTSync) onVertex(state *syncState, vertex *flow.Vertex) error {
	state.fetched = append(flow.VertexChain{vertex}, state.fetched...)

	parentID := vertex.ParentID()
	if s.store.ContainsVertex(parentID) {
		return s.insertFetched(state)
	}
	if vertex.ParentView() <= s.store.Root().View {
		s.fail(state, "fetched chain does not extend the committed root")
		return nil
	}
	s.request(state, parentID, 1, s.candidates(state.author, vertex.QC.Signatures.Signers()))
	return nil
}

func (s *BFTSync) insertFetched(state *syncState) error {
	_, err := s.store.InsertVertexChain(state.fetched)
	if model.IsInvalidVertexError(err) || model.IsMissingParentError(err) {
		s.metrics.VertexResponseInvalid()
		s.fail(state, err.Error())
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not insert fetched vertices: %w", err)
	}
	delete(s.syncing, state.id)
	return s.resume(state)
}

// resume runs the sync to the state's certificates again after the store
// changed, and announces the vertex once it is held.
func (s *BFTSync) resume(state *syncState) error {
	result, err := s.SyncToQC(state.highQC, state.author)
	if err != nil {
		return err
	}
	if result != hotstuff.SyncResultSynced {
		return nil
	}
	s.metrics.VertexSyncCompleted()
	s.log.Debug().
		Uint64("view", state.highQC.HighestQC.View()).
		Hex("vertex_id", logging.ID(state.id)).
		Msg("vertex sync completed")
	s.dispatcher.Dispatch(model.VertexSyncedEvent{Epoch: s.epoch, VertexID: state.id})
	return nil
}

func (s *BFTSync) onCommittedChain(state *syncState, vertices []*flow.Vertex) error {
	state.committedChain = vertices
	if s.ledger.CurrentHeader().Compare(state.committedHeader()) >= 0 {
		return s.rebuild(state)
	}

	state.phase = phaseAwaitingLedger
	s.log.Info().
		Uint64("committed_view", state.committedHeader().View).
		Uint64("committed_height", state.committedHeader().Height).
		Msg("vertex sync waits for the ledger to catch up")
	s.dispatcher.Dispatch(messages.LocalSyncRequest{
		Target:      state.highQC.HighestCommittedQC.CommittedProof(),
		TargetNodes: state.authors,
	})
	return nil
}

// rebuild resets the store on top of the committed vertex of the fetched
// chain. The ledger must have reached the committed state.
func (s *BFTSync) rebuild(state *syncState) error {
	delete(s.syncing, state.id)
	certified, committed := state.committedChain[0], state.committedChain[1]
	if committed.View <= s.store.Root().View {
		return s.resume(state)
	}

	err := s.store.Rebuild(committed, certified.QC, []*flow.Vertex{certified}, state.highQC.HighestCommittedQC)
	if model.IsInvalidVertexError(err) || model.IsInvalidQCError(err) {
		s.metrics.VertexResponseInvalid()
		s.fail(state, err.Error())
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not rebuild vertex store: %w", err)
	}
	return s.resume(state)
}

// ProcessGetVerticesErrorResponse handles a peer reporting it does not hold
// the requested vertices. If the peer's certificates are ahead of ours we
// sync to them instead; otherwise the request goes to another peer.
// No errors are expected during normal operations.
func (s *BFTSync) ProcessGetVerticesErrorResponse(originID flow.Identifier, resp *messages.GetVerticesErrorResponse) error {
	key := requestKey{vertexID: resp.Request.VertexID, count: resp.Request.Count}
	req, ok := s.requests[key]
	if !ok || req.peerID != originID {
		s.log.Debug().
			Hex("origin_id", logging.ID(originID)).
			Hex("vertex_id", logging.ID(key.vertexID)).
			Msg("discarding unexpected vertices error response")
		return nil
	}
	err := s.verifyHighQC(resp.HighQC)
	if err != nil {
		s.invalidResponse(originID, err)
		return nil
	}

	if resp.HighQC.HighestQC.View() > s.store.HighQC().HighestQC.View() {
		s.log.Debug().
			Hex("origin_id", logging.ID(originID)).
			Uint64("peer_high_qc_view", resp.HighQC.HighestQC.View()).
			Msg("chasing higher QC of peer")
		_, err = s.SyncToQC(resp.HighQC, originID)
		return err
	}

	s.metrics.VertexResponseInvalid()
	s.log.Debug().
		Hex("origin_id", logging.ID(originID)).
		Hex("vertex_id", logging.ID(key.vertexID)).
		Msg("peer does not hold the requested vertices")
	return s.retry(req, originID)
}

func (s *BFTSync) verifyHighQC(highQC flow.HighQC) error {
	if highQC.HighestQC == nil {
		return fmt.Errorf("missing highest QC")
	}
	err := s.verifier.VerifyQC(highQC.HighestQC)
	if err != nil {
		return fmt.Errorf("invalid highest QC: %w", err)
	}
	if highQC.HighestCommittedQC != nil {
		err = s.verifier.VerifyQC(highQC.HighestCommittedQC)
		if err != nil {
			return fmt.Errorf("invalid committed QC: %w", err)
		}
	}
	if highQC.HighestTC != nil {
		err = s.verifier.VerifyTC(highQC.HighestTC)
		if err != nil {
			return fmt.Errorf("invalid TC: %w", err)
		}
	}
	return nil
}

func (s *BFTSync) invalidResponse(originID flow.Identifier, err error) {
	s.metrics.VertexResponseInvalid()
	s.log.Warn().
		Bool(logging.KeySuspicious, true).
		Hex("origin_id", logging.ID(originID)).
		Err(err).
		Msg("invalid vertex sync response")
}

// ProcessVertexRequestTimeout sends a request that was not answered in time
// to another peer. Timeouts of requests answered or re-sent since are ignored.
func (s *BFTSync) ProcessVertexRequestTimeout(timeout messages.VertexRequestTimeout) error {
	if timeout.Epoch != s.epoch {
		return nil
	}
	key := requestKey{vertexID: timeout.Request.VertexID, count: timeout.Request.Count}
	req, ok := s.requests[key]
	if !ok || req.peerID != timeout.PeerID || s.dispatcher.Now().Before(req.deadline) {
		return nil
	}
	if !s.live(req) {
		delete(s.requests, key)
		return nil
	}
	s.metrics.VertexRequestTimedOut()
	s.log.Debug().
		Hex("peer_id", logging.ID(timeout.PeerID)).
		Hex("vertex_id", logging.ID(key.vertexID)).
		Msg("vertex request timed out")
	return s.retry(req, timeout.PeerID)
}

// ProcessLedgerUpdate rebuilds the store for syncs that waited for the ledger
// and drops syncs the committed root moved past.
// No errors are expected during normal operations.
func (s *BFTSync) ProcessLedgerUpdate(update *flow.LedgerUpdate) error {
	header := update.Header()

	var ready []*syncState
	for _, state := range s.syncing {
		if state.phase == phaseAwaitingLedger && header.Compare(state.committedHeader()) >= 0 {
			ready = append(ready, state)
		}
	}
	// the highest commit first; the others then find the root past them
	sort.Slice(ready, func(i, j int) bool {
		return ready[i].committedHeader().IsNewerThan(ready[j].committedHeader())
	})
	for _, state := range ready {
		err := s.rebuild(state)
		if err != nil {
			return err
		}
	}

	rootView := s.store.Root().View
	for id, state := range s.syncing {
		if state.phase != phaseAwaitingLedger && state.highQC.HighestQC.View() <= rootView {
			delete(s.syncing, id)
		}
	}
	s.pruneRequests()
	return nil
}

// live drops the syncs of the request that no longer run and returns whether
// any is left.
func (s *BFTSync) live(req *request) bool {
	syncIDs := req.syncIDs[:0]
	for _, id := range req.syncIDs {
		if _, ok := s.syncing[id]; ok {
			syncIDs = append(syncIDs, id)
		}
	}
	req.syncIDs = syncIDs
	return len(syncIDs) > 0
}

// pruneRequests forgets the requests no running sync waits for. Their
// pending timeouts are then ignored.
func (s *BFTSync) pruneRequests() {
	for key, req := range s.requests {
		if !s.live(req) {
			delete(s.requests, key)
		}
	}
}
