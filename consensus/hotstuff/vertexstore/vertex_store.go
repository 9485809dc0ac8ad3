package vertexstore

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/utils/logging"
)

// executedVertex is a vertex together with the ledger state reached by
// speculatively executing it on top of its parent.
type executedVertex struct {
	id     flow.Identifier
	vertex *flow.Vertex
	header *flow.LedgerHeader
}

// VertexStore holds the tree of uncommitted vertices of one epoch, rooted at
// the last committed vertex, and applies the 2-chain commit rule: a vertex P
// is committed once its child V with V.View == P.View+1 is certified.
//
// VertexStore is NOT concurrency safe. It is only accessed from the node's
// event loop.
type VertexStore struct {
	log      zerolog.Logger
	epoch    uint64
	ledger   hotstuff.Ledger
	persist  hotstuff.VertexStorePersister
	notifier hotstuff.VertexStoreConsumer
	metrics  module.HotstuffMetrics

	root   *executedVertex
	rootQC *flow.QuorumCertificate

	vertices map[flow.Identifier]*executedVertex // uncommitted vertices, root excluded
	children map[flow.Identifier][]flow.Identifier
	qcs      map[flow.Identifier]*flow.QuorumCertificate // QC certifying the vertex, root included
	qcByView map[uint64]*flow.QuorumCertificate

	highestQC          *flow.QuorumCertificate
	highestCommittedQC *flow.QuorumCertificate
	highestTC          *flow.TimeoutCertificate
}

var _ hotstuff.VertexStore = (*VertexStore)(nil)

// GenesisState returns the state of a vertex store rooted at the epoch's
// genesis vertex.
func GenesisState(genesis *flow.Vertex) *hotstuff.VertexStoreState {
	genesisQC := flow.NewGenesisQC(genesis)
	return &hotstuff.VertexStoreState{
		Epoch:              genesis.Epoch,
		Root:               genesis,
		RootHeader:         genesis.Genesis,
		RootQC:             genesisQC,
		HighestQC:          genesisQC,
		HighestCommittedQC: genesisQC,
	}
}

// New creates a vertex store from the given state, which is either a genesis
// state or a snapshot recovered from the persister. Uncommitted vertices of
// a recovered snapshot are executed again.
func New(
	log zerolog.Logger,
	state *hotstuff.VertexStoreState,
	ledger hotstuff.Ledger,
	persist hotstuff.VertexStorePersister,
	notifier hotstuff.VertexStoreConsumer,
	metrics module.HotstuffMetrics,
) (*VertexStore, error) {
	if state.Root == nil || state.RootHeader == nil || state.RootQC == nil {
		return nil, model.NewConfigurationErrorf("vertex store state requires root vertex, header and QC")
	}
	if state.RootQC.VertexID() != state.Root.ID() {
		return nil, model.NewConfigurationErrorf("root QC certifies %x, not the root %x", state.RootQC.VertexID(), state.Root.ID())
	}

	s := &VertexStore{
		log:      log.With().Str("component", "vertex_store").Uint64("epoch", state.Epoch).Logger(),
		epoch:    state.Epoch,
		ledger:   ledger,
		persist:  persist,
		notifier: notifier,
		metrics:  metrics,
	}
	err := s.reset(state)
	if err != nil {
		return nil, fmt.Errorf("could not initialize vertex store: %w", err)
	}
	return s, nil
}

// reset replaces the content of the store with the given state.
func (s *VertexStore) reset(state *hotstuff.VertexStoreState) error {
	s.root = &executedVertex{id: state.Root.ID(), vertex: state.Root, header: state.RootHeader}
	s.rootQC = state.RootQC
	s.vertices = make(map[flow.Identifier]*executedVertex)
	s.children = make(map[flow.Identifier][]flow.Identifier)
	s.qcs = map[flow.Identifier]*flow.QuorumCertificate{s.root.id: state.RootQC}
	s.qcByView = map[uint64]*flow.QuorumCertificate{state.RootQC.View(): state.RootQC}
	s.highestQC = state.RootQC
	s.highestCommittedQC = state.HighestCommittedQC
	if s.highestCommittedQC == nil {
		s.highestCommittedQC = state.RootQC
	}
	s.highestTC = state.HighestTC

	for _, vertex := range state.Vertices {
		_, err := s.insert(vertex)
		if err != nil {
			return fmt.Errorf("could not restore vertex %x: %w", vertex.ID(), err)
		}
	}
	for _, qc := range state.QCs {
		_, _, err := s.addQC(qc)
		if err != nil {
			return fmt.Errorf("could not restore QC %v: %w", qc, err)
		}
	}
	if state.HighestQC != nil && state.HighestQC.View() > s.highestQC.View() {
		s.highestQC = state.HighestQC
	}
	return nil
}

// Epoch returns the epoch the store belongs to.
func (s *VertexStore) Epoch() uint64 {
	return s.epoch
}

// Root returns the last committed vertex.
func (s *VertexStore) Root() *flow.Vertex {
	return s.root.vertex
}

// RootHeader returns the ledger state reached by the last committed vertex.
func (s *VertexStore) RootHeader() *flow.LedgerHeader {
	return s.root.header
}

// HighQC returns the highest certificates held by the store.
func (s *VertexStore) HighQC() flow.HighQC {
	return flow.HighQC{
		HighestQC:          s.highestQC,
		HighestCommittedQC: s.highestCommittedQC,
		HighestTC:          s.highestTC,
	}
}

// Vertex returns the vertex with the given ID if it is the root or an
// uncommitted vertex.
func (s *VertexStore) Vertex(vertexID flow.Identifier) (*flow.Vertex, bool) {
	ev, ok := s.lookup(vertexID)
	if !ok {
		return nil, false
	}
	return ev.vertex, true
}

// ContainsVertex returns whether the vertex is the root or an uncommitted vertex.
func (s *VertexStore) ContainsVertex(vertexID flow.Identifier) bool {
	_, ok := s.lookup(vertexID)
	return ok
}

// PreparedHeader returns the ledger state reached by executing the vertex.
func (s *VertexStore) PreparedHeader(vertexID flow.Identifier) (*flow.LedgerHeader, bool) {
	ev, ok := s.lookup(vertexID)
	if !ok {
		return nil, false
	}
	return ev.header, true
}

// CommitHeaderFor returns the ledger header a QC certifying the vertex
// commits: the header of its parent if the vertex directly follows a
// non-genesis parent, nil otherwise. The vertex's parent must be held.
func (s *VertexStore) CommitHeaderFor(vertex *flow.Vertex) *flow.LedgerHeader {
	if vertex.QC == nil || vertex.QC.IsGenesis() || vertex.View != vertex.ParentView()+1 {
		return nil
	}
	parent, ok := s.lookup(vertex.ParentID())
	if !ok {
		return nil
	}
	return parent.header
}

func (s *VertexStore) lookup(vertexID flow.Identifier) (*executedVertex, bool) {
	if vertexID == s.root.id {
		return s.root, true
	}
	ev, ok := s.vertices[vertexID]
	return ev, ok
}

// InsertVertex adds the vertex to the tree and processes the QC it carries for
// its parent as well as the optional QC certifying the vertex itself. It
// returns the vertices committed in the process, oldest first.
// Expected errors during normal operations:
//   - model.MissingParentError if the parent vertex is not held; the vertex is not inserted
//   - model.InvalidVertexError if the vertex is malformed
//   - model.ByzantineThresholdExceededError if two QCs of one view certify different vertices
func (s *VertexStore) InsertVertex(vertex *flow.Vertex, qc *flow.QuorumCertificate) ([]*flow.Vertex, error) {
	if vertex.Epoch != s.epoch {
		return nil, model.NewInvalidVertexErrorf(vertex, "vertex of epoch %d inserted into store of epoch %d", vertex.Epoch, s.epoch)
	}
	if vertex.View <= s.root.vertex.View {
		// committed already or orphaned by the commit
		return nil, nil
	}

	mutated, err := s.insert(vertex)
	if err != nil {
		return nil, err
	}

	var committed []*flow.Vertex
	for _, certificate := range []*flow.QuorumCertificate{vertex.QC, qc} {
		if certificate == nil {
			continue
		}
		added, c, err := s.addQC(certificate)
		if err != nil {
			return nil, err
		}
		mutated = mutated || added
		committed = append(committed, c...)
	}

	if mutated {
		err = s.save()
		if err != nil {
			return nil, err
		}
	}
	return committed, nil
}

// insert executes the vertex on top of its parent and adds it to the tree.
// It returns false if the vertex was already held.
func (s *VertexStore) insert(vertex *flow.Vertex) (bool, error) {
	vertexID := vertex.ID()
	if _, ok := s.lookup(vertexID); ok {
		return false, nil
	}
	if vertex.QC == nil {
		return false, model.NewInvalidVertexErrorf(vertex, "non-root vertex without parent QC")
	}
	if vertex.QC.Epoch() != vertex.Epoch {
		return false, model.NewInvalidVertexErrorf(vertex, "parent QC of epoch %d", vertex.QC.Epoch())
	}
	if vertex.View <= vertex.ParentView() {
		return false, model.NewInvalidVertexErrorf(vertex, "view %d does not exceed parent view %d", vertex.View, vertex.ParentView())
	}

	parent, ok := s.lookup(vertex.ParentID())
	if !ok {
		return false, model.MissingParentError{
			VertexID:   vertexID,
			ParentID:   vertex.ParentID(),
			ParentView: vertex.ParentView(),
		}
	}
	if parent.vertex.View != vertex.ParentView() {
		return false, model.NewInvalidVertexErrorf(vertex, "parent QC view %d does not match parent view %d", vertex.ParentView(), parent.vertex.View)
	}

	header, err := s.ledger.Prepare(parent.header, vertex)
	if err != nil {
		return false, fmt.Errorf("could not execute vertex %x: %w", vertexID, err)
	}

	s.vertices[vertexID] = &executedVertex{id: vertexID, vertex: vertex, header: header}
	s.children[vertex.ParentID()] = append(s.children[vertex.ParentID()], vertexID)

	s.log.Debug().
		Uint64("view", vertex.View).
		Hex("vertex_id", logging.ID(vertexID)).
		Hex("parent_id", logging.ID(vertex.ParentID())).
		Uint64("height", header.Height).
		Msg("vertex inserted")
	s.notifier.OnVertexInserted(vertex)
	return true, nil
}

// AddQC records the QC if the vertex it certifies is held, which may commit
// vertices. It returns false if the certified vertex is unknown.
// Expected errors during normal operations:
//   - model.ByzantineThresholdExceededError if two QCs of one view certify different vertices
func (s *VertexStore) AddQC(qc *flow.QuorumCertificate) (bool, error) {
	if qc.Epoch() != s.epoch {
		return false, model.NewInvalidQCErrorf(qc, "QC of epoch %d added to store of epoch %d", qc.Epoch(), s.epoch)
	}
	if !s.ContainsVertex(qc.VertexID()) {
		// a certified vertex below the root was pruned, the QC is still usable
		return qc.View() <= s.root.vertex.View, nil
	}
	added, _, err := s.addQC(qc)
	if err != nil {
		return false, err
	}
	if added {
		err = s.save()
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

// addQC records the QC of a held vertex and fires the commit rule.
func (s *VertexStore) addQC(qc *flow.QuorumCertificate) (bool, []*flow.Vertex, error) {
	certified, ok := s.lookup(qc.VertexID())
	if !ok {
		return false, nil, nil
	}

	conflicting, ok := s.qcByView[qc.View()]
	if ok && conflicting.VertexID() != qc.VertexID() {
		s.metrics.SafetyInvariantViolated("double_certification")
		s.notifier.OnDoubleCertification(conflicting, qc)
		s.log.Error().
			Uint64("view", qc.View()).
			Hex("first_vertex_id", logging.ID(conflicting.VertexID())).
			Hex("second_vertex_id", logging.ID(qc.VertexID())).
			Msg("two QCs certify different vertices in the same view")
		return false, nil, model.ByzantineThresholdExceededError{Evidence: fmt.Sprintf(
			"QCs for conflicting vertices %x and %x in view %d", conflicting.VertexID(), qc.VertexID(), qc.View())}
	}
	if _, ok := s.qcs[qc.VertexID()]; ok {
		return false, nil, nil
	}

	s.qcs[qc.VertexID()] = qc
	s.qcByView[qc.View()] = qc
	if qc.View() > s.highestQC.View() {
		s.highestQC = qc
		s.notifier.OnHighQCUpdated(qc)
	}

	committed, err := s.tryCommit(certified, qc)
	if err != nil {
		return true, nil, err
	}
	return true, committed, nil
}

// tryCommit applies the 2-chain rule for the freshly certified vertex V: its
// parent P is committed if V.View == P.View+1 and P is above the root.
func (s *VertexStore) tryCommit(certified *executedVertex, qc *flow.QuorumCertificate) ([]*flow.Vertex, error) {
	vertex := certified.vertex
	if vertex.QC == nil || vertex.View != vertex.ParentView()+1 {
		return nil, nil
	}
	parent, ok := s.vertices[vertex.ParentID()]
	if !ok {
		// parent is the root, committed already
		return nil, nil
	}

	proof := qc.CommittedProof()
	if proof == nil || proof.Header.ID() != parent.header.ID() {
		s.metrics.SafetyInvariantViolated("committed_header_mismatch")
		return nil, model.ByzantineThresholdExceededError{Evidence: fmt.Sprintf(
			"QC %v commits a ledger header different from the prepared header %v of vertex %x", qc, parent.header, parent.vertex.ID())}
	}
	return s.commit(parent, vertex.QC, qc, proof)
}

// commit makes `newRoot` the root, hands the committed chain to the ledger and
// prunes every vertex that does not descend from the new root.
func (s *VertexStore) commit(newRoot *executedVertex, rootQC *flow.QuorumCertificate, commitQC *flow.QuorumCertificate, proof *flow.LedgerProof) ([]*flow.Vertex, error) {
	chain := make([]*flow.Vertex, 0)
	for ev := newRoot; ev != s.root; {
		chain = append(chain, ev.vertex)
		parent, ok := s.lookup(ev.vertex.ParentID())
		if !ok {
			return nil, fmt.Errorf("broken ancestry: parent %x of uncommitted vertex %x is missing", ev.vertex.ParentID(), ev.id)
		}
		ev = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	err := s.ledger.Commit(&hotstuff.CommittedUpdate{Vertices: chain, Proof: proof})
	if err != nil {
		return nil, fmt.Errorf("could not commit vertices up to view %d: %w", newRoot.vertex.View, err)
	}

	s.prune(newRoot)
	s.rootQC = rootQC
	s.highestCommittedQC = commitQC

	s.log.Info().
		Uint64("root_view", newRoot.vertex.View).
		Hex("root_id", logging.ID(newRoot.id)).
		Uint64("height", proof.Header.Height).
		Int("committed", len(chain)).
		Msg("vertices committed")
	s.metrics.VerticesCommitted(len(chain), proof.Header.Height)
	s.notifier.OnVerticesCommitted(chain, proof)
	return chain, nil
}

// prune keeps only the new root and its descendants.
func (s *VertexStore) prune(newRoot *executedVertex) {
	rootID := newRoot.id
	keep := make(map[flow.Identifier]*executedVertex)
	queue := []flow.Identifier{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, childID := range s.children[id] {
			keep[childID] = s.vertices[childID]
			queue = append(queue, childID)
		}
	}

	for id := range s.children {
		if _, ok := keep[id]; !ok && id != rootID {
			delete(s.children, id)
		}
	}
	for id := range s.qcs {
		if _, ok := keep[id]; !ok && id != rootID {
			delete(s.qcs, id)
		}
	}
	for view := range s.qcByView {
		if view < newRoot.vertex.View {
			delete(s.qcByView, view)
		}
	}
	s.vertices = keep
	s.root = newRoot
}

// InsertTC records the TC if it is the highest held.
func (s *VertexStore) InsertTC(tc *flow.TimeoutCertificate) error {
	if tc.Epoch != s.epoch {
		return model.NewInvalidTCErrorf(tc, "TC of epoch %d inserted into store of epoch %d", tc.Epoch, s.epoch)
	}
	if s.highestTC != nil && s.highestTC.View >= tc.View {
		return nil
	}
	s.highestTC = tc
	return s.save()
}

// InsertVertexChain inserts a contiguous chain of fetched vertices, oldest
// first. The parent of the first vertex must be held.
// Expected errors during normal operations:
//   - model.MissingParentError if the chain does not connect to the tree
//   - model.InvalidVertexError if a vertex is malformed
//   - model.ByzantineThresholdExceededError if two QCs of one view certify different vertices
func (s *VertexStore) InsertVertexChain(chain flow.VertexChain) ([]*flow.Vertex, error) {
	var committed []*flow.Vertex
	for _, vertex := range chain {
		if vertex.QC != nil {
			_, err := s.AddQC(vertex.QC)
			if err != nil {
				return nil, fmt.Errorf("could not add QC of vertex %x: %w", vertex.ID(), err)
			}
		}
		c, err := s.InsertVertex(vertex, nil)
		if err != nil {
			return nil, err
		}
		committed = append(committed, c...)
	}
	return committed, nil
}

// GetVertices returns `count` vertices starting with the given one and
// continuing with its ancestors, newest first. It returns nil if the store
// does not hold the whole chain.
func (s *VertexStore) GetVertices(vertexID flow.Identifier, count uint32) []*flow.Vertex {
	if count == 0 {
		return nil
	}
	result := make([]*flow.Vertex, 0, count)
	id := vertexID
	for uint32(len(result)) < count {
		ev, ok := s.lookup(id)
		if !ok {
			return nil
		}
		result = append(result, ev.vertex)
		if ev == s.root && uint32(len(result)) < count {
			// ancestors of the root are pruned
			return nil
		}
		id = ev.vertex.ParentID()
	}
	return result
}

// PathFromRoot returns the uncommitted vertices from the root's child down to
// the given vertex, oldest first.
func (s *VertexStore) PathFromRoot(vertexID flow.Identifier) ([]*flow.Vertex, bool) {
	var path []*flow.Vertex
	id := vertexID
	for id != s.root.id {
		ev, ok := s.vertices[id]
		if !ok {
			return nil, false
		}
		path = append(path, ev.vertex)
		id = ev.vertex.ParentID()
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, true
}

// Rebuild resets the store after the ledger was synced up to the state
// committed by commitQC. root is the committed vertex, rootQC certifies it and
// vertices holds its uncommitted descendants, parents first.
// Expected errors during normal operations:
//   - model.InvalidVertexError if the vertices do not form a tree below the root
func (s *VertexStore) Rebuild(root *flow.Vertex, rootQC *flow.QuorumCertificate, vertices []*flow.Vertex, commitQC *flow.QuorumCertificate) error {
	rootHeader := commitQC.VoteData.Committed
	if rootHeader == nil {
		return model.NewInvalidQCErrorf(commitQC, "QC does not commit a ledger state")
	}
	if rootQC.VertexID() != root.ID() {
		return model.NewInvalidVertexErrorf(root, "root QC certifies vertex %x", rootQC.VertexID())
	}

	state := &hotstuff.VertexStoreState{
		Epoch:              s.epoch,
		Root:               root,
		RootHeader:         rootHeader,
		RootQC:             rootQC,
		Vertices:           vertices,
		HighestQC:          s.highestQC,
		HighestCommittedQC: commitQC,
		HighestTC:          s.highestTC,
		QCs:                []*flow.QuorumCertificate{commitQC},
	}
	err := s.reset(state)
	if err != nil {
		return fmt.Errorf("could not rebuild vertex store: %w", err)
	}

	s.log.Info().
		Uint64("root_view", root.View).
		Uint64("height", rootHeader.Height).
		Msg("vertex store rebuilt from synced ledger")
	return s.save()
}

// State returns a snapshot of the store.
func (s *VertexStore) State() *hotstuff.VertexStoreState {
	state := &hotstuff.VertexStoreState{
		Epoch:              s.epoch,
		Root:               s.root.vertex,
		RootHeader:         s.root.header,
		RootQC:             s.rootQC,
		HighestQC:          s.highestQC,
		HighestCommittedQC: s.highestCommittedQC,
		HighestTC:          s.highestTC,
	}

	// breadth first from the root, so parents precede children
	queue := []flow.Identifier{s.root.id}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, childID := range s.children[id] {
			state.Vertices = append(state.Vertices, s.vertices[childID].vertex)
			if qc, ok := s.qcs[childID]; ok {
				state.QCs = append(state.QCs, qc)
			}
			queue = append(queue, childID)
		}
	}
	return state
}

func (s *VertexStore) save() error {
	err := s.persist.SaveVertexStoreState(s.State())
	if err != nil {
		return fmt.Errorf("could not persist vertex store state: %w", err)
	}
	return nil
}
