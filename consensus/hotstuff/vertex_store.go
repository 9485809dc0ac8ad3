package hotstuff

import (
	"github.com/ledgerbft/node/model/flow"
)

// VertexStore holds the uncommitted vertex tree of one epoch and applies the
// commit rule. It is only accessed from the node's event loop.
type VertexStore interface {
	// Epoch returns the epoch the store belongs to.
	Epoch() uint64

	// Root returns the last committed vertex.
	Root() *flow.Vertex

	// HighQC returns the highest certificates held by the store.
	HighQC() flow.HighQC

	// ContainsVertex returns whether the vertex is the root or an uncommitted vertex.
	ContainsVertex(vertexID flow.Identifier) bool

	// PreparedHeader returns the ledger state reached by executing the vertex.
	PreparedHeader(vertexID flow.Identifier) (*flow.LedgerHeader, bool)

	// CommitHeaderFor returns the ledger header a QC certifying the vertex
	// would commit, nil if none.
	CommitHeaderFor(vertex *flow.Vertex) *flow.LedgerHeader

	// InsertVertex adds the vertex and processes the QCs it carries.
	// Expected errors: model.MissingParentError, model.InvalidVertexError.
	InsertVertex(vertex *flow.Vertex, qc *flow.QuorumCertificate) ([]*flow.Vertex, error)

	// AddQC records the QC and returns false if the certified vertex is unknown.
	AddQC(qc *flow.QuorumCertificate) (bool, error)

	// InsertTC records the TC if it is the highest held.
	InsertTC(tc *flow.TimeoutCertificate) error

	// InsertVertexChain inserts fetched vertices, oldest first.
	InsertVertexChain(chain flow.VertexChain) ([]*flow.Vertex, error)

	// GetVertices returns `count` vertices ending at the given one, newest
	// first, or nil if the store does not hold all of them.
	GetVertices(vertexID flow.Identifier, count uint32) []*flow.Vertex

	// Rebuild resets the store to a root committed by commitQC.
	Rebuild(root *flow.Vertex, rootQC *flow.QuorumCertificate, vertices []*flow.Vertex, commitQC *flow.QuorumCertificate) error
}
