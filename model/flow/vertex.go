package flow

// Command is an opaque, ledger-level transaction carried in a vertex payload.
type Command []byte

// Vertex is a proposed unit of ordering within an epoch. Vertices form a tree
// rooted at the last committed vertex; each non-genesis vertex references its
// parent through the QC it carries.
type Vertex struct {
	Epoch      uint64
	View       uint64
	QC         *QuorumCertificate // certifies the parent, nil for the epoch's genesis vertex
	ProposerID Identifier
	Commands   []Command
	Genesis    *LedgerHeader // ledger state the epoch starts from, set on the genesis vertex only
}

// NewGenesisVertex returns the genesis vertex of the epoch starting from the given ledger header.
func NewGenesisVertex(epoch uint64, header *LedgerHeader) *Vertex {
	return &Vertex{
		Epoch:   epoch,
		View:    0,
		Genesis: header,
	}
}

// ID returns the unique identifier of the vertex.
func (v *Vertex) ID() Identifier {
	return MakeID(v)
}

// IsGenesis returns whether this is the epoch's genesis vertex.
func (v *Vertex) IsGenesis() bool {
	return v.QC == nil
}

// ParentID returns the ID of the parent vertex, ZeroID for genesis.
func (v *Vertex) ParentID() Identifier {
	if v.QC == nil {
		return ZeroID
	}
	return v.QC.VertexID()
}

// ParentView returns the view of the parent vertex.
func (v *Vertex) ParentView() uint64 {
	if v.QC == nil {
		return 0
	}
	return v.QC.View()
}

// VertexChain is a contiguous chain of vertices ordered oldest first.
type VertexChain []*Vertex

// Tip returns the newest vertex in the chain.
func (c VertexChain) Tip() *Vertex {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// IDs returns the vertex IDs in chain order.
func (c VertexChain) IDs() IdentifierList {
	ids := make(IdentifierList, 0, len(c))
	for _, v := range c {
		ids = append(ids, v.ID())
	}
	return ids
}
