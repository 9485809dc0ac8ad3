package unittest

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module/signature"
)

// IdentifierFixture returns a random identifier.
func IdentifierFixture() flow.Identifier {
	var id flow.Identifier
	_, _ = rand.Read(id[:])
	return id
}

// IdentifierListFixture returns n random identifiers.
func IdentifierListFixture(n int) flow.IdentifierList {
	list := make(flow.IdentifierList, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, IdentifierFixture())
	}
	return list
}

// CommandFixture returns a command with the given label.
func CommandFixture(label string) flow.Command {
	return flow.Command(label)
}

// CommandsFixture returns n distinct commands.
func CommandsFixture(n int) []flow.Command {
	commands := make([]flow.Command, 0, n)
	for i := 0; i < n; i++ {
		commands = append(commands, CommandFixture(fmt.Sprintf("command-%d-%x", i, IdentifierFixture().TerminalString())))
	}
	return commands
}

// PrivateKeyFixture returns the deterministic key for the given index.
func PrivateKeyFixture(index int) *signature.PrivateKey {
	seed := make([]byte, 32)
	binary.BigEndian.PutUint64(seed[24:], uint64(index)+1)
	key, err := signature.PrivateKeyFromSeed(seed)
	if err != nil {
		panic(err)
	}
	return key
}

// Participants holds the keys of a validator set, indexed like Set.Validators.
type Participants struct {
	Set  *flow.ValidatorSet
	Keys map[flow.Identifier]*signature.PrivateKey
}

// Key returns the private key of the i-th validator in canonical order.
func (p *Participants) Key(i int) *signature.PrivateKey {
	return p.Keys[p.Set.Validators[i].NodeID]
}

// NodeID returns the node ID of the i-th validator in canonical order.
func (p *Participants) NodeID(i int) flow.Identifier {
	return p.Set.Validators[i].NodeID
}

// ParticipantsFixture returns n validators of weight 1 with deterministic keys.
func ParticipantsFixture(n int) *Participants {
	weights := make([]uint64, n)
	for i := range weights {
		weights[i] = 1
	}
	return WeightedParticipantsFixture(weights...)
}

// WeightedParticipantsFixture returns validators with the given weights.
func WeightedParticipantsFixture(weights ...uint64) *Participants {
	validators := make([]*flow.Validator, 0, len(weights))
	keys := make(map[flow.Identifier]*signature.PrivateKey, len(weights))
	for i, weight := range weights {
		key := PrivateKeyFixture(i)
		validators = append(validators, key.Validator(weight))
		keys[key.NodeID()] = key
	}
	set, err := flow.NewValidatorSet(validators)
	if err != nil {
		panic(err)
	}
	return &Participants{Set: set, Keys: keys}
}

// GenesisHeaderFixture returns the ledger header of epoch 1 at height 0.
func GenesisHeaderFixture() *flow.LedgerHeader {
	return &flow.LedgerHeader{Epoch: 1}
}

// GenesisFixture returns the genesis vertex and QC of an epoch.
func GenesisFixture(header *flow.LedgerHeader) (*flow.Vertex, *flow.QuorumCertificate) {
	genesis := flow.NewGenesisVertex(header.Epoch, header)
	return genesis, flow.NewGenesisQC(genesis)
}

// VertexFixture returns a vertex on top of the given QC.
func VertexFixture(qc *flow.QuorumCertificate, view uint64, proposer flow.Identifier, commands ...flow.Command) *flow.Vertex {
	return &flow.Vertex{
		Epoch:      qc.Epoch(),
		View:       view,
		QC:         qc,
		ProposerID: proposer,
		Commands:   commands,
	}
}

// VoteDataFixture returns the vote data of a vertex.
func VoteDataFixture(vertex *flow.Vertex, committed *flow.LedgerHeader) flow.VoteData {
	return flow.VoteData{
		Epoch:      vertex.Epoch,
		View:       vertex.View,
		VertexID:   vertex.ID(),
		ParentID:   vertex.ParentID(),
		ParentView: vertex.ParentView(),
		Committed:  committed,
	}
}

// VoteFixture returns a vote on the vote data signed with the key.
func VoteFixture(key *signature.PrivateKey, data flow.VoteData, timestamp uint64) *messages.Vote {
	vote := &messages.Vote{
		VoteData:  data,
		SignerID:  key.NodeID(),
		Timestamp: timestamp,
	}
	vote.Signature = key.Sign(vote.Digest())
	return vote
}

// QCFixture returns a QC over the vote data signed by the first `signers`
// validators of the participants.
func QCFixture(p *Participants, data flow.VoteData, signers int) *flow.QuorumCertificate {
	sigs := make(flow.TimestampedSignatures, 0, signers)
	for i := 0; i < signers; i++ {
		key := p.Key(i)
		timestamp := uint64(1000 + i)
		digest := flow.VoteDigest(data.Core(), data.Committed, timestamp)
		sigs = append(sigs, flow.TimestampedSignature{
			SignerID:  key.NodeID(),
			Timestamp: timestamp,
			Signature: key.Sign(digest),
		})
	}
	return &flow.QuorumCertificate{VoteData: data, Signatures: sigs.Sorted()}
}

// CertifiedVertexFixture returns a vertex on top of parentQC and a QC
// certifying it, signed by all participants.
func CertifiedVertexFixture(p *Participants, parentQC *flow.QuorumCertificate, view uint64, committed *flow.LedgerHeader) (*flow.Vertex, *flow.QuorumCertificate) {
	vertex := VertexFixture(parentQC, view, p.NodeID(int(view)%p.Set.Count()))
	qc := QCFixture(p, VoteDataFixture(vertex, committed), p.Set.Count())
	return vertex, qc
}

// TimeoutVoteFixture returns a timeout vote of the key for the view.
func TimeoutVoteFixture(key *signature.PrivateKey, epoch uint64, view uint64, highQC *flow.QuorumCertificate, timestamp uint64) *messages.TimeoutVote {
	timeout := &messages.TimeoutVote{
		Epoch:     epoch,
		View:      view,
		HighQC:    highQC,
		SignerID:  key.NodeID(),
		Timestamp: timestamp,
	}
	timeout.Signature = key.Sign(timeout.Digest())
	return timeout
}

// LedgerProofFixture returns a proof of the header signed by the first
// `signers` validators of the participants.
func LedgerProofFixture(p *Participants, header flow.LedgerHeader, signers int) *flow.LedgerProof {
	proof := &flow.LedgerProof{
		Opaque: IdentifierFixture(),
		Header: header,
	}
	sigs := make(flow.TimestampedSignatures, 0, signers)
	for i := 0; i < signers; i++ {
		key := p.Key(i)
		timestamp := uint64(2000 + i)
		sigs = append(sigs, flow.TimestampedSignature{
			SignerID:  key.NodeID(),
			Timestamp: timestamp,
			Signature: key.Sign(proof.Digest(timestamp)),
		})
	}
	proof.Signatures = sigs.Sorted()
	return proof
}

// TCFixture returns a TC for the view signed by the first `signers`
// validators of the participants, all of them reporting highQC as their
// highest QC.
func TCFixture(p *Participants, epoch uint64, view uint64, highQC *flow.QuorumCertificate, signers int) *flow.TimeoutCertificate {
	sigs := make(flow.TimestampedSignatures, 0, signers)
	for i := 0; i < signers; i++ {
		key := p.Key(i)
		timestamp := uint64(3000 + i)
		sigs = append(sigs, flow.TimestampedSignature{
			SignerID:  key.NodeID(),
			Timestamp: timestamp,
			Signature: key.Sign(flow.TimeoutDigest(epoch, view, highQC.View(), timestamp)),
		})
	}
	views := make([]uint64, signers)
	for i := range views {
		views[i] = highQC.View()
	}
	return &flow.TimeoutCertificate{
		Epoch:       epoch,
		View:        view,
		HighQC:      highQC,
		HighQCViews: views,
		Signatures:  sigs.Sorted(),
	}
}

// ProposalFixture returns the proposal of the vertex signed by its proposer,
// which must be one of the participants.
func ProposalFixture(p *Participants, vertex *flow.Vertex) *messages.Proposal {
	return &messages.Proposal{
		Vertex:    vertex,
		Signature: p.Keys[vertex.ProposerID].Sign(vertex.ID()),
	}
}
