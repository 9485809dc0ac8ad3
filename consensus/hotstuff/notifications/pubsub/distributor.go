package pubsub

import (
	"sync"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
)

// Distributor distributes notifications to a list of subscribers (event consumers).
//
// It allows thread-safe subscription of multiple consumers to events.
type Distributor struct {
	subscribers []hotstuff.Consumer
	lock        sync.RWMutex
}

var _ hotstuff.Consumer = (*Distributor)(nil)

func NewDistributor() *Distributor {
	return &Distributor{}
}

// AddConsumer adds an event consumer to the Distributor
func (p *Distributor) AddConsumer(consumer hotstuff.Consumer) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.subscribers = append(p.subscribers, consumer)
}

func (p *Distributor) each(f func(s hotstuff.Consumer)) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	for _, subscriber := range p.subscribers {
		f(subscriber)
	}
}

func (p *Distributor) OnVertexInserted(vertex *flow.Vertex) {
	p.each(func(s hotstuff.Consumer) { s.OnVertexInserted(vertex) })
}

func (p *Distributor) OnHighQCUpdated(qc *flow.QuorumCertificate) {
	p.each(func(s hotstuff.Consumer) { s.OnHighQCUpdated(qc) })
}

func (p *Distributor) OnVerticesCommitted(vertices []*flow.Vertex, proof *flow.LedgerProof) {
	p.each(func(s hotstuff.Consumer) { s.OnVerticesCommitted(vertices, proof) })
}

func (p *Distributor) OnDoubleCertification(first *flow.QuorumCertificate, second *flow.QuorumCertificate) {
	p.each(func(s hotstuff.Consumer) { s.OnDoubleCertification(first, second) })
}

func (p *Distributor) OnViewChange(oldView, newView uint64) {
	p.each(func(s hotstuff.Consumer) { s.OnViewChange(oldView, newView) })
}

func (p *Distributor) OnQCTriggeredViewChange(oldView uint64, newView uint64, qc *flow.QuorumCertificate) {
	p.each(func(s hotstuff.Consumer) { s.OnQCTriggeredViewChange(oldView, newView, qc) })
}

func (p *Distributor) OnTCTriggeredViewChange(oldView uint64, newView uint64, tc *flow.TimeoutCertificate) {
	p.each(func(s hotstuff.Consumer) { s.OnTCTriggeredViewChange(oldView, newView, tc) })
}

func (p *Distributor) OnStartingTimeout(info model.TimerInfo) {
	p.each(func(s hotstuff.Consumer) { s.OnStartingTimeout(info) })
}

func (p *Distributor) OnLocalTimeout(view uint64) {
	p.each(func(s hotstuff.Consumer) { s.OnLocalTimeout(view) })
}

func (p *Distributor) OnReceiveProposal(currentView uint64, proposal *messages.Proposal) {
	p.each(func(s hotstuff.Consumer) { s.OnReceiveProposal(currentView, proposal) })
}

func (p *Distributor) OnOwnProposal(proposal *messages.Proposal) {
	p.each(func(s hotstuff.Consumer) { s.OnOwnProposal(proposal) })
}

func (p *Distributor) OnOwnVote(vote *messages.Vote, recipientID flow.Identifier) {
	p.each(func(s hotstuff.Consumer) { s.OnOwnVote(vote, recipientID) })
}

func (p *Distributor) OnOwnTimeout(timeout *messages.TimeoutVote) {
	p.each(func(s hotstuff.Consumer) { s.OnOwnTimeout(timeout) })
}

func (p *Distributor) OnQCConstructedFromVotes(qc *flow.QuorumCertificate) {
	p.each(func(s hotstuff.Consumer) { s.OnQCConstructedFromVotes(qc) })
}

func (p *Distributor) OnTCConstructedFromTimeouts(tc *flow.TimeoutCertificate) {
	p.each(func(s hotstuff.Consumer) { s.OnTCConstructedFromTimeouts(tc) })
}

func (p *Distributor) OnInvalidMessage(originID flow.Identifier, err error) {
	p.each(func(s hotstuff.Consumer) { s.OnInvalidMessage(originID, err) })
}
