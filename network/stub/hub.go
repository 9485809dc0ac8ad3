package stub

import (
	"fmt"
	"sync"
	"time"

	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/network"
)

// Filter returns false for messages the hub must drop.
type Filter func(originID, targetID flow.Identifier, event interface{}) bool

// Hub is an in-memory network connecting the nodes of one process. Messages
// are either handed to the recipient's processor right away or, on a
// simulated hub, scheduled on the simulation's virtual clock.
type Hub struct {
	mu       sync.RWMutex
	nodes    map[flow.Identifier]network.MessageProcessor
	filter   Filter
	sim      *events.Simulation
	latency  time.Duration
	messages uint64
	dropped  uint64
}

var _ network.Network = (*Hub)(nil)

type HubOption func(*Hub)

// WithSimulation delivers messages through the simulation after the latency.
func WithSimulation(sim *events.Simulation, latency time.Duration) HubOption {
	return func(h *Hub) {
		h.sim = sim
		h.latency = latency
	}
}

// WithFilter drops the messages the filter rejects.
func WithFilter(filter Filter) HubOption {
	return func(h *Hub) {
		h.filter = filter
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		nodes: make(map[flow.Identifier]network.MessageProcessor),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register connects the node to the hub.
func (h *Hub) Register(nodeID flow.Identifier, processor network.MessageProcessor) (network.Conduit, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.nodes[nodeID]; exists {
		return nil, fmt.Errorf("node %x already registered", nodeID)
	}
	h.nodes[nodeID] = processor
	return &Conduit{hub: h, self: nodeID}, nil
}

// SetFilter replaces the message filter, nil delivers everything.
func (h *Hub) SetFilter(filter Filter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.filter = filter
}

// NodeIDs returns the identifiers of all registered nodes in canonical order.
func (h *Hub) NodeIDs() flow.IdentifierList {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make(flow.IdentifierList, 0, len(h.nodes))
	for id := range h.nodes {
		ids = append(ids, id)
	}
	return ids.Sort()
}

// Stats returns the number of delivered and dropped messages.
func (h *Hub) Stats() (delivered uint64, dropped uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.messages, h.dropped
}

func (h *Hub) send(originID, targetID flow.Identifier, event interface{}) error {
	h.mu.Lock()
	processor, ok := h.nodes[targetID]
	if !ok {
		h.mu.Unlock()
		return network.UnknownTargetError{TargetID: targetID}
	}
	if h.filter != nil && !h.filter(originID, targetID, event) {
		h.dropped++
		h.mu.Unlock()
		return nil
	}
	h.messages++
	h.mu.Unlock()

	if h.sim != nil {
		h.sim.Schedule(h.latency, processor.Process, originID, event)
		return nil
	}
	return processor.Process(originID, event)
}
