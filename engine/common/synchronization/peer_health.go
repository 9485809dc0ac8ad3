package synchronization

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ledgerbft/node/model/flow"
)

var errPeerFault = errors.New("peer fault")

// breakers never leave the open state on their own: the open period is
// measured on the dispatcher clock instead.
const breakerNeverExpires = 100 * 365 * 24 * time.Hour

// PeerHealth tracks sync faults per peer with a circuit breaker each. A peer
// whose breaker is open is only asked when no healthy candidate is left.
// It outlives the per-epoch sync services, so faults carry over epoch changes.
//
// The open period ends once the clock passes BreakerTimeout after the trip.
// The peer is then on probation: a single fault opens its breaker again, a
// success clears it.
//
// PeerHealth is not concurrency safe. It is shared by the sync services of
// one node, which all run on that node's event loop.
type PeerHealth struct {
	now       func() time.Time
	failures  uint32
	timeout   time.Duration
	breakers  map[flow.Identifier]*gobreaker.CircuitBreaker
	openUntil map[flow.Identifier]time.Time
	probation map[flow.Identifier]bool
}

// NewPeerHealth creates the peer health tracker. now is the clock of the
// node's dispatcher.
func NewPeerHealth(config Config, now func() time.Time) *PeerHealth {
	return &PeerHealth{
		now:       now,
		failures:  config.BreakerFailures,
		timeout:   config.BreakerTimeout,
		breakers:  make(map[flow.Identifier]*gobreaker.CircuitBreaker),
		openUntil: make(map[flow.Identifier]time.Time),
		probation: make(map[flow.Identifier]bool),
	}
}

func (h *PeerHealth) newBreaker(peerID flow.Identifier) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        peerID.String(),
		MaxRequests: 1,
		Timeout:     breakerNeverExpires,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return h.probation[peerID] || counts.ConsecutiveFailures >= h.failures
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				h.openUntil[peerID] = h.now().Add(h.timeout)
			}
		},
	})
}

// breaker returns the peer's breaker. An open breaker whose period has passed
// is replaced by a fresh one and the peer is put on probation.
func (h *PeerHealth) breaker(peerID flow.Identifier) *gobreaker.CircuitBreaker {
	cb, ok := h.breakers[peerID]
	if !ok {
		cb = h.newBreaker(peerID)
		h.breakers[peerID] = cb
		return cb
	}
	until, open := h.openUntil[peerID]
	if open && !h.now().Before(until) {
		delete(h.openUntil, peerID)
		h.probation[peerID] = true
		cb = h.newBreaker(peerID)
		h.breakers[peerID] = cb
	}
	return cb
}

// Healthy returns whether the peer may be asked.
func (h *PeerHealth) Healthy(peerID flow.Identifier) bool {
	return h.breaker(peerID).State() != gobreaker.StateOpen
}

// Success records a valid response of the peer.
func (h *PeerHealth) Success(peerID flow.Identifier) {
	_, _ = h.breaker(peerID).Execute(func() (interface{}, error) {
		return nil, nil
	})
	delete(h.probation, peerID)
}

// Fault records an invalid response or a timeout of the peer.
func (h *PeerHealth) Fault(peerID flow.Identifier) {
	_, _ = h.breaker(peerID).Execute(func() (interface{}, error) {
		return nil, errPeerFault
	})
}

// Filter returns the healthy peers of the list.
func (h *PeerHealth) Filter(peers flow.IdentifierList) flow.IdentifierList {
	return peers.Filter(h.Healthy)
}
