package events

import (
	"time"

	"github.com/ledgerbft/node/model/flow"
)

// Sink consumes events delivered to one node. originID is the sending peer
// for network messages and the node itself for local events.
type Sink func(originID flow.Identifier, event interface{}) error

// Dispatcher is the only way components of a node enqueue local events and
// read the clock. All events end up in the node's single sequential queue,
// including delayed ones, so the order between a timeout and a concurrently
// arriving message is decided by the queue alone.
type Dispatcher interface {
	// Dispatch enqueues the event for processing after all events already queued.
	Dispatch(event interface{})

	// DispatchAfter enqueues the event once the delay elapsed.
	DispatchAfter(event interface{}, delay time.Duration)

	// Now returns the node's current time.
	Now() time.Time
}
