package network

import (
	"github.com/ledgerbft/node/model/flow"
)

// Conduit sends messages to the other nodes of the network in a
// network-agnostic way. Delivery is best effort: messages may be dropped,
// delayed, duplicated or reordered, and a nil error only means the message
// was handed to the transport.
type Conduit interface {
	// Unicast sends the event to the given recipient.
	Unicast(event interface{}, targetID flow.Identifier) error

	// Publish sends the event to all given recipients.
	Publish(event interface{}, targetIDs ...flow.Identifier) error
}

// MessageProcessor processes messages received from other nodes.
type MessageProcessor interface {
	// Process handles the event sent by originID. Returned errors are
	// unexpected and fatal for the receiving node.
	Process(originID flow.Identifier, event interface{}) error
}

// ProcessorFunc adapts a function to the MessageProcessor interface.
type ProcessorFunc func(originID flow.Identifier, event interface{}) error

func (f ProcessorFunc) Process(originID flow.Identifier, event interface{}) error {
	return f(originID, event)
}

// Network connects a node to its peers. Registering a processor returns the
// conduit the node sends its own messages through.
type Network interface {
	Register(nodeID flow.Identifier, processor MessageProcessor) (Conduit, error)
}
