package integration_test

import (
	"math/rand"

	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/network/stub"
)

// This file includes filters simulating network conditions on the hub.

// blockNodesFirstMessages drops the first n consensus messages sent to each
// of the given nodes.
func blockNodesFirstMessages(n uint64, denyList ...flow.Identifier) stub.Filter {
	blackList := make(map[flow.Identifier]uint64, len(denyList))
	for _, nodeID := range denyList {
		blackList[nodeID] = n
	}
	return func(_, targetID flow.Identifier, event interface{}) bool {
		switch event.(type) {
		case *messages.Proposal:
		case *messages.Vote:
		case *messages.TimeoutVote:
		default:
			return true
		}
		count, ok := blackList[targetID]
		if ok && count > 0 {
			blackList[targetID] = count - 1
			return false
		}
		return true
	}
}

// blockMessagesByPercentage drops the given percentage of all messages.
func blockMessagesByPercentage(seed int64, percent int) stub.Filter {
	rng := rand.New(rand.NewSource(seed))
	return func(_, _ flow.Identifier, _ interface{}) bool {
		return rng.Intn(100) >= percent
	}
}

// blockVotesTo drops every vote sent to the given node.
func blockVotesTo(nodeID flow.Identifier) stub.Filter {
	return func(_, targetID flow.Identifier, event interface{}) bool {
		_, isVote := event.(*messages.Vote)
		return !isVote || targetID != nodeID
	}
}
