package integration_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerbft/node/engine/node"
)

// honest validators on a reliable network agree on one ledger and keep
// committing.
func TestAgreement(t *testing.T) {
	net := createNetwork(t, node.DefaultClusterConfig())

	net.runUntil(t, net.allReached(30), 2*time.Minute, "validators did not commit 30 heights")

	assertSafety(t, net.trackers)
	assertSamePrefix(t, trackersOf(net, net.Nodes...)...)
}

func TestSingleValidator(t *testing.T) {
	config := node.DefaultClusterConfig()
	config.Validators = 1
	net := createNetwork(t, config)

	net.runUntil(t, net.allReached(10), time.Minute, "single validator did not commit")
}

// one of four validators is unreachable: the remaining three still form a
// quorum and make progress, timing out the views led by the crashed node.
func TestOneCrashedValidator(t *testing.T) {
	net := createNetwork(t, node.DefaultClusterConfig())
	crashed := net.Nodes[3]
	net.Isolate(crashed.NodeID())

	live := net.Nodes[:3]
	net.runUntil(t, net.allReached(20, live...), 5*time.Minute, "remaining validators did not make progress")

	assert.Zero(t, net.height(crashed))
	assertSafety(t, net.trackers)
	assertSamePrefix(t, trackersOf(net, live...)...)
}

// with two of four validators unreachable no quorum exists and nothing is
// committed; once the network heals the validators continue.
func TestNoProgressWithoutQuorum(t *testing.T) {
	net := createNetwork(t, node.DefaultClusterConfig())
	net.Isolate(net.Nodes[2].NodeID(), net.Nodes[3].NodeID())

	err := net.RunFor(30 * time.Second)
	assert.NoError(t, err)
	for _, n := range net.Nodes {
		assert.Zero(t, net.height(n))
	}

	net.Isolate()
	net.runUntil(t, net.allReached(10), 5*time.Minute, "validators did not recover after healing")
	assertSafety(t, net.trackers)
}

// a validator cut off for a while catches up through vertex and ledger sync
// once the network heals, and joins consensus again.
func TestPartitionedValidatorCatchesUp(t *testing.T) {
	net := createNetwork(t, node.DefaultClusterConfig())
	lagging := net.Nodes[0]
	net.Isolate(lagging.NodeID())

	others := net.Nodes[1:]
	net.runUntil(t, net.allReached(20, others...), 5*time.Minute, "majority did not make progress")
	target := net.height(others[0])

	net.Isolate()
	net.runUntil(t, net.allReached(target, lagging), 5*time.Minute, "partitioned validator did not catch up")

	// it takes part in consensus again
	before := len(net.trackers[lagging.NodeID()].committed())
	net.runUntil(t, func() bool {
		return len(net.trackers[lagging.NodeID()].committed()) > before
	}, 5*time.Minute, "partitioned validator did not commit through consensus again")

	assertSafety(t, net.trackers)
}

// proposals missing at some validators are fetched through vertex sync.
func TestMissedProposalsAreFetched(t *testing.T) {
	net := createNetwork(t, node.DefaultClusterConfig())
	net.Hub.SetFilter(blockNodesFirstMessages(10, net.Nodes[1].NodeID(), net.Nodes[2].NodeID()))

	net.runUntil(t, net.allReached(15), 5*time.Minute, "validators did not commit after missing messages")
	assertSafety(t, net.trackers)
}

func TestLossyNetwork(t *testing.T) {
	net := createNetwork(t, node.DefaultClusterConfig())
	net.Hub.SetFilter(blockMessagesByPercentage(42, 10))

	net.runUntil(t, net.allReached(15), 10*time.Minute, "validators did not commit on a lossy network")
	assertSafety(t, net.trackers)

	_, dropped := net.Hub.Stats()
	assert.NotZero(t, dropped)
}

// votes never reach one leader: its views time out and the others' views commit.
func TestLeaderWithoutVotes(t *testing.T) {
	net := createNetwork(t, node.DefaultClusterConfig())
	net.Hub.SetFilter(blockVotesTo(net.Nodes[0].NodeID()))

	net.runUntil(t, net.allReached(15), 5*time.Minute, "validators did not commit without one leader's votes")
	assertSafety(t, net.trackers)
}
