package integration_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/notifications"
	"github.com/ledgerbft/node/engine/node"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module/metrics"
	"github.com/ledgerbft/node/utils/unittest"
)

// commitTracker records the ledger states a node committed through consensus.
type commitTracker struct {
	notifications.NoopConsumer
	nodeID flow.Identifier

	mu           sync.Mutex
	vertices     flow.IdentifierList
	accumulators map[uint64]flow.Identifier
	doubleCerts  int
}

func newCommitTracker(nodeID flow.Identifier) *commitTracker {
	return &commitTracker{
		nodeID:       nodeID,
		accumulators: make(map[uint64]flow.Identifier),
	}
}

func (c *commitTracker) OnVerticesCommitted(vertices []*flow.Vertex, proof *flow.LedgerProof) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, vertex := range vertices {
		c.vertices = append(c.vertices, vertex.ID())
	}
	c.accumulators[proof.Header.Height] = proof.Header.Accumulator
}

func (c *commitTracker) OnDoubleCertification(*flow.QuorumCertificate, *flow.QuorumCertificate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doubleCerts++
}

func (c *commitTracker) committed() flow.IdentifierList {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vertices.Copy()
}

type network struct {
	*node.Cluster
	trackers map[flow.Identifier]*commitTracker
}

func createNetwork(t *testing.T, config node.ClusterConfig) *network {
	net := &network{trackers: make(map[flow.Identifier]*commitTracker)}
	consumers := func(nodeID flow.Identifier) []hotstuff.Consumer {
		tracker := newCommitTracker(nodeID)
		net.trackers[nodeID] = tracker
		return []hotstuff.Consumer{tracker}
	}
	cluster, err := node.NewCluster(unittest.Logger(), config, metrics.NewNoopCollector(), consumers)
	require.NoError(t, err)
	net.Cluster = cluster
	t.Cleanup(func() {
		assert.NoError(t, cluster.Close())
	})
	return net
}

func (net *network) height(n *node.Node) uint64 {
	return n.Ledger().CurrentHeader().Height
}

// allReached returns a condition holding once all given nodes committed the height.
func (net *network) allReached(height uint64, nodes ...*node.Node) func() bool {
	if len(nodes) == 0 {
		nodes = net.Nodes
	}
	return func() bool {
		for _, n := range nodes {
			if net.height(n) < height {
				return false
			}
		}
		return true
	}
}

func (net *network) runUntil(t *testing.T, condition func() bool, max time.Duration, msg string) {
	ok, err := net.RunUntil(condition, max)
	require.NoError(t, err)
	require.True(t, ok, msg)
}

// assertSafety checks that no two nodes committed different ledger states at
// the same height, and that the vertex sequences committed through consensus
// never diverge.
func assertSafety(t *testing.T, trackers map[flow.Identifier]*commitTracker) {
	all := make([]*commitTracker, 0, len(trackers))
	for _, tracker := range trackers {
		all = append(all, tracker)
		assert.Zero(t, tracker.doubleCerts, "node %x observed a double certification", tracker.nodeID)
	}
	for i, a := range all {
		for _, b := range all[i+1:] {
			a.mu.Lock()
			b.mu.Lock()
			for height, acc := range a.accumulators {
				other, ok := b.accumulators[height]
				if ok {
					assert.Equal(t, acc, other, "nodes %x and %x diverge at height %d", a.nodeID, b.nodeID, height)
				}
			}
			b.mu.Unlock()
			a.mu.Unlock()
		}
	}
}

// assertSamePrefix checks that the committed vertex sequences of the nodes
// are prefixes of one another.
func assertSamePrefix(t *testing.T, trackers ...*commitTracker) {
	for i, a := range trackers {
		for _, b := range trackers[i+1:] {
			left, right := a.committed(), b.committed()
			n := len(left)
			if len(right) < n {
				n = len(right)
			}
			assert.Equal(t, left[:n], right[:n], "nodes %x and %x committed different vertices", a.nodeID, b.nodeID)
		}
	}
}

func trackersOf(net *network, nodes ...*node.Node) []*commitTracker {
	trackers := make([]*commitTracker, 0, len(nodes))
	for _, n := range nodes {
		trackers = append(trackers, net.trackers[n.NodeID()])
	}
	return trackers
}
