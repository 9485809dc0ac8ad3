package node

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/ledgerbft/node/consensus/epochs"
	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/signature"
	"github.com/ledgerbft/node/network"
	"github.com/ledgerbft/node/network/stub"
)

// ClusterConfig describes a simulated network of nodes. A non-empty
// Node.DataDir holds one database directory per node.
type ClusterConfig struct {
	Validators int
	Latency    time.Duration
	Start      time.Time
	Node       Config
}

func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		Validators: 4,
		Latency:    10 * time.Millisecond,
		Start:      time.Unix(1_600_000_000, 0),
		Node:       DefaultConfig(),
	}
}

// ConsumerFactory returns the extra consensus consumers of a node.
type ConsumerFactory func(nodeID flow.Identifier) []hotstuff.Consumer

// Cluster runs nodes on a single simulated clock, connected through an
// in-memory hub. Every validator has weight 1 and all epochs share the
// initial validator set.
type Cluster struct {
	log        zerolog.Logger
	config     ClusterConfig
	metrics    module.NodeMetrics
	consumers  ConsumerFactory
	Sim        *events.Simulation
	Hub        *stub.Hub
	Validators *flow.ValidatorSet
	Initial    epochs.Setup
	Nodes      []*Node
}

// ClusterKey returns the deterministic key of the i-th node of a cluster.
func ClusterKey(i int) (*signature.PrivateKey, error) {
	seed := make([]byte, 32)
	binary.BigEndian.PutUint64(seed[24:], uint64(i)+1)
	return signature.PrivateKeyFromSeed(seed)
}

// ClusterSetup returns the keys of n validators of weight 1 and the first
// epoch they run.
func ClusterSetup(n int) ([]*signature.PrivateKey, epochs.Setup, error) {
	keys := make([]*signature.PrivateKey, 0, n)
	validators := make([]*flow.Validator, 0, n)
	for i := 0; i < n; i++ {
		key, err := ClusterKey(i)
		if err != nil {
			return nil, epochs.Setup{}, fmt.Errorf("could not derive key %d: %w", i, err)
		}
		keys = append(keys, key)
		validators = append(validators, key.Validator(1))
	}
	set, err := flow.NewValidatorSet(validators)
	if err != nil {
		return nil, epochs.Setup{}, fmt.Errorf("invalid validator set: %w", err)
	}
	initial := epochs.Setup{
		Epoch:      1,
		Validators: set,
		Genesis:    &flow.LedgerHeader{Epoch: 1},
	}
	return keys, initial, nil
}

// NewCluster creates and starts the validators of the cluster. consumers may
// be nil.
func NewCluster(log zerolog.Logger, config ClusterConfig, metrics module.NodeMetrics, consumers ConsumerFactory) (*Cluster, error) {
	if config.Validators < 1 {
		return nil, fmt.Errorf("cluster needs at least one validator, got %d", config.Validators)
	}
	keys, initial, err := ClusterSetup(config.Validators)
	if err != nil {
		return nil, err
	}
	set := initial.Validators
	if config.Node.Ledger.EpochMaxView > 0 && config.Node.Ledger.NextValidators == nil {
		config.Node.Ledger.NextValidators = func(uint64) *flow.ValidatorSet { return set }
	}

	sim := events.NewSimulation(config.Start)
	c := &Cluster{
		log:        log,
		config:     config,
		metrics:    metrics,
		consumers:  consumers,
		Sim:        sim,
		Hub:        stub.NewHub(stub.WithSimulation(sim, config.Latency)),
		Validators: set,
		Initial:    initial,
	}
	// all validators are connected before the first one starts
	for _, key := range keys {
		_, err := c.createNode(key)
		if err != nil {
			return nil, multierr.Append(err, c.Close())
		}
	}
	for _, n := range c.Nodes {
		err := n.Start()
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("could not start node %x: %w", n.NodeID(), err), c.Close())
		}
	}
	return c, nil
}

// AddNode creates and starts a node with the given key. A key outside the
// validator set gives a node that only follows the ledger.
func (c *Cluster) AddNode(key *signature.PrivateKey) (*Node, error) {
	n, err := c.createNode(key)
	if err != nil {
		return nil, err
	}
	err = n.Start()
	if err != nil {
		return nil, fmt.Errorf("could not start node %x: %w", n.NodeID(), err)
	}
	return n, nil
}

func (c *Cluster) createNode(key *signature.PrivateKey) (*Node, error) {
	var n *Node
	nodeID := key.NodeID()
	sink := func(originID flow.Identifier, event interface{}) error {
		return n.Handle(originID, event)
	}
	conduit, err := c.Hub.Register(nodeID, network.ProcessorFunc(sink))
	if err != nil {
		return nil, fmt.Errorf("could not register node %x: %w", nodeID, err)
	}

	var consumers []hotstuff.Consumer
	if c.consumers != nil {
		consumers = c.consumers(nodeID)
	}
	config := c.config.Node
	config.DataDir = c.nodeDir(nodeID)
	n, err = New(
		c.log,
		config,
		key,
		c.Initial,
		c.Validators.NodeIDs(),
		conduit,
		c.Sim.Dispatcher(nodeID, sink),
		c.metrics,
		consumers...,
	)
	if err != nil {
		return nil, fmt.Errorf("could not create node %x: %w", nodeID, err)
	}
	c.Nodes = append(c.Nodes, n)
	return n, nil
}

func (c *Cluster) nodeDir(nodeID flow.Identifier) string {
	if c.config.Node.DataDir == "" {
		return ""
	}
	return filepath.Join(c.config.Node.DataDir, nodeID.String())
}

// Isolate drops all messages from and to the given nodes. Isolate with no
// arguments heals the network.
func (c *Cluster) Isolate(nodeIDs ...flow.Identifier) {
	if len(nodeIDs) == 0 {
		c.Hub.SetFilter(nil)
		return
	}
	isolated := flow.IdentifierList(nodeIDs)
	c.Hub.SetFilter(func(originID, targetID flow.Identifier, _ interface{}) bool {
		return !isolated.Contains(originID) && !isolated.Contains(targetID)
	})
}

// RunFor advances the simulated clock.
func (c *Cluster) RunFor(d time.Duration) error {
	return c.Sim.RunFor(d)
}

// RunUntil advances the simulated clock until the condition holds, at most
// for max.
func (c *Cluster) RunUntil(condition func() bool, max time.Duration) (bool, error) {
	return c.Sim.RunUntil(condition, max)
}

// Close closes the databases of all nodes.
func (c *Cluster) Close() error {
	var err error
	for _, n := range c.Nodes {
		err = multierr.Append(err, n.Close())
	}
	return err
}
