package node

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/consensus/epochs"
	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/notifications"
	"github.com/ledgerbft/node/consensus/hotstuff/notifications/pubsub"
	"github.com/ledgerbft/node/consensus/hotstuff/persister"
	"github.com/ledgerbft/node/engine"
	"github.com/ledgerbft/node/engine/common/synchronization"
	"github.com/ledgerbft/node/engine/consensus/message_hub"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/ledger"
	"github.com/ledgerbft/node/module/signature"
	"github.com/ledgerbft/node/network"
	bstorage "github.com/ledgerbft/node/storage/badger"
)

// Node is the composition root of one replica. It owns the database, the
// ledger, the epoch manager running consensus and the ledger sync, and routes
// every event of the node to the component handling it. All events must be
// delivered sequentially through Handle.
type Node struct {
	log        zerolog.Logger
	self       flow.Identifier
	db         *badger.DB
	executor   *ledger.Executor
	manager    *epochs.EpochManager
	ledgerSync *synchronization.EpochsLocalSync
	remoteSync *synchronization.RemoteSyncHandler
	router     *engine.Router
}

// New builds a node from its persisted state, or from the initial epoch if
// the database is empty. Peers are the nodes asked during ledger sync checks.
// Additional consumers receive the consensus notifications.
func New(
	log zerolog.Logger,
	config Config,
	key *signature.PrivateKey,
	initial epochs.Setup,
	peers flow.IdentifierList,
	conduit network.Conduit,
	dispatcher events.Dispatcher,
	metrics module.NodeMetrics,
	consumers ...hotstuff.Consumer,
) (*Node, error) {
	self := key.NodeID()
	log = log.With().Hex("node_id", self[:]).Logger()

	db, err := bstorage.Open(config.DataDir)
	if err != nil {
		return nil, err
	}
	n := &Node{
		log:    log,
		self:   self,
		db:     db,
		router: engine.NewRouter(),
	}
	err = n.build(config, key, initial, peers, conduit, dispatcher, metrics, consumers)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return n, nil
}

func (n *Node) build(
	config Config,
	key *signature.PrivateKey,
	initial epochs.Setup,
	peers flow.IdentifierList,
	conduit network.Conduit,
	dispatcher events.Dispatcher,
	metrics module.NodeMetrics,
	consumers []hotstuff.Consumer,
) error {
	ledgerStore := bstorage.NewLedger(n.db)
	executor, err := ledger.New(n.log, config.Ledger, ledgerStore, initial.Genesis, dispatcher, metrics)
	if err != nil {
		return fmt.Errorf("could not create ledger: %w", err)
	}
	n.executor = executor

	setup, err := epochs.CurrentSetup(executor.CurrentProof(), ledgerStore, initial)
	if err != nil {
		return fmt.Errorf("could not determine current epoch: %w", err)
	}

	notifier := pubsub.NewDistributor()
	notifier.AddConsumer(notifications.NewLogConsumer(n.log))
	for _, consumer := range consumers {
		notifier.AddConsumer(consumer)
	}

	verifier := signature.NewECDSAVerifier()
	hub := message_hub.NewMessageHub(n.log, n.self, conduit, func() *flow.ValidatorSet {
		return n.manager.Current().Setup.Validators
	})
	factory := epochs.NewFactory(
		n.log,
		config.Epochs,
		key,
		verifier,
		executor,
		persister.New(n.db),
		ledger.NewSyntheticPayload(n.self, config.CommandsPerView),
		hub,
		conduit,
		dispatcher,
		notifier,
		metrics,
	)
	n.manager, err = epochs.New(n.log, config.Epochs, n.self, factory, ledgerStore, conduit, dispatcher, metrics, setup)
	if err != nil {
		return fmt.Errorf("could not create epoch manager: %w", err)
	}

	if len(peers) == 0 {
		peers = setup.Validators.NodeIDs()
	}
	health := synchronization.NewPeerHealth(config.Sync, dispatcher.Now)
	newLocalSync := func(epoch uint64, validators *flow.ValidatorSet) (synchronization.LocalSyncProcessor, error) {
		return synchronization.NewLocalSync(
			n.log,
			config.Sync,
			n.self,
			epoch,
			validators,
			peers,
			executor,
			verifier,
			health,
			conduit,
			dispatcher,
			metrics,
		), nil
	}
	n.ledgerSync, err = synchronization.NewEpochsLocalSync(n.log, config.Sync, setup.Epoch, setup.Validators, newLocalSync, dispatcher, metrics)
	if err != nil {
		return fmt.Errorf("could not create ledger sync: %w", err)
	}
	n.remoteSync, err = synchronization.NewRemoteSyncHandler(n.log, config.Sync, ledgerStore, conduit, dispatcher)
	if err != nil {
		return fmt.Errorf("could not create remote sync handler: %w", err)
	}

	n.registerRoutes()
	return nil
}

func (n *Node) registerRoutes() {
	r := n.router
	m := n.manager

	// consensus
	engine.Register(r, m.ProcessProposal)
	engine.Register(r, m.ProcessVote)
	engine.Register(r, m.ProcessTimeoutVote)
	engine.RegisterLocal(r, m.ProcessLocalTimeout)

	// vertex sync
	engine.Register(r, m.ProcessGetVerticesRequest)
	engine.Register(r, m.ProcessGetVerticesResponse)
	engine.Register(r, m.ProcessGetVerticesErrorResponse)
	engine.RegisterLocal(r, m.ProcessVertexRequestTimeout)
	engine.RegisterLocal(r, m.ProcessVertexSynced)

	// epochs
	engine.Register(r, m.ProcessGetEpochRequest)
	engine.Register(r, m.ProcessGetEpochResponse)
	engine.RegisterLocal(r, n.onLedgerUpdate)

	// ledger sync
	engine.RegisterLocal(r, n.ledgerSync.ProcessLocalSyncRequest)
	engine.RegisterLocal(r, func(messages.SyncCheckTrigger) error { return n.ledgerSync.ProcessSyncCheckTrigger() })
	engine.RegisterLocal(r, n.ledgerSync.ProcessSyncCheckReceiveStatusTimeout)
	engine.RegisterLocal(r, n.ledgerSync.ProcessSyncRequestTimeout)
	engine.Register(r, n.ledgerSync.ProcessStatusResponse)
	engine.Register(r, n.ledgerSync.ProcessSyncResponse)
	engine.Register(r, n.remoteSync.ProcessSyncRequest)
	engine.Register(r, n.remoteSync.ProcessStatusRequest)
}

// onLedgerUpdate lets the epoch manager switch epochs before the ledger sync
// reacts to the new ledger state.
func (n *Node) onLedgerUpdate(update *flow.LedgerUpdate) error {
	err := n.manager.ProcessLedgerUpdate(update)
	if err != nil {
		return fmt.Errorf("epoch manager could not process ledger update: %w", err)
	}
	err = n.ledgerSync.ProcessLedgerUpdate(update)
	if err != nil {
		return fmt.Errorf("ledger sync could not process ledger update: %w", err)
	}
	return nil
}

// Start starts consensus and the periodic ledger sync check.
func (n *Node) Start() error {
	err := n.manager.Start()
	if err != nil {
		return fmt.Errorf("could not start consensus: %w", err)
	}
	n.ledgerSync.Start()
	return nil
}

// Handle processes one event. Events nobody handles are dropped; any other
// error is fatal for the node.
func (n *Node) Handle(originID flow.Identifier, event interface{}) error {
	err := n.router.Route(originID, event)
	if engine.IsUnknownMessageTypeError(err) {
		n.log.Warn().
			Hex("origin_id", originID[:]).
			Str("event_type", fmt.Sprintf("%T", event)).
			Msg("dropping event without handler")
		return nil
	}
	return err
}

// Process makes the node a network.MessageProcessor.
func (n *Node) Process(originID flow.Identifier, event interface{}) error {
	return n.Handle(originID, event)
}

func (n *Node) NodeID() flow.Identifier {
	return n.self
}

// Ledger returns the node's committed ledger.
func (n *Node) Ledger() *ledger.Executor {
	return n.executor
}

// Epoch returns the epoch consensus currently runs in.
func (n *Node) Epoch() uint64 {
	return n.manager.Current().Epoch()
}

// Consensus returns the components of the current epoch.
func (n *Node) Consensus() *epochs.EpochContext {
	return n.manager.Current()
}

// Close releases the node's database.
func (n *Node) Close() error {
	return n.db.Close()
}
