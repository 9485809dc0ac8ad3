package epochs

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/consensus/bftsync"
	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/committees"
	"github.com/ledgerbft/node/consensus/hotstuff/eventhandler"
	"github.com/ledgerbft/node/consensus/hotstuff/pacemaker"
	"github.com/ledgerbft/node/consensus/hotstuff/pacemaker/timeout"
	"github.com/ledgerbft/node/consensus/hotstuff/safetyrules"
	"github.com/ledgerbft/node/consensus/hotstuff/verification"
	"github.com/ledgerbft/node/consensus/hotstuff/vertexstore"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/signature"
	"github.com/ledgerbft/node/network"
	"github.com/ledgerbft/node/storage"
)

// Ledger is the committed ledger the epoch components execute on.
type Ledger interface {
	hotstuff.Ledger
	bftsync.LedgerState
}

// Persister stores the consensus state that survives restarts.
type Persister interface {
	hotstuff.Persister
	hotstuff.VertexStorePersister
}

// Factory creates the consensus components of an epoch. Everything that
// outlives an epoch (ledger, persister, network, dispatcher) is shared by the
// components it creates.
type Factory struct {
	log          zerolog.Logger
	config       Config
	signer       signature.Signer
	verifier     signature.Verifier
	ledger       Ledger
	persist      Persister
	payload      hotstuff.PayloadBuilder
	communicator hotstuff.Communicator
	conduit      network.Conduit
	dispatcher   events.Dispatcher
	notifier     hotstuff.Consumer
	metrics      module.NodeMetrics
}

func NewFactory(
	log zerolog.Logger,
	config Config,
	signer signature.Signer,
	verifier signature.Verifier,
	ledger Ledger,
	persist Persister,
	payload hotstuff.PayloadBuilder,
	communicator hotstuff.Communicator,
	conduit network.Conduit,
	dispatcher events.Dispatcher,
	notifier hotstuff.Consumer,
	metrics module.NodeMetrics,
) *Factory {
	return &Factory{
		log:          log,
		config:       config,
		signer:       signer,
		verifier:     verifier,
		ledger:       ledger,
		persist:      persist,
		payload:      payload,
		communicator: communicator,
		conduit:      conduit,
		dispatcher:   dispatcher,
		notifier:     notifier,
		metrics:      metrics,
	}
}

// Create builds the components of the epoch. The vertex store and the
// pacemaker resume from their persisted state if it belongs to the epoch and
// start from the epoch's genesis vertex otherwise.
func (f *Factory) Create(setup Setup) (*EpochContext, error) {
	self := f.signer.NodeID()
	committee, err := committees.NewStaticCommittee(setup.Epoch, setup.Validators, self)
	if err != nil {
		return nil, fmt.Errorf("could not create committee: %w", err)
	}

	genesis := flow.NewGenesisVertex(setup.Epoch, setup.Genesis)
	genesisQC := flow.NewGenesisQC(genesis)
	state, err := f.persist.LoadVertexStoreState(setup.Epoch)
	if errors.Is(err, storage.ErrNotFound) {
		state = vertexstore.GenesisState(genesis)
	} else if err != nil {
		return nil, fmt.Errorf("could not load vertex store state: %w", err)
	}

	store, err := vertexstore.New(f.log, state, f.ledger, f.persist, f.notifier, f.metrics)
	if err != nil {
		return nil, fmt.Errorf("could not create vertex store: %w", err)
	}
	verifier := verification.NewVerifier(committee, genesisQC, f.verifier)
	sync, err := bftsync.New(f.log, f.config.Sync, self, store, f.ledger, verifier, f.conduit, f.dispatcher, f.metrics)
	if err != nil {
		return nil, fmt.Errorf("could not create vertex sync: %w", err)
	}
	requests, err := bftsync.NewRequestHandler(f.log, f.config.Sync, store, f.conduit, f.dispatcher, f.metrics)
	if err != nil {
		return nil, fmt.Errorf("could not create vertex request handler: %w", err)
	}

	ctx := &EpochContext{
		Setup:     setup,
		Committee: committee,
		Verifier:  verifier,
		Store:     store,
		Sync:      sync,
		Requests:  requests,
	}
	if !setup.Validators.Contains(self) {
		return ctx, nil
	}

	liveness, err := f.persist.GetLivenessData()
	if errors.Is(err, storage.ErrNotFound) || (err == nil && liveness.Epoch != setup.Epoch) {
		liveness = pacemaker.GenesisLivenessData(genesisQC)
	} else if err != nil {
		return nil, fmt.Errorf("could not load liveness data: %w", err)
	}
	controller := timeout.NewController(f.config.Timeout, setup.Epoch, f.dispatcher)
	paceMaker, err := pacemaker.New(f.log, liveness, controller, f.notifier, f.persist, f.metrics)
	if err != nil {
		return nil, fmt.Errorf("could not create pacemaker: %w", err)
	}
	safety, err := safetyrules.New(f.signer, committee, f.persist, f.dispatcher.Now)
	if err != nil {
		return nil, fmt.Errorf("could not create safety rules: %w", err)
	}
	handler, err := eventhandler.NewEventHandler(
		f.log,
		committee,
		paceMaker,
		store,
		sync,
		verifier,
		safety,
		f.payload,
		f.signer,
		f.communicator,
		f.dispatcher,
		f.notifier,
		f.metrics,
	)
	if err != nil {
		return nil, fmt.Errorf("could not create event handler: %w", err)
	}
	ctx.PaceMaker = paceMaker
	ctx.Handler = handler
	return ctx, nil
}
