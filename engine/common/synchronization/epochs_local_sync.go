package synchronization

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/events"
)

// LocalSyncProcessor handles the events of the ledger sync of one epoch.
type LocalSyncProcessor interface {
	ProcessSyncCheckTrigger() error
	ProcessStatusResponse(originID flow.Identifier, resp *messages.StatusResponse) error
	ProcessSyncCheckReceiveStatusTimeout(timeout messages.SyncCheckReceiveStatusTimeout) error
	ProcessLocalSyncRequest(req messages.LocalSyncRequest) error
	ProcessSyncResponse(originID flow.Identifier, resp *messages.SyncResponse) error
	ProcessSyncRequestTimeout(timeout messages.SyncRequestTimeout) error
	ProcessLedgerUpdate(update *flow.LedgerUpdate) error
}

// LocalSyncFactory creates the ledger sync of an epoch.
type LocalSyncFactory func(epoch uint64, validators *flow.ValidatorSet) (LocalSyncProcessor, error)

// EpochsLocalSync runs the ledger sync of the current epoch and replaces it
// when the ledger enters the next epoch. It remembers the highest requested
// target, so a sync spanning several epochs continues after each change.
type EpochsLocalSync struct {
	log        zerolog.Logger
	config     Config
	factory    LocalSyncFactory
	dispatcher events.Dispatcher
	metrics    module.LedgerSyncMetrics

	epoch   uint64
	current LocalSyncProcessor
	target  *messages.LocalSyncRequest
}

var _ LocalSyncProcessor = (*EpochsLocalSync)(nil)

func NewEpochsLocalSync(
	log zerolog.Logger,
	config Config,
	epoch uint64,
	validators *flow.ValidatorSet,
	factory LocalSyncFactory,
	dispatcher events.Dispatcher,
	metrics module.LedgerSyncMetrics,
) (*EpochsLocalSync, error) {
	current, err := factory(epoch, validators)
	if err != nil {
		return nil, fmt.Errorf("could not create ledger sync of epoch %d: %w", epoch, err)
	}
	return &EpochsLocalSync{
		log:        log.With().Str("component", "epochs_local_sync").Logger(),
		config:     config,
		factory:    factory,
		dispatcher: dispatcher,
		metrics:    metrics,
		epoch:      epoch,
		current:    current,
	}, nil
}

// Start arms the periodic sync check.
func (s *EpochsLocalSync) Start() {
	s.dispatcher.DispatchAfter(messages.SyncCheckTrigger{}, s.config.SyncCheckInterval)
}

// Epoch returns the epoch the ledger sync currently verifies against.
func (s *EpochsLocalSync) Epoch() uint64 {
	return s.epoch
}

func (s *EpochsLocalSync) ProcessSyncCheckTrigger() error {
	s.dispatcher.DispatchAfter(messages.SyncCheckTrigger{}, s.config.SyncCheckInterval)
	return s.current.ProcessSyncCheckTrigger()
}

func (s *EpochsLocalSync) ProcessStatusResponse(originID flow.Identifier, resp *messages.StatusResponse) error {
	return s.current.ProcessStatusResponse(originID, resp)
}

func (s *EpochsLocalSync) ProcessSyncCheckReceiveStatusTimeout(timeout messages.SyncCheckReceiveStatusTimeout) error {
	return s.current.ProcessSyncCheckReceiveStatusTimeout(timeout)
}

// ProcessLocalSyncRequest drops requests targeting an epoch before the
// current one and forwards the others.
func (s *EpochsLocalSync) ProcessLocalSyncRequest(req messages.LocalSyncRequest) error {
	if req.Target == nil {
		return nil
	}
	header := &req.Target.Header
	if header.Epoch < s.epoch {
		s.metrics.LedgerSyncStaleRequestDropped()
		s.log.Debug().
			Uint64("target_epoch", header.Epoch).
			Uint64("epoch", s.epoch).
			Msg("dropping sync request of a past epoch")
		return nil
	}
	if s.target == nil || header.IsNewerThan(&s.target.Target.Header) {
		s.target = &messages.LocalSyncRequest{Target: req.Target, TargetNodes: req.TargetNodes.Copy()}
	} else if header.Compare(&s.target.Target.Header) == 0 {
		for _, node := range req.TargetNodes {
			if !s.target.TargetNodes.Contains(node) {
				s.target.TargetNodes = append(s.target.TargetNodes, node)
			}
		}
	}
	return s.current.ProcessLocalSyncRequest(req)
}

func (s *EpochsLocalSync) ProcessSyncResponse(originID flow.Identifier, resp *messages.SyncResponse) error {
	return s.current.ProcessSyncResponse(originID, resp)
}

func (s *EpochsLocalSync) ProcessSyncRequestTimeout(timeout messages.SyncRequestTimeout) error {
	return s.current.ProcessSyncRequestTimeout(timeout)
}

// ProcessLedgerUpdate replaces the ledger sync when the update ends the
// current epoch and resumes any outstanding target with the new one.
// No errors are expected during normal operations.
func (s *EpochsLocalSync) ProcessLedgerUpdate(update *flow.LedgerUpdate) error {
	if s.target != nil && !s.target.Target.Header.IsNewerThan(update.Header()) {
		s.target = nil
	}

	change := update.EpochChange
	if change == nil || change.Epoch <= s.epoch {
		return s.current.ProcessLedgerUpdate(update)
	}

	next, err := s.factory(change.Epoch, change.Validators)
	if err != nil {
		return fmt.Errorf("could not create ledger sync of epoch %d: %w", change.Epoch, err)
	}
	s.log.Info().
		Uint64("previous_epoch", s.epoch).
		Uint64("epoch", change.Epoch).
		Bool("resuming", s.target != nil).
		Msg("ledger sync entering new epoch")
	s.epoch = change.Epoch
	s.current = next

	if s.target == nil {
		return nil
	}
	return s.current.ProcessLocalSyncRequest(*s.target)
}
