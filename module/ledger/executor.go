package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/irrecoverable"
	"github.com/ledgerbft/node/storage"
)

// ErrAccumulatorMismatch is returned when commands do not extend the current
// ledger state to the claimed header.
var ErrAccumulatorMismatch = errors.New("commands do not lead to the claimed accumulator")

// ValidatorSchedule returns the validator set of the given epoch.
type ValidatorSchedule func(epoch uint64) *flow.ValidatorSet

// Config holds the epoch parameters of the reference executor.
type Config struct {
	// EpochMaxView is the view at which an epoch ends: the first vertex whose
	// view reaches it ends the epoch. Zero disables epoch changes.
	EpochMaxView uint64
	// NextValidators returns the validator set of an upcoming epoch.
	NextValidators ValidatorSchedule
}

// Executor is the reference ledger command executor. Commands are opaque;
// the ledger state is the number of commands applied and a hash chain over
// them. Committed state is persisted in a storage.Ledger and every advance of
// the committed state is announced as a deferred flow.LedgerUpdate event.
type Executor struct {
	log        zerolog.Logger
	config     Config
	store      storage.Ledger
	dispatcher events.Dispatcher
	metrics    module.HotstuffMetrics

	mu      sync.RWMutex
	current *flow.LedgerProof
}

var _ hotstuff.Ledger = (*Executor)(nil)

// New creates an executor on top of the ledger store. If the store is empty,
// the executor starts from the given genesis header.
func New(
	log zerolog.Logger,
	config Config,
	store storage.Ledger,
	genesis *flow.LedgerHeader,
	dispatcher events.Dispatcher,
	metrics module.HotstuffMetrics,
) (*Executor, error) {
	if config.EpochMaxView > 0 && config.NextValidators == nil {
		return nil, fmt.Errorf("epoch changes require a validator schedule")
	}

	current, err := store.LastProof()
	if errors.Is(err, storage.ErrNotFound) {
		current = &flow.LedgerProof{Header: *genesis}
	} else if err != nil {
		return nil, fmt.Errorf("could not load last committed proof: %w", err)
	}

	return &Executor{
		log:        log.With().Str("component", "ledger").Logger(),
		config:     config,
		store:      store,
		dispatcher: dispatcher,
		metrics:    metrics,
		current:    current,
	}, nil
}

// Accumulate extends the accumulator with the commands.
func Accumulate(accumulator flow.Identifier, commands []flow.Command) flow.Identifier {
	for _, command := range commands {
		accumulator = flow.HashBytes(accumulator[:], command)
	}
	return accumulator
}

// CurrentProof returns the proof of the latest committed ledger header.
func (e *Executor) CurrentProof() *flow.LedgerProof {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// CurrentHeader returns the latest committed ledger header.
func (e *Executor) CurrentHeader() *flow.LedgerHeader {
	return &e.CurrentProof().Header
}

// Store returns the underlying committed ledger store.
func (e *Executor) Store() storage.Ledger {
	return e.store
}

// Prepare executes the vertex on top of the parent's state. Vertices on top of
// a state that ended its epoch execute nothing.
func (e *Executor) Prepare(parent *flow.LedgerHeader, vertex *flow.Vertex) (*flow.LedgerHeader, error) {
	if parent.IsEndOfEpoch() {
		return parent, nil
	}
	if vertex.Epoch != parent.Epoch {
		return nil, fmt.Errorf("vertex of epoch %d on top of ledger state of epoch %d", vertex.Epoch, parent.Epoch)
	}

	header := &flow.LedgerHeader{
		Epoch:       parent.Epoch,
		View:        vertex.View,
		Height:      parent.Height + uint64(len(vertex.Commands)),
		Accumulator: Accumulate(parent.Accumulator, vertex.Commands),
	}
	if e.config.EpochMaxView > 0 && vertex.View >= e.config.EpochMaxView {
		header.NextValidators = e.config.NextValidators(parent.Epoch + 1)
	}
	return header, nil
}

// Commit applies the committed vertices. Updates that do not advance the
// committed state are ignored. A replay that does not reach the proven header
// means two different ledger states were committed, which is fatal.
func (e *Executor) Commit(update *hotstuff.CommittedUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	target := &update.Proof.Header
	if !target.IsNewerThan(&e.current.Header) {
		return nil
	}

	base := &e.current.Header
	var commands []flow.Command
	for _, vertex := range update.Vertices {
		if vertex.Epoch < base.Epoch || (vertex.Epoch == base.Epoch && vertex.View <= base.View) {
			// applied already, possibly through ledger sync
			continue
		}
		if base.IsEndOfEpoch() && vertex.Epoch > base.Epoch {
			base = base.NextEpochGenesis()
		}
		next, err := e.Prepare(base, vertex)
		if err != nil {
			return irrecoverable.NewExceptionf("could not replay committed vertex %x: %w", vertex.ID(), err)
		}
		if next != base {
			commands = append(commands, vertex.Commands...)
		}
		base = next
	}
	if base.ID() != target.ID() {
		e.metrics.SafetyInvariantViolated("ledger_divergence")
		return irrecoverable.NewExceptionf("committed vertices lead to %v, but the proof certifies %v", base, target)
	}

	return e.apply(commands, update.Proof)
}

// VerifyExtension checks that the commands extend the current ledger state to
// the header of the proof.
// Expected errors during normal operations:
//   - ErrAccumulatorMismatch if the commands do not lead to the header
func (e *Executor) VerifyExtension(commands []flow.Command, proof *flow.LedgerProof) error {
	return verifyExtension(e.CurrentHeader(), commands, &proof.Header)
}

func verifyExtension(current *flow.LedgerHeader, commands []flow.Command, target *flow.LedgerHeader) error {
	base := current
	if base.IsEndOfEpoch() && target.Epoch > base.Epoch {
		base = base.NextEpochGenesis()
	}
	if base.Height+uint64(len(commands)) != target.Height {
		return fmt.Errorf("%d commands on top of height %d do not reach height %d: %w",
			len(commands), base.Height, target.Height, ErrAccumulatorMismatch)
	}
	if Accumulate(base.Accumulator, commands) != target.Accumulator {
		return fmt.Errorf("accumulator mismatch at height %d: %w", target.Height, ErrAccumulatorMismatch)
	}
	return nil
}

// ApplySynced applies commands fetched through ledger sync. The proof must
// have been verified by the caller.
// Expected errors during normal operations:
//   - ErrAccumulatorMismatch if the commands do not extend the current state to the proof
func (e *Executor) ApplySynced(batch *flow.CommandsAndProof) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !batch.Proof.Header.IsNewerThan(&e.current.Header) {
		return nil
	}
	err := verifyExtension(&e.current.Header, batch.Commands, &batch.Proof.Header)
	if err != nil {
		return err
	}
	return e.apply(batch.Commands, batch.Proof)
}

// apply persists the commands and the proof and announces the update.
func (e *Executor) apply(commands []flow.Command, proof *flow.LedgerProof) error {
	err := e.store.Store(commands, proof)
	if err != nil {
		return fmt.Errorf("could not store committed commands: %w", err)
	}
	e.current = proof

	update := &flow.LedgerUpdate{Commands: commands, Proof: proof}
	if proof.Header.IsEndOfEpoch() {
		update.EpochChange, err = flow.NewEpochChange(proof)
		if err != nil {
			return fmt.Errorf("could not derive epoch change: %w", err)
		}
	}

	e.log.Debug().
		Uint64("epoch", proof.Header.Epoch).
		Uint64("view", proof.Header.View).
		Uint64("height", proof.Header.Height).
		Int("commands", len(commands)).
		Bool("end_of_epoch", proof.Header.IsEndOfEpoch()).
		Msg("ledger state committed")
	e.dispatcher.Dispatch(update)
	return nil
}
