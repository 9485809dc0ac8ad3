package synchronization

import (
	"errors"
	"fmt"

	"github.com/ledgerbft/node/consensus/hotstuff/committees"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module/signature"
)

// Reasons a sync response is rejected, used as metric labels.
const (
	ReasonEmpty       = "empty"
	ReasonEpoch       = "epoch"
	ReasonSignatures  = "signatures"
	ReasonQuorum      = "quorum"
	ReasonAccumulator = "accumulator"
)

// InvalidResponseError indicates that a peer served a ledger proof or a batch
// of commands we must not apply.
type InvalidResponseError struct {
	Reason string
	Err    error
}

func NewInvalidResponseErrorf(reason string, msg string, args ...interface{}) error {
	return InvalidResponseError{Reason: reason, Err: fmt.Errorf(msg, args...)}
}

func (e InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid sync response (%s): %s", e.Reason, e.Err.Error())
}

func (e InvalidResponseError) Unwrap() error { return e.Err }

// IsInvalidResponseError returns whether err is an InvalidResponseError
func IsInvalidResponseError(err error) bool {
	var e InvalidResponseError
	return errors.As(err, &e)
}

// rejectReason returns the metric label of a rejected response.
func rejectReason(err error) string {
	var e InvalidResponseError
	if errors.As(err, &e) {
		return e.Reason
	}
	return "unknown"
}

// SignaturesVerifier checks that every signature of a ledger proof was made by
// a validator of the epoch and verifies under its key.
type SignaturesVerifier struct {
	validators *flow.ValidatorSet
	batch      *signature.BatchVerifier
}

func NewSignaturesVerifier(validators *flow.ValidatorSet, verifier signature.Verifier) *SignaturesVerifier {
	return &SignaturesVerifier{
		validators: validators,
		batch:      signature.NewBatchVerifier(verifier, signature.DefaultBatchWorkers),
	}
}

// Verify checks all signatures of the proof.
// Expected errors during normal operations:
//   - InvalidResponseError if a signer is unknown or a signature does not verify
func (v *SignaturesVerifier) Verify(proof *flow.LedgerProof) error {
	batch := make([]signature.SignedDigest, 0, len(proof.Signatures))
	for _, sig := range proof.Signatures {
		validator, ok := v.validators.ByNodeID(sig.SignerID)
		if !ok {
			return NewInvalidResponseErrorf(ReasonSignatures, "signer %x is not a validator", sig.SignerID)
		}
		batch = append(batch, signature.SignedDigest{
			SignerID:  sig.SignerID,
			Digest:    proof.Digest(sig.Timestamp),
			Signature: sig.Signature,
			PublicKey: validator.PublicKey,
		})
	}
	err := v.batch.VerifyAll(batch)
	if err != nil {
		return InvalidResponseError{Reason: ReasonSignatures, Err: err}
	}
	return nil
}

// ValidatorSetVerifier checks that the signers of a ledger proof carry a quorum
// of the epoch's voting weight. Signatures must have been verified before.
type ValidatorSetVerifier struct {
	validators *flow.ValidatorSet
}

func NewValidatorSetVerifier(validators *flow.ValidatorSet) *ValidatorSetVerifier {
	return &ValidatorSetVerifier{validators: validators}
}

// Verify checks the proof's signers form a quorum.
// Expected errors during normal operations:
//   - InvalidResponseError if a signer is unknown or the signers lack a quorum
func (v *ValidatorSetVerifier) Verify(proof *flow.LedgerProof) error {
	state := committees.NewValidationState(v.validators)
	for _, sig := range proof.Signatures {
		_, err := state.AddSignature(sig.SignerID, sig.Timestamp, sig.Signature)
		if err != nil {
			return InvalidResponseError{Reason: ReasonQuorum, Err: err}
		}
	}
	if !state.Complete() {
		return NewInvalidResponseErrorf(ReasonQuorum, "signers hold weight %d below threshold %d", state.Weight(), state.Threshold())
	}
	return nil
}

// ExtensionVerifier checks commands extend the local ledger to a header.
type ExtensionVerifier interface {
	VerifyExtension(commands []flow.Command, proof *flow.LedgerProof) error
}

// AccumulatorVerifier checks that a batch of commands leads from the local
// ledger state to the accumulator of the batch's proof.
type AccumulatorVerifier struct {
	ledger ExtensionVerifier
}

func NewAccumulatorVerifier(ledger ExtensionVerifier) *AccumulatorVerifier {
	return &AccumulatorVerifier{ledger: ledger}
}

// Verify checks the batch extends the local ledger.
// Expected errors during normal operations:
//   - InvalidResponseError if the commands do not reach the proof's header
func (v *AccumulatorVerifier) Verify(batch *flow.CommandsAndProof) error {
	err := v.ledger.VerifyExtension(batch.Commands, batch.Proof)
	if err != nil {
		return InvalidResponseError{Reason: ReasonAccumulator, Err: err}
	}
	return nil
}

// ResponseVerifier runs the checks a ledger proof and a batch must pass
// before the batch is applied. It is bound to the validator set of one epoch.
type ResponseVerifier struct {
	epoch       uint64
	signatures  *SignaturesVerifier
	validators  *ValidatorSetVerifier
	accumulator *AccumulatorVerifier
}

func NewResponseVerifier(epoch uint64, validators *flow.ValidatorSet, verifier signature.Verifier, ledger ExtensionVerifier) *ResponseVerifier {
	return &ResponseVerifier{
		epoch:       epoch,
		signatures:  NewSignaturesVerifier(validators, verifier),
		validators:  NewValidatorSetVerifier(validators),
		accumulator: NewAccumulatorVerifier(ledger),
	}
}

// VerifyProof checks the proof was certified by a quorum of the epoch.
// Expected errors during normal operations:
//   - InvalidResponseError if the proof belongs to another epoch or is not certified
func (v *ResponseVerifier) VerifyProof(proof *flow.LedgerProof) error {
	if proof == nil {
		return NewInvalidResponseErrorf(ReasonEmpty, "missing ledger proof")
	}
	if proof.Header.Epoch != v.epoch {
		return NewInvalidResponseErrorf(ReasonEpoch, "proof of epoch %d verified against epoch %d", proof.Header.Epoch, v.epoch)
	}
	err := v.signatures.Verify(proof)
	if err != nil {
		return err
	}
	return v.validators.Verify(proof)
}

// VerifyBatch checks the proof of the batch and that its commands extend the
// local ledger.
// Expected errors during normal operations:
//   - InvalidResponseError if any check fails
func (v *ResponseVerifier) VerifyBatch(batch *flow.CommandsAndProof) error {
	if batch.Proof == nil {
		return NewInvalidResponseErrorf(ReasonEmpty, "batch without proof")
	}
	err := v.VerifyProof(batch.Proof)
	if err != nil {
		return err
	}
	return v.accumulator.Verify(batch)
}
