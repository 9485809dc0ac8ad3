package committees

import (
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
)

// ValidationState accumulates signatures of one validator set towards a
// quorum (more than two thirds of the total weight). It is created for one
// (epoch, view, candidate) and discarded once the certificate formed or the
// view advanced. Not concurrency safe.
type ValidationState struct {
	validators *flow.ValidatorSet
	threshold  uint64
	weight     uint64
	signatures map[flow.Identifier]flow.TimestampedSignature
}

// NewValidationState returns an empty accumulator for the given validator set.
func NewValidationState(validators *flow.ValidatorSet) *ValidationState {
	return &ValidationState{
		validators: validators,
		threshold:  QuorumThreshold(validators.TotalWeight()),
		signatures: make(map[flow.Identifier]flow.TimestampedSignature),
	}
}

// AddSignature adds the signature of the given signer. It returns false if
// the signer already contributed. Signatures must be verified by the caller.
// Expected errors during normal operations:
//   - model.InvalidSignerError if the signer is not a member of the validator set
func (s *ValidationState) AddSignature(signerID flow.Identifier, timestamp uint64, sig []byte) (bool, error) {
	validator, ok := s.validators.ByNodeID(signerID)
	if !ok {
		return false, model.NewInvalidSignerErrorf("%x is not a validator", signerID)
	}
	if _, duplicate := s.signatures[signerID]; duplicate {
		return false, nil
	}
	s.signatures[signerID] = flow.TimestampedSignature{
		SignerID:  signerID,
		Timestamp: timestamp,
		Signature: sig,
	}
	s.weight += validator.Weight
	return true, nil
}

// Complete returns whether the accumulated weight reached the quorum threshold.
func (s *ValidationState) Complete() bool {
	return s.weight >= s.threshold
}

// Weight returns the accumulated weight.
func (s *ValidationState) Weight() uint64 {
	return s.weight
}

// Threshold returns the weight required for completion.
func (s *ValidationState) Threshold() uint64 {
	return s.threshold
}

// IsEmpty returns whether no signature was added yet.
func (s *ValidationState) IsEmpty() bool {
	return len(s.signatures) == 0
}

// Signatures returns the accumulated signatures in canonical signer order.
func (s *ValidationState) Signatures() flow.TimestampedSignatures {
	sigs := make(flow.TimestampedSignatures, 0, len(s.signatures))
	for _, sig := range s.signatures {
		sigs = append(sigs, sig)
	}
	return sigs.Sorted()
}
