package flow

import (
	"fmt"
	"sort"
)

// Validator is a member of the consensus committee of one epoch.
type Validator struct {
	NodeID    Identifier
	Weight    uint64
	PublicKey []byte // compressed secp256k1 public key
}

func (v *Validator) String() string {
	return fmt.Sprintf("%s:%d", v.NodeID.TerminalString(), v.Weight)
}

// ValidatorSet is the immutable, canonically ordered set of validators of an epoch.
type ValidatorSet struct {
	Validators []*Validator
}

// NewValidatorSet returns a validator set holding a canonically sorted copy
// of the given validators. Duplicate node IDs and zero weights are rejected.
func NewValidatorSet(validators []*Validator) (*ValidatorSet, error) {
	sorted := make([]*Validator, 0, len(validators))
	seen := make(map[Identifier]struct{}, len(validators))
	for _, v := range validators {
		if v.Weight == 0 {
			return nil, fmt.Errorf("validator %x has zero weight", v.NodeID)
		}
		if _, duplicate := seen[v.NodeID]; duplicate {
			return nil, fmt.Errorf("duplicate validator %x", v.NodeID)
		}
		seen[v.NodeID] = struct{}{}
		cpy := *v
		sorted = append(sorted, &cpy)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return IsIdentifierCanonical(sorted[i].NodeID, sorted[j].NodeID)
	})
	return &ValidatorSet{Validators: sorted}, nil
}

// TotalWeight returns the sum of all validator weights.
func (vs *ValidatorSet) TotalWeight() uint64 {
	var total uint64
	for _, v := range vs.Validators {
		total += v.Weight
	}
	return total
}

// ByNodeID returns the validator with the given node ID.
func (vs *ValidatorSet) ByNodeID(nodeID Identifier) (*Validator, bool) {
	for _, v := range vs.Validators {
		if v.NodeID == nodeID {
			return v, true
		}
	}
	return nil, false
}

// Contains returns whether the node is a member of the set.
func (vs *ValidatorSet) Contains(nodeID Identifier) bool {
	_, ok := vs.ByNodeID(nodeID)
	return ok
}

// NodeIDs returns the node IDs in canonical order.
func (vs *ValidatorSet) NodeIDs() IdentifierList {
	ids := make(IdentifierList, 0, len(vs.Validators))
	for _, v := range vs.Validators {
		ids = append(ids, v.NodeID)
	}
	return ids
}

// Count returns the number of validators.
func (vs *ValidatorSet) Count() int {
	return len(vs.Validators)
}

// ID returns the identifier of the validator set.
func (vs *ValidatorSet) ID() Identifier {
	return MakeID(vs)
}
