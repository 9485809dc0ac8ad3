package hotstuff

import (
	"github.com/ledgerbft/node/model/flow"
)

// Committee describes the consensus participants of one epoch. The
// validator set is fixed for the lifetime of the epoch.
type Committee interface {
	// Epoch returns the epoch the committee is valid for.
	Epoch() uint64

	// Self returns our own node identifier.
	Self() flow.Identifier

	// Validators returns the canonically ordered validator set of the epoch.
	Validators() *flow.ValidatorSet

	// IdentityByNodeID returns the validator with the given node ID.
	// ERROR conditions:
	//    * model.InvalidSignerError if nodeID is not a member of the epoch's validator set.
	IdentityByNodeID(nodeID flow.Identifier) (*flow.Validator, error)

	// LeaderForView returns the node ID of the leader for a given view.
	// The leader schedule is fork-independent.
	LeaderForView(view uint64) flow.Identifier

	// QuorumThreshold returns the weight required to build a QC or TC.
	QuorumThreshold() uint64

	// TimeoutThreshold returns the weight of timeouts that proves at least one
	// honest replica timed out.
	TimeoutThreshold() uint64
}
