package committees

import (
	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
)

// Static is a committee whose validator set is fixed for one epoch.
// Leaders rotate round-robin over the canonically ordered validators.
type Static struct {
	epoch      uint64
	self       flow.Identifier
	validators *flow.ValidatorSet
	quorum     uint64
	timeout    uint64
}

var _ hotstuff.Committee = (*Static)(nil)

// NewStaticCommittee returns the committee of the given epoch.
func NewStaticCommittee(epoch uint64, validators *flow.ValidatorSet, self flow.Identifier) (*Static, error) {
	if validators.Count() == 0 {
		return nil, model.NewConfigurationErrorf("empty validator set for epoch %d", epoch)
	}
	total := validators.TotalWeight()
	return &Static{
		epoch:      epoch,
		self:       self,
		validators: validators,
		quorum:     QuorumThreshold(total),
		timeout:    TimeoutThreshold(total),
	}, nil
}

func (c *Static) Epoch() uint64                  { return c.epoch }
func (c *Static) Self() flow.Identifier          { return c.self }
func (c *Static) Validators() *flow.ValidatorSet { return c.validators }
func (c *Static) QuorumThreshold() uint64        { return c.quorum }
func (c *Static) TimeoutThreshold() uint64       { return c.timeout }

func (c *Static) IdentityByNodeID(nodeID flow.Identifier) (*flow.Validator, error) {
	validator, ok := c.validators.ByNodeID(nodeID)
	if !ok {
		return nil, model.NewInvalidSignerErrorf("%x is not a validator of epoch %d", nodeID, c.epoch)
	}
	return validator, nil
}

func (c *Static) LeaderForView(view uint64) flow.Identifier {
	index := view % uint64(c.validators.Count())
	return c.validators.Validators[index].NodeID
}
