package ledger

import (
	"fmt"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/model/flow"
)

// SyntheticPayload produces deterministic commands for each proposal, naming
// the proposer and the view. It stands in for a mempool when running a
// network without clients.
type SyntheticPayload struct {
	self    flow.Identifier
	perView int
}

var _ hotstuff.PayloadBuilder = (*SyntheticPayload)(nil)

func NewSyntheticPayload(self flow.Identifier, perView int) *SyntheticPayload {
	return &SyntheticPayload{self: self, perView: perView}
}

// BuildPayload returns no commands once the parent's state ended the epoch,
// since they would not be executed.
func (p *SyntheticPayload) BuildPayload(parent *flow.LedgerHeader, view uint64) []flow.Command {
	if parent.IsEndOfEpoch() {
		return nil
	}
	commands := make([]flow.Command, 0, p.perView)
	for i := 0; i < p.perView; i++ {
		commands = append(commands, flow.Command(fmt.Sprintf("%s/%d/%d/%d", p.self.TerminalString(), parent.Epoch, view, i)))
	}
	return commands
}
