package stub

import (
	"github.com/hashicorp/go-multierror"

	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/network"
)

// Conduit sends the messages of one node through the hub.
type Conduit struct {
	hub  *Hub
	self flow.Identifier
}

var _ network.Conduit = (*Conduit)(nil)

func (c *Conduit) Unicast(event interface{}, targetID flow.Identifier) error {
	return c.hub.send(c.self, targetID, event)
}

// Publish sends the event to every target except the sender itself.
func (c *Conduit) Publish(event interface{}, targetIDs ...flow.Identifier) error {
	var errs *multierror.Error
	for _, targetID := range targetIDs {
		if targetID == c.self {
			continue
		}
		err := c.hub.send(c.self, targetID, event)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
