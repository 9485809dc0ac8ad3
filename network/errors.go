package network

import (
	"errors"
	"fmt"

	"github.com/ledgerbft/node/model/flow"
)

// UnknownTargetError is returned by conduits for messages addressed to a node
// the network does not know.
type UnknownTargetError struct {
	TargetID flow.Identifier
}

func (e UnknownTargetError) Error() string {
	return fmt.Sprintf("unknown target node %x", e.TargetID[:])
}

func IsUnknownTargetError(err error) bool {
	var e UnknownTargetError
	return errors.As(err, &e)
}
