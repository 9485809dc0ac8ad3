package logging

import (
	"github.com/ledgerbft/node/model/flow"
)

// ID returns the identifier as a byte slice for zerolog's Hex fields.
func ID(id flow.Identifier) []byte {
	return id[:]
}

// IDs returns the hex form of the identifiers.
func IDs(ids []flow.Identifier) []string {
	ss := make([]string, 0, len(ids))
	for _, id := range ids {
		ss = append(ss, id.String())
	}
	return ss
}

// KeySuspicious is a logging label that is used to flag the log event as suspicious behavior
// This is used to add an easily searchable label to the log event
const KeySuspicious = "suspicious"
