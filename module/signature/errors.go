package signature

import (
	"errors"
	"fmt"

	"github.com/ledgerbft/node/model/flow"
)

var (
	ErrInvalidFormat    = errors.New("invalid signature format")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidKey       = errors.New("invalid public key")
)

// InvalidSignerError indicates that a signature was produced by a node that
// is not a member of the expected validator set, or does not verify under
// that member's key.
type InvalidSignerError struct {
	SignerID flow.Identifier
	Err      error
}

func (e InvalidSignerError) Error() string {
	return fmt.Sprintf("invalid signature by %x: %s", e.SignerID, e.Err.Error())
}

func (e InvalidSignerError) Unwrap() error { return e.Err }

// IsInvalidSignerError returns whether err is an InvalidSignerError
func IsInvalidSignerError(err error) bool {
	var e InvalidSignerError
	return errors.As(err, &e)
}
