package irrecoverable

import (
	"errors"
	"fmt"
)

// exception marks an error no caller is prepared to handle. Sentinel errors
// wrapped in an exception are still reachable with errors.Is, but
// IsException tells callers not to treat them as expected outcomes.
type exception struct {
	err error
}

var _ error = (*exception)(nil)

func (e exception) Error() string {
	return e.err.Error()
}

func (e exception) Unwrap() error {
	return e.err
}

func NewException(err error) error {
	return exception{err: err}
}

func NewExceptionf(msg string, args ...any) error {
	return NewException(fmt.Errorf(msg, args...))
}

// IsException returns whether the error is or wraps an exception.
func IsException(err error) bool {
	var e exception
	return errors.As(err, &e)
}
