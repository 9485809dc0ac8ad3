package irrecoverable

import (
	"context"
	"fmt"
	"os"
	"runtime"
)

// Signaler forwards the first thrown error to its error channel.
type Signaler struct {
	errChan   chan error
	errThrown chan struct{}
}

func NewSignaler() (*Signaler, <-chan error) {
	errChan := make(chan error, 1)
	return &Signaler{
		errChan:   errChan,
		errThrown: make(chan struct{}),
	}, errChan
}

// Throw reports err and terminates the calling goroutine, like a panic that
// the owner of the error channel can observe. Only the first error reaches the
// channel; later ones are printed to stderr.
func (s *Signaler) Throw(err error) {
	defer runtime.Goexit()
	select {
	case s.errChan <- err:
		close(s.errThrown)
	case <-s.errThrown:
		fmt.Fprintf(os.Stderr, "unhandled irrecoverable error: %v\n", err)
	}
}

// SignalerContext is a context that workers can throw irrecoverable errors
// into. It can only be built through WithSignaler.
type SignalerContext interface {
	context.Context
	Throw(err error)
	sealed()
}

type signalerCtx struct {
	context.Context
	*Signaler
}

func (sc signalerCtx) sealed() {}

// WithSignaler derives a SignalerContext from parent. The returned channel
// receives the first error thrown by any worker of the context.
func WithSignaler(parent context.Context) (SignalerContext, <-chan error) {
	sig, errChan := NewSignaler()
	return &signalerCtx{parent, sig}, errChan
}
