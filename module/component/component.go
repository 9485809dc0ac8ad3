package component

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/irrecoverable"
	"github.com/ledgerbft/node/module/util"
)

// Component is started once and stopped by cancelling its context. Done closes
// on shutdown and after a worker threw an irrecoverable error.
type Component interface {
	module.Startable
	module.ReadyDoneAware
}

// ReadyFunc is called by a worker once it is ready.
type ReadyFunc func()

// Worker is a long-running routine of a component. It returns when ctx is
// cancelled and throws irrecoverable errors on ctx.
type Worker func(ctx irrecoverable.SignalerContext, ready ReadyFunc)

var _ Component = (*ComponentManager)(nil)

// ComponentManager runs the workers of a component. The first error thrown
// by a worker cancels the others and is rethrown on the context passed to
// Start.
type ComponentManager struct {
	started *atomic.Bool
	ready   chan struct{}
	done    chan struct{}
	workers []Worker
}

func NewComponentManager(workers ...Worker) *ComponentManager {
	return &ComponentManager{
		started: atomic.NewBool(false),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		workers: workers,
	}
}

// Start launches the workers. It panics with module.ErrMultipleStartup on a
// second call.
func (c *ComponentManager) Start(parent irrecoverable.SignalerContext) {
	if !c.started.CompareAndSwap(false, true) {
		panic(module.ErrMultipleStartup)
	}
	ctx, cancel := context.WithCancel(parent)
	signalerCtx, errChan := irrecoverable.WithSignaler(ctx)

	var ready, returned sync.WaitGroup
	ready.Add(len(c.workers))
	returned.Add(len(c.workers))
	for _, worker := range c.workers {
		go func(worker Worker) {
			defer returned.Done()
			var once sync.Once
			worker(signalerCtx, func() { once.Do(ready.Done) })
		}(worker)
	}

	workersDone := make(chan struct{})
	go func() {
		returned.Wait()
		close(workersDone)
	}()
	go func() {
		ready.Wait()
		close(c.ready)
	}()
	go func() {
		// Throw exits the goroutine, done still has to close
		defer func() {
			<-workersDone
			close(c.done)
		}()
		err := util.WaitError(errChan, workersDone)
		if err != nil {
			cancel()
			parent.Throw(err)
		}
	}()
}

// Ready closes once every worker called its ReadyFunc.
func (c *ComponentManager) Ready() <-chan struct{} {
	return c.ready
}

// Done closes once every worker returned.
func (c *ComponentManager) Done() <-chan struct{} {
	return c.done
}
