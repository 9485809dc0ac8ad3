package component_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/component"
	"github.com/ledgerbft/node/module/irrecoverable"
	"github.com/ledgerbft/node/utils/unittest"
)

func idleWorker(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()
	<-ctx.Done()
}

func TestComponentManagerLifecycle(t *testing.T) {
	manager := component.NewComponentManager(idleWorker, idleWorker)
	ctx, cancel := irrecoverable.NewMockSignalerContextWithCancel(t, context.Background())

	manager.Start(ctx)
	unittest.RequireCloseBefore(t, manager.Ready(), time.Second, "workers not ready")
	assert.Panics(t, func() { manager.Start(ctx) })

	cancel()
	unittest.RequireCloseBefore(t, manager.Done(), time.Second, "workers did not stop")
}

func TestComponentManagerPropagatesErrors(t *testing.T) {
	failure := errors.New("worker failed")
	failing := func(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
		ready()
		ctx.Throw(failure)
	}
	manager := component.NewComponentManager(failing, idleWorker)
	ctx, errChan := irrecoverable.WithSignaler(context.Background())

	manager.Start(ctx)
	select {
	case err := <-errChan:
		assert.ErrorIs(t, err, failure)
	case <-time.After(time.Second):
		require.Fail(t, "error was not propagated")
	}
	// the idle worker is cancelled by the failure
	unittest.RequireCloseBefore(t, manager.Done(), time.Second, "workers did not stop")
}

func TestComponentManagerPanicsOnRestart(t *testing.T) {
	manager := component.NewComponentManager()
	ctx, cancel := irrecoverable.NewMockSignalerContextWithCancel(t, context.Background())
	defer cancel()

	manager.Start(ctx)
	assert.PanicsWithValue(t, module.ErrMultipleStartup, func() { manager.Start(ctx) })
}
