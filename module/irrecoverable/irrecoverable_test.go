package irrecoverable_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbft/node/module/irrecoverable"
)

var errSentinel = errors.New("sentinel")

func TestThrowDeliversFirstError(t *testing.T) {
	ctx, errChan := irrecoverable.WithSignaler(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx.Throw(fmt.Errorf("worker failed: %w", errSentinel))
	}()
	<-done

	err := <-errChan
	require.Error(t, err)
	assert.ErrorIs(t, err, errSentinel)
}

func TestOnlyFirstErrorIsDelivered(t *testing.T) {
	ctx, errChan := irrecoverable.WithSignaler(context.Background())

	for i := 0; i < 2; i++ {
		done := make(chan struct{})
		go func(i int) {
			defer close(done)
			ctx.Throw(fmt.Errorf("failure %d: %w", i, errSentinel))
		}(i)
		<-done
	}

	err := <-errChan
	assert.EqualError(t, err, "failure 0: sentinel")
	select {
	case err := <-errChan:
		t.Fatalf("unexpected second error: %v", err)
	default:
	}
}

func TestException(t *testing.T) {
	err := irrecoverable.NewExceptionf("storage broke: %w", errSentinel)
	assert.True(t, irrecoverable.IsException(err))
	assert.True(t, irrecoverable.IsException(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, irrecoverable.IsException(errSentinel))
}
