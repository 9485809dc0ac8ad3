package util

import (
	"sync"

	"github.com/ledgerbft/node/module"
)

// AllReady closes the returned channel once every component is ready.
func AllReady(components ...module.ReadyDoneAware) <-chan struct{} {
	return AllClosed(collect(components, module.ReadyDoneAware.Ready)...)
}

// AllDone closes the returned channel once every component is done.
func AllDone(components ...module.ReadyDoneAware) <-chan struct{} {
	return AllClosed(collect(components, module.ReadyDoneAware.Done)...)
}

func collect(components []module.ReadyDoneAware, signal func(module.ReadyDoneAware) <-chan struct{}) []<-chan struct{} {
	channels := make([]<-chan struct{}, 0, len(components))
	for _, c := range components {
		channels = append(channels, signal(c))
	}
	return channels
}

// AllClosed closes the returned channel once every input channel is closed.
func AllClosed(channels ...<-chan struct{}) <-chan struct{} {
	closed := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(len(channels))
	for _, ch := range channels {
		go func(ch <-chan struct{}) {
			defer wg.Done()
			<-ch
		}(ch)
	}
	go func() {
		wg.Wait()
		close(closed)
	}()
	return closed
}

// WaitError returns the first error on errChan, or nil once done closes. An
// error thrown right before done closed still wins.
func WaitError(errChan <-chan error, done <-chan struct{}) error {
	select {
	case err := <-errChan:
		return err
	case <-done:
	}
	select {
	case err := <-errChan:
		return err
	default:
		return nil
	}
}
