package module

// Notifier wakes up a worker when new work arrives. Notifications sent while
// one is pending are merged, so the worker must drain all work after each
// wake-up. A Notifier can be passed by value.
type Notifier struct {
	notifier chan struct{}
}

func NewNotifier() Notifier {
	return Notifier{make(chan struct{}, 1)}
}

// Notify never blocks.
func (n Notifier) Notify() {
	select {
	case n.notifier <- struct{}{}:
	default:
	}
}

// Channel returns the channel the worker waits on.
func (n Notifier) Channel() <-chan struct{} {
	return n.notifier
}
