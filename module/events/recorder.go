package events

import (
	"sync"
	"time"
)

// DelayedEvent is an event handed to DispatchAfter.
type DelayedEvent struct {
	Event interface{}
	Delay time.Duration
}

// Recorder is a Dispatcher that only records events, with a manually
// advanced clock. Unit tests use it to inspect what a component scheduled.
type Recorder struct {
	mu         sync.Mutex
	now        time.Time
	dispatched []interface{}
	delayed    []DelayedEvent
}

var _ Dispatcher = (*Recorder)(nil)

func NewRecorder(now time.Time) *Recorder {
	return &Recorder{now: now}
}

func (r *Recorder) Dispatch(event interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatched = append(r.dispatched, event)
}

func (r *Recorder) DispatchAfter(event interface{}, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delayed = append(r.delayed, DelayedEvent{Event: event, Delay: delay})
}

func (r *Recorder) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

// Advance moves the clock forward.
func (r *Recorder) Advance(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = r.now.Add(d)
}

// Dispatched returns the events dispatched without delay, in order.
func (r *Recorder) Dispatched() []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interface{}(nil), r.dispatched...)
}

// Delayed returns the events dispatched with a delay, in order.
func (r *Recorder) Delayed() []DelayedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DelayedEvent(nil), r.delayed...)
}

// Reset forgets all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatched = nil
	r.delayed = nil
}
