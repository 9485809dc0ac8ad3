package events

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/ledgerbft/node/model/flow"
)

// Simulation is a deterministic, single-threaded scheduler for any number of
// nodes sharing one virtual clock. Events are processed in (time, insertion)
// order, which makes every run with the same inputs reproducible.
type Simulation struct {
	now   time.Time
	seq   uint64
	queue scheduledQueue
}

// NewSimulation creates a simulation whose clock starts at the given time.
func NewSimulation(start time.Time) *Simulation {
	return &Simulation{now: start}
}

// Now returns the virtual time.
func (s *Simulation) Now() time.Time {
	return s.now
}

// Pending returns the number of events waiting to be processed.
func (s *Simulation) Pending() int {
	return s.queue.Len()
}

// Schedule delivers the event to the sink once the delay elapsed.
func (s *Simulation) Schedule(delay time.Duration, sink Sink, originID flow.Identifier, event interface{}) {
	if delay < 0 {
		delay = 0
	}
	s.seq++
	heap.Push(&s.queue, &scheduled{
		at:       s.now.Add(delay),
		seq:      s.seq,
		sink:     sink,
		originID: originID,
		event:    event,
	})
}

// Dispatcher returns a dispatcher delivering local events of the node with
// the given identity to its sink.
func (s *Simulation) Dispatcher(self flow.Identifier, sink Sink) Dispatcher {
	return &simulatedDispatcher{sim: s, self: self, sink: sink}
}

// Step processes the next event. It returns false if there was none.
// Errors returned by the sink are handed back to the caller.
func (s *Simulation) Step() (bool, error) {
	if s.queue.Len() == 0 {
		return false, nil
	}
	next := heap.Pop(&s.queue).(*scheduled)
	if next.at.After(s.now) {
		s.now = next.at
	}
	err := next.sink(next.originID, next.event)
	if err != nil {
		return true, fmt.Errorf("could not process %T at %v: %w", next.event, next.at, err)
	}
	return true, nil
}

// RunFor processes all events due within the given duration and then moves
// the clock to the end of it.
func (s *Simulation) RunFor(duration time.Duration) error {
	deadline := s.now.Add(duration)
	for s.queue.Len() > 0 && !s.queue[0].at.After(deadline) {
		_, err := s.Step()
		if err != nil {
			return err
		}
	}
	s.now = deadline
	return nil
}

// RunUntil processes events until the condition holds or the maximum
// duration elapsed. It returns whether the condition was met.
func (s *Simulation) RunUntil(condition func() bool, max time.Duration) (bool, error) {
	deadline := s.now.Add(max)
	for !condition() {
		if s.queue.Len() == 0 || s.queue[0].at.After(deadline) {
			return false, nil
		}
		_, err := s.Step()
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

type simulatedDispatcher struct {
	sim  *Simulation
	self flow.Identifier
	sink Sink
}

func (d *simulatedDispatcher) Dispatch(event interface{}) {
	d.sim.Schedule(0, d.sink, d.self, event)
}

func (d *simulatedDispatcher) DispatchAfter(event interface{}, delay time.Duration) {
	d.sim.Schedule(delay, d.sink, d.self, event)
}

func (d *simulatedDispatcher) Now() time.Time {
	return d.sim.now
}

type scheduled struct {
	at       time.Time
	seq      uint64
	sink     Sink
	originID flow.Identifier
	event    interface{}
}

// scheduledQueue implements heap.Interface ordered by (at, seq).
type scheduledQueue []*scheduled

func (q scheduledQueue) Len() int { return len(q) }

func (q scheduledQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q scheduledQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *scheduledQueue) Push(x interface{}) {
	*q = append(*q, x.(*scheduled))
}

func (q *scheduledQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
