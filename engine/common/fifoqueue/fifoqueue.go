package fifoqueue

import (
	"fmt"
	mathbits "math/bits"
	"sync"

	"github.com/ef-ds/deque"
)

// FifoQueue is a bounded FIFO queue. Elements pushed beyond the capacity are
// rejected. Every change of the queue's length is reported to the length
// observer, which must not block.
type FifoQueue struct {
	mu             sync.RWMutex
	queue          deque.Deque
	maxCapacity    int
	lengthObserver QueueLengthObserver
}

type ConstructorOption func(*FifoQueue) error

// QueueLengthObserver receives the queue's length after each change.
type QueueLengthObserver func(int)

// WithCapacity limits the number of queued elements. The default capacity is
// the largest int.
func WithCapacity(capacity int) ConstructorOption {
	return func(queue *FifoQueue) error {
		if capacity < 1 {
			return fmt.Errorf("capacity for fifo queue must be positive")
		}
		queue.maxCapacity = capacity
		return nil
	}
}

// WithLengthObserver sets the callback receiving the queue's length.
func WithLengthObserver(callback QueueLengthObserver) ConstructorOption {
	return func(queue *FifoQueue) error {
		if callback == nil {
			return fmt.Errorf("nil is not a valid QueueLengthObserver")
		}
		queue.lengthObserver = callback
		return nil
	}
}

func NewFifoQueue(options ...ConstructorOption) (*FifoQueue, error) {
	queue := &FifoQueue{
		maxCapacity:    1<<(mathbits.UintSize-1) - 1,
		lengthObserver: func(int) {},
	}
	for _, opt := range options {
		err := opt(queue)
		if err != nil {
			return nil, fmt.Errorf("could not apply fifo queue option: %w", err)
		}
	}
	return queue, nil
}

// Push appends the element and returns false if the queue is full.
func (q *FifoQueue) Push(element interface{}) bool {
	q.mu.Lock()
	if q.queue.Len() >= q.maxCapacity {
		q.mu.Unlock()
		return false
	}
	q.queue.PushBack(element)
	length := q.queue.Len()
	q.mu.Unlock()

	q.lengthObserver(length)
	return true
}

// Front returns the head of the queue without removing it.
func (q *FifoQueue) Front() (interface{}, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.queue.Front()
}

// Pop removes and returns the head of the queue, (nil, false) if it is empty.
func (q *FifoQueue) Pop() (interface{}, bool) {
	q.mu.Lock()
	element, ok := q.queue.PopFront()
	length := q.queue.Len()
	q.mu.Unlock()

	if !ok {
		return nil, false
	}
	q.lengthObserver(length)
	return element, true
}

func (q *FifoQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.queue.Len()
}
