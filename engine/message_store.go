package engine

import (
	"github.com/ledgerbft/node/engine/common/fifoqueue"
)

// MessageStore buffers inbound messages until the event loop handles them.
// Put returns false if the message was dropped.
type MessageStore interface {
	Put(*Message) bool
	Get() (*Message, bool)
	Len() int
}

// FifoMessageStore is a bounded MessageStore handing out messages in arrival
// order.
type FifoMessageStore struct {
	queue *fifoqueue.FifoQueue
}

var _ MessageStore = (*FifoMessageStore)(nil)

func NewFifoMessageStore(capacity int, lengthObserver fifoqueue.QueueLengthObserver) (*FifoMessageStore, error) {
	queue, err := fifoqueue.NewFifoQueue(fifoqueue.WithCapacity(capacity), fifoqueue.WithLengthObserver(lengthObserver))
	if err != nil {
		return nil, err
	}
	return &FifoMessageStore{queue: queue}, nil
}

func (s *FifoMessageStore) Put(msg *Message) bool { return s.queue.Push(msg) }

func (s *FifoMessageStore) Get() (*Message, bool) {
	element, ok := s.queue.Pop()
	if !ok {
		return nil, false
	}
	return element.(*Message), true
}

func (s *FifoMessageStore) Len() int { return s.queue.Len() }
