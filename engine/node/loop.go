package node

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/ledgerbft/node/engine"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/component"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/irrecoverable"
	"github.com/ledgerbft/node/network"
)

// Loop is the real-time event loop of a node. Network messages, local events
// and expired timers are queued in one FIFO store and handed to the handler
// one at a time by a single worker. A handler error is irrecoverable.
type Loop struct {
	*component.ComponentManager
	log     zerolog.Logger
	self    flow.Identifier
	store   engine.MessageStore
	notify  module.Notifier
	metrics module.EngineMetrics
	stopped *atomic.Bool

	mu      sync.Mutex
	handler events.Sink
	timers  map[*time.Timer]struct{}
}

var _ events.Dispatcher = (*Loop)(nil)
var _ network.MessageProcessor = (*Loop)(nil)

func NewLoop(log zerolog.Logger, self flow.Identifier, capacity int, metrics module.EngineMetrics) (*Loop, error) {
	store, err := engine.NewFifoMessageStore(capacity, metrics.InboundQueueLength)
	if err != nil {
		return nil, fmt.Errorf("could not create event queue: %w", err)
	}
	l := &Loop{
		log:     log.With().Str("component", "event_loop").Logger(),
		self:    self,
		store:   store,
		notify:  module.NewNotifier(),
		metrics: metrics,
		stopped: atomic.NewBool(false),
		timers:  make(map[*time.Timer]struct{}),
	}
	l.ComponentManager = component.NewComponentManager(l.processLoop)
	return l, nil
}

// SetHandler sets the sink events are delivered to. It must be called before
// the loop is started.
func (l *Loop) SetHandler(handler events.Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = handler
}

// Process queues a message received from the network.
func (l *Loop) Process(originID flow.Identifier, event interface{}) error {
	l.enqueue(originID, event)
	return nil
}

func (l *Loop) Dispatch(event interface{}) {
	l.enqueue(l.self, event)
}

func (l *Loop) DispatchAfter(event interface{}, delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped.Load() {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		l.mu.Lock()
		delete(l.timers, timer)
		l.mu.Unlock()
		l.enqueue(l.self, event)
	})
	l.timers[timer] = struct{}{}
}

func (l *Loop) Now() time.Time {
	return time.Now()
}

func (l *Loop) enqueue(originID flow.Identifier, event interface{}) {
	if l.stopped.Load() {
		return
	}
	l.metrics.MessageReceived(messageType(event))
	if !l.store.Put(&engine.Message{OriginID: originID, Payload: event}) {
		l.log.Warn().
			Str("event_type", messageType(event)).
			Msg("event queue full, dropping event")
		return
	}
	l.notify.Notify()
}

func (l *Loop) processLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()
	defer l.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.notify.Channel():
		}
		for {
			if ctx.Err() != nil {
				return
			}
			msg, ok := l.store.Get()
			if !ok {
				break
			}
			err := l.handle(msg)
			if err != nil {
				ctx.Throw(err)
			}
		}
	}
}

func (l *Loop) handle(msg *engine.Message) error {
	l.mu.Lock()
	handler := l.handler
	l.mu.Unlock()
	if handler == nil {
		return fmt.Errorf("no handler set for event loop")
	}

	start := time.Now()
	err := handler(msg.OriginID, msg.Payload)
	if err != nil {
		return irrecoverable.NewExceptionf("could not handle %T from %x: %w", msg.Payload, msg.OriginID, err)
	}
	l.metrics.MessageHandled(messageType(msg.Payload), time.Since(start))
	return nil
}

// stop drops pending timers; events arriving afterwards are discarded.
func (l *Loop) stop() {
	l.stopped.Store(true)
	l.mu.Lock()
	defer l.mu.Unlock()
	for timer := range l.timers {
		timer.Stop()
	}
	l.timers = nil
}

func messageType(event interface{}) string {
	return fmt.Sprintf("%T", event)
}
