package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineCollector reports events routed through the node's event loop.
type EngineCollector struct {
	received    *prometheus.CounterVec
	handled     *prometheus.HistogramVec
	queueLength prometheus.Gauge
}

func NewEngineCollector(registerer prometheus.Registerer) *EngineCollector {
	ec := &EngineCollector{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "messages_received_total",
			Namespace: namespaceNode,
			Subsystem: subsystemEngine,
			Help:      "the number of events received by the event loop",
		}, []string{LabelMessageType}),
		handled: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:      "message_handling_seconds",
			Namespace: namespaceNode,
			Subsystem: subsystemEngine,
			Help:      "the time spent handling one event",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{LabelMessageType}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      "inbound_queue_length",
			Namespace: namespaceNode,
			Subsystem: subsystemEngine,
			Help:      "the number of events waiting in the event loop's queue",
		}),
	}
	registerer.MustRegister(ec.received, ec.handled, ec.queueLength)
	return ec
}

func (ec *EngineCollector) MessageReceived(messageType string) {
	ec.received.WithLabelValues(messageType).Inc()
}

func (ec *EngineCollector) MessageHandled(messageType string, duration time.Duration) {
	ec.handled.WithLabelValues(messageType).Observe(duration.Seconds())
}

func (ec *EngineCollector) InboundQueueLength(length int) {
	ec.queueLength.Set(float64(length))
}
