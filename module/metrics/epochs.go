package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EpochCollector reports epoch transitions and dropped epoch-scoped events.
type EpochCollector struct {
	currentEpoch  prometheus.Gauge
	droppedEvents *prometheus.CounterVec
}

func NewEpochCollector(registerer prometheus.Registerer) *EpochCollector {
	ec := &EpochCollector{
		currentEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      "current_epoch",
			Namespace: namespaceNode,
			Subsystem: subsystemEpochs,
			Help:      "the epoch whose consensus bundle is active",
		}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "dropped_events_total",
			Namespace: namespaceNode,
			Subsystem: subsystemEpochs,
			Help:      "the number of events dropped because they belong to another epoch",
		}, []string{LabelMessageType}),
	}
	registerer.MustRegister(ec.currentEpoch, ec.droppedEvents)
	return ec
}

func (ec *EpochCollector) CurrentEpoch(epoch uint64) {
	ec.currentEpoch.Set(float64(epoch))
}

func (ec *EpochCollector) EpochEventDropped(eventType string) {
	ec.droppedEvents.WithLabelValues(eventType).Inc()
}
