package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HotstuffCollector reports the progress of the consensus core.
type HotstuffCollector struct {
	curView          prometheus.Gauge
	timeoutsTotal    prometheus.Counter
	timeoutDuration  prometheus.Gauge
	committedTotal   prometheus.Counter
	committedHeight  prometheus.Gauge
	violationsTotal  *prometheus.CounterVec
	invalidMsgsTotal *prometheus.CounterVec
}

func NewHotstuffCollector(registerer prometheus.Registerer) *HotstuffCollector {
	hc := &HotstuffCollector{
		curView: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      "cur_view",
			Namespace: namespaceNode,
			Subsystem: subsystemHotstuff,
			Help:      "the current view of the pacemaker",
		}),
		timeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "timeouts_total",
			Namespace: namespaceNode,
			Subsystem: subsystemHotstuff,
			Help:      "the number of views that ended with a local timeout",
		}),
		timeoutDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      "timeout_seconds",
			Namespace: namespaceNode,
			Subsystem: subsystemHotstuff,
			Help:      "the duration of the timer armed for the current view",
		}),
		committedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "committed_vertices_total",
			Namespace: namespaceNode,
			Subsystem: subsystemHotstuff,
			Help:      "the number of vertices committed",
		}),
		committedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      "committed_height",
			Namespace: namespaceNode,
			Subsystem: subsystemHotstuff,
			Help:      "the ledger height reached by the last commit",
		}),
		violationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "safety_invariant_violations_total",
			Namespace: namespaceNode,
			Subsystem: subsystemHotstuff,
			Help:      "the number of detected violations of safety invariants",
		}, []string{LabelKind}),
		invalidMsgsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "invalid_messages_total",
			Namespace: namespaceNode,
			Subsystem: subsystemHotstuff,
			Help:      "the number of consensus messages that failed validation",
		}, []string{LabelKind}),
	}
	registerer.MustRegister(
		hc.curView,
		hc.timeoutsTotal,
		hc.timeoutDuration,
		hc.committedTotal,
		hc.committedHeight,
		hc.violationsTotal,
		hc.invalidMsgsTotal,
	)
	return hc
}

func (hc *HotstuffCollector) CurrentView(view uint64) {
	hc.curView.Set(float64(view))
}

func (hc *HotstuffCollector) TimeoutTriggered() {
	hc.timeoutsTotal.Inc()
}

func (hc *HotstuffCollector) ViewTimeout(duration time.Duration) {
	hc.timeoutDuration.Set(duration.Seconds())
}

func (hc *HotstuffCollector) VerticesCommitted(count int, height uint64) {
	hc.committedTotal.Add(float64(count))
	hc.committedHeight.Set(float64(height))
}

func (hc *HotstuffCollector) SafetyInvariantViolated(kind string) {
	hc.violationsTotal.WithLabelValues(kind).Inc()
}

func (hc *HotstuffCollector) InvalidMessage(kind string) {
	hc.invalidMsgsTotal.WithLabelValues(kind).Inc()
}
