package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// VertexSyncCollector reports vertex-level synchronization.
type VertexSyncCollector struct {
	requestsSent     prometheus.Counter
	rateLimited      prometheus.Counter
	timedOut         prometheus.Counter
	invalidResponses prometheus.Counter
	completed        prometheus.Counter
	failed           prometheus.Counter
	inboundThrottled prometheus.Counter
}

func NewVertexSyncCollector(registerer prometheus.Registerer) *VertexSyncCollector {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Name:      name,
			Namespace: namespaceNode,
			Subsystem: subsystemVertexSync,
			Help:      help,
		})
	}
	vc := &VertexSyncCollector{
		requestsSent:     counter("requests_sent_total", "the number of GetVerticesRequests sent"),
		rateLimited:      counter("requests_rate_limited_total", "the number of GetVerticesRequests suppressed by the per-peer rate limit"),
		timedOut:         counter("requests_timed_out_total", "the number of GetVerticesRequests that were not answered in time"),
		invalidResponses: counter("invalid_responses_total", "the number of vertex responses rejected as peer faults"),
		completed:        counter("completed_total", "the number of vertex chains synced and inserted"),
		failed:           counter("failed_total", "the number of syncs abandoned after repeated failures"),
		inboundThrottled: counter("inbound_requests_throttled_total", "the number of inbound GetVerticesRequests dropped by the per-requester limit"),
	}
	registerer.MustRegister(
		vc.requestsSent,
		vc.rateLimited,
		vc.timedOut,
		vc.invalidResponses,
		vc.completed,
		vc.failed,
		vc.inboundThrottled,
	)
	return vc
}

func (vc *VertexSyncCollector) VertexRequestSent()             { vc.requestsSent.Inc() }
func (vc *VertexSyncCollector) VertexRequestRateLimited()      { vc.rateLimited.Inc() }
func (vc *VertexSyncCollector) VertexRequestTimedOut()         { vc.timedOut.Inc() }
func (vc *VertexSyncCollector) VertexResponseInvalid()         { vc.invalidResponses.Inc() }
func (vc *VertexSyncCollector) VertexSyncCompleted()           { vc.completed.Inc() }
func (vc *VertexSyncCollector) VertexSyncFailed()              { vc.failed.Inc() }
func (vc *VertexSyncCollector) InboundVertexRequestThrottled() { vc.inboundThrottled.Inc() }

// LedgerSyncCollector reports ledger-level synchronization.
type LedgerSyncCollector struct {
	requestsSent    prometheus.Counter
	timedOut        prometheus.Counter
	rejected        *prometheus.CounterVec
	appliedCommands prometheus.Counter
	appliedBatches  prometheus.Counter
	staleDropped    prometheus.Counter
	failed          prometheus.Counter
}

func NewLedgerSyncCollector(registerer prometheus.Registerer) *LedgerSyncCollector {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Name:      name,
			Namespace: namespaceNode,
			Subsystem: subsystemLedgerSync,
			Help:      help,
		})
	}
	lc := &LedgerSyncCollector{
		requestsSent: counter("requests_sent_total", "the number of SyncRequests sent"),
		timedOut:     counter("requests_timed_out_total", "the number of SyncRequests that were not answered in time"),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "responses_rejected_total",
			Namespace: namespaceNode,
			Subsystem: subsystemLedgerSync,
			Help:      "the number of SyncResponses rejected, by reason",
		}, []string{LabelReason}),
		appliedCommands: counter("applied_commands_total", "the number of commands applied from verified SyncResponses"),
		appliedBatches:  counter("applied_batches_total", "the number of verified SyncResponses applied"),
		staleDropped:    counter("stale_requests_dropped_total", "the number of LocalSyncRequests dropped because their target epoch is behind"),
		failed:          counter("failed_total", "the number of syncs abandoned because no candidate peer was left"),
	}
	registerer.MustRegister(
		lc.requestsSent,
		lc.timedOut,
		lc.rejected,
		lc.appliedCommands,
		lc.appliedBatches,
		lc.staleDropped,
		lc.failed,
	)
	return lc
}

func (lc *LedgerSyncCollector) LedgerSyncRequestSent()     { lc.requestsSent.Inc() }
func (lc *LedgerSyncCollector) LedgerSyncRequestTimedOut() { lc.timedOut.Inc() }
func (lc *LedgerSyncCollector) LedgerSyncResponseRejected(reason string) {
	lc.rejected.WithLabelValues(reason).Inc()
}
func (lc *LedgerSyncCollector) LedgerSyncApplied(commands int) {
	lc.appliedBatches.Inc()
	lc.appliedCommands.Add(float64(commands))
}
func (lc *LedgerSyncCollector) LedgerSyncStaleRequestDropped() { lc.staleDropped.Inc() }
func (lc *LedgerSyncCollector) LedgerSyncFailed()              { lc.failed.Inc() }
