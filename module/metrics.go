package module

import (
	"time"
)

// HotstuffMetrics reports the progress of the consensus core.
type HotstuffMetrics interface {
	// CurrentView reports the pacemaker's current view.
	CurrentView(view uint64)

	// TimeoutTriggered reports that the timer of the current view fired.
	TimeoutTriggered()

	// ViewTimeout reports the duration of the timer armed for a view.
	ViewTimeout(duration time.Duration)

	// VerticesCommitted reports committed vertices and the ledger height reached.
	VerticesCommitted(count int, height uint64)

	// SafetyInvariantViolated reports conditions that require the byzantine
	// threshold to be exceeded, e.g. two QCs of one view for different vertices.
	SafetyInvariantViolated(kind string)

	// InvalidMessage reports a message from a peer that failed validation.
	InvalidMessage(kind string)
}

// EpochMetrics reports epoch transitions and epoch-scoped event routing.
type EpochMetrics interface {
	// CurrentEpoch reports the epoch whose consensus bundle is active.
	CurrentEpoch(epoch uint64)

	// EpochEventDropped reports an event dropped because its epoch is not
	// the current one.
	EpochEventDropped(eventType string)
}

// VertexSyncMetrics reports vertex-level synchronization.
type VertexSyncMetrics interface {
	VertexRequestSent()
	VertexRequestRateLimited()
	VertexRequestTimedOut()
	VertexResponseInvalid()
	VertexSyncCompleted()
	VertexSyncFailed()
	// InboundVertexRequestThrottled reports a GetVerticesRequest dropped by the per-requester limit.
	InboundVertexRequestThrottled()
}

// LedgerSyncMetrics reports ledger-level synchronization.
type LedgerSyncMetrics interface {
	LedgerSyncRequestSent()
	LedgerSyncRequestTimedOut()
	LedgerSyncResponseRejected(reason string)
	LedgerSyncApplied(commands int)
	LedgerSyncStaleRequestDropped()
	LedgerSyncFailed()
}

// EngineMetrics reports events routed through a node's event loop.
type EngineMetrics interface {
	MessageReceived(messageType string)
	MessageHandled(messageType string, duration time.Duration)
	InboundQueueLength(length int)
}

// NodeMetrics is the union of all metrics a node reports.
type NodeMetrics interface {
	HotstuffMetrics
	EpochMetrics
	VertexSyncMetrics
	LedgerSyncMetrics
	EngineMetrics
}
