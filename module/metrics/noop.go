package metrics

import (
	"time"

	"github.com/ledgerbft/node/module"
)

type NoopCollector struct{}

var _ module.NodeMetrics = (*NoopCollector)(nil)

func NewNoopCollector() *NoopCollector {
	nc := &NoopCollector{}
	return nc
}

func (nc *NoopCollector) CurrentView(uint64)                   {}
func (nc *NoopCollector) TimeoutTriggered()                    {}
func (nc *NoopCollector) ViewTimeout(time.Duration)            {}
func (nc *NoopCollector) VerticesCommitted(int, uint64)        {}
func (nc *NoopCollector) SafetyInvariantViolated(string)       {}
func (nc *NoopCollector) InvalidMessage(string)                {}
func (nc *NoopCollector) CurrentEpoch(uint64)                  {}
func (nc *NoopCollector) EpochEventDropped(string)             {}
func (nc *NoopCollector) VertexRequestSent()                   {}
func (nc *NoopCollector) VertexRequestRateLimited()            {}
func (nc *NoopCollector) VertexRequestTimedOut()               {}
func (nc *NoopCollector) VertexResponseInvalid()               {}
func (nc *NoopCollector) VertexSyncCompleted()                 {}
func (nc *NoopCollector) VertexSyncFailed()                    {}
func (nc *NoopCollector) InboundVertexRequestThrottled()       {}
func (nc *NoopCollector) LedgerSyncRequestSent()               {}
func (nc *NoopCollector) LedgerSyncRequestTimedOut()           {}
func (nc *NoopCollector) LedgerSyncResponseRejected(string)    {}
func (nc *NoopCollector) LedgerSyncApplied(int)                {}
func (nc *NoopCollector) LedgerSyncStaleRequestDropped()       {}
func (nc *NoopCollector) LedgerSyncFailed()                    {}
func (nc *NoopCollector) MessageReceived(string)               {}
func (nc *NoopCollector) MessageHandled(string, time.Duration) {}
func (nc *NoopCollector) InboundQueueLength(int)               {}
