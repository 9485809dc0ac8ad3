package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ledgerbft/node/module"
)

// NodeCollector bundles the collectors of all node components.
type NodeCollector struct {
	*HotstuffCollector
	*EpochCollector
	*VertexSyncCollector
	*LedgerSyncCollector
	*EngineCollector
}

var _ module.NodeMetrics = (*NodeCollector)(nil)

// NewNodeCollector registers all node metrics with the registerer.
func NewNodeCollector(registerer prometheus.Registerer) *NodeCollector {
	return &NodeCollector{
		HotstuffCollector:   NewHotstuffCollector(registerer),
		EpochCollector:      NewEpochCollector(registerer),
		VertexSyncCollector: NewVertexSyncCollector(registerer),
		LedgerSyncCollector: NewLedgerSyncCollector(registerer),
		EngineCollector:     NewEngineCollector(registerer),
	}
}
