package metrics

// Prometheus metric namespaces
const (
	namespaceNode = "bftnode"
)

// Prometheus metric subsystems
const (
	subsystemHotstuff   = "hotstuff"
	subsystemEpochs     = "epochs"
	subsystemVertexSync = "vertex_sync"
	subsystemLedgerSync = "ledger_sync"
	subsystemEngine     = "engine"
)

// Label names
const (
	LabelKind        = "kind"
	LabelMessageType = "message_type"
	LabelReason      = "reason"
)
