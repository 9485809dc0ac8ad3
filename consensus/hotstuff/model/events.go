package model

import (
	"time"

	"github.com/ledgerbft/node/model/flow"
)

// TimerInfo contains information about the timer of the current view.
type TimerInfo struct {
	View      uint64
	StartTime time.Time
	Duration  time.Duration
}

// LocalTimeout is scheduled each time the pacemaker starts or re-arms the
// timer of a view. Timeouts for a view or epoch other than the current one
// are stale and ignored.
type LocalTimeout struct {
	Epoch uint64
	View  uint64
	// Tick counts the firings for the same view; tick 0 is the initial timeout,
	// later ticks trigger rebroadcasts.
	Tick uint64
}

// NewViewEvent is returned by the pacemaker when the view advanced.
type NewViewEvent struct {
	OldView uint64
	View    uint64
	// TC is set when the view was entered through a timeout certificate.
	TC *flow.TimeoutCertificate
}

// VertexSyncedEvent is emitted after vertex-level sync inserted the vertex,
// so work waiting on it can resume.
type VertexSyncedEvent struct {
	Epoch    uint64
	VertexID flow.Identifier
}
