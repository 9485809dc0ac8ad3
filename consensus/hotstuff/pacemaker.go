package hotstuff

import (
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
)

// PaceMaker for HotStuff. The component is passive in that it only reacts to
// method calls. The PaceMaker does not perform state transitions on its own.
// Timeouts are delivered to the node's event queue as model.LocalTimeout
// events and fed back through ProcessLocalTimeout.
//
// PaceMaker's life cycle starts with the Start method. Calling any other
// method before Start has no timer effect.
type PaceMaker interface {
	// CurView returns the current view.
	CurView() uint64

	// NewestQC returns the QC with the highest view discovered by the PaceMaker.
	NewestQC() *flow.QuorumCertificate

	// LastViewTC returns the TC for the last view. It is nil if the current
	// view was entered with a QC.
	LastViewTC() *flow.TimeoutCertificate

	// ProcessQC will check if the given QC will allow PaceMaker to fast
	// forward to QC.View+1. If PaceMaker incremented the current View, a
	// NewViewEvent will be returned.
	// No errors are expected during normal operation.
	ProcessQC(qc *flow.QuorumCertificate) (*model.NewViewEvent, error)

	// ProcessTC will check if the given TC will allow PaceMaker to fast
	// forward to TC.View+1. If PaceMaker incremented the current View, a
	// NewViewEvent will be returned. A nil TC is an expected valid input.
	// No errors are expected during normal operation.
	ProcessTC(tc *flow.TimeoutCertificate) (*model.NewViewEvent, error)

	// ProcessLocalTimeout returns whether the timeout is live for the current
	// view. Stale timeouts of other epochs, views or ticks return false.
	ProcessLocalTimeout(timeout model.LocalTimeout) bool

	// OnPartialTC notifies the PaceMaker that timeouts of more than 1/3 of the
	// weight were collected for the view. If it is the current view, the
	// replica times out right away instead of waiting for its timer.
	OnPartialTC(view uint64)

	// Start arms the timer of the current view.
	Start()
}
