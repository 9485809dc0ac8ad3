package pacemaker

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/consensus/hotstuff/pacemaker/timeout"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module"
)

// ActivePaceMaker implements the hotstuff.PaceMaker
// Its an aggressive pacemaker with exponential increase on timeout as well as
// exponential decrease on progress. Progress is defined as entering view V
// for which the replica knows a QC with V = QC.view + 1
//
// ActivePaceMaker is NOT concurrency safe. It is only accessed from the
// node's event loop.
type ActivePaceMaker struct {
	log            zerolog.Logger
	timeoutControl *timeout.Controller
	notifier       hotstuff.Consumer
	persist        hotstuff.Persister
	metrics        module.HotstuffMetrics
	livenessData   *hotstuff.LivenessData
	started        bool
}

var _ hotstuff.PaceMaker = (*ActivePaceMaker)(nil)

// GenesisLivenessData returns the liveness data of a replica entering a new
// epoch. The genesis QC certifies view 0, so the epoch starts in view 1.
func GenesisLivenessData(genesisQC *flow.QuorumCertificate) *hotstuff.LivenessData {
	return &hotstuff.LivenessData{
		Epoch:       genesisQC.Epoch(),
		CurrentView: genesisQC.View() + 1,
		NewestQC:    genesisQC,
	}
}

// New creates a new ActivePaceMaker instance
// livenessData is the state to start from, either GenesisLivenessData or the persisted data.
// timeoutController controls the timeout trigger.
// notifier provides callbacks for pacemaker events.
func New(
	log zerolog.Logger,
	livenessData *hotstuff.LivenessData,
	timeoutController *timeout.Controller,
	notifier hotstuff.Consumer,
	persist hotstuff.Persister,
	metrics module.HotstuffMetrics,
) (*ActivePaceMaker, error) {
	if livenessData.CurrentView < 1 {
		return nil, model.NewConfigurationErrorf("Please start PaceMaker with view > 0. (View 0 is reserved for genesis vertex, which has no proposer)")
	}
	if livenessData.NewestQC == nil {
		return nil, model.NewConfigurationErrorf("liveness data without QC")
	}
	pm := ActivePaceMaker{
		log:            log.With().Str("component", "pacemaker").Uint64("epoch", livenessData.Epoch).Logger(),
		livenessData:   livenessData,
		timeoutControl: timeoutController,
		notifier:       notifier,
		persist:        persist,
		metrics:        metrics,
	}
	return &pm, nil
}

// updateLivenessData updates the current view, qc, tc. Currently, the calling code
// ensures that the view number is STRICTLY monotonously increasing. The method
// updateLivenessData panics as a last resort if ActivePaceMaker is modified to violate this condition.
// No errors are expected, any error should be threaded as exception
func (p *ActivePaceMaker) updateLivenessData(newView uint64, qc *flow.QuorumCertificate, tc *flow.TimeoutCertificate) error {
	if newView <= p.livenessData.CurrentView {
		// This should never happen: in the current implementation, it is trivially apparent that
		// newView is _always_ larger than currentView. This check is to protect the code from
		// future modifications that violate the necessary condition for
		// STRICTLY monotonously increasing view numbers.
		panic(fmt.Sprintf("cannot move from view %d to %d: currentView must be strictly monotonously increasing",
			p.livenessData.CurrentView, newView))
	}

	oldView := p.livenessData.CurrentView
	p.livenessData.CurrentView = newView
	if qc != nil && p.livenessData.NewestQC.View() < qc.View() {
		p.livenessData.NewestQC = qc
	}
	p.livenessData.LastViewTC = tc
	err := p.persist.PutLivenessData(p.livenessData)
	if err != nil {
		return fmt.Errorf("could not persist liveness data: %w", err)
	}

	p.notifier.OnViewChange(oldView, newView)
	p.metrics.CurrentView(newView)
	if p.started {
		p.startTimer()
	}
	return nil
}

func (p *ActivePaceMaker) startTimer() {
	timerInfo := p.timeoutControl.StartTimeout(p.livenessData.CurrentView)
	p.metrics.ViewTimeout(timerInfo.Duration)
	p.notifier.OnStartingTimeout(timerInfo)
}

// CurView returns the current view
func (p *ActivePaceMaker) CurView() uint64 {
	return p.livenessData.CurrentView
}

// NewestQC returns QC with the highest view discovered by PaceMaker.
func (p *ActivePaceMaker) NewestQC() *flow.QuorumCertificate {
	return p.livenessData.NewestQC
}

// LastViewTC returns TC for last view, this could be nil if previous round
// has entered with a QC.
func (p *ActivePaceMaker) LastViewTC() *flow.TimeoutCertificate {
	return p.livenessData.LastViewTC
}

// TimerInfo returns the timer of the current view, nil before Start.
func (p *ActivePaceMaker) TimerInfo() *model.TimerInfo {
	return p.timeoutControl.TimerInfo()
}

// ProcessQC notifies the pacemaker with a new QC, which might allow pacemaker to
// fast-forward its view.
func (p *ActivePaceMaker) ProcessQC(qc *flow.QuorumCertificate) (*model.NewViewEvent, error) {
	if qc.View() < p.CurView() {
		if qc.View() > p.livenessData.NewestQC.View() {
			p.livenessData.NewestQC = qc
			err := p.persist.PutLivenessData(p.livenessData)
			if err != nil {
				return nil, fmt.Errorf("could not persist liveness data: %w", err)
			}
		}
		return nil, nil
	}

	p.timeoutControl.OnProgressBeforeTimeout()

	// qc.view = p.currentView + k for k ≥ 0
	// 2/3 of replicas have already voted for round p.currentView + k, hence proceeded past currentView
	// => 2/3 of replicas are at least in view qc.view + 1.
	// => replica can skip ahead to view qc.view + 1
	oldView := p.CurView()
	newView := qc.View() + 1
	err := p.updateLivenessData(newView, qc, nil)
	if err != nil {
		return nil, err
	}

	p.log.Debug().Uint64("old_view", oldView).Uint64("new_view", newView).Msg("entered view through QC")
	p.notifier.OnQCTriggeredViewChange(oldView, newView, qc)
	return &model.NewViewEvent{OldView: oldView, View: newView}, nil
}

// ProcessTC notifies the Pacemaker of a new timeout certificate, which may allow
// Pacemaker to fast-forward its current view.
// A nil TC is an expected valid input, so that callers may pass in e.g. `Proposal.LastViewTC`,
// which may or may not have a value.
func (p *ActivePaceMaker) ProcessTC(tc *flow.TimeoutCertificate) (*model.NewViewEvent, error) {
	if tc == nil || tc.View < p.CurView() {
		return nil, nil
	}

	p.timeoutControl.OnTimeout()

	oldView := p.CurView()
	newView := tc.View + 1
	err := p.updateLivenessData(newView, tc.HighQC, tc)
	if err != nil {
		return nil, err
	}

	p.log.Debug().Uint64("old_view", oldView).Uint64("new_view", newView).Msg("entered view through TC")
	p.notifier.OnTCTriggeredViewChange(oldView, newView, tc)
	return &model.NewViewEvent{OldView: oldView, View: newView, TC: tc}, nil
}

// ProcessLocalTimeout consumes the timeout if it is live for the current
// view and arms the re-broadcast tick.
func (p *ActivePaceMaker) ProcessLocalTimeout(lt model.LocalTimeout) bool {
	if !p.timeoutControl.IsLive(lt) {
		return false
	}
	p.timeoutControl.Fired(lt)
	if lt.Tick == 0 {
		p.log.Debug().Uint64("view", lt.View).Msg("view timed out")
		p.metrics.TimeoutTriggered()
		p.notifier.OnLocalTimeout(lt.View)
	}
	return true
}

// OnPartialTC times out the current view early if a partial TC was observed for it.
func (p *ActivePaceMaker) OnPartialTC(view uint64) {
	if p.CurView() == view {
		p.timeoutControl.TriggerTimeout()
	}
}

// Start starts the pacemaker
func (p *ActivePaceMaker) Start() {
	if p.started {
		return
	}
	p.started = true
	p.metrics.CurrentView(p.CurView())
	p.startTimer()
}
