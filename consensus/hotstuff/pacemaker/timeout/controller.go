package timeout

import (
	"math"
	"time"

	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/module/events"
)

// Controller implements the following truncated exponential backoff:
//
//	duration = t_min * min(b ^ ((r-k) * θ(r-k)), t_max)
//
// For practical purpose we will transform this formula into:
//
//	duration(r) = t_min * b ^ (min((r-k) * θ(r-k)), c), where c = log_b (t_max / t_min).
//
// In described formula:
//
//	  k - is number of rounds we expect during hot path, after failing this many rounds,
//	      we will start increasing timeouts.
//	  b - timeout increase factor
//	  r - failed rounds counter
//	  θ - Heaviside step function
//		 t_min/t_max - minimum/maximum round duration
//
// By manipulating `r` after observing progress or lack thereof, we are achieving exponential increase/decrease
// of round durations.
//   - on timeout: increase number of failed rounds, this results in exponential growing round duration
//     on multiple subsequent timeouts, after exceeding k.
//   - on progress: decrease number of failed rounds, this results in exponential decrease of round duration.
//
// Timers are not OS timers: the Controller schedules model.LocalTimeout events
// through the node's dispatcher. A scheduled event cannot be cancelled, so
// every event carries the view and a tick number, and only the tick the
// Controller currently expects is live. All others are stale.
type Controller struct {
	cfg         Config
	epoch       uint64
	dispatcher  events.Dispatcher
	maxExponent float64 // max exponent for exponential function, derived from maximum round duration
	r           uint64  // failed rounds counter, higher value results in longer round duration

	timerInfo *model.TimerInfo
	nextTick  uint64 // tick of the next live LocalTimeout of the current view
}

// NewController creates a new Controller scheduling timeouts of the given
// epoch through the dispatcher.
func NewController(timeoutConfig Config, epoch uint64, dispatcher events.Dispatcher) *Controller {
	// we need to calculate log_b(t_max/t_min), golang doesn't support logarithm with custom base
	// we will apply change of base logarithm transformation to get around this:
	// log_b(x) = log_e(x) / log_e(b)
	maxExponent := math.Log(float64(timeoutConfig.MaxReplicaTimeout)/float64(timeoutConfig.MinReplicaTimeout)) /
		math.Log(timeoutConfig.TimeoutAdjustmentFactor)

	return &Controller{
		cfg:         timeoutConfig,
		epoch:       epoch,
		dispatcher:  dispatcher,
		maxExponent: maxExponent,
	}
}

// TimerInfo returns the timer of the current view, nil if none was started.
func (t *Controller) TimerInfo() *model.TimerInfo {
	return t.timerInfo
}

// StartTimeout arms the timer of the view and returns the timer info. Timeouts
// scheduled for earlier views become stale.
func (t *Controller) StartTimeout(view uint64) model.TimerInfo {
	duration := t.ReplicaTimeout()
	t.timerInfo = &model.TimerInfo{View: view, StartTime: t.dispatcher.Now(), Duration: duration}
	t.nextTick = 0
	t.dispatcher.DispatchAfter(model.LocalTimeout{Epoch: t.epoch, View: view}, duration)
	return *t.timerInfo
}

// IsLive returns whether the timeout is the one the current view is waiting for.
func (t *Controller) IsLive(timeout model.LocalTimeout) bool {
	return t.timerInfo != nil &&
		timeout.Epoch == t.epoch &&
		timeout.View == t.timerInfo.View &&
		timeout.Tick == t.nextTick
}

// Fired consumes a live timeout and schedules the next tick of the same view,
// which re-broadcasts the timeout vote if the view is still not left by then.
func (t *Controller) Fired(timeout model.LocalTimeout) {
	t.nextTick = timeout.Tick + 1
	next := model.LocalTimeout{Epoch: t.epoch, View: timeout.View, Tick: t.nextTick}
	t.dispatcher.DispatchAfter(next, t.RebroadcastInterval())
}

// TriggerTimeout makes the current view time out right away. The pending
// timer of the view turns stale once the triggered timeout is consumed.
func (t *Controller) TriggerTimeout() {
	if t.timerInfo == nil {
		return
	}
	t.dispatcher.Dispatch(model.LocalTimeout{Epoch: t.epoch, View: t.timerInfo.View, Tick: t.nextTick})
}

// ReplicaTimeout returns the duration of the current view before we time out
func (t *Controller) ReplicaTimeout() time.Duration {
	if t.r <= t.cfg.HappyPathMaxRoundFailures {
		return t.cfg.MinReplicaTimeout
	}
	r := float64(t.r - t.cfg.HappyPathMaxRoundFailures)
	if r >= t.maxExponent {
		return t.cfg.MaxReplicaTimeout
	}
	// compute timeout duration:
	return time.Duration(float64(t.cfg.MinReplicaTimeout) * math.Pow(t.cfg.TimeoutAdjustmentFactor, r))
}

// RebroadcastInterval returns the time between re-broadcasts of the timeout
// vote of a view that has timed out already.
func (t *Controller) RebroadcastInterval() time.Duration {
	d := t.ReplicaTimeout()
	if d > t.cfg.MaxTimeoutRebroadcastInterval {
		return t.cfg.MaxTimeoutRebroadcastInterval
	}
	return d
}

// OnTimeout indicates to the Controller that a view change was triggered by a TC (unhappy path).
func (t *Controller) OnTimeout() {
	if float64(t.r) >= t.maxExponent+float64(t.cfg.HappyPathMaxRoundFailures) {
		return
	}
	t.r++
}

// OnProgressBeforeTimeout indicates to the Controller that progress was made _before_ the timeout was reached
func (t *Controller) OnProgressBeforeTimeout() {
	if t.r > 0 {
		t.r--
	}
}
