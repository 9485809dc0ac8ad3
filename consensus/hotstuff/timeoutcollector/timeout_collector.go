package timeoutcollector

import (
	"fmt"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/committees"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
)

// Result is the outcome of adding a timeout vote.
type Result struct {
	// PartialTC is set the first time timeouts of more than a third of the
	// weight were collected for the view.
	PartialTC bool
	// TC is set the first time a quorum of timeouts was collected.
	TC *flow.TimeoutCertificate
}

// TimeoutCollector collects the timeout votes of a single view and builds a
// TC once they reach a quorum. Signatures must be verified before they are
// added. Not concurrency safe.
type TimeoutCollector struct {
	epoch            uint64
	view             uint64
	timeoutThreshold uint64
	state            *committees.ValidationState
	highQCViews      map[flow.Identifier]uint64
	highestQC        *flow.QuorumCertificate
	partialReported  bool
	tcBuilt          bool
}

// NewTimeoutCollector creates a collector for the view.
func NewTimeoutCollector(committee hotstuff.Committee, view uint64) *TimeoutCollector {
	return &TimeoutCollector{
		epoch:            committee.Epoch(),
		view:             view,
		timeoutThreshold: committee.TimeoutThreshold(),
		state:            committees.NewValidationState(committee.Validators()),
		highQCViews:      make(map[flow.Identifier]uint64),
	}
}

// View returns the view the collector collects timeouts for.
func (c *TimeoutCollector) View() uint64 {
	return c.view
}

// AddTimeout adds a verified timeout vote. Repeated timeouts of a signer are
// ignored, as they are re-broadcasts.
// Expected errors during normal operations:
//   - model.InvalidSignerError if the signer is not a validator of the epoch
func (c *TimeoutCollector) AddTimeout(timeout *messages.TimeoutVote) (Result, error) {
	if timeout.View != c.view || timeout.Epoch != c.epoch {
		return Result{}, fmt.Errorf("timeout for epoch %d view %d added to collector of epoch %d view %d",
			timeout.Epoch, timeout.View, c.epoch, c.view)
	}
	added, err := c.state.AddSignature(timeout.SignerID, timeout.Timestamp, timeout.Signature)
	if err != nil {
		return Result{}, err
	}
	if !added {
		return Result{}, nil
	}
	c.highQCViews[timeout.SignerID] = timeout.HighQC.View()
	if c.highestQC == nil || timeout.HighQC.View() > c.highestQC.View() {
		c.highestQC = timeout.HighQC
	}

	var result Result
	if !c.partialReported && c.state.Weight() >= c.timeoutThreshold {
		c.partialReported = true
		result.PartialTC = true
	}
	if !c.tcBuilt && c.state.Complete() {
		c.tcBuilt = true
		result.TC = c.buildTC()
	}
	return result, nil
}

func (c *TimeoutCollector) buildTC() *flow.TimeoutCertificate {
	sigs := c.state.Signatures()
	views := make([]uint64, 0, len(sigs))
	for _, sig := range sigs {
		views = append(views, c.highQCViews[sig.SignerID])
	}
	return &flow.TimeoutCertificate{
		Epoch:       c.epoch,
		View:        c.view,
		HighQC:      c.highestQC,
		HighQCViews: views,
		Signatures:  sigs,
	}
}

// TimeoutCollectors holds one TimeoutCollector per view at or above the
// lowest retained view. Not concurrency safe.
type TimeoutCollectors struct {
	committee  hotstuff.Committee
	lowestView uint64
	collectors map[uint64]*TimeoutCollector
}

// NewTimeoutCollectors creates the collectors of the committee's epoch.
func NewTimeoutCollectors(committee hotstuff.Committee) *TimeoutCollectors {
	return &TimeoutCollectors{
		committee:  committee,
		collectors: make(map[uint64]*TimeoutCollector),
	}
}

// AddTimeout routes the verified timeout vote to the collector of its view.
// Timeouts of pruned views are dropped.
// Expected errors during normal operations:
//   - model.InvalidSignerError if the signer is not a validator of the epoch
func (c *TimeoutCollectors) AddTimeout(timeout *messages.TimeoutVote) (Result, error) {
	if timeout.View < c.lowestView {
		return Result{}, nil
	}
	collector, ok := c.collectors[timeout.View]
	if !ok {
		collector = NewTimeoutCollector(c.committee, timeout.View)
		c.collectors[timeout.View] = collector
	}
	result, err := collector.AddTimeout(timeout)
	if err != nil {
		if model.IsInvalidSignerError(err) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("could not add timeout of %x for view %d: %w", timeout.SignerID, timeout.View, err)
	}
	return result, nil
}

// PruneUpToView drops the collectors of all views below the given one.
func (c *TimeoutCollectors) PruneUpToView(view uint64) {
	if view <= c.lowestView {
		return
	}
	for v := range c.collectors {
		if v < view {
			delete(c.collectors, v)
		}
	}
	c.lowestView = view
}
