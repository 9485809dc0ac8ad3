package pacemaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/consensus/hotstuff/mocks"
	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/consensus/hotstuff/pacemaker/timeout"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/metrics"
	"github.com/ledgerbft/node/utils/unittest"
)

const (
	minRepTimeout             = 100 * time.Millisecond
	maxRepTimeout             = 10 * time.Second
	timeoutAdjustmentFactor   = 1.5
	happyPathMaxRoundFailures = 0
	maxRebroadcastInterval    = time.Second
)

func qcForView(view uint64) *flow.QuorumCertificate {
	return &flow.QuorumCertificate{VoteData: flow.VoteData{
		Epoch:      1,
		View:       view,
		VertexID:   unittest.IdentifierFixture(),
		ParentView: view - 1,
	}}
}

func tcForView(view uint64, highQC *flow.QuorumCertificate) *flow.TimeoutCertificate {
	return &flow.TimeoutCertificate{Epoch: 1, View: view, HighQC: highQC}
}

func TestActivePaceMaker(t *testing.T) {
	suite.Run(t, new(ActivePaceMakerTestSuite))
}

type ActivePaceMakerTestSuite struct {
	suite.Suite

	initialView uint64
	initialQC   *flow.QuorumCertificate

	notifier  *mocks.Consumer
	persist   *mocks.Persister
	recorder  *events.Recorder
	paceMaker *ActivePaceMaker
}

func (s *ActivePaceMakerTestSuite) SetupTest() {
	s.initialView = 3
	s.initialQC = qcForView(2)

	tc, err := timeout.NewConfig(minRepTimeout, maxRepTimeout, timeoutAdjustmentFactor, happyPathMaxRoundFailures, maxRebroadcastInterval)
	require.NoError(s.T(), err)

	// init consumer for notifications emitted by PaceMaker
	s.notifier = mocks.NewConsumer(s.T())
	s.notifier.On("OnStartingTimeout", mock.Anything).Return().Once()

	// init Persister dependency for PaceMaker
	// CAUTION: The Persister hands a pointer to `livenessData` to the PaceMaker, which means the PaceMaker
	// could modify our struct in-place. `livenessData` should not be used by tests to determine expected values!
	s.persist = mocks.NewPersister(s.T())
	livenessData := &hotstuff.LivenessData{
		Epoch:       1,
		CurrentView: s.initialView,
		NewestQC:    s.initialQC,
	}

	s.recorder = events.NewRecorder(time.Unix(0, 0))
	s.paceMaker, err = New(unittest.Logger(), livenessData, timeout.NewController(tc, 1, s.recorder), s.notifier, s.persist, metrics.NewNoopCollector())
	require.NoError(s.T(), err)

	s.paceMaker.Start()
	require.Equal(s.T(), s.initialView, s.paceMaker.CurView())
}

// TestProcessQC_SkipIncreaseViewThroughQC tests that ActivePaceMaker increments view when receiving QC,
// if applicable, by skipping views
func (s *ActivePaceMakerTestSuite) TestProcessQC_SkipIncreaseViewThroughQC() {
	// seeing a QC for the current view should advance the view by one
	qc := qcForView(s.initialView)
	s.persist.On("PutLivenessData", mock.Anything).Return(nil).Once()
	s.notifier.On("OnViewChange", s.initialView, s.initialView+1).Once()
	s.notifier.On("OnStartingTimeout", mock.Anything).Return().Once()
	s.notifier.On("OnQCTriggeredViewChange", s.initialView, s.initialView+1, qc).Return().Once()
	nve, err := s.paceMaker.ProcessQC(qc)
	require.NoError(s.T(), err)
	require.Equal(s.T(), &model.NewViewEvent{OldView: s.initialView, View: s.initialView + 1}, nve)
	require.Equal(s.T(), qc, s.paceMaker.NewestQC())
	require.Nil(s.T(), s.paceMaker.LastViewTC())

	// skip 10 views
	qc = qcForView(s.initialView + 10)
	s.persist.On("PutLivenessData", mock.Anything).Return(nil).Once()
	s.notifier.On("OnViewChange", s.initialView+1, s.initialView+11).Once()
	s.notifier.On("OnStartingTimeout", mock.Anything).Return().Once()
	s.notifier.On("OnQCTriggeredViewChange", s.initialView+1, s.initialView+11, qc).Return().Once()
	nve, err = s.paceMaker.ProcessQC(qc)
	require.NoError(s.T(), err)
	require.Equal(s.T(), s.initialView+11, nve.View)
	require.Equal(s.T(), qc, s.paceMaker.NewestQC())
	require.Equal(s.T(), s.initialView+11, s.paceMaker.CurView())
}

// TestProcessTC_SkipIncreaseViewThroughTC tests that ActivePaceMaker increments view when receiving TC,
// if applicable, by skipping views
func (s *ActivePaceMakerTestSuite) TestProcessTC_SkipIncreaseViewThroughTC() {
	tc := tcForView(s.initialView, s.initialQC)
	s.persist.On("PutLivenessData", mock.Anything).Return(nil).Once()
	s.notifier.On("OnViewChange", s.initialView, s.initialView+1).Once()
	s.notifier.On("OnStartingTimeout", mock.Anything).Return().Once()
	s.notifier.On("OnTCTriggeredViewChange", s.initialView, s.initialView+1, tc).Return().Once()
	nve, err := s.paceMaker.ProcessTC(tc)
	require.NoError(s.T(), err)
	require.Equal(s.T(), &model.NewViewEvent{OldView: s.initialView, View: s.initialView + 1, TC: tc}, nve)
	require.Equal(s.T(), tc, s.paceMaker.LastViewTC())
	require.Equal(s.T(), s.initialQC, s.paceMaker.NewestQC())

	// a TC carrying a newer QC updates the newest QC
	highQC := qcForView(s.initialView + 5)
	tc = tcForView(s.initialView+10, highQC)
	s.persist.On("PutLivenessData", mock.Anything).Return(nil).Once()
	s.notifier.On("OnViewChange", s.initialView+1, s.initialView+11).Once()
	s.notifier.On("OnStartingTimeout", mock.Anything).Return().Once()
	s.notifier.On("OnTCTriggeredViewChange", s.initialView+1, s.initialView+11, tc).Return().Once()
	nve, err = s.paceMaker.ProcessTC(tc)
	require.NoError(s.T(), err)
	require.Equal(s.T(), s.initialView+11, nve.View)
	require.Equal(s.T(), highQC, s.paceMaker.NewestQC())
}

// TestProcessTC_BackoffGrows tests that consecutive TCs lengthen the view timeout
// and a QC shortens it again.
func (s *ActivePaceMakerTestSuite) TestProcessTC_BackoffGrows() {
	s.persist.On("PutLivenessData", mock.Anything).Return(nil)
	s.notifier.On("OnViewChange", mock.Anything, mock.Anything)
	s.notifier.On("OnStartingTimeout", mock.Anything).Return()
	s.notifier.On("OnTCTriggeredViewChange", mock.Anything, mock.Anything, mock.Anything).Return()
	s.notifier.On("OnQCTriggeredViewChange", mock.Anything, mock.Anything, mock.Anything).Return()

	_, err := s.paceMaker.ProcessTC(tcForView(s.initialView, s.initialQC))
	require.NoError(s.T(), err)
	first := s.paceMaker.TimerInfo().Duration
	require.Equal(s.T(), time.Duration(float64(minRepTimeout)*timeoutAdjustmentFactor), first)

	_, err = s.paceMaker.ProcessTC(tcForView(s.initialView+1, s.initialQC))
	require.NoError(s.T(), err)
	require.Greater(s.T(), s.paceMaker.TimerInfo().Duration, first)

	_, err = s.paceMaker.ProcessQC(qcForView(s.initialView + 2))
	require.NoError(s.T(), err)
	require.Equal(s.T(), first, s.paceMaker.TimerInfo().Duration)
}

// TestProcessQC_IgnoreOldQC tests that ActivePaceMaker ignores old QC and doesn't advance view
func (s *ActivePaceMakerTestSuite) TestProcessQC_IgnoreOldQC() {
	qc := qcForView(s.initialView - 2)
	nve, err := s.paceMaker.ProcessQC(qc)
	require.NoError(s.T(), err)
	require.Nil(s.T(), nve)
	require.Equal(s.T(), s.initialView, s.paceMaker.CurView())
	require.Equal(s.T(), s.initialQC, s.paceMaker.NewestQC())
}

// TestProcessTC_IgnoreOldTC tests that ActivePaceMaker ignores old and nil TCs
func (s *ActivePaceMakerTestSuite) TestProcessTC_IgnoreOldTC() {
	nve, err := s.paceMaker.ProcessTC(tcForView(s.initialView-1, s.initialQC))
	require.NoError(s.T(), err)
	require.Nil(s.T(), nve)

	nve, err = s.paceMaker.ProcessTC(nil)
	require.NoError(s.T(), err)
	require.Nil(s.T(), nve)
	require.Equal(s.T(), s.initialView, s.paceMaker.CurView())
}

// TestProcessLocalTimeout tests that only the live timer of the current view is reported.
func (s *ActivePaceMakerTestSuite) TestProcessLocalTimeout() {
	armed := s.recorder.Delayed()
	require.Len(s.T(), armed, 1)
	timer := armed[0].Event.(model.LocalTimeout)
	require.Equal(s.T(), model.LocalTimeout{Epoch: 1, View: s.initialView}, timer)

	require.False(s.T(), s.paceMaker.ProcessLocalTimeout(model.LocalTimeout{Epoch: 1, View: s.initialView - 1}))
	require.False(s.T(), s.paceMaker.ProcessLocalTimeout(model.LocalTimeout{Epoch: 2, View: s.initialView}))

	s.notifier.On("OnLocalTimeout", s.initialView).Return().Once()
	require.True(s.T(), s.paceMaker.ProcessLocalTimeout(timer))
	require.False(s.T(), s.paceMaker.ProcessLocalTimeout(timer), "a consumed timer is stale")

	// the re-broadcast tick is live but does not notify again
	rebroadcast := s.recorder.Delayed()[1]
	require.Equal(s.T(), minRepTimeout, rebroadcast.Delay)
	require.True(s.T(), s.paceMaker.ProcessLocalTimeout(rebroadcast.Event.(model.LocalTimeout)))
}

// TestOnPartialTC tests that a partial TC for the current view triggers the timeout right away.
func (s *ActivePaceMakerTestSuite) TestOnPartialTC() {
	s.paceMaker.OnPartialTC(s.initialView + 1)
	require.Empty(s.T(), s.recorder.Dispatched())

	s.paceMaker.OnPartialTC(s.initialView)
	require.Len(s.T(), s.recorder.Dispatched(), 1)
	require.Equal(s.T(), model.LocalTimeout{Epoch: 1, View: s.initialView}, s.recorder.Dispatched()[0])
}

func TestGenesisLivenessData(t *testing.T) {
	genesis, genesisQC := unittest.GenesisFixture(unittest.GenesisHeaderFixture())
	data := GenesisLivenessData(genesisQC)
	require.Equal(t, genesis.Epoch, data.Epoch)
	require.Equal(t, uint64(1), data.CurrentView)
	require.Equal(t, genesisQC, data.NewestQC)

	_, err := New(unittest.Logger(), &hotstuff.LivenessData{Epoch: 1}, nil, nil, nil, metrics.NewNoopCollector())
	require.True(t, model.IsConfigurationError(err))
}
