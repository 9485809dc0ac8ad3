package committees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbft/node/consensus/hotstuff/model"
	"github.com/ledgerbft/node/utils/unittest"
)

func TestValidationState_UniformWeights(t *testing.T) {
	participants := unittest.ParticipantsFixture(4)
	state := NewValidationState(participants.Set)
	require.True(t, state.IsEmpty())
	require.Equal(t, uint64(3), state.Threshold())

	for i := 0; i < 2; i++ {
		added, err := state.AddSignature(participants.NodeID(i), uint64(i), []byte{byte(i)})
		require.NoError(t, err)
		require.True(t, added)
		require.False(t, state.Complete())
	}

	// duplicate signer doesn't add weight
	added, err := state.AddSignature(participants.NodeID(1), 99, []byte{99})
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, uint64(2), state.Weight())
	assert.False(t, state.Complete())

	added, err = state.AddSignature(participants.NodeID(2), 2, []byte{2})
	require.NoError(t, err)
	require.True(t, added)
	assert.True(t, state.Complete())

	sigs := state.Signatures()
	require.Len(t, sigs, 3)
	assert.Equal(t, sigs, sigs.Sorted())
	// the first signature of a signer is retained
	assert.Equal(t, uint64(1), sigs[1].Timestamp)
}

func TestValidationState_WeightedQuorum(t *testing.T) {
	// total weight 10, threshold 7
	participants := unittest.WeightedParticipantsFixture(5, 2, 2, 1)
	state := NewValidationState(participants.Set)
	require.Equal(t, uint64(7), state.Threshold())

	heavy := participants.Set.Validators[0]
	for i, v := range participants.Set.Validators {
		if v.Weight == 5 {
			heavy = participants.Set.Validators[i]
		}
	}
	_, err := state.AddSignature(heavy.NodeID, 0, nil)
	require.NoError(t, err)
	assert.False(t, state.Complete())

	for _, v := range participants.Set.Validators {
		if v.Weight == 2 {
			_, err := state.AddSignature(v.NodeID, 0, nil)
			require.NoError(t, err)
			break
		}
	}
	assert.Equal(t, uint64(7), state.Weight())
	assert.True(t, state.Complete())
}

func TestValidationState_UnknownSigner(t *testing.T) {
	participants := unittest.ParticipantsFixture(4)
	state := NewValidationState(participants.Set)

	added, err := state.AddSignature(unittest.IdentifierFixture(), 0, nil)
	require.Error(t, err)
	assert.True(t, model.IsInvalidSignerError(err))
	assert.False(t, added)
	assert.True(t, state.IsEmpty())
}

func TestStaticCommittee(t *testing.T) {
	participants := unittest.ParticipantsFixture(4)
	self := participants.NodeID(2)
	committee, err := NewStaticCommittee(3, participants.Set, self)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), committee.Epoch())
	assert.Equal(t, self, committee.Self())
	assert.Equal(t, uint64(3), committee.QuorumThreshold())
	assert.Equal(t, uint64(2), committee.TimeoutThreshold())

	// leaders rotate over the canonical order
	for view := uint64(0); view < 8; view++ {
		assert.Equal(t, participants.NodeID(int(view%4)), committee.LeaderForView(view))
	}

	_, err = committee.IdentityByNodeID(unittest.IdentifierFixture())
	assert.True(t, model.IsInvalidSignerError(err))

	validator, err := committee.IdentityByNodeID(self)
	require.NoError(t, err)
	assert.Equal(t, self, validator.NodeID)
}
