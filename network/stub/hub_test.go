package stub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/network"
	"github.com/ledgerbft/node/utils/unittest"
)

type received struct {
	originID flow.Identifier
	event    interface{}
}

type inbox struct {
	messages []received
}

func (i *inbox) Process(originID flow.Identifier, event interface{}) error {
	i.messages = append(i.messages, received{originID: originID, event: event})
	return nil
}

func TestHubDelivery(t *testing.T) {
	hub := NewHub()
	ids := unittest.IdentifierListFixture(3)
	inboxes := make([]*inbox, len(ids))
	conduits := make([]*Conduit, len(ids))
	for i, id := range ids {
		inboxes[i] = &inbox{}
		conduit, err := hub.Register(id, inboxes[i])
		require.NoError(t, err)
		conduits[i] = conduit.(*Conduit)
	}
	_, err := hub.Register(ids[0], &inbox{})
	require.Error(t, err)

	require.NoError(t, conduits[0].Unicast("hello", ids[1]))
	assert.Equal(t, []received{{originID: ids[0], event: "hello"}}, inboxes[1].messages)

	require.NoError(t, conduits[1].Publish("all", ids...))
	assert.Len(t, inboxes[0].messages, 1)
	assert.Len(t, inboxes[1].messages, 1)
	assert.Len(t, inboxes[2].messages, 1)

	err = conduits[0].Unicast("lost", unittest.IdentifierFixture())
	assert.True(t, network.IsUnknownTargetError(err))
	assert.Equal(t, ids.Sort(), hub.NodeIDs())
}

func TestHubFilter(t *testing.T) {
	ids := unittest.IdentifierListFixture(2)
	hub := NewHub(WithFilter(func(originID, targetID flow.Identifier, event interface{}) bool {
		return event != "drop"
	}))
	target := &inbox{}
	conduit, err := hub.Register(ids[0], &inbox{})
	require.NoError(t, err)
	_, err = hub.Register(ids[1], target)
	require.NoError(t, err)

	require.NoError(t, conduit.Unicast("drop", ids[1]))
	require.NoError(t, conduit.Unicast("keep", ids[1]))
	assert.Len(t, target.messages, 1)
	delivered, dropped := hub.Stats()
	assert.Equal(t, uint64(1), delivered)
	assert.Equal(t, uint64(1), dropped)

	hub.SetFilter(nil)
	require.NoError(t, conduit.Unicast("drop", ids[1]))
	assert.Len(t, target.messages, 2)
}

func TestSimulatedHub(t *testing.T) {
	sim := events.NewSimulation(time.Unix(0, 0))
	hub := NewHub(WithSimulation(sim, 50*time.Millisecond))
	ids := unittest.IdentifierListFixture(2)
	target := &inbox{}
	conduit, err := hub.Register(ids[0], &inbox{})
	require.NoError(t, err)
	_, err = hub.Register(ids[1], target)
	require.NoError(t, err)

	require.NoError(t, conduit.Unicast("later", ids[1]))
	assert.Empty(t, target.messages)
	require.NoError(t, sim.RunFor(49*time.Millisecond))
	assert.Empty(t, target.messages)
	require.NoError(t, sim.RunFor(time.Millisecond))
	assert.Len(t, target.messages, 1)
}
