package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krakflow/krakflow_core/internal/models"
)

func TestBusFanOutPreservesOrder(t *testing.T) {
	bus := NewBus()
	subs := []*Subscriber{bus.Subscribe(), bus.Subscribe(), bus.Subscribe()}

	for i := 0; i < 5; i++ {
		bus.Publish(models.Event{
			Type: models.EventEdgeUpdated,
			Edge: &models.EdgeView{Key: fmt.Sprintf("k%d", i)},
		})
	}

	for _, sub := range subs {
		for i := 0; i < 5; i++ {
			event := <-sub.Events()
			assert.Equal(t, models.EventEdgeUpdated, event.Type)
			assert.Equal(t, fmt.Sprintf("k%d", i), event.Edge.Key)
		}
	}
}

func TestBusDropsOldestOnOverflow(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()

	total := DefaultSubscriberCapacity + 10
	for i := 0; i < total; i++ {
		bus.Publish(models.Event{
			Type: models.EventEdgeUpdated,
			Edge: &models.EdgeView{Key: fmt.Sprintf("k%d", i)},
		})
	}

	// The queue holds the newest capacity-many events; the first ten are gone.
	first := <-sub.Events()
	assert.Equal(t, "k10", first.Edge.Key)

	received := 1
	for {
		select {
		case event := <-sub.Events():
			received++
			assert.Equal(t, fmt.Sprintf("k%d", 9+received), event.Edge.Key)
		default:
			assert.Equal(t, DefaultSubscriberCapacity, received)
			return
		}
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(sub)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-sub.Events()
	assert.False(t, open)

	// Double unsubscribe is harmless.
	bus.Unsubscribe(sub)
}

func TestBusPublishAfterUnsubscribeSkipsSubscriber(t *testing.T) {
	bus := NewBus()
	kept := bus.Subscribe()
	gone := bus.Subscribe()
	bus.Unsubscribe(gone)

	bus.Publish(models.Event{Type: models.EventSnapshot})

	event := <-kept.Events()
	assert.Equal(t, models.EventSnapshot, event.Type)
}

func TestStoreUpdateEmitsOneEventPerCall(t *testing.T) {
	store := fixtureStore(t)
	sub := store.Subscribe()
	defer store.Unsubscribe(sub)

	for i := 0; i < 5; i++ {
		_, err := store.UpdateEdge("tram", "A", "B", EdgeUpdate{Key: "T1", Weight: float64Ptr(float64(200 + i))})
		require.NoError(t, err)
	}

	for i := 0; i < 5; i++ {
		event := <-sub.Events()
		require.Equal(t, models.EventEdgeUpdated, event.Type)
		require.NotNil(t, event.Edge)
		assert.Equal(t, float64(200+i), event.Edge.Weight)
	}

	select {
	case extra := <-sub.Events():
		t.Fatalf("unexpected extra event %q", extra.Type)
	default:
	}
}

func TestStoreUpdateEventCarriesContext(t *testing.T) {
	store := fixtureStore(t)
	sub := store.Subscribe()
	defer store.Unsubscribe(sub)

	_, err := store.UpdateEdge("tram", "A", "B", EdgeUpdate{
		Key:        "T1",
		Weight:     float64Ptr(270),
		Multiplier: 1.5,
	})
	require.NoError(t, err)

	event := <-sub.Events()
	require.NotNil(t, event.Edge)
	assert.Equal(t, 1.5, event.Edge.Multiplier)
}

func TestStoreBroadcastSnapshot(t *testing.T) {
	store := fixtureStore(t)
	sub := store.Subscribe()
	defer store.Unsubscribe(sub)

	store.BroadcastSnapshot()

	event := <-sub.Events()
	assert.Equal(t, models.EventSnapshot, event.Type)
	assert.Len(t, event.Graphs, 4)
}
