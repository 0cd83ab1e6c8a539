package liveevents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWithoutSubscribersIsDropped(t *testing.T) {
	hub := NewHub()
	hub.Publish(UsageEvent{EntityType: "table", EntityID: "1", DailyCount: 3})

	sub, backlog, err := hub.Subscribe("table")
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, backlog)
}

func TestSubscribeReceivesEventsAndBacklog(t *testing.T) {
	hub := NewHub()

	first, _, err := hub.Subscribe("Table")
	require.NoError(t, err)
	defer first.Close()

	hub.Publish(UsageEvent{EntityType: "table", EntityID: "1", DailyCount: 3, Source: SourceReport})
	hub.Publish(UsageEvent{EntityType: "database", EntityID: "9", DailyCount: 3, Source: SourceRollup})

	select {
	case event := <-first.Events():
		assert.Equal(t, "1", event.EntityID)
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}

	second, backlog, err := hub.Subscribe("table")
	require.NoError(t, err)
	defer second.Close()
	require.Len(t, backlog, 1)
	assert.Equal(t, int64(3), backlog[0].DailyCount)
}

func TestBacklogIsBounded(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe("topic")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < DefaultBufferSize+10; i++ {
		hub.Publish(UsageEvent{EntityType: "topic", DailyCount: int64(i)})
	}

	late, backlog, err := hub.Subscribe("topic")
	require.NoError(t, err)
	defer late.Close()
	require.Len(t, backlog, DefaultBufferSize)
	assert.Equal(t, int64(10), backlog[0].DailyCount)
}

func TestCloseRemovesStream(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe("chart")
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.streams)
}

func TestSubscribeRejectsBlankType(t *testing.T) {
	_, _, err := NewHub().Subscribe("  ")
	assert.ErrorIs(t, err, ErrInvalidEntityType)

	var hub *Hub
	_, _, err = hub.Subscribe("table")
	assert.ErrorIs(t, err, ErrHubUnavailable)
}
