package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocturnelabs/vigil/pkg/channels/gochannel"
	"github.com/nocturnelabs/vigil/pkg/eventbus"
	"github.com/nocturnelabs/vigil/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.TriggerReceived, 1)

	require.NoError(t, bus.Handle(events.TriggerReceivedEvent, func(_ context.Context, event any) error {
		trigger, ok := event.(*events.TriggerReceived)
		require.True(t, ok)

		received <- trigger

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	trigger := events.TriggerReceived{
		BaseEvent: events.NewBaseEvent(events.TriggerReceivedEvent),
		EventType: "ioc_detected",
		Payload:   map[string]any{"severity": "critical"},
		Source:    "sensor-7",
	}
	require.NoError(t, bus.Publish(ctx, "ioc_detected", trigger))

	select {
	case got := <-received:
		assert.Equal(t, "ioc_detected", got.EventType)
		assert.Equal(t, "critical", got.Payload["severity"])
		assert.Equal(t, "sensor-7", got.Source)
		assert.Equal(t, trigger.ID, got.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnhandledEventTypeIsAcked(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.ExecutionCompleted, 1)

	require.NoError(t, bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event any) error {
		completed, ok := event.(*events.ExecutionCompleted)
		require.True(t, ok)

		received <- completed

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for this type; the subscriber must keep going.
	started := events.ExecutionStarted{
		BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent),
	}
	require.NoError(t, bus.Publish(ctx, "exec", started))

	completed := events.ExecutionCompleted{
		BaseEvent: events.NewBaseEvent(events.ExecutionCompletedEvent),
	}
	require.NoError(t, bus.Publish(ctx, "exec", completed))

	select {
	case got := <-received:
		assert.Equal(t, completed.ID, got.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestGenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
