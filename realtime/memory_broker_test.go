package realtime_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.curalink.io/qrlogin/realtime"
)

func TestMemoryBrokerDeliversToChannelSubscribers(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	ctx := context.Background()

	sub, err := broker.Subscribe(ctx, "private-a")
	require.NoError(t, err)
	defer sub.Close()

	other, err := broker.Subscribe(ctx, "private-b")
	require.NoError(t, err)
	defer other.Close()

	event, err := realtime.NewLoginEvent("private-a", "user-1")
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, event))

	select {
	case got := <-sub.Events():
		assert.Equal(t, realtime.EventLogin, got.Name)
		var data realtime.LoginEventData
		require.NoError(t, json.Unmarshal(got.Data, &data))
		assert.Equal(t, "user-1", data.UserID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	// A subscriber on a different channel receives nothing.
	select {
	case got := <-other.Events():
		t.Fatalf("unexpected event on private-b: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBrokerCloseStopsDelivery(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	ctx := context.Background()

	sub, err := broker.Subscribe(ctx, "private-a")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	// Close is idempotent.
	require.NoError(t, sub.Close())

	event, err := realtime.NewLoginEvent("private-a", "user-1")
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, event))

	_, open := <-sub.Events()
	assert.False(t, open)
}
