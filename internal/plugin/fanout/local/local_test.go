package local_test

import (
	"context"
	"testing"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	"github.com/TruongKhoiNguyen/Agora-api/internal/plugin/fanout/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversOnlySubscribedChannels(t *testing.T) {
	hub := local.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	events, err := hub.Subscribe(ctx, "u1", "c1")
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, "u2", model.EventConversationNew, map[string]string{"id": "x"}))
	require.NoError(t, hub.Publish(ctx, "c1", model.EventMessageNew, map[string]string{"id": "m1"}))
	require.NoError(t, hub.Publish(ctx, "u1", model.EventConversationUpdate, map[string]string{"id": "c1"}))

	first := <-events
	second := <-events
	assert.Equal(t, "c1", first.Channel)
	assert.Equal(t, model.EventMessageNew, first.Event)
	assert.Equal(t, "u1", second.Channel)

	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
	assert.Eventually(t, func() bool { return hub.Subscribers("c1") == 0 }, time.Second, 10*time.Millisecond)
}
