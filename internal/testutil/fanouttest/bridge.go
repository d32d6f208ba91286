// Package fanouttest has a behavioural suite for Subscriber bridges and a
// recording bridge for service tests.
package fanouttest

import (
	"context"
	"testing"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registryfanout "github.com/TruongKhoiNguyen/Agora-api/internal/registry/fanout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Bridge is a bridge that can also deliver.
type Bridge interface {
	registryfanout.Bridge
	registryfanout.Subscriber
}

// RunRoundTrip subscribes to two channels, publishes to three, and
// expects only the subscribed ones back. settle is waited after
// subscribing for transports that attach asynchronously.
func RunRoundTrip(t *testing.T, b Bridge, settle time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := b.Subscribe(ctx, "user-1", "conv-1")
	require.NoError(t, err)
	time.Sleep(settle)

	require.NoError(t, b.Publish(ctx, "other", model.EventConversationNew, map[string]string{"id": "skip"}))
	require.NoError(t, b.Publish(ctx, "conv-1", model.EventMessageNew, map[string]string{"id": "m1"}))
	require.NoError(t, b.Publish(ctx, "user-1", model.EventConversationUpdate, map[string]string{"id": "c1"}))

	got := map[string]string{}
	timeout := time.After(30 * time.Second)
	for len(got) < 2 {
		select {
		case env, ok := <-events:
			require.True(t, ok, "subscription closed early")
			got[env.Channel] = env.Event
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, map[string]string{
		"conv-1": model.EventMessageNew,
		"user-1": model.EventConversationUpdate,
	}, got)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)
}
