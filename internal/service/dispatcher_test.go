package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/service"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/fanouttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherKeepsOrder(t *testing.T) {
	rec := fanouttest.NewRecorder()
	d := service.NewDispatcher(rec, 16)
	for i := 0; i < 100; i++ {
		d.Publish("c1", fmt.Sprintf("e%d", i), nil)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	events := rec.Events()
	require.Len(t, events, 100)
	for i, e := range events {
		assert.Equal(t, fmt.Sprintf("e%d", i), e.Event)
	}
}

func TestDispatcherInlineAndAfterClose(t *testing.T) {
	rec := fanouttest.NewRecorder()
	d := service.NewDispatcher(rec, 0)
	d.Publish("u1", "a", nil)
	assert.Len(t, rec.Events(), 1)

	require.NoError(t, d.Close(context.Background()))
	d.Publish("u1", "b", nil)
	assert.Len(t, rec.Events(), 2)
}

func TestDispatcherSwallowsBridgeFailures(t *testing.T) {
	rec := fanouttest.NewRecorder()
	rec.FailWith(errors.New("broker down"))
	d := service.NewDispatcher(rec, 0)
	assert.NotPanics(t, func() { d.Publish("u1", "a", nil) })
	assert.Len(t, rec.Events(), 1)
}

// gatedBridge holds its first Publish until release is closed.
type gatedBridge struct {
	mu      sync.Mutex
	events  []string
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedBridge() *gatedBridge {
	return &gatedBridge{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *gatedBridge) Name() string { return "gated" }
func (b *gatedBridge) Close() error { return nil }

func (b *gatedBridge) Publish(_ context.Context, _, event string, _ any) error {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.started)
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *gatedBridge) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func TestDispatcherFullQueueWaitsInOrder(t *testing.T) {
	bridge := newGatedBridge()
	d := service.NewDispatcher(bridge, 1)

	d.Publish("u1", "e1", nil)
	<-bridge.started
	d.Publish("u1", "e2", nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(bridge.release)
	}()
	d.Publish("u1", "e3", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, []string{"e1", "e2", "e3"}, bridge.Events())
}

func TestDispatcherFullQueueDropsInsteadOfOvertaking(t *testing.T) {
	bridge := newGatedBridge()
	d := service.NewDispatcher(bridge, 1)
	service.SetEnqueueTimeout(d, 20*time.Millisecond)

	d.Publish("u1", "e1", nil)
	<-bridge.started
	d.Publish("u1", "e2", nil)
	d.Publish("u1", "e3", nil)
	close(bridge.release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, []string{"e1", "e2"}, bridge.Events())

	d.Publish("u1", "late", nil)
	assert.Equal(t, []string{"e1", "e2"}, bridge.Events())
}
