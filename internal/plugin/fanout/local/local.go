// Package local is an in-process fanout hub for single-node deployments.
package local

import (
	"context"
	"sync"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registryfanout "github.com/TruongKhoiNguyen/Agora-api/internal/registry/fanout"
)

func init() {
	registryfanout.Register(registryfanout.Plugin{
		Name: "local",
		Loader: func(ctx context.Context) (registryfanout.Bridge, error) {
			return NewHub(), nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Hub routes envelopes to subscribers in this process.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*registryfanout.Sink]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[*registryfanout.Sink]struct{}{}}
}

func (h *Hub) Name() string { return "local" }

func (h *Hub) Publish(_ context.Context, channel, event string, payload any) error {
	env, err := registryfanout.NewEnvelope(channel, event, payload)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sink := range h.subs[channel] {
		sink.Deliver(env)
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, channels ...string) (<-chan model.Envelope, error) {
	sink := registryfanout.NewSink(channels...)
	h.mu.Lock()
	for _, c := range channels {
		set, ok := h.subs[c]
		if !ok {
			set = map[*registryfanout.Sink]struct{}{}
			h.subs[c] = set
		}
		set[sink] = struct{}{}
	}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		for _, c := range channels {
			delete(h.subs[c], sink)
			if len(h.subs[c]) == 0 {
				delete(h.subs, c)
			}
		}
		h.mu.Unlock()
		sink.Close()
	}()
	return sink.C(), nil
}

// Subscribers reports how many subscriptions include channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

func (h *Hub) Close() error { return nil }

var (
	_ registryfanout.Bridge     = (*Hub)(nil)
	_ registryfanout.Subscriber = (*Hub)(nil)
)
