// Package fanout defines the bridges that carry events to connected clients.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	"github.com/google/uuid"
)

// Bridge publishes events to a channel. A channel is a user id or a
// conversation id. Delivery is best-effort.
type Bridge interface {
	Name() string
	Publish(ctx context.Context, channel, event string, payload any) error
	Close() error
}

// Subscriber is implemented by bridges that can deliver to this process.
// The returned channel is closed once ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (<-chan model.Envelope, error)
}

// NewEnvelope wraps payload for transport.
func NewEnvelope(channel, event string, payload any) (model.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return model.Envelope{
		ID:        uuid.NewString(),
		Channel:   channel,
		Event:     event,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Loader creates a bridge from config.
type Loader func(ctx context.Context) (Bridge, error)

// Plugin represents a fanout plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a fanout plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered fanout plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named fanout plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown fanout %q; valid: %v", name, Names())
}
