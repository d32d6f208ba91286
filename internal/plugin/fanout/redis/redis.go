// Package redis publishes fanout envelopes over Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registryfanout "github.com/TruongKhoiNguyen/Agora-api/internal/registry/fanout"
	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "agora"

func init() {
	registryfanout.Register(registryfanout.Plugin{
		Name: "redis",
		Loader: func(ctx context.Context) (registryfanout.Bridge, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil || cfg.RedisURL == "" {
				return nil, fmt.Errorf("redis fanout: AGORA_REDIS_URL is required")
			}
			return Connect(ctx, cfg.RedisURL, cfg.RedisChannelPrefix)
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Bridge maps channel c to the pub/sub channel <prefix>:<c>.
type Bridge struct {
	client *goredis.Client
	prefix string
}

// Connect parses redisURL and pings the server.
func Connect(ctx context.Context, redisURL, prefix string) (*Bridge, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis fanout: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis fanout: ping failed: %w", err)
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Bridge{client: client, prefix: prefix}, nil
}

func (b *Bridge) key(channel string) string {
	return b.prefix + ":" + channel
}

func (b *Bridge) Name() string { return "redis" }

func (b *Bridge) Publish(ctx context.Context, channel, event string, payload any) error {
	env, err := registryfanout.NewEnvelope(channel, event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis fanout: encode envelope: %w", err)
	}
	return b.client.Publish(ctx, b.key(channel), data).Err()
}

func (b *Bridge) Subscribe(ctx context.Context, channels ...string) (<-chan model.Envelope, error) {
	keys := make([]string, len(channels))
	for i, c := range channels {
		keys[i] = b.key(c)
	}
	pubsub := b.client.Subscribe(ctx, keys...)
	// Wait for the subscription to be confirmed before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis fanout: subscribe: %w", err)
	}

	sink := registryfanout.NewSink(channels...)
	go func() {
		defer sink.Close()
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var env model.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Warn("Redis fanout: bad envelope", "channel", msg.Channel, "err", err)
					continue
				}
				sink.Deliver(env)
			}
		}
	}()
	return sink.C(), nil
}

func (b *Bridge) Close() error {
	return b.client.Close()
}

var (
	_ registryfanout.Bridge     = (*Bridge)(nil)
	_ registryfanout.Subscriber = (*Bridge)(nil)
)
