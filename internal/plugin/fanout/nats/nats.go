// Package nats publishes fanout envelopes on NATS subjects.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registryfanout "github.com/TruongKhoiNguyen/Agora-api/internal/registry/fanout"
	"github.com/nats-io/nats.go"
)

const defaultPrefix = "agora"

func init() {
	registryfanout.Register(registryfanout.Plugin{
		Name: "nats",
		Loader: func(ctx context.Context) (registryfanout.Bridge, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil || cfg.NATSURL == "" {
				return nil, fmt.Errorf("nats fanout: AGORA_NATS_URL is required")
			}
			return Connect(cfg.NATSURL, cfg.NATSSubjectPrefix)
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Bridge maps channel c to subject <prefix>.<c>.
type Bridge struct {
	conn   *nats.Conn
	prefix string
}

// Connect dials url with automatic reconnects.
func Connect(url, prefix string) (*Bridge, error) {
	if prefix == "" {
		prefix = defaultPrefix
	}
	opts := []nats.Option{
		nats.Name("agora-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats fanout: connect: %w", err)
	}
	return &Bridge{conn: conn, prefix: prefix}, nil
}

func (b *Bridge) subject(channel string) string {
	return b.prefix + "." + channel
}

func (b *Bridge) Name() string { return "nats" }

func (b *Bridge) Publish(_ context.Context, channel, event string, payload any) error {
	env, err := registryfanout.NewEnvelope(channel, event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("nats fanout: encode envelope: %w", err)
	}
	return b.conn.Publish(b.subject(channel), data)
}

// Subscribe feeds every subject into one Go channel. The connection's
// read loop fills it in arrival order, so events keep their order across
// the subscribed channels.
func (b *Bridge) Subscribe(ctx context.Context, channels ...string) (<-chan model.Envelope, error) {
	msgs := make(chan *nats.Msg, registryfanout.SinkBuffer)
	subs := make([]*nats.Subscription, 0, len(channels))
	unsubscribe := func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}
	for _, c := range channels {
		s, err := b.conn.ChanSubscribe(b.subject(c), msgs)
		if err != nil {
			unsubscribe()
			return nil, fmt.Errorf("nats fanout: subscribe %s: %w", c, err)
		}
		subs = append(subs, s)
	}

	sink := registryfanout.NewSink(channels...)
	go func() {
		defer sink.Close()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				var env model.Envelope
				if err := json.Unmarshal(msg.Data, &env); err != nil {
					log.Warn("NATS fanout: bad envelope", "subject", msg.Subject, "err", err)
					continue
				}
				sink.Deliver(env)
			}
		}
	}()
	return sink.C(), nil
}

func (b *Bridge) Close() error {
	return b.conn.Drain()
}

var (
	_ registryfanout.Bridge     = (*Bridge)(nil)
	_ registryfanout.Subscriber = (*Bridge)(nil)
)
