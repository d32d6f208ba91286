// Package kafka publishes fanout envelopes to a Kafka topic keyed by channel.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registryfanout "github.com/TruongKhoiNguyen/Agora-api/internal/registry/fanout"
	"github.com/charmbracelet/log"
	"github.com/segmentio/kafka-go"
)

const defaultTopic = "agora-events"

func init() {
	registryfanout.Register(registryfanout.Plugin{
		Name: "kafka",
		Loader: func(ctx context.Context) (registryfanout.Bridge, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil {
				return nil, fmt.Errorf("kafka fanout: missing config")
			}
			brokers := cfg.KafkaBrokerList()
			if len(brokers) == 0 {
				return nil, fmt.Errorf("kafka fanout: AGORA_KAFKA_BROKERS is required")
			}
			return New(brokers, cfg.KafkaTopic), nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Bridge writes every envelope to one topic with the channel as key. The
// key hashes to a fixed partition, so each channel keeps publish order.
type Bridge struct {
	brokers []string
	topic   string
	writer  *kafka.Writer
}

func New(brokers []string, topic string) *Bridge {
	if topic == "" {
		topic = defaultTopic
	}
	return &Bridge{
		brokers: brokers,
		topic:   topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (b *Bridge) Name() string { return "kafka" }

func (b *Bridge) Publish(ctx context.Context, channel, event string, payload any) error {
	env, err := registryfanout.NewEnvelope(channel, event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kafka fanout: encode envelope: %w", err)
	}
	return b.writer.WriteMessages(ctx, kafka.Message{Key: []byte(channel), Value: data})
}

// Subscribe reads every partition of the topic from its newest offset
// without a consumer group, so nothing is left on the broker once ctx ends.
func (b *Bridge) Subscribe(ctx context.Context, channels ...string) (<-chan model.Envelope, error) {
	partitions, err := b.partitions(ctx)
	if err != nil {
		return nil, err
	}

	sink := registryfanout.NewSink(channels...)
	var wg sync.WaitGroup
	for _, p := range partitions {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     b.brokers,
			Topic:       b.topic,
			Partition:   p,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.LastOffset,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()
			b.consume(ctx, reader, sink)
		}()
	}
	go func() {
		wg.Wait()
		sink.Close()
	}()
	return sink.C(), nil
}

func (b *Bridge) consume(ctx context.Context, reader *kafka.Reader, sink *registryfanout.Sink) {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
				log.Error("Kafka fanout: read failed", "topic", b.topic, "partition", reader.Config().Partition, "err", err)
			}
			return
		}
		if !sink.Wants(string(msg.Key)) {
			continue
		}
		var env model.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			log.Warn("Kafka fanout: bad envelope", "key", string(msg.Key), "err", err)
			continue
		}
		sink.Deliver(env)
	}
}

// partitions lists the topic's partition ids. A topic that is not created
// yet is read on partition 0, which is where auto creation starts.
func (b *Bridge) partitions(ctx context.Context) ([]int, error) {
	conn, err := kafka.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return nil, fmt.Errorf("kafka fanout: dial %s: %w", b.brokers[0], err)
	}
	defer conn.Close()
	found, err := conn.ReadPartitions(b.topic)
	if err != nil || len(found) == 0 {
		log.Debug("Kafka fanout: topic partitions unknown, reading partition 0", "topic", b.topic, "err", err)
		return []int{0}, nil
	}
	ids := make([]int, 0, len(found))
	for _, p := range found {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (b *Bridge) Close() error {
	return b.writer.Close()
}

var (
	_ registryfanout.Bridge     = (*Bridge)(nil)
	_ registryfanout.Subscriber = (*Bridge)(nil)
)
