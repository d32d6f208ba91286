package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/plugin/fanout/kafka"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/fanouttest"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/testkafka"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaBridge(t *testing.T) {
	b := kafka.New(testkafka.StartKafka(t), "agora-test-events")
	defer b.Close()

	// Create the topic before the reader joins so it starts at the end of an existing log.
	require.NoError(t, b.Publish(context.Background(), "warmup", "warmup", map[string]string{}))

	fanouttest.RunRoundTrip(t, b, 10*time.Second)
}

func TestKafkaSubscribeLeavesNoConsumerGroups(t *testing.T) {
	brokers := testkafka.StartKafka(t)
	b := kafka.New(brokers, "agora-test-groups")
	defer b.Close()
	require.NoError(t, b.Publish(context.Background(), "warmup", "warmup", map[string]string{}))

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := b.Subscribe(ctx, "u1")
		require.NoError(t, err)
		cancel()
		for range ch {
		}
	}

	client := &kafkago.Client{Addr: kafkago.TCP(brokers...), Timeout: 10 * time.Second}
	resp, err := client.ListGroups(context.Background(), &kafkago.ListGroupsRequest{})
	require.NoError(t, err)
	require.NoError(t, resp.Error)
	assert.Empty(t, resp.Groups)
}
