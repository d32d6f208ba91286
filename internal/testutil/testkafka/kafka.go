package testkafka

import (
	"context"
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/containers"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

// StartKafka returns the brokers of a disposable single-node cluster.
func StartKafka(tb testing.TB) []string {
	tb.Helper()
	containers.Check(tb)

	ctx := context.Background()
	c, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0", kafka.WithClusterID("agora-test"))
	containers.Track(tb, "kafka", c, err)

	brokers, err := c.Brokers(ctx)
	if err != nil {
		tb.Fatalf("get kafka brokers: %v", err)
	}
	return brokers
}
