package redis_test

import (
	"context"
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/plugin/fanout/redis"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/fanouttest"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/testredis"
	"github.com/stretchr/testify/require"
)

func TestRedisBridge(t *testing.T) {
	b, err := redis.Connect(context.Background(), testredis.StartRedis(t), "agora-test")
	require.NoError(t, err)
	defer b.Close()

	fanouttest.RunRoundTrip(t, b, 0)
}
