package testredis

import (
	"testing"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/containers"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartRedis returns a redis:// URL for a disposable server.
func StartRedis(tb testing.TB) string {
	tb.Helper()
	addr := containers.Start(tb, "redis", testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}, "6379")
	return "redis://" + addr
}
