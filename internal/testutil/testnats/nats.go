package testnats

import (
	"testing"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/containers"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartNATS returns a nats:// URL for a disposable server.
func StartNATS(tb testing.TB) string {
	tb.Helper()
	addr := containers.Start(tb, "nats", testcontainers.ContainerRequest{
		Image:        "nats:2.10",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(60 * time.Second),
	}, "4222")
	return "nats://" + addr
}
