// Package containers holds the lifecycle shared by the disposable
// backing services the plugin tests run against.
package containers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
)

// SkipEnv, when set to any value, skips every container-backed test.
const SkipEnv = "AGORA_SKIP_CONTAINERS"

// Check skips tb under -short or SkipEnv.
func Check(tb testing.TB) {
	tb.Helper()
	if testing.Short() {
		tb.Skip("container tests are skipped in -short mode")
	}
	if _, ok := os.LookupEnv(SkipEnv); ok {
		tb.Skipf("container tests are skipped because %s is set", SkipEnv)
	}
}

// Track registers c for termination and fails tb on err. A missing
// container runtime skips instead of failing.
func Track(tb testing.TB, name string, c testcontainers.Container, err error) {
	tb.Helper()
	if err != nil {
		if runtimeMissing(err) {
			tb.Skipf("%s: no container runtime: %v", name, err)
		}
		tb.Fatalf("start %s container: %v", name, err)
	}
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Terminate(ctx); err != nil {
			tb.Errorf("terminate %s container: %v", name, err)
		}
	})
}

// Start runs req and returns host:port for the exposed port.
func Start(tb testing.TB, name string, req testcontainers.ContainerRequest, port string) string {
	tb.Helper()
	Check(tb)

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	Track(tb, name, c, err)

	host, err := c.Host(ctx)
	if err != nil {
		tb.Fatalf("get %s host: %v", name, err)
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		tb.Fatalf("get %s mapped port: %v", name, err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func runtimeMissing(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"cannot connect to the docker daemon", "docker not found", "failed to create docker provider", "rootless docker not found"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
