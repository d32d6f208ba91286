package testmongo

import (
	"context"
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/containers"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

// StartMongo returns the URI of a disposable MongoDB server.
func StartMongo(tb testing.TB) string {
	tb.Helper()
	containers.Check(tb)

	ctx := context.Background()
	c, err := mongodb.Run(ctx, "mongo:7")
	containers.Track(tb, "mongodb", c, err)

	uri, err := c.ConnectionString(ctx)
	if err != nil {
		tb.Fatalf("build mongodb connection string: %v", err)
	}
	return uri
}
