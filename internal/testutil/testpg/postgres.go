package testpg

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/containers"
	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartPostgres returns the DSN of a disposable Postgres server once it
// accepts connections.
func StartPostgres(tb testing.TB) string {
	tb.Helper()
	containers.Check(tb)

	ctx := context.Background()
	c, err := postgres.Run(
		ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("agora"),
		postgres.WithUsername("agora"),
		postgres.WithPassword("agora"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	containers.Track(tb, "postgres", c, err)

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil || dsn == "" {
		tb.Fatalf("build postgres connection string: %v", err)
	}
	if err := waitForReady(ctx, dsn); err != nil {
		tb.Fatalf("postgres is not ready for connections: %v", err)
	}
	return dsn
}

// waitForReady pings until the server answers or 20s pass.
func waitForReady(ctx context.Context, dsn string) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		conn, err := pgx.Connect(ctx, dsn)
		if err == nil {
			err = conn.Ping(ctx)
			_ = conn.Close(context.Background())
			if err == nil {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: last error: %v", ctx.Err(), err)
		case <-tick.C:
		}
	}
}

var databaseSeq atomic.Int64

// NewDatabase creates an empty database on the server behind dsn and
// returns a DSN pointing at it.
func NewDatabase(tb testing.TB, dsn string) string {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		tb.Fatalf("connect postgres: %v", err)
	}
	defer conn.Close(ctx)

	name := fmt.Sprintf("agora_test_%d", databaseSeq.Add(1))
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		tb.Fatalf("create database %s: %v", name, err)
	}

	u, err := url.Parse(dsn)
	if err != nil {
		tb.Fatalf("parse postgres dsn: %v", err)
	}
	u.Path = "/" + name
	return u.String()
}
