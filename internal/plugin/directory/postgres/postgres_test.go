package postgres_test

import (
	"context"
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	directorypostgres "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/directory/postgres"
	storepostgres "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/postgres"
	registrymigrate "github.com/TruongKhoiNguyen/Agora-api/internal/registry/migrate"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/testpg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DBURL = testpg.StartPostgres(t)
	cfg.DirectoryType = "postgres"
	cfg.DatastoreMigrateAtStart = true
	ctx := config.WithContext(context.Background(), &cfg)
	require.NoError(t, registrymigrate.RunAll(ctx))

	db, err := storepostgres.Open(&cfg)
	require.NoError(t, err)
	d := directorypostgres.New(db)

	require.NoError(t, d.Upsert(ctx, model.Profile{ID: "u1", FirstName: "Ada"}))
	require.NoError(t, d.Upsert(ctx, model.Profile{ID: "u1", FirstName: "Ada", LastName: "Lovelace"}))

	got, err := d.Lookup(ctx, "u1", "u9")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ada Lovelace", got["u1"].DisplayName())
}
