package mongo_test

import (
	"context"
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	directorymongo "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/directory/mongo"
	storemongo "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/mongo"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/testmongo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DBURL = testmongo.StartMongo(t)
	ctx := context.Background()

	client, err := storemongo.Connect(ctx, &cfg)
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	d := directorymongo.New(client.Database(storemongo.DatabaseName(&cfg)))
	require.NoError(t, d.Upsert(ctx, model.Profile{ID: "u1", FirstName: "Ada", LastName: "Lovelace"}))
	require.NoError(t, d.Upsert(ctx, model.Profile{ID: "u2", Email: "linus@example.com"}))

	got, err := d.Lookup(ctx, "u1", "u2", "u3")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "Ada Lovelace", got["u1"].DisplayName())
	assert.Equal(t, "linus@example.com", got["u2"].DisplayName())
}
