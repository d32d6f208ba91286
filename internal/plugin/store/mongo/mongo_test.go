package mongo

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/ids"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/storetest"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/testmongo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestMongoStore(t *testing.T) {
	uri := testmongo.StartMongo(t)

	var seq atomic.Int64
	storetest.Run(t, func(t *testing.T) (registrystore.Store, context.Context) {
		cfg := config.DefaultConfig()
		cfg.DatastoreType = "mongo"
		cfg.DBURL = uri
		cfg.MongoDatabase = fmt.Sprintf("agora_test_%d", seq.Add(1))
		cfg.DatastoreMigrateAtStart = true
		ctx := config.WithContext(context.Background(), &cfg)

		require.NoError(t, (&mongoMigrator{}).Migrate(ctx))

		loader, err := registrystore.Select("mongo")
		require.NoError(t, err)
		s, err := loader(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close(context.Background()) })
		return s, ctx
	})
}

func TestDuplicateDirectKeyIsConflict(t *testing.T) {
	uri := testmongo.StartMongo(t)
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "mongo"
	cfg.DBURL = uri
	cfg.DatastoreMigrateAtStart = true
	ctx := config.WithContext(context.Background(), &cfg)
	require.NoError(t, (&mongoMigrator{}).Migrate(ctx))

	client, err := Connect(ctx, &cfg)
	require.NoError(t, err)
	s := New(client, client.Database(DatabaseName(&cfg)))
	defer s.Close(ctx)

	require.NoError(t, s.CreateConversation(ctx, storetest.NewDirect("u1", "u2")))
	err = s.CreateConversation(ctx, storetest.NewDirect("u2", "u1"))
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)

	// Groups carry no direct key and never collide.
	require.NoError(t, s.CreateConversation(ctx, storetest.NewGroup("a", "u1", "u2")))
	require.NoError(t, s.CreateConversation(ctx, storetest.NewGroup("b", "u1", "u2")))
}

func TestMutationFilterAndUpdate(t *testing.T) {
	id := ids.New()
	now := time.Now().UTC()
	f := mutationFilter(id, registrystore.Mutation{RequireGroup: true, AdminIs: "u1", NotAdmin: "u2", NotSoleAdmin: "u3"})
	and, ok := f["$and"].(bson.A)
	require.True(t, ok)
	assert.Len(t, and, 5)

	_, err := mutationUpdate(registrystore.Mutation{AddMembers: []string{"a"}, RemoveMembers: []string{"b"}}, now)
	assert.Error(t, err)

	name := "n"
	u, err := mutationUpdate(registrystore.Mutation{AddAdmins: []string{"a"}, RemoveMembers: []string{"b"}, SetName: &name}, now)
	require.NoError(t, err)
	assert.Contains(t, u, "$addToSet")
	assert.Contains(t, u, "$pull")
	assert.Contains(t, u, "$set")
}

func TestDatabaseName(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DBURL = "mongodb://localhost:27017/chat?retryWrites=true"
	assert.Equal(t, "chat", DatabaseName(&cfg))
	cfg.MongoDatabase = "override"
	assert.Equal(t, "override", DatabaseName(&cfg))
	cfg.MongoDatabase = ""
	cfg.DBURL = "mongodb://localhost:27017"
	assert.Equal(t, DefaultDatabase, DatabaseName(&cfg))
}
