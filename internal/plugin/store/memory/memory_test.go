package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/memory"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/storetest"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (registrystore.Store, context.Context) {
		return memory.New(), context.Background()
	})
}

func TestLoaderIsRegistered(t *testing.T) {
	_ = memory.ForceImport
	loader, err := registrystore.Select("memory")
	require.NoError(t, err)
	s, err := loader(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestConcurrentRemovalsMatchOnce(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	c := storetest.NewGroup("Team", "u1", "u2", "u3")
	c.Admins = []string{"u1", "u2"}
	require.NoError(t, s.CreateConversation(ctx, c))

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, admin := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(admin string) {
			defer wg.Done()
			_, _, err := s.MutateConversation(ctx, c.ID, registrystore.Mutation{
				AdminIs:       admin,
				MemberIs:      "u3",
				NotAdmin:      "u3",
				RemoveMembers: []string{"u3"},
			})
			results <- err
		}(admin)
	}
	wg.Wait()
	close(results)

	var succeeded, lost int
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, registrystore.ErrNoMatch)
			lost++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, lost)
}
