// Package local keeps profiles in an in-process ristretto cache.
package local

import (
	"context"
	"fmt"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrycache "github.com/TruongKhoiNguyen/Agora-api/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultTTL         = 10 * time.Minute
	defaultMaxProfiles = 100_000
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "local",
		Loader: func(ctx context.Context) (registrycache.ProfileCache, error) {
			ttl, max := defaultTTL, int64(defaultMaxProfiles)
			if cfg := config.FromContext(ctx); cfg != nil {
				if cfg.CacheTTL > 0 {
					ttl = cfg.CacheTTL
				}
				if cfg.CacheMaxProfiles > 0 {
					max = cfg.CacheMaxProfiles
				}
			}
			return New(max, ttl)
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Cache holds up to maxProfiles profiles, each costing one unit.
type Cache struct {
	cache *ristretto.Cache[string, model.Profile]
	ttl   time.Duration
}

// New builds a cache bounded to maxProfiles entries.
func New(maxProfiles int64, ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, model.Profile]{
		NumCounters: maxProfiles * 10,
		MaxCost:     maxProfiles,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	return &Cache{cache: c, ttl: ttl}, nil
}

func (c *Cache) Available() bool { return true }

func (c *Cache) Get(_ context.Context, ids []string) (map[string]model.Profile, error) {
	out := make(map[string]model.Profile, len(ids))
	for _, id := range ids {
		if p, ok := c.cache.Get(id); ok {
			out[id] = p
		}
	}
	return out, nil
}

// Set stores profiles and blocks until they are visible to Get.
func (c *Cache) Set(_ context.Context, profiles []model.Profile) error {
	for _, p := range profiles {
		c.cache.SetWithTTL(p.ID, p, 1, c.ttl)
	}
	c.cache.Wait()
	return nil
}

func (c *Cache) Remove(_ context.Context, ids ...string) error {
	for _, id := range ids {
		c.cache.Del(id)
	}
	return nil
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.cache.Close()
}

var _ registrycache.ProfileCache = (*Cache)(nil)
