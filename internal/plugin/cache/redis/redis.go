package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrycache "github.com/TruongKhoiNguyen/Agora-api/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registrycache.ProfileCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: AGORA_REDIS_URL is required")
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, cfg.CacheTTL)
}

// LoadFromURLWithTTL creates a cache from a Redis-compatible URL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.ProfileCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	return LoadFromOptionsWithTTL(ctx, opts, ttl)
}

// LoadFromOptionsWithTTL creates a cache from go-redis Options.
func LoadFromOptionsWithTTL(ctx context.Context, opts *goredis.Options, ttl time.Duration) (registrycache.ProfileCache, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisProfileCache{client: client, ttl: ttl}, nil
}

type redisProfileCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func profileKey(id string) string {
	return "agora:profile:" + id
}

func (c *redisProfileCache) Available() bool {
	return true
}

func (c *redisProfileCache) Get(ctx context.Context, ids []string) (map[string]model.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = profileKey(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Profile, len(ids))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var p model.Profile
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			continue
		}
		out[ids[i]] = p
	}
	return out, nil
}

func (c *redisProfileCache) Set(ctx context.Context, profiles []model.Profile) error {
	if len(profiles) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, p := range profiles {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		pipe.Set(ctx, profileKey(p.ID), data, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisProfileCache) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = profileKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}

var _ registrycache.ProfileCache = (*redisProfileCache)(nil)
