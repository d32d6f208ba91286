package directory

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrycache "github.com/TruongKhoiNguyen/Agora-api/internal/registry/cache"
	"github.com/TruongKhoiNguyen/Agora-api/internal/security"
)

// Cached serves lookups from c and falls through to inner on misses.
func Cached(inner Directory, c registrycache.ProfileCache) Directory {
	if c == nil || !c.Available() {
		return inner
	}
	return &cachedDirectory{inner: inner, cache: c}
}

type cachedDirectory struct {
	inner Directory
	cache registrycache.ProfileCache
}

func (d *cachedDirectory) Lookup(ctx context.Context, ids ...string) (map[string]model.Profile, error) {
	ids = unique(ids)
	out, err := d.cache.Get(ctx, ids)
	if err != nil {
		log.Warn("Profile cache read failed", "err", err)
		out = nil
	}
	if out == nil {
		out = make(map[string]model.Profile, len(ids))
	}

	var misses []string
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			misses = append(misses, id)
		}
	}
	countCache(len(ids)-len(misses), len(misses))
	if len(misses) == 0 {
		return out, nil
	}

	found, err := d.inner.Lookup(ctx, misses...)
	if err != nil {
		return nil, err
	}
	fresh := make([]model.Profile, 0, len(found))
	for id, p := range found {
		out[id] = p
		fresh = append(fresh, p)
	}
	if err := d.cache.Set(ctx, fresh); err != nil {
		log.Warn("Profile cache write failed", "err", err)
	}
	return out, nil
}

func countCache(hits, misses int) {
	if security.CacheHitsTotal != nil {
		security.CacheHitsTotal.Add(float64(hits))
	}
	if security.CacheMissesTotal != nil {
		security.CacheMissesTotal.Add(float64(misses))
	}
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
