// Package directory resolves user ids to public profiles.
package directory

import (
	"context"
	"fmt"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
)

// Directory looks up profiles. Unknown ids are absent from the result.
type Directory interface {
	Lookup(ctx context.Context, ids ...string) (map[string]model.Profile, error)
}

// Loader creates a directory from config.
type Loader func(ctx context.Context) (Directory, error)

// Plugin represents a directory plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a directory plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered directory plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named directory plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown directory %q; valid: %v", name, Names())
}

// Resolve returns a profile for every id, falling back to a bare id profile.
func Resolve(ctx context.Context, d Directory, ids ...string) (map[string]model.Profile, error) {
	found, err := d.Lookup(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Profile, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			out[id] = p
		} else {
			out[id] = model.Profile{ID: id}
		}
	}
	return out, nil
}
