// Package static is a directory held in process memory.
package static

import (
	"context"
	"sync"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrydirectory "github.com/TruongKhoiNguyen/Agora-api/internal/registry/directory"
)

func init() {
	registrydirectory.Register(registrydirectory.Plugin{
		Name: "static",
		Loader: func(ctx context.Context) (registrydirectory.Directory, error) {
			return New(), nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Directory answers lookups from profiles added with Put.
type Directory struct {
	mu       sync.RWMutex
	profiles map[string]model.Profile
	lookups  int
}

func New(profiles ...model.Profile) *Directory {
	d := &Directory{profiles: map[string]model.Profile{}}
	d.Put(profiles...)
	return d
}

// Put adds or replaces profiles.
func (d *Directory) Put(profiles ...model.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
}

func (d *Directory) Lookup(_ context.Context, ids ...string) (map[string]model.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	out := make(map[string]model.Profile, len(ids))
	for _, id := range ids {
		if p, ok := d.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// Lookups reports how many times Lookup has been called.
func (d *Directory) Lookups() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookups
}

var _ registrydirectory.Directory = (*Directory)(nil)
