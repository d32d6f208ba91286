package none

import (
	"context"
	"errors"

	registrymedia "github.com/TruongKhoiNguyen/Agora-api/internal/registry/media"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
)

func init() {
	registrymedia.Register(registrymedia.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registrymedia.Store, error) {
			return &noneStore{}, nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// ErrNotConfigured is returned for every upload.
var ErrNotConfigured = errors.New("media storage is not configured")

type noneStore struct{}

func (n *noneStore) Upload(_ context.Context, _ registrymedia.File, _ registrymedia.Category) (registrymedia.Uploaded, error) {
	return registrymedia.Uploaded{}, &registrystore.UpstreamError{Op: "upload", Err: ErrNotConfigured}
}

func (n *noneStore) Destroy(_ context.Context, _ string, _ registrymedia.Category) error { return nil }

var _ registrymedia.Store = (*noneStore)(nil)
