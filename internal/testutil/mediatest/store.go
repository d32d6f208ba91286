// Package mediatest has an in-memory media store for service tests.
package mediatest

import (
	"context"
	"fmt"
	"io"
	"sync"

	registrymedia "github.com/TruongKhoiNguyen/Agora-api/internal/registry/media"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
)

// Store records uploads and destroys.
type Store struct {
	mu          sync.Mutex
	seq         int
	objects     map[string][]byte
	destroyed   []string
	failUpload  error
	failDestroy error
}

func New() *Store {
	return &Store{objects: map[string][]byte{}}
}

// FailUploads makes Upload return an UpstreamError wrapping err. Nil resets.
func (s *Store) FailUploads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpload = err
}

// FailDestroys makes Destroy return an UpstreamError wrapping err. Nil resets.
func (s *Store) FailDestroys(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDestroy = err
}

func (s *Store) Upload(_ context.Context, f registrymedia.File, category registrymedia.Category) (registrymedia.Uploaded, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpload != nil {
		return registrymedia.Uploaded{}, &registrystore.UpstreamError{Op: "upload", Err: s.failUpload}
	}
	data, err := io.ReadAll(f.Data)
	if err != nil {
		return registrymedia.Uploaded{}, err
	}
	s.seq++
	key := fmt.Sprintf("%s/%d", category.Folder(), s.seq)
	url := "https://media.test/" + key
	s.objects[url] = data
	return registrymedia.Uploaded{URL: url, ProviderID: key}, nil
}

func (s *Store) Destroy(_ context.Context, url string, _ registrymedia.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDestroy != nil {
		return &registrystore.UpstreamError{Op: "destroy", Err: s.failDestroy}
	}
	s.destroyed = append(s.destroyed, url)
	delete(s.objects, url)
	return nil
}

// Has reports whether url is currently stored.
func (s *Store) Has(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[url]
	return ok
}

// Destroyed lists destroyed URLs in order.
func (s *Store) Destroyed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.destroyed...)
}

var _ registrymedia.Store = (*Store)(nil)
