// Package media stores uploaded images and conversation thumbs.
package media

import (
	"context"
	"fmt"
	"io"
)

// Category decides where an upload lands and how it is processed.
type Category string

const (
	CategoryChat  Category = "chat"
	CategoryThumb Category = "thumb"
)

// Folder is the key segment objects of this category are stored under.
func (c Category) Folder() string {
	switch c {
	case CategoryThumb:
		return "images"
	default:
		return "chats"
	}
}

// File is an upload as received from the client.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Data        io.Reader
}

// Uploaded describes a stored object.
type Uploaded struct {
	URL        string
	ProviderID string
}

// Store uploads and deletes media objects.
type Store interface {
	Upload(ctx context.Context, f File, category Category) (Uploaded, error)
	// Destroy removes the object behind url. URLs this store did not
	// produce are ignored.
	Destroy(ctx context.Context, url string, category Category) error
}

// Loader creates a media store from config.
type Loader func(ctx context.Context) (Store, error)

// Plugin represents a media store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a media store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered media store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named media store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown media store %q; valid: %v", name, Names())
}
