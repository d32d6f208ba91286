package route

import (
	"sort"
	"sync"

	"github.com/TruongKhoiNguyen/Agora-api/internal/messaging"
	registryfanout "github.com/TruongKhoiNguyen/Agora-api/internal/registry/fanout"
	"github.com/gin-gonic/gin"
)

// Mount is what a route plugin receives when it is loaded.
// Management plugins only get Router.
type Mount struct {
	Router    *gin.Engine
	Messaging *messaging.Service
	// Subscriber is nil when the fanout bridge cannot deliver events.
	Subscriber registryfanout.Subscriber
	Auth       gin.HandlerFunc
}

// RouterLoader initializes routes from a Mount.
type RouterLoader func(m Mount) error

// RouteType distinguishes which server a plugin's routes belong to.
type RouteType int

const (
	// RouteTypeMain registers authenticated API routes on the main server.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement registers health and metrics routes. Without a
	// dedicated management port they share the main server.
	RouteTypeManagement
)

type Plugin struct {
	Name   string
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var (
	mu      sync.Mutex
	plugins []Plugin
)

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	plugins = append(plugins, p)
}

// Load runs every plugin of type t against m in Order.
func Load(t RouteType, m Mount) error {
	for _, p := range ofType(t) {
		if err := p.Loader(m); err != nil {
			return &LoadError{Plugin: p.Name, Err: err}
		}
	}
	return nil
}

// Names lists the registered plugins of type t in mount order.
func Names(t RouteType) []string {
	var names []string
	for _, p := range ofType(t) {
		names = append(names, p.Name)
	}
	return names
}

func ofType(t RouteType) []Plugin {
	mu.Lock()
	defer mu.Unlock()
	var out []Plugin
	for _, p := range plugins {
		if p.Type == t {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// LoadError names the plugin whose loader failed.
type LoadError struct {
	Plugin string
	Err    error
}

func (e *LoadError) Error() string { return "route plugin " + e.Plugin + ": " + e.Err.Error() }
func (e *LoadError) Unwrap() error { return e.Err }
