package migrate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

// Migrator applies the schema of one backend. Migrate is expected to be a
// no-op when the backend is not the configured one.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

type Plugin struct {
	Order    int
	Migrator Migrator
}

var (
	mu      sync.Mutex
	plugins []Plugin
)

// Register adds a migration plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	plugins = append(plugins, p)
}

// Names lists the registered migrators in run order.
func Names() []string {
	var names []string
	for _, p := range sorted() {
		names = append(names, p.Migrator.Name())
	}
	return names
}

// RunAll migrates in Order and stops at the first failure.
func RunAll(ctx context.Context) error {
	for _, p := range sorted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Debug("Running migrator", "migrator", p.Migrator.Name(), "order", p.Order)
		if err := p.Migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", p.Migrator.Name(), err)
		}
	}
	return nil
}

func sorted() []Plugin {
	mu.Lock()
	defer mu.Unlock()
	out := make([]Plugin, len(plugins))
	copy(out, plugins)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
