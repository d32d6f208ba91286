package route

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRunsPluginsOfTypeInOrder(t *testing.T) {
	saved := plugins
	t.Cleanup(func() { plugins = saved })
	plugins = nil

	var calls []string
	record := func(name string) RouterLoader {
		return func(Mount) error { calls = append(calls, name); return nil }
	}
	Register(Plugin{Name: "events", Order: 30, Loader: record("events")})
	Register(Plugin{Name: "health", Type: RouteTypeManagement, Loader: record("health")})
	Register(Plugin{Name: "conversations", Order: 10, Loader: record("conversations")})

	require.NoError(t, Load(RouteTypeMain, Mount{}))
	require.Equal(t, []string{"conversations", "events"}, calls)
	require.Equal(t, []string{"health"}, Names(RouteTypeManagement))
}

func TestLoadNamesFailingPlugin(t *testing.T) {
	saved := plugins
	t.Cleanup(func() { plugins = saved })
	plugins = nil

	boom := errors.New("boom")
	Register(Plugin{Name: "messages", Loader: func(Mount) error { return boom }})

	err := Load(RouteTypeMain, Mount{})
	var le *LoadError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "messages", le.Plugin)
	require.ErrorIs(t, err, boom)
}
