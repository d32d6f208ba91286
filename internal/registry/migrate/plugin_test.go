package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	name string
	err  error
	ran  *[]string
}

func (f fakeMigrator) Name() string { return f.name }
func (f fakeMigrator) Migrate(context.Context) error {
	*f.ran = append(*f.ran, f.name)
	return f.err
}

func TestRunAllStopsAtFirstFailure(t *testing.T) {
	saved := plugins
	t.Cleanup(func() { plugins = saved })
	plugins = nil

	var ran []string
	Register(Plugin{Order: 200, Migrator: fakeMigrator{name: "late", ran: &ran}})
	Register(Plugin{Order: 100, Migrator: fakeMigrator{name: "schema", err: errors.New("no db"), ran: &ran}})

	require.Equal(t, []string{"schema", "late"}, Names())
	err := RunAll(context.Background())
	require.ErrorContains(t, err, "migration schema failed")
	require.Equal(t, []string{"schema"}, ran)
}
