package none

import (
	"context"

	"github.com/charmbracelet/log"
	registryfanout "github.com/TruongKhoiNguyen/Agora-api/internal/registry/fanout"
)

func init() {
	registryfanout.Register(registryfanout.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registryfanout.Bridge, error) {
			return &noneBridge{}, nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

type noneBridge struct{}

func (n *noneBridge) Name() string { return "none" }
func (n *noneBridge) Publish(_ context.Context, channel, event string, _ any) error {
	log.Debug("Fanout disabled, dropping event", "channel", channel, "event", event)
	return nil
}
func (n *noneBridge) Close() error { return nil }

var _ registryfanout.Bridge = (*noneBridge)(nil)
