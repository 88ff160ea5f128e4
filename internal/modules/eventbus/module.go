package eventbus

import (
	"order_core/internal/modules/config"
	"order_core/pkg/bus"

	"go.uber.org/fx"
)

// Module provides the single bus instance owned by the composition root.
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(
			func(cfg *config.Config) *bus.Bus {
				return bus.New(cfg.EventHistorySize)
			},
		),
	)
}
