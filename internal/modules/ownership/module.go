package ownership

import (
	"order_core/internal/modules/config"
	"order_core/internal/modules/ownership/service"
	"order_core/internal/store"
	"order_core/pkg/bus"
	"order_core/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("ownership",
		fx.Provide(
			func(txm db.TxManager, strategies *store.Strategies, ownerships *store.Ownerships,
				conflicts *store.ConflictLogs, b *bus.Bus, cfg *config.Config) *service.Service {
				return service.New(txm, strategies, ownerships, conflicts, b, cfg.DefaultLockDuration)
			},
		),
	)
}
