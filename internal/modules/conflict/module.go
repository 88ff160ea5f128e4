package conflict

import (
	"order_core/internal/modules/conflict/service"
	"order_core/internal/store"
	"order_core/pkg/bus"
	"order_core/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("conflict",
		fx.Provide(
			func(txm db.TxManager, strategies *store.Strategies, ownerships *store.Ownerships,
				conflicts *store.ConflictLogs, b *bus.Bus) *service.Detector {
				return service.NewDetector(txm, strategies, ownerships, conflicts, b)
			},
		),
	)
}
