package orders

import (
	conflictsvc "order_core/internal/modules/conflict/service"
	"order_core/internal/modules/orders/service"
	ownershipsvc "order_core/internal/modules/ownership/service"
	"order_core/internal/store"
	"order_core/pkg/bus"
	"order_core/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("orders",
		fx.Provide(
			func(txm db.TxManager, orders *store.Orders, detector *conflictsvc.Detector,
				ownership *ownershipsvc.Service, b *bus.Bus) *service.Manager {
				return service.NewManager(txm, orders, detector, ownership, b)
			},
		),
	)
}
