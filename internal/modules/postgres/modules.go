package postgres

import (
	"context"
	"fmt"

	"order_core/internal/modules/config"
	"order_core/internal/store"
	"order_core/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, lc fx.Lifecycle, cfg *config.Config) (*db.PgTxManager, error) {
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				if err = poolMaster.Ping(ctx); err != nil {
					return nil, err
				}

				m := db.NewPgTxManager(poolMaster)
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						m.Close()
						return nil
					},
				})
				return m, nil
			},
			func(m *db.PgTxManager) db.TxManager { return m },
			store.NewStrategies,
			store.NewOwnerships,
			store.NewConflictLogs,
			store.NewOrders,
		),
	)
}
