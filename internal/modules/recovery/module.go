package recovery

import (
	"context"

	"order_core/internal/broker"
	healthsvc "order_core/internal/modules/health/service"
	orderssvc "order_core/internal/modules/orders/service"
	"order_core/internal/modules/recovery/service"
	"order_core/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("recovery",
		fx.Provide(
			func(m *orderssvc.Manager, c *broker.Client) *service.Recovery {
				var sc service.StatusClient
				if c != nil {
					sc = c
				}
				return service.New(m, sc)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			r *service.Recovery,
			state *healthsvc.State,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					// Intake stays gated until reconciliation has run to
					// completion.
					go func() {
						sum, err := r.Run(ctx)
						if err != nil {
							logger.Error("recovery run failed, intake stays closed: %v", err)
							return
						}
						state.SetRecovery(healthsvc.RecoverySnapshot{
							Total:        sum.Total,
							Recovered:    sum.Recovered,
							Failed:       sum.Failed,
							ManualReview: sum.ManualReview,
						})
						state.SetReady(true)
					}()
					return nil
				},
			})
		}),
	)
}
