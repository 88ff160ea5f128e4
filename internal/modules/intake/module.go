package intake

import (
	"context"

	healthsvc "order_core/internal/modules/health/service"

	"order_core/internal/models"
	"order_core/internal/modules/config"
	orderssvc "order_core/internal/modules/orders/service"
	"order_core/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

// Module consumes the signal channel and feeds the order manager. Signals
// arriving before recovery has flipped readiness are dropped: concurrent
// intake on an unreconciled ticker could race the reconciliation.
func Module() fx.Option {
	return fx.Module("intake",
		fx.Provide(
			func(cfg *config.Config) chan models.Signal {
				return make(chan models.Signal, cfg.IntakeQueueMax)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			m *orderssvc.Manager,
			state *healthsvc.State,
			sigs chan models.Signal,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go func() {
						for {
							select {
							case <-ctx.Done():
								return
							case sig := <-sigs:
								handle(ctx, m, state, sig)
							}
						}
					}()
					return nil
				},
			})
		}),
	)
}

func handle(ctx context.Context, m *orderssvc.Manager, state *healthsvc.State, sig models.Signal) {
	if !state.Ready() {
		logger.Warn("intake closed, dropping signal %s %s from strategy %d",
			sig.Side, sig.Ticker, sig.StrategyID)
		return
	}

	qty, err := decimal.NewFromString(sig.Qty)
	if err != nil || qty.LessThanOrEqual(decimal.Zero) {
		logger.Warn("dropping signal with bad quantity %q for %s", sig.Qty, sig.Ticker)
		return
	}

	order, err := m.CreateOrder(ctx, sig.Ticker, sig.Side, qty, sig.StrategyID)
	if err != nil {
		logger.Error("create order for %s failed: %v", sig.Ticker, err)
		return
	}
	logger.Info("signal %s %s -> order %s (%s)", sig.Side, sig.Ticker, order.ID, order.Status)
}
