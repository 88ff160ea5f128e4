package brokerws

import (
	"context"

	"order_core/internal/broker"
	"order_core/internal/modules/config"
	orderssvc "order_core/internal/modules/orders/service"
	"order_core/pkg/logger"

	"go.uber.org/fx"
)

// Module provides the broker client and routes its order-update stream
// through the order manager.
func Module() fx.Option {
	return fx.Module("brokerws",
		fx.Provide(
			func(cfg *config.Config) *broker.Client {
				if cfg.Broker.BaseURL == "" {
					return nil // no broker collaborator configured
				}
				return broker.NewClient(broker.Config{
					BaseURL:   cfg.Broker.BaseURL,
					WSURL:     cfg.Broker.WSURL,
					APIKey:    cfg.Broker.APIKey,
					APISecret: cfg.Broker.APISecret,
				})
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			c *broker.Client,
			m *orderssvc.Manager,
			cfg *config.Config,
			ctx context.Context,
		) {
			if c == nil || cfg.Broker.WSURL == "" {
				return
			}
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go func() {
						for upd := range c.StreamOrderUpdates(ctx) {
							route(ctx, m, upd)
						}
					}()
					return nil
				},
			})
		}),
	)
}

func route(ctx context.Context, m *orderssvc.Manager, upd broker.OrderUpdate) {
	order, err := m.GetByBrokerID(ctx, upd.BrokerOrderID)
	if err != nil {
		logger.Error("order lookup for broker update %s: %v", upd.BrokerOrderID, err)
		return
	}
	if order == nil {
		logger.Warn("broker update for unknown order %s", upd.BrokerOrderID)
		return
	}

	switch upd.Status {
	case "filled":
		err = m.FullyFilled(ctx, order, upd.FilledPrice)
	case "partial", "partial_filled", "partially_filled":
		err = m.PartialFill(ctx, order, upd.FilledQty, upd.FilledPrice)
	case "canceled", "cancelled":
		err = m.Cancel(ctx, order, "cancelled at broker")
	default:
		return
	}
	if err != nil {
		logger.Error("broker update %s on order %s: %v", upd.Status, order.ID, err)
	}
}
