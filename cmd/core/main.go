package main

import (
	"context"
	"log"

	"order_core/internal/modules/brokerws"
	"order_core/internal/modules/config"
	"order_core/internal/modules/conflict"
	"order_core/internal/modules/eventbus"
	"order_core/internal/modules/health"
	"order_core/internal/modules/intake"
	"order_core/internal/modules/orders"
	"order_core/internal/modules/ownership"
	"order_core/internal/modules/postgres"
	"order_core/internal/modules/recovery"
	"order_core/internal/notify"
	"order_core/pkg/logger"
	"order_core/pkg/tracing"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		eventbus.Module(),
		postgres.Module(),
		health.Module(),
		conflict.Module(),
		ownership.Module(),
		orders.Module(),
		brokerws.Module(),
		recovery.Module(),
		intake.Module(),
		notify.Module(),
		fx.Invoke(initObservability),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}

func initObservability(lc fx.Lifecycle, cfg *config.Config) error {
	l, err := zap.NewProduction()
	if err != nil {
		return err
	}
	logger.Init(l)
	logger.SetServiceName(cfg.Service.Name)

	if cfg.Jaeger.Host == "" {
		return nil
	}
	_, closeTracer, err := tracing.InitTracer(tracing.Config{
		ServiceName: cfg.Service.Name,
		Host:        cfg.Jaeger.Host,
		Port:        cfg.Jaeger.Port,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeTracer()
			return nil
		},
	})
	return nil
}
