package notify

import (
	"order_core/internal/modules/config"
	"order_core/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func(cfg *config.Config) Notifier {
				if cfg.Telegram.Token == "" {
					return NewStdout()
				}
				t, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
				if err != nil {
					logger.Warn("telegram notifier unavailable, using stdout: %v", err)
					return NewStdout()
				}
				return t
			},
		),
		fx.Invoke(SubscribeAll),
	)
}
