// Package notify holds passive event consumers. Their failures never affect
// the core; the bus isolates every handler.
package notify

import (
	"fmt"
	"log"

	"order_core/internal/models"
	"order_core/pkg/bus"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Telegram is a fire-and-forget notifier.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
	}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	_, _ = t.bot.Send(tgbot.NewMessage(t.chatID, msg))
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Stdout is the fallback when no telegram token is configured.
type Stdout struct{}

func NewStdout() *Stdout                           { return &Stdout{} }
func (s *Stdout) Send(msg string)                  { log.Println(msg) }
func (s *Stdout) Sendf(format string, args ...any) { log.Printf(format, args...) }

// SubscribeAll wires the notifier to the event types an operator wants to
// see. Handlers are async: a slow telegram API call never blocks a publisher
// past the fan-out barrier of its own event.
func SubscribeAll(b *bus.Bus, n Notifier) {
	b.Subscribe(models.EvOrderFilled, func(ev bus.Event) error {
		if p, ok := ev.Data.(models.OrderEvent); ok {
			n.Sendf("✅ %s %s filled @ %s (order %s)", p.Side, p.Ticker, p.FilledPrice, p.OrderID)
		}
		return nil
	}, true)

	b.Subscribe(models.EvOrderFailed, func(ev bus.Event) error {
		if p, ok := ev.Data.(models.OrderEvent); ok {
			n.Sendf("❗️ order %s on %s failed: %s", p.OrderID, p.Ticker, p.Reason)
		}
		return nil
	}, true)

	b.Subscribe(models.EvOrderRejected, func(ev bus.Event) error {
		if p, ok := ev.Data.(models.OrderEvent); ok {
			n.Sendf("🚫 order %s on %s rejected: %s", p.OrderID, p.Ticker, p.Reason)
		}
		return nil
	}, true)

	b.Subscribe(models.EvConflictDetected, func(ev bus.Event) error {
		if p, ok := ev.Data.(models.ConflictEvent); ok {
			n.Sendf("⚔️ conflict on %s: strategy %d vs %d -> %s", p.Ticker, p.RequesterID, p.OwnerID, p.Resolution)
		}
		return nil
	}, true)

	b.Subscribe(models.EvOwnershipTransfer, func(ev bus.Event) error {
		if p, ok := ev.Data.(models.OwnershipEvent); ok {
			n.Sendf("🔁 %s ownership moved %d -> %d", p.Ticker, p.FromID, p.ToID)
		}
		return nil
	}, true)
}
