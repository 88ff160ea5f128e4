package notify

import (
	"fmt"
	"sync"
	"testing"

	"order_core/internal/models"
	"order_core/pkg/bus"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Send(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) Sendf(format string, args ...any) { r.Send(fmt.Sprintf(format, args...)) }

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

// Services publish domain events with PublishAsync; the notifier must receive
// every type it subscribes to through that call path.
func TestNotifierReceivesDomainEvents(t *testing.T) {
	b := bus.New(10)
	r := &recorder{}
	SubscribeAll(b, r)

	b.PublishAsync(models.EvOrderFilled, models.OrderEvent{
		OrderID:     "o-1",
		Ticker:      "AAPL",
		Side:        models.SideBuy,
		FilledPrice: decimal.NewFromFloat(101.5),
	})

	msgs := r.all()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "AAPL")
	assert.Contains(t, msgs[0], "o-1")
}

func TestNotifierCoversEverySubscribedType(t *testing.T) {
	b := bus.New(10)
	r := &recorder{}
	SubscribeAll(b, r)

	b.PublishAsync(models.EvOrderFilled, models.OrderEvent{OrderID: "o-1", Ticker: "AAPL"})
	b.PublishAsync(models.EvOrderFailed, models.OrderEvent{OrderID: "o-2", Ticker: "AAPL", Reason: "broker down"})
	b.PublishAsync(models.EvOrderRejected, models.OrderEvent{OrderID: "o-3", Ticker: "AAPL", Reason: "blocked"})
	b.PublishAsync(models.EvConflictDetected, models.ConflictEvent{Ticker: "AAPL", RequesterID: 2, OwnerID: 1})
	b.PublishAsync(models.EvOwnershipTransfer, models.OwnershipEvent{Ticker: "AAPL", FromID: 1, ToID: 2})

	assert.Len(t, r.all(), 5, "one notification per subscribed event type")
}

func TestNotifierIgnoresForeignPayloads(t *testing.T) {
	b := bus.New(10)
	r := &recorder{}
	SubscribeAll(b, r)

	b.PublishAsync(models.EvOrderFilled, "not an order event")
	assert.Empty(t, r.all())
}
