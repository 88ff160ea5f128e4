package service

import (
	"context"
	"strings"

	"order_core/internal/broker"
	"order_core/internal/models"
	"order_core/pkg/logger"

	"github.com/shopspring/decimal"
)

type OrderManager interface {
	ListPending(ctx context.Context) ([]*models.Order, error)
	FullyFilled(ctx context.Context, order *models.Order, price decimal.Decimal) error
	PartialFill(ctx context.Context, order *models.Order, qty, price decimal.Decimal) error
	Cancel(ctx context.Context, order *models.Order, reason string) error
	FlagManualReview(ctx context.Context, order *models.Order, detail string) error
}

type StatusClient interface {
	GetOrderStatus(ctx context.Context, brokerOrderID string) (broker.OrderStatus, error)
}

type Summary struct {
	Total        int
	Recovered    int
	Failed       int
	ManualReview []string // order ids needing operator attention
	Monitoring   []string // order ids still open at the broker
}

// Recovery reconciles every non-terminal order against the broker at process
// start. The broker is ground truth; when it cannot answer, the order is
// flagged for manual review and never guessed at.
type Recovery struct {
	manager OrderManager
	broker  StatusClient // nil when no broker collaborator is configured
}

func New(manager OrderManager, b StatusClient) *Recovery {
	return &Recovery{manager: manager, broker: b}
}

// Run processes the whole pending set. Individual failures are isolated per
// order; only listing the batch can fail the run.
func (r *Recovery) Run(ctx context.Context) (Summary, error) {
	orders, err := r.manager.ListPending(ctx)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Total: len(orders)}
	for _, order := range orders {
		r.recoverOne(ctx, order, &sum)
	}

	logger.Info("recovery done: total=%d recovered=%d failed=%d monitoring=%d",
		sum.Total, sum.Recovered, sum.Failed, len(sum.Monitoring))
	return sum, nil
}

func (r *Recovery) recoverOne(ctx context.Context, order *models.Order, sum *Summary) {
	if r.broker == nil {
		r.review(ctx, order, sum, "no broker collaborator configured")
		return
	}
	if order.BrokerOrderID == "" {
		if order.Status == models.StatusOrderPending {
			// Never reached the broker; nothing to reconcile yet.
			sum.Monitoring = append(sum.Monitoring, order.ID)
			return
		}
		r.review(ctx, order, sum, "order has no broker order id")
		return
	}

	st, err := r.broker.GetOrderStatus(ctx, order.BrokerOrderID)
	if err != nil {
		r.review(ctx, order, sum, "broker status query failed: "+err.Error())
		return
	}

	switch normalize(st.Status) {
	case "filled":
		if err := r.manager.FullyFilled(ctx, order, st.FilledPrice); err != nil {
			r.review(ctx, order, sum, "recovery transition failed: "+err.Error())
			return
		}
		sum.Recovered++
	case "cancelled":
		if err := r.manager.Cancel(ctx, order, "recovered as cancelled"); err != nil {
			r.review(ctx, order, sum, "recovery transition failed: "+err.Error())
			return
		}
		sum.Recovered++
	case "partial":
		if order.Status != models.StatusPartialFilled {
			if err := r.manager.PartialFill(ctx, order, st.FilledQty, st.FilledPrice); err != nil {
				r.review(ctx, order, sum, "recovery transition failed: "+err.Error())
				return
			}
			sum.Recovered++
		}
		sum.Monitoring = append(sum.Monitoring, order.ID)
	case "open":
		// Still live at the broker; keep watching, change nothing.
		sum.Monitoring = append(sum.Monitoring, order.ID)
	default:
		r.review(ctx, order, sum, "unrecognized broker status: "+st.Status)
	}
}

func (r *Recovery) review(ctx context.Context, order *models.Order, sum *Summary, detail string) {
	sum.Failed++
	sum.ManualReview = append(sum.ManualReview, order.ID)
	if err := r.manager.FlagManualReview(ctx, order, detail); err != nil {
		logger.Error("failed to flag order %s for review: %v", order.ID, err)
	}
}

func normalize(brokerStatus string) string {
	switch strings.ToLower(brokerStatus) {
	case "filled", "done":
		return "filled"
	case "canceled", "cancelled":
		return "cancelled"
	case "partial", "partial_filled", "partially_filled":
		return "partial"
	case "live", "open", "pending", "new":
		return "open"
	}
	return ""
}
