package service

import (
	"context"
	"sync"
	"time"

	conflictsvc "order_core/internal/modules/conflict/service"
	ownershipsvc "order_core/internal/modules/ownership/service"

	"order_core/internal/models"
	"order_core/pkg/bus"
	"order_core/pkg/db"
	"order_core/pkg/logger"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type OrderStore interface {
	Insert(ctx context.Context, tx db.Transaction, o *models.Order) error
	UpdateStatus(ctx context.Context, tx db.Transaction, o *models.Order, from models.OrderStatus) error
	GetByID(ctx context.Context, tx db.Transaction, id string) (*models.Order, error)
	GetByBrokerID(ctx context.Context, tx db.Transaction, brokerOrderID string) (*models.Order, error)
	ListByStatuses(ctx context.Context, tx db.Transaction, statuses []models.OrderStatus) ([]*models.Order, error)
	SetManualReview(ctx context.Context, tx db.Transaction, orderID, detail string) error
}

type ConflictChecker interface {
	Check(ctx context.Context, requesterID int64, ticker string, side models.Side, qty decimal.Decimal) (conflictsvc.Result, error)
}

type OwnershipService interface {
	Transfer(ctx context.Context, ticker string, fromID, toID int64, reason string) (ownershipsvc.TransferResult, error)
	Claim(ctx context.Context, strategyID int64, ticker, reason string) (*models.PositionOwnership, error)
}

// eventByStatus maps transition targets to published event types. Targets
// absent here publish nothing.
var eventByStatus = map[models.OrderStatus]bus.Type{
	models.StatusOrderSent:   models.EvOrderSent,
	models.StatusFullyFilled: models.EvOrderFilled,
	models.StatusCancelled:   models.EvOrderCancelled,
	models.StatusRejected:    models.EvOrderRejected,
	models.StatusFailed:      models.EvOrderFailed,
}

// Manager is the single writer: no other component may set an order's status.
type Manager struct {
	txm       db.TxManager
	orders    OrderStore
	conflicts ConflictChecker
	ownership OwnershipService
	bus       *bus.Bus

	mu      sync.Mutex
	history map[string][]models.TransitionRecord
}

func NewManager(txm db.TxManager, orders OrderStore, conflicts ConflictChecker,
	ownership OwnershipService, b *bus.Bus) *Manager {
	return &Manager{
		txm:       txm,
		orders:    orders,
		conflicts: conflicts,
		ownership: ownership,
		bus:       b,
		history:   make(map[string][]models.TransitionRecord),
	}
}

// CreateOrder runs the full intake pipeline: persist in SIGNAL_RECEIVED,
// validate, resolve conflicts, optionally transfer ownership, and land in
// ORDER_PENDING or REJECTED. Blocked and transfer-failed outcomes reject the
// order; they are never errors.
func (m *Manager) CreateOrder(ctx context.Context, ticker string, side models.Side, qty decimal.Decimal, strategyID int64) (*models.Order, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "orders.CreateOrder")
	defer span.Finish()
	span.SetTag("ticker", ticker)
	span.SetTag("strategy_id", strategyID)

	order := &models.Order{
		ID:         uuid.NewString(),
		Ticker:     ticker,
		Side:       side,
		Qty:        qty,
		StrategyID: strategyID,
		Status:     models.StatusSignalReceived,
	}
	err := m.txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		return m.orders.Insert(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	if err := m.Transition(ctx, order, models.StatusValidating, "signal accepted", nil); err != nil {
		return nil, err
	}

	res, err := m.conflicts.Check(ctx, strategyID, ticker, side, qty)
	if err != nil {
		return nil, err
	}

	if !res.CanProceed {
		if err := m.Transition(ctx, order, models.StatusRejected, res.Reasoning, map[string]any{
			"conflict_resolution": string(res.Resolution),
			"owner_id":            res.OwnerID,
		}); err != nil {
			return nil, err
		}
		return order, nil
	}

	if res.Resolution == models.ResolutionPriorityOverride {
		tr, err := m.ownership.Transfer(ctx, ticker, res.OwnerID, strategyID, res.Reasoning)
		if err != nil {
			return nil, err
		}
		if !tr.Success {
			if err := m.Transition(ctx, order, models.StatusRejected, tr.Message, nil); err != nil {
				return nil, err
			}
			return order, nil
		}
	} else if res.OwnershipID == nil {
		// First acquisition of an unowned ticker. Two concurrent signals can
		// both see it unowned; the loser hits the unique primary index. That
		// is contention, so it rejects the order instead of stranding it.
		if _, err := m.ownership.Claim(ctx, strategyID, ticker, "first signal on ticker"); err != nil {
			if err := m.Transition(ctx, order, models.StatusRejected,
				"lost concurrent ownership claim: "+err.Error(), nil); err != nil {
				return nil, err
			}
			return order, nil
		}
	}

	if err := m.Transition(ctx, order, models.StatusOrderPending, "validation passed", nil); err != nil {
		return nil, err
	}
	return order, nil
}

// Transition is the one mutation path for order status. It validates against
// the canonical table, persists inside one transaction, reverts the
// in-memory state on persistence failure, records history and publishes the
// mapped event. A racing writer on the same order gets an error, never a
// silent overwrite.
func (m *Manager) Transition(ctx context.Context, order *models.Order, target models.OrderStatus, reason string, extra map[string]any) error {
	if err := models.ValidateTransition(order.Status, target); err != nil {
		return errors.Wrapf(err, "order %s", order.ID)
	}

	from := order.Status
	prevError := order.ErrorText
	prevExtra := order.Extra

	order.Status = target
	if target == models.StatusRejected || target == models.StatusFailed || target == models.StatusCancelled {
		order.ErrorText = reason
	}
	if len(extra) > 0 {
		merged := make(map[string]any, len(prevExtra)+len(extra))
		for k, v := range prevExtra {
			merged[k] = v
		}
		for k, v := range extra {
			merged[k] = v
		}
		order.Extra = merged
	}

	err := m.txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		return m.orders.UpdateStatus(ctx, tx, order, from)
	})
	if err != nil {
		// No partial state: the caller sees the order exactly as before.
		order.Status = from
		order.ErrorText = prevError
		order.Extra = prevExtra
		return err
	}

	m.mu.Lock()
	m.history[order.ID] = append(m.history[order.ID], models.TransitionRecord{
		OrderID: order.ID,
		From:    from,
		To:      target,
		Reason:  reason,
		At:      time.Now(),
	})
	m.mu.Unlock()

	if evType, ok := eventByStatus[target]; ok {
		m.bus.PublishAsync(evType, models.OrderEvent{
			OrderID:     order.ID,
			Ticker:      order.Ticker,
			Side:        order.Side,
			Status:      target,
			Reason:      reason,
			FilledQty:   order.FilledQty,
			FilledPrice: order.FilledPrice,
			Extra:       order.Extra,
		})
	}

	logger.Info("order %s: %s -> %s (%s)", order.ID, from, target, reason)
	return nil
}

// History returns the in-memory transition records for one order, oldest
// first.
func (m *Manager) History(orderID string) []models.TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TransitionRecord, len(m.history[orderID]))
	copy(out, m.history[orderID])
	return out
}

// Get loads an order by id.
func (m *Manager) Get(ctx context.Context, id string) (*models.Order, error) {
	var order *models.Order
	err := m.txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		var err error
		order, err = m.orders.GetByID(ctx, tx, id)
		return err
	})
	return order, err
}

// GetByBrokerID resolves a broker-assigned id to the local order.
func (m *Manager) GetByBrokerID(ctx context.Context, brokerOrderID string) (*models.Order, error) {
	var order *models.Order
	err := m.txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		var err error
		order, err = m.orders.GetByBrokerID(ctx, tx, brokerOrderID)
		return err
	})
	return order, err
}

// ListPending returns orders in the recovery target set.
func (m *Manager) ListPending(ctx context.Context) ([]*models.Order, error) {
	var out []*models.Order
	err := m.txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		var err error
		out, err = m.orders.ListByStatuses(ctx, tx, models.PendingStates())
		return err
	})
	return out, err
}

// FlagManualReview marks an order for operator attention without touching
// its status.
func (m *Manager) FlagManualReview(ctx context.Context, order *models.Order, detail string) error {
	err := m.txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		return m.orders.SetManualReview(ctx, tx, order.ID, detail)
	})
	if err != nil {
		return err
	}
	order.NeedsManualReview = true
	order.ErrorText = detail
	return nil
}

// Convenience wrappers. They keep call sites declarative; every one goes
// through Transition.

func (m *Manager) ReceiveSignal(ctx context.Context, order *models.Order) error {
	return m.Transition(ctx, order, models.StatusSignalReceived, "signal received", nil)
}

func (m *Manager) StartValidation(ctx context.Context, order *models.Order) error {
	return m.Transition(ctx, order, models.StatusValidating, "validation started", nil)
}

func (m *Manager) ValidationPassed(ctx context.Context, order *models.Order) error {
	return m.Transition(ctx, order, models.StatusOrderPending, "validation passed", nil)
}

func (m *Manager) ValidationFailed(ctx context.Context, order *models.Order, reason string) error {
	return m.Transition(ctx, order, models.StatusRejected, reason, nil)
}

func (m *Manager) OrderSent(ctx context.Context, order *models.Order, brokerOrderID string) error {
	order.BrokerOrderID = brokerOrderID
	return m.Transition(ctx, order, models.StatusOrderSent, "sent to broker", nil)
}

func (m *Manager) OrderFailed(ctx context.Context, order *models.Order, reason string) error {
	return m.Transition(ctx, order, models.StatusFailed, reason, nil)
}

// PartialFill records a fill that leaves the order open. Repeated partials
// update fill progress in place without a second transition.
func (m *Manager) PartialFill(ctx context.Context, order *models.Order, qty, price decimal.Decimal) error {
	order.FilledQty = qty
	order.FilledPrice = price
	if order.Status == models.StatusPartialFilled {
		return m.txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
			return m.orders.UpdateStatus(ctx, tx, order, models.StatusPartialFilled)
		})
	}
	return m.Transition(ctx, order, models.StatusPartialFilled, "partial fill", nil)
}

func (m *Manager) FullyFilled(ctx context.Context, order *models.Order, price decimal.Decimal) error {
	order.FilledQty = order.Qty
	order.FilledPrice = price
	return m.Transition(ctx, order, models.StatusFullyFilled, "fully filled", nil)
}

func (m *Manager) Cancel(ctx context.Context, order *models.Order, reason string) error {
	return m.Transition(ctx, order, models.StatusCancelled, reason, nil)
}
