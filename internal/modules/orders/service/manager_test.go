package service

import (
	"context"
	"sync/atomic"
	"testing"

	conflictsvc "order_core/internal/modules/conflict/service"
	ownershipsvc "order_core/internal/modules/ownership/service"

	"order_core/internal/models"
	"order_core/pkg/bus"
	"order_core/pkg/db"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTxm struct{}

func (fakeTxm) RunMaster(ctx context.Context, fn func(context.Context, db.Transaction) error) error {
	return fn(ctx, nil)
}

func (fakeTxm) RunRepeatableRead(ctx context.Context, fn func(context.Context, db.Transaction) error) error {
	return fn(ctx, nil)
}

// fakeOrders simulates the row store: UpdateStatus enforces the expected
// current status the way the SQL WHERE clause does.
type fakeOrders struct {
	byID       map[string]models.Order
	failUpdate bool
	updates    int
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{byID: make(map[string]models.Order)}
}

func (f *fakeOrders) Insert(_ context.Context, _ db.Transaction, o *models.Order) error {
	f.byID[o.ID] = *o
	return nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, _ db.Transaction, o *models.Order, from models.OrderStatus) error {
	if f.failUpdate {
		return errors.New("db down")
	}
	stored, ok := f.byID[o.ID]
	if !ok || stored.Status != from {
		return errors.Errorf("order %s no longer in %s", o.ID, from)
	}
	f.byID[o.ID] = *o
	f.updates++
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, _ db.Transaction, id string) (*models.Order, error) {
	if o, ok := f.byID[id]; ok {
		return &o, nil
	}
	return nil, nil
}

func (f *fakeOrders) GetByBrokerID(_ context.Context, _ db.Transaction, brokerOrderID string) (*models.Order, error) {
	for _, o := range f.byID {
		if o.BrokerOrderID == brokerOrderID {
			o := o
			return &o, nil
		}
	}
	return nil, nil
}

func (f *fakeOrders) ListByStatuses(_ context.Context, _ db.Transaction, statuses []models.OrderStatus) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range f.byID {
		for _, s := range statuses {
			if o.Status == s {
				o := o
				out = append(out, &o)
			}
		}
	}
	return out, nil
}

func (f *fakeOrders) SetManualReview(_ context.Context, _ db.Transaction, orderID, detail string) error {
	o := f.byID[orderID]
	o.NeedsManualReview = true
	o.ErrorText = detail
	f.byID[orderID] = o
	return nil
}

type fakeChecker struct {
	res conflictsvc.Result
	err error
}

func (f *fakeChecker) Check(context.Context, int64, string, models.Side, decimal.Decimal) (conflictsvc.Result, error) {
	return f.res, f.err
}

type fakeOwnership struct {
	transfer     ownershipsvc.TransferResult
	transferErr  error
	transferFrom int64
	transferTo   int64
	claimed      bool
	claimErr     error
}

func (f *fakeOwnership) Transfer(_ context.Context, _ string, fromID, toID int64, _ string) (ownershipsvc.TransferResult, error) {
	f.transferFrom = fromID
	f.transferTo = toID
	return f.transfer, f.transferErr
}

func (f *fakeOwnership) Claim(context.Context, int64, string, string) (*models.PositionOwnership, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	f.claimed = true
	return &models.PositionOwnership{ID: 1}, nil
}

func newManager(orders *fakeOrders, checker *fakeChecker, own *fakeOwnership) (*Manager, *bus.Bus) {
	b := bus.New(100)
	return NewManager(fakeTxm{}, orders, checker, own, b), b
}

func allowedNoOwner() conflictsvc.Result {
	return conflictsvc.Result{Resolution: models.ResolutionAllowed, CanProceed: true}
}

func TestCreateOrderAllowedClaimsUnownedTicker(t *testing.T) {
	orders := newFakeOrders()
	own := &fakeOwnership{}
	m, _ := newManager(orders, &fakeChecker{res: allowedNoOwner()}, own)

	order, err := m.CreateOrder(context.Background(), "TSLA", models.SideBuy, decimal.NewFromInt(5), 30)
	require.NoError(t, err)

	assert.Equal(t, models.StatusOrderPending, order.Status)
	assert.True(t, own.claimed, "first acquisition claims ownership")

	hist := m.History(order.ID)
	require.Len(t, hist, 2)
	assert.Equal(t, models.StatusSignalReceived, hist[0].From)
	assert.Equal(t, models.StatusValidating, hist[0].To)
	assert.Equal(t, models.StatusOrderPending, hist[1].To)
}

func TestCreateOrderBlockedRejects(t *testing.T) {
	orders := newFakeOrders()
	m, b := newManager(orders, &fakeChecker{res: conflictsvc.Result{
		HasConflict: true,
		Resolution:  models.ResolutionBlocked,
		Reasoning:   "insufficient priority: 50 <= 100",
		OwnerID:     1,
	}}, &fakeOwnership{})

	order, err := m.CreateOrder(context.Background(), "AAPL", models.SideSell, decimal.NewFromInt(10), 2)
	require.NoError(t, err, "blocked is a business outcome, not an error")

	assert.Equal(t, models.StatusRejected, order.Status)
	assert.Equal(t, "insufficient priority: 50 <= 100", order.ErrorText)
	assert.Equal(t, "blocked", order.Extra["conflict_resolution"])

	rejected := b.HistoryByType(models.EvOrderRejected, 0)
	require.Len(t, rejected, 1)
	assert.Equal(t, order.ID, rejected[0].OrderID)
}

func TestCreateOrderOverrideTransfersOwnership(t *testing.T) {
	orders := newFakeOrders()
	ownership := &fakeOwnership{transfer: ownershipsvc.TransferResult{Success: true, NewOwnerID: 5}}
	existing := int64(1)
	m, _ := newManager(orders, &fakeChecker{res: conflictsvc.Result{
		HasConflict: true,
		Resolution:  models.ResolutionPriorityOverride,
		CanProceed:  true,
		OwnerID:     4,
		OwnershipID: &existing,
	}}, ownership)

	order, err := m.CreateOrder(context.Background(), "MSFT", models.SideBuy, decimal.NewFromInt(20), 5)
	require.NoError(t, err)

	assert.Equal(t, models.StatusOrderPending, order.Status)
	assert.Equal(t, int64(4), ownership.transferFrom)
	assert.Equal(t, int64(5), ownership.transferTo)
	assert.False(t, ownership.claimed)
}

func TestCreateOrderLostClaimRaceRejects(t *testing.T) {
	orders := newFakeOrders()
	own := &fakeOwnership{claimErr: errors.New(`duplicate key value violates unique constraint "ux_ownership_primary"`)}
	m, b := newManager(orders, &fakeChecker{res: allowedNoOwner()}, own)

	order, err := m.CreateOrder(context.Background(), "TSLA", models.SideBuy, decimal.NewFromInt(5), 30)
	require.NoError(t, err, "losing the claim race is a business outcome, not an error")

	assert.Equal(t, models.StatusRejected, order.Status)
	assert.Contains(t, order.ErrorText, "lost concurrent ownership claim")
	assert.Len(t, b.HistoryByType(models.EvOrderRejected, 0), 1)
}

func TestCreateOrderTransferFailureRejects(t *testing.T) {
	orders := newFakeOrders()
	ownership := &fakeOwnership{transfer: ownershipsvc.TransferResult{Message: "ownership locked until tomorrow"}}
	existing := int64(1)
	m, _ := newManager(orders, &fakeChecker{res: conflictsvc.Result{
		HasConflict: true,
		Resolution:  models.ResolutionPriorityOverride,
		CanProceed:  true,
		OwnerID:     4,
		OwnershipID: &existing,
	}}, ownership)

	order, err := m.CreateOrder(context.Background(), "NVDA", models.SideSell, decimal.NewFromInt(1), 5)
	require.NoError(t, err)

	assert.Equal(t, models.StatusRejected, order.Status)
	assert.Equal(t, "ownership locked until tomorrow", order.ErrorText)
}

func TestTransitionIllegalPairRejectedWithoutMutation(t *testing.T) {
	orders := newFakeOrders()
	m, b := newManager(orders, &fakeChecker{}, &fakeOwnership{})

	order := &models.Order{ID: "o-1", Status: models.StatusFullyFilled}
	require.NoError(t, orders.Insert(context.Background(), nil, order))

	err := m.Cancel(context.Background(), order, "too late")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
	assert.Equal(t, models.StatusFullyFilled, order.Status, "status untouched")
	assert.Zero(t, orders.updates, "nothing persisted")
	assert.Empty(t, b.HistoryByType(models.EvOrderCancelled, 0))
}

func TestTransitionPersistenceFailureReverts(t *testing.T) {
	orders := newFakeOrders()
	m, b := newManager(orders, &fakeChecker{}, &fakeOwnership{})

	order := &models.Order{ID: "o-1", Status: models.StatusOrderSent}
	require.NoError(t, orders.Insert(context.Background(), nil, order))
	orders.failUpdate = true

	err := m.Cancel(context.Background(), order, "operator cancel")
	require.Error(t, err)
	assert.Equal(t, models.StatusOrderSent, order.Status, "in-memory state reverted")
	assert.Empty(t, order.ErrorText)
	assert.Empty(t, m.History("o-1"), "no history for a failed transition")
	assert.Empty(t, b.HistoryByType(models.EvOrderCancelled, 0), "no event for a failed attempt")
}

func TestTransitionRacingWriterGetsError(t *testing.T) {
	orders := newFakeOrders()
	m, _ := newManager(orders, &fakeChecker{}, &fakeOwnership{})

	order := &models.Order{ID: "o-1", Status: models.StatusOrderSent}
	require.NoError(t, orders.Insert(context.Background(), nil, order))

	// Another writer already moved the persisted row.
	stored := orders.byID["o-1"]
	stored.Status = models.StatusFullyFilled
	orders.byID["o-1"] = stored

	err := m.Cancel(context.Background(), order, "stale cancel")
	require.Error(t, err)
	assert.Equal(t, models.StatusOrderSent, order.Status)
}

func TestOrderSentPublishesMappedEvent(t *testing.T) {
	orders := newFakeOrders()
	m, b := newManager(orders, &fakeChecker{}, &fakeOwnership{})

	order := &models.Order{ID: "o-1", Status: models.StatusOrderPending, Ticker: "AAPL"}
	require.NoError(t, orders.Insert(context.Background(), nil, order))

	require.NoError(t, m.OrderSent(context.Background(), order, "brk-77"))
	assert.Equal(t, "brk-77", order.BrokerOrderID)

	sent := b.HistoryByType(models.EvOrderSent, 0)
	require.Len(t, sent, 1)
	assert.Equal(t, "AAPL", sent[0].Ticker)
	assert.Equal(t, "o-1", sent[0].OrderID)
}

func TestPartialFillTransitionsOnceThenUpdatesInPlace(t *testing.T) {
	orders := newFakeOrders()
	m, _ := newManager(orders, &fakeChecker{}, &fakeOwnership{})

	order := &models.Order{ID: "o-1", Status: models.StatusOrderSent, Qty: decimal.NewFromInt(10)}
	require.NoError(t, orders.Insert(context.Background(), nil, order))

	require.NoError(t, m.PartialFill(context.Background(), order, decimal.NewFromInt(3), decimal.NewFromFloat(101.5)))
	assert.Equal(t, models.StatusPartialFilled, order.Status)
	assert.Len(t, m.History("o-1"), 1)

	require.NoError(t, m.PartialFill(context.Background(), order, decimal.NewFromInt(7), decimal.NewFromFloat(101.6)))
	assert.Equal(t, models.StatusPartialFilled, order.Status)
	assert.Len(t, m.History("o-1"), 1, "repeated partials are not transitions")
	assert.True(t, order.FilledQty.Equal(decimal.NewFromInt(7)))
}

func TestFullyFilledSetsFillAndPublishes(t *testing.T) {
	orders := newFakeOrders()
	m, b := newManager(orders, &fakeChecker{}, &fakeOwnership{})

	var notified atomic.Int32
	b.Subscribe(models.EvOrderFilled, func(bus.Event) error {
		notified.Add(1)
		return nil
	}, true)

	order := &models.Order{ID: "o-1", Status: models.StatusPartialFilled, Qty: decimal.NewFromInt(10)}
	require.NoError(t, orders.Insert(context.Background(), nil, order))

	require.NoError(t, m.FullyFilled(context.Background(), order, decimal.NewFromFloat(102.25)))
	assert.Equal(t, int32(1), notified.Load(), "async consumers see manager events")
	assert.Equal(t, models.StatusFullyFilled, order.Status)
	assert.True(t, order.FilledQty.Equal(order.Qty))

	filled := b.HistoryByType(models.EvOrderFilled, 0)
	require.Len(t, filled, 1)
	payload, ok := filled[0].Data.(models.OrderEvent)
	require.True(t, ok)
	assert.True(t, payload.FilledPrice.Equal(decimal.NewFromFloat(102.25)))
}

func TestHistoryReturnsCopy(t *testing.T) {
	orders := newFakeOrders()
	m, _ := newManager(orders, &fakeChecker{}, &fakeOwnership{})

	order := &models.Order{ID: "o-1", Status: models.StatusOrderPending}
	require.NoError(t, orders.Insert(context.Background(), nil, order))
	require.NoError(t, m.OrderSent(context.Background(), order, "brk-1"))

	h := m.History("o-1")
	require.Len(t, h, 1)
	h[0].Reason = "tampered"
	assert.Equal(t, "sent to broker", m.History("o-1")[0].Reason)
}
