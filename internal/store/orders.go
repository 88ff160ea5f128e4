package store

import (
	"context"
	"fmt"

	"order_core/internal/models"
	"order_core/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Orders implement db store. Status is written only by the order manager;
// terminal rows are kept forever for audit.
type Orders struct{}

func NewOrders() *Orders {
	return &Orders{}
}

const orderColumns = `id, ticker, side, qty, strategy_id, status, broker_order_id,
	filled_qty, filled_price, error_text, needs_manual_review, extra, created_at, updated_at`

func (s *Orders) Insert(ctx context.Context, tx db.Transaction, o *models.Order) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Orders.Insert: %w", err)
		}
	}()

	extra, err := sonic.Marshal(o.Extra)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO orders
		    (id, ticker, side, qty, strategy_id, status, broker_order_id,
		     filled_qty, filled_price, error_text, needs_manual_review, extra,
		     created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())`,
		o.ID, o.Ticker, o.Side, o.Qty, o.StrategyID, o.Status, o.BrokerOrderID,
		o.FilledQty, o.FilledPrice, o.ErrorText, o.NeedsManualReview, extra)
	return err
}

// UpdateStatus persists one transition. The expected current status is part
// of the WHERE clause so a racing writer gets zero rows, never a silent
// overwrite.
func (s *Orders) UpdateStatus(ctx context.Context, tx db.Transaction, o *models.Order, from models.OrderStatus) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Orders.UpdateStatus: %w", err)
		}
	}()

	extra, err := sonic.Marshal(o.Extra)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE orders
		    SET status = $3, broker_order_id = $4, filled_qty = $5, filled_price = $6,
		        error_text = $7, needs_manual_review = $8, extra = $9, updated_at = now()
		  WHERE id = $1 AND status = $2`,
		o.ID, from, o.Status, o.BrokerOrderID, o.FilledQty, o.FilledPrice,
		o.ErrorText, o.NeedsManualReview, extra)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s no longer in %s", o.ID, from)
	}
	return nil
}

func (s *Orders) SetManualReview(ctx context.Context, tx db.Transaction, orderID, detail string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Orders.SetManualReview: %w", err)
		}
	}()

	_, err = tx.Exec(ctx,
		`UPDATE orders
		    SET needs_manual_review = true, error_text = $2, updated_at = now()
		  WHERE id = $1`,
		orderID, detail)
	return err
}

func (s *Orders) GetByID(ctx context.Context, tx db.Transaction, id string) (o *models.Order, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Orders.GetByID: %w", err)
		}
	}()

	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (s *Orders) GetByBrokerID(ctx context.Context, tx db.Transaction, brokerOrderID string) (o *models.Order, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Orders.GetByBrokerID: %w", err)
		}
	}()

	row := tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE broker_order_id = $1 ORDER BY created_at DESC LIMIT 1`,
		brokerOrderID)
	return scanOrder(row)
}

func (s *Orders) ListByStatuses(ctx context.Context, tx db.Transaction, statuses []models.OrderStatus) (out []*models.Order, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Orders.ListByStatuses: %w", err)
		}
	}()

	rows, err := tx.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = ANY($1) ORDER BY created_at`,
		statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type orderRow interface {
	Scan(dest ...any) error
}

func scanOrder(row orderRow) (*models.Order, error) {
	var (
		o     models.Order
		extra []byte
	)
	err := row.Scan(&o.ID, &o.Ticker, &o.Side, &o.Qty, &o.StrategyID, &o.Status,
		&o.BrokerOrderID, &o.FilledQty, &o.FilledPrice, &o.ErrorText,
		&o.NeedsManualReview, &extra, &o.Created, &o.Updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		if err := sonic.Unmarshal(extra, &o.Extra); err != nil {
			return nil, err
		}
	}
	return &o, nil
}
