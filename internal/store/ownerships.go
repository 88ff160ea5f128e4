package store

import (
	"context"
	"fmt"
	"time"

	"order_core/internal/models"
	"order_core/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Ownerships implement db store for primary position-ownership claims.
// At most one primary row exists per ticker (unique index).
type Ownerships struct{}

func NewOwnerships() *Ownerships {
	return &Ownerships{}
}

const ownershipColumns = `id, strategy_id, ticker, kind, locked_until, reason, created_at, updated_at`

func (s *Ownerships) GetPrimary(ctx context.Context, tx db.Transaction, ticker string) (o *models.PositionOwnership, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ownerships.GetPrimary: %w", err)
		}
	}()

	row := tx.QueryRow(ctx,
		`SELECT `+ownershipColumns+`
		   FROM position_ownerships WHERE ticker = $1 AND kind = $2`,
		ticker, models.OwnershipPrimary)
	return scanOwnership(row)
}

// GetPrimaryForUpdate takes a row lock so concurrent transfers on the same
// ticker serialize on the database.
func (s *Ownerships) GetPrimaryForUpdate(ctx context.Context, tx db.Transaction, ticker string) (o *models.PositionOwnership, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ownerships.GetPrimaryForUpdate: %w", err)
		}
	}()

	row := tx.QueryRow(ctx,
		`SELECT `+ownershipColumns+`
		   FROM position_ownerships WHERE ticker = $1 AND kind = $2 FOR UPDATE`,
		ticker, models.OwnershipPrimary)
	return scanOwnership(row)
}

func (s *Ownerships) Insert(ctx context.Context, tx db.Transaction, o *models.PositionOwnership) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ownerships.Insert: %w", err)
		}
	}()

	row := tx.QueryRow(ctx,
		`INSERT INTO position_ownerships (strategy_id, ticker, kind, locked_until, reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 RETURNING id`,
		o.StrategyID, o.Ticker, o.Kind, o.LockedUntil, o.Reason)
	return row.Scan(&o.ID)
}

// Reassign moves the row to a new strategy in place. The ticker binding never
// changes on transfer.
func (s *Ownerships) Reassign(ctx context.Context, tx db.Transaction, id, toStrategyID int64, reason string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ownerships.Reassign: %w", err)
		}
	}()

	_, err = tx.Exec(ctx,
		`UPDATE position_ownerships
		    SET strategy_id = $2, reason = $3, updated_at = now()
		  WHERE id = $1`,
		id, toStrategyID, reason)
	return err
}

func (s *Ownerships) SetLock(ctx context.Context, tx db.Transaction, ticker string, until *time.Time, reason string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ownerships.SetLock: %w", err)
		}
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE position_ownerships
		    SET locked_until = $2, reason = COALESCE(NULLIF($3, ''), reason), updated_at = now()
		  WHERE ticker = $1 AND kind = $4`,
		ticker, until, reason, models.OwnershipPrimary)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no primary ownership for %s", ticker)
	}
	return nil
}

// Delete is the explicit-release path, the only way an ownership row goes away.
func (s *Ownerships) Delete(ctx context.Context, tx db.Transaction, ticker string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ownerships.Delete: %w", err)
		}
	}()

	_, err = tx.Exec(ctx,
		`DELETE FROM position_ownerships WHERE ticker = $1 AND kind = $2`,
		ticker, models.OwnershipPrimary)
	return err
}

type ownershipRow interface {
	Scan(dest ...any) error
}

func scanOwnership(row ownershipRow) (*models.PositionOwnership, error) {
	var o models.PositionOwnership
	err := row.Scan(&o.ID, &o.StrategyID, &o.Ticker, &o.Kind, &o.LockedUntil,
		&o.Reason, &o.Created, &o.Updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // unowned ticker
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
