package service

import (
	"context"
	"fmt"
	"time"

	"order_core/internal/models"
	"order_core/pkg/bus"
	"order_core/pkg/db"
	"order_core/pkg/logger"

	"github.com/shopspring/decimal"
)

type StrategyStore interface {
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*models.Strategy, error)
}

type OwnershipStore interface {
	GetPrimary(ctx context.Context, tx db.Transaction, ticker string) (*models.PositionOwnership, error)
}

type ConflictLogStore interface {
	Insert(ctx context.Context, tx db.Transaction, c *models.ConflictLog) error
}

// Result of a conflict check. Expected business outcomes only; the detector
// never returns an error for a blocked request.
type Result struct {
	HasConflict       bool
	Resolution        models.Resolution
	CanProceed        bool
	Reasoning         string
	OwnerID           int64
	RequesterPriority int
	OwnerPriority     int
	OwnershipID       *int64
}

// Detector decides whether a strategy may act on a ticker. It never mutates
// ownership; side effects are confined to the conflict log and the bus.
type Detector struct {
	txm        db.TxManager
	strategies StrategyStore
	ownerships OwnershipStore
	conflicts  ConflictLogStore
	bus        *bus.Bus
}

func NewDetector(txm db.TxManager, strategies StrategyStore, ownerships OwnershipStore,
	conflicts ConflictLogStore, b *bus.Bus) *Detector {
	return &Detector{
		txm:        txm,
		strategies: strategies,
		ownerships: ownerships,
		conflicts:  conflicts,
		bus:        b,
	}
}

// Check resolves (requester, ticker, action) against current ownership.
// Requester validation runs before the ownership lookup. Every non-allowed
// outcome writes exactly one conflict-log row.
func (d *Detector) Check(ctx context.Context, requesterID int64, ticker string, side models.Side, qty decimal.Decimal) (Result, error) {
	var res Result

	err := d.txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		requester, err := d.strategies.GetByID(ctx, tx, requesterID)
		if err != nil {
			return err
		}

		owner, ownership, err := d.lookupOwner(ctx, tx, ticker)
		if err != nil {
			return err
		}

		res = d.resolve(requester, owner, ownership, time.Now())
		if res.Resolution == models.ResolutionAllowed {
			return nil
		}

		return d.conflicts.Insert(ctx, tx, &models.ConflictLog{
			Ticker:            ticker,
			ActionAttempted:   fmt.Sprintf("%s %s", side, qty),
			ActionBlocked:     actionBlocked(res, side),
			Resolution:        res.Resolution,
			Reasoning:         res.Reasoning,
			RequesterPriority: res.RequesterPriority,
			OwnerPriority:     res.OwnerPriority,
			OwnershipID:       res.OwnershipID,
		})
	})
	if err != nil {
		return Result{}, err
	}

	d.publish(res, requesterID, ticker, side)
	return res, nil
}

// resolve is a pure function of the requester, owner and lock state.
func (d *Detector) resolve(requester *models.Strategy, owner *models.Strategy, ownership *models.PositionOwnership, now time.Time) Result {
	if requester == nil {
		return Result{
			HasConflict: true,
			Resolution:  models.ResolutionBlocked,
			Reasoning:   "requesting strategy does not exist",
		}
	}
	if !requester.Active {
		return Result{
			HasConflict:       true,
			Resolution:        models.ResolutionBlocked,
			Reasoning:         fmt.Sprintf("strategy %q is inactive", requester.Name),
			RequesterPriority: requester.Priority,
		}
	}

	if ownership == nil {
		return Result{
			Resolution:        models.ResolutionAllowed,
			CanProceed:        true,
			Reasoning:         "no primary owner for ticker",
			RequesterPriority: requester.Priority,
		}
	}

	if ownership.StrategyID == requester.ID {
		return Result{
			Resolution:        models.ResolutionAllowed,
			CanProceed:        true,
			Reasoning:         "requester already owns ticker",
			RequesterPriority: requester.Priority,
			OwnerID:           requester.ID,
			OwnerPriority:     requester.Priority,
			OwnershipID:       &ownership.ID,
		}
	}

	ownerPriority := 0
	if owner != nil {
		ownerPriority = owner.Priority
	}

	base := Result{
		HasConflict:       true,
		OwnerID:           ownership.StrategyID,
		RequesterPriority: requester.Priority,
		OwnerPriority:     ownerPriority,
		OwnershipID:       &ownership.ID,
	}

	if requester.Priority > ownerPriority {
		if ownership.LockedAt(now) {
			// A lock beats priority, always.
			base.Resolution = models.ResolutionBlocked
			base.Reasoning = fmt.Sprintf("ownership locked until %s", ownership.LockedUntil.Format(time.RFC3339))
			return base
		}
		base.Resolution = models.ResolutionPriorityOverride
		base.CanProceed = true
		base.Reasoning = fmt.Sprintf("requester priority %d overrides owner priority %d",
			requester.Priority, ownerPriority)
		return base
	}

	// Ties never produce an override.
	base.Resolution = models.ResolutionBlocked
	base.Reasoning = fmt.Sprintf("insufficient priority: %d <= %d",
		requester.Priority, ownerPriority)
	return base
}

func (d *Detector) lookupOwner(ctx context.Context, tx db.Transaction, ticker string) (*models.Strategy, *models.PositionOwnership, error) {
	ownership, err := d.ownerships.GetPrimary(ctx, tx, ticker)
	if err != nil {
		return nil, nil, err
	}
	if ownership == nil {
		return nil, nil, nil
	}
	owner, err := d.strategies.GetByID(ctx, tx, ownership.StrategyID)
	if err != nil {
		return nil, nil, err
	}
	return owner, ownership, nil
}

func (d *Detector) publish(res Result, requesterID int64, ticker string, side models.Side) {
	if res.Resolution == models.ResolutionAllowed {
		return
	}

	payload := models.ConflictEvent{
		Ticker:            ticker,
		RequesterID:       requesterID,
		OwnerID:           res.OwnerID,
		Action:            string(side),
		Resolution:        res.Resolution,
		Reasoning:         res.Reasoning,
		RequesterPriority: res.RequesterPriority,
		OwnerPriority:     res.OwnerPriority,
	}

	d.bus.PublishAsync(models.EvConflictDetected, payload)
	switch res.Resolution {
	case models.ResolutionBlocked:
		d.bus.PublishAsync(models.EvOrderBlocked, payload)
	case models.ResolutionPriorityOverride:
		d.bus.PublishAsync(models.EvPriorityOverride, payload)
	}

	logger.Info("conflict on %s: requester=%d owner=%d resolution=%s",
		ticker, requesterID, res.OwnerID, res.Resolution)
}

func actionBlocked(res Result, side models.Side) string {
	if res.CanProceed {
		return ""
	}
	return string(side)
}
