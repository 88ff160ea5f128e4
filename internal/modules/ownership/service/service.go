package service

import (
	"context"
	"fmt"
	"time"

	"order_core/internal/models"
	"order_core/pkg/bus"
	"order_core/pkg/db"
	"order_core/pkg/logger"

	"github.com/pkg/errors"
)

// Precondition violations. Everything else a transfer can produce is a
// structured TransferResult, not an error.
var (
	ErrNoOwnership       = errors.New("no primary ownership for ticker")
	ErrOwnershipMismatch = errors.New("ownership not held by expected strategy")
	ErrStrategyNotFound  = errors.New("strategy does not exist")
)

type StrategyStore interface {
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*models.Strategy, error)
}

type OwnershipStore interface {
	GetPrimary(ctx context.Context, tx db.Transaction, ticker string) (*models.PositionOwnership, error)
	GetPrimaryForUpdate(ctx context.Context, tx db.Transaction, ticker string) (*models.PositionOwnership, error)
	Insert(ctx context.Context, tx db.Transaction, o *models.PositionOwnership) error
	Reassign(ctx context.Context, tx db.Transaction, id, toStrategyID int64, reason string) error
	SetLock(ctx context.Context, tx db.Transaction, ticker string, until *time.Time, reason string) error
	Delete(ctx context.Context, tx db.Transaction, ticker string) error
}

type ConflictLogStore interface {
	Insert(ctx context.Context, tx db.Transaction, c *models.ConflictLog) error
}

type TransferResult struct {
	Success    bool
	Message    string
	NewOwnerID int64
}

// Service executes ownership transfers and manages time-boxed locks. All
// mutation happens under a row lock so concurrent transfers on one ticker
// serialize.
type Service struct {
	txm         db.TxManager
	strategies  StrategyStore
	ownerships  OwnershipStore
	conflicts   ConflictLogStore
	bus         *bus.Bus
	defaultLock time.Duration
}

func New(txm db.TxManager, strategies StrategyStore, ownerships OwnershipStore,
	conflicts ConflictLogStore, b *bus.Bus, defaultLock time.Duration) *Service {
	return &Service{
		txm:         txm,
		strategies:  strategies,
		ownerships:  ownerships,
		conflicts:   conflicts,
		bus:         b,
		defaultLock: defaultLock,
	}
}

// Transfer reassigns the primary ownership of ticker from fromID to toID.
// A missing row or a holder other than fromID is a hard error; lock,
// inactive target and insufficient priority are business failures with no
// mutation.
func (s *Service) Transfer(ctx context.Context, ticker string, fromID, toID int64, reason string) (TransferResult, error) {
	var res TransferResult

	err := s.txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		ownership, err := s.ownerships.GetPrimaryForUpdate(ctx, tx, ticker)
		if err != nil {
			return err
		}
		if ownership == nil {
			return errors.Wrap(ErrNoOwnership, ticker)
		}
		if ownership.StrategyID != fromID {
			return errors.Wrapf(ErrOwnershipMismatch,
				"%s held by %d, not %d", ticker, ownership.StrategyID, fromID)
		}

		target, err := s.strategies.GetByID(ctx, tx, toID)
		if err != nil {
			return err
		}
		if target == nil {
			return errors.Wrapf(ErrStrategyNotFound, "target %d", toID)
		}

		current, err := s.strategies.GetByID(ctx, tx, fromID)
		if err != nil {
			return err
		}
		currentPriority := 0
		if current != nil {
			currentPriority = current.Priority
		}

		if !target.Active {
			res = TransferResult{Message: fmt.Sprintf("target strategy %q is inactive", target.Name)}
			return nil
		}
		if ownership.LockedAt(time.Now()) {
			res = TransferResult{Message: fmt.Sprintf("ownership locked until %s",
				ownership.LockedUntil.Format(time.RFC3339))}
			return nil
		}
		if target.Priority <= currentPriority {
			res = TransferResult{Message: fmt.Sprintf("insufficient priority: %d <= %d",
				target.Priority, currentPriority)}
			// Blocked transfer attempts are auditable.
			return s.conflicts.Insert(ctx, tx, &models.ConflictLog{
				Ticker:            ticker,
				ActionAttempted:   fmt.Sprintf("transfer %d -> %d", fromID, toID),
				ActionBlocked:     "transfer",
				Resolution:        models.ResolutionBlocked,
				Reasoning:         res.Message,
				RequesterPriority: target.Priority,
				OwnerPriority:     currentPriority,
				OwnershipID:       &ownership.ID,
			})
		}

		if err := s.ownerships.Reassign(ctx, tx, ownership.ID, toID, reason); err != nil {
			return err
		}
		if err := s.conflicts.Insert(ctx, tx, &models.ConflictLog{
			Ticker:            ticker,
			ActionAttempted:   fmt.Sprintf("transfer %d -> %d", fromID, toID),
			Resolution:        models.ResolutionPriorityOverride,
			Reasoning:         reason,
			RequesterPriority: target.Priority,
			OwnerPriority:     currentPriority,
			OwnershipID:       &ownership.ID,
		}); err != nil {
			return err
		}

		res = TransferResult{Success: true, Message: "ownership transferred", NewOwnerID: toID}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}

	if res.Success {
		s.bus.PublishAsync(models.EvOwnershipTransfer, models.OwnershipEvent{
			Ticker: ticker,
			FromID: fromID,
			ToID:   toID,
			Reason: reason,
		})
		logger.Info("ownership of %s transferred %d -> %d", ticker, fromID, toID)
	}
	return res, nil
}

// Claim creates the primary row for an unowned ticker.
func (s *Service) Claim(ctx context.Context, strategyID int64, ticker, reason string) (*models.PositionOwnership, error) {
	ownership := &models.PositionOwnership{
		StrategyID: strategyID,
		Ticker:     ticker,
		Kind:       models.OwnershipPrimary,
		Reason:     reason,
	}
	err := s.txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		st, err := s.strategies.GetByID(ctx, tx, strategyID)
		if err != nil {
			return err
		}
		if st == nil {
			return errors.Wrapf(ErrStrategyNotFound, "claimant %d", strategyID)
		}
		return s.ownerships.Insert(ctx, tx, ownership)
	})
	if err != nil {
		return nil, err
	}
	return ownership, nil
}

// Lock places a time-boxed hold: while it is in the future the row cannot be
// transferred regardless of requester priority. A non-positive duration takes
// the configured default.
func (s *Service) Lock(ctx context.Context, ticker string, d time.Duration, reason string) error {
	if d <= 0 {
		d = s.defaultLock
	}
	until := time.Now().Add(d)
	return s.txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		return s.ownerships.SetLock(ctx, tx, ticker, &until, reason)
	})
}

func (s *Service) ReleaseLock(ctx context.Context, ticker string) error {
	return s.txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		return s.ownerships.SetLock(ctx, tx, ticker, nil, "")
	})
}

// Release deletes the row. Explicit release is the only deletion path.
func (s *Service) Release(ctx context.Context, ticker string) error {
	return s.txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		return s.ownerships.Delete(ctx, tx, ticker)
	})
}
