package store

import (
	"context"
	"fmt"

	"order_core/internal/models"
	"order_core/pkg/db"
)

// ConflictLogs implement db store. Insert-only: rows are never updated or
// deleted after creation.
type ConflictLogs struct{}

func NewConflictLogs() *ConflictLogs {
	return &ConflictLogs{}
}

func (s *ConflictLogs) Insert(ctx context.Context, tx db.Transaction, c *models.ConflictLog) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("ConflictLogs.Insert: %w", err)
		}
	}()

	row := tx.QueryRow(ctx,
		`INSERT INTO conflict_logs
		    (ticker, action_attempted, action_blocked, resolution, reasoning,
		     requester_priority, owner_priority, ownership_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 RETURNING id`,
		c.Ticker, c.ActionAttempted, c.ActionBlocked, c.Resolution, c.Reasoning,
		c.RequesterPriority, c.OwnerPriority, c.OwnershipID)
	return row.Scan(&c.ID)
}

func (s *ConflictLogs) ListByTicker(ctx context.Context, tx db.Transaction, ticker string, limit int) (out []*models.ConflictLog, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("ConflictLogs.ListByTicker: %w", err)
		}
	}()

	rows, err := tx.Query(ctx,
		`SELECT id, ticker, action_attempted, action_blocked, resolution, reasoning,
		        requester_priority, owner_priority, ownership_id, created_at
		   FROM conflict_logs WHERE ticker = $1
		  ORDER BY created_at DESC LIMIT $2`,
		ticker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c models.ConflictLog
		if err := rows.Scan(&c.ID, &c.Ticker, &c.ActionAttempted, &c.ActionBlocked,
			&c.Resolution, &c.Reasoning, &c.RequesterPriority, &c.OwnerPriority,
			&c.OwnershipID, &c.Created); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
