package models

import "time"

type OwnershipKind string

const (
	// OwnershipPrimary is the only kind conflict resolution looks at.
	// At most one primary row exists per ticker at any instant.
	OwnershipPrimary OwnershipKind = "primary"
)

// PositionOwnership binds one strategy to one ticker. A successful transfer
// reassigns StrategyID in place; the row is deleted only by explicit release.
type PositionOwnership struct {
	ID          int64
	StrategyID  int64
	Ticker      string
	Kind        OwnershipKind
	LockedUntil *time.Time
	Reason      string
	Created     time.Time
	Updated     time.Time
}

// LockedAt reports whether the row is locked at the given instant. A locked
// row cannot be transferred regardless of requester priority.
func (o *PositionOwnership) LockedAt(now time.Time) bool {
	return o.LockedUntil != nil && o.LockedUntil.After(now)
}
