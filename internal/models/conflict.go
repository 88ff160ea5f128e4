package models

import "time"

// Resolution of a conflict check.
type Resolution string

const (
	ResolutionAllowed          Resolution = "allowed"
	ResolutionBlocked          Resolution = "blocked"
	ResolutionPriorityOverride Resolution = "priority_override"
)

// ConflictLog is an append-only audit record. Rows are never mutated.
type ConflictLog struct {
	ID                int64
	Ticker            string
	ActionAttempted   string
	ActionBlocked     string
	Resolution        Resolution
	Reasoning         string
	RequesterPriority int
	OwnerPriority     int
	OwnershipID       *int64
	Created           time.Time
}
