package models

import (
	"order_core/pkg/bus"

	"github.com/shopspring/decimal"
)

// Event types any consumer may subscribe to. A consumer failure never
// affects core correctness (the bus guarantees isolation).
const (
	EvOrderSent         bus.Type = "ORDER_SENT"
	EvOrderFilled       bus.Type = "ORDER_FILLED"
	EvOrderCancelled    bus.Type = "ORDER_CANCELLED"
	EvOrderRejected     bus.Type = "ORDER_REJECTED"
	EvOrderFailed       bus.Type = "ORDER_FAILED"
	EvConflictDetected  bus.Type = "CONFLICT_DETECTED"
	EvOrderBlocked      bus.Type = "ORDER_BLOCKED_BY_CONFLICT"
	EvPriorityOverride  bus.Type = "PRIORITY_OVERRIDE"
	EvOwnershipTransfer bus.Type = "OWNERSHIP_TRANSFERRED"
)

// OrderEvent is the payload for the order lifecycle event types.
type OrderEvent struct {
	OrderID     string
	Ticker      string
	Side        Side
	Status      OrderStatus
	Reason      string
	FilledQty   decimal.Decimal
	FilledPrice decimal.Decimal
	Extra       map[string]any
}

func (e OrderEvent) TickerRef() string { return e.Ticker }
func (e OrderEvent) OrderRef() string  { return e.OrderID }

// ConflictEvent is the payload for CONFLICT_DETECTED, ORDER_BLOCKED_BY_CONFLICT
// and PRIORITY_OVERRIDE.
type ConflictEvent struct {
	Ticker            string
	RequesterID       int64
	OwnerID           int64
	Action            string
	Resolution        Resolution
	Reasoning         string
	RequesterPriority int
	OwnerPriority     int
}

func (e ConflictEvent) TickerRef() string { return e.Ticker }

// OwnershipEvent is the payload for OWNERSHIP_TRANSFERRED.
type OwnershipEvent struct {
	Ticker string
	FromID int64
	ToID   int64
	Reason string
}

func (e OwnershipEvent) TickerRef() string { return e.Ticker }
