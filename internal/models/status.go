package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// OrderStatus is the canonical order lifecycle state set.
type OrderStatus string

const (
	StatusIdle           OrderStatus = "IDLE"
	StatusSignalReceived OrderStatus = "SIGNAL_RECEIVED"
	StatusValidating     OrderStatus = "VALIDATING"
	StatusOrderPending   OrderStatus = "ORDER_PENDING"
	StatusOrderSent      OrderStatus = "ORDER_SENT"
	StatusPartialFilled  OrderStatus = "PARTIAL_FILLED"
	StatusFullyFilled    OrderStatus = "FULLY_FILLED"
	StatusCancelled      OrderStatus = "CANCELLED"
	StatusRejected       OrderStatus = "REJECTED"
	StatusFailed         OrderStatus = "FAILED"
)

// ErrInvalidTransition marks a transition pair absent from the canonical table.
// It is a caller precondition violation, never a business outcome.
var ErrInvalidTransition = errors.New("invalid order status transition")

// transitions is the canonical table: source -> allowed targets.
// Terminal states have no entry.
var transitions = map[OrderStatus][]OrderStatus{
	StatusIdle:           {StatusSignalReceived},
	StatusSignalReceived: {StatusValidating, StatusRejected},
	StatusValidating:     {StatusOrderPending, StatusRejected},
	StatusOrderPending:   {StatusOrderSent, StatusFailed},
	StatusOrderSent:      {StatusPartialFilled, StatusFullyFilled, StatusCancelled},
	StatusPartialFilled:  {StatusFullyFilled, StatusCancelled},
}

// AllStatuses lists every member of the canonical state set.
func AllStatuses() []OrderStatus {
	return []OrderStatus{
		StatusIdle, StatusSignalReceived, StatusValidating,
		StatusOrderPending, StatusOrderSent, StatusPartialFilled,
		StatusFullyFilled, StatusCancelled, StatusRejected, StatusFailed,
	}
}

// PendingStates is the recovery target set: statuses that may have an order
// in flight at the broker.
func PendingStates() []OrderStatus {
	return []OrderStatus{StatusOrderPending, StatusOrderSent, StatusPartialFilled}
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFullyFilled, StatusCancelled, StatusRejected, StatusFailed:
		return true
	}
	return false
}

func (s OrderStatus) IsPending() bool {
	switch s {
	case StatusOrderPending, StatusOrderSent, StatusPartialFilled:
		return true
	}
	return false
}

// CanTransition reports whether current -> target is in the canonical table.
func CanTransition(current, target OrderStatus) bool {
	for _, t := range transitions[current] {
		if t == target {
			return true
		}
	}
	return false
}

// ValidateTransition fails with an error naming the illegal pair. It never
// mutates anything.
func ValidateTransition(current, target OrderStatus) error {
	if !CanTransition(current, target) {
		return errors.Wrap(ErrInvalidTransition, fmt.Sprintf("%s -> %s", current, target))
	}
	return nil
}
