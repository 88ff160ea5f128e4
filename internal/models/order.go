package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order rows are retained indefinitely once terminal; only the order manager
// may change Status.
type Order struct {
	ID                string // uuid
	Ticker            string
	Side              Side
	Qty               decimal.Decimal
	StrategyID        int64
	Status            OrderStatus
	BrokerOrderID     string
	FilledQty         decimal.Decimal
	FilledPrice       decimal.Decimal
	ErrorText         string
	NeedsManualReview bool
	Extra             map[string]any // non-critical annotations only
	Created           time.Time
	Updated           time.Time
}

// TransitionRecord is the in-memory audit entry kept by the order manager.
type TransitionRecord struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
	Reason  string
	At      time.Time
}
