package models

import "time"

// Side as issued by strategies: "BUY"/"SELL" or empty.
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type Horizon string

const (
	HorizonScalp Horizon = "scalp"
	HorizonSwing Horizon = "swing"
	HorizonLong  Horizon = "long"
)

// Strategy is an operator-seeded record. The core reads priority and the
// active flag; everything else is for reporting.
type Strategy struct {
	ID       int64
	Name     string
	Priority int // total-ordered, higher wins
	Active   bool
	Horizon  Horizon
	Config   map[string]any
	Created  time.Time
}

// Signal is the intake tuple. Upstream decision logic is out of scope.
type Signal struct {
	Ticker     string
	Side       Side
	Qty        string // decimal string, parsed at order creation
	StrategyID int64
	Reason     string
}
