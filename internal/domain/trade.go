package domain

import "time"

// TradeStatus tracks the paired-order state machine.
type TradeStatus string

const (
	TradeStatusSubmitting      TradeStatus = "submitting"
	TradeStatusAwaitingFills   TradeStatus = "awaiting_fills"
	TradeStatusFilled          TradeStatus = "filled"
	TradeStatusPartiallyFilled TradeStatus = "partially_filled"
	TradeStatusRejected        TradeStatus = "rejected"
	TradeStatusCancelled       TradeStatus = "cancelled"
)

// Terminal reports whether the status is final. A trade in a terminal status
// is immutable and must never re-enter the in-flight slot.
func (s TradeStatus) Terminal() bool {
	switch s {
	case TradeStatusFilled, TradeStatusPartiallyFilled, TradeStatusRejected, TradeStatusCancelled:
		return true
	}
	return false
}

// LegStatus tracks one order of the pair.
type LegStatus string

const (
	LegStatusPending   LegStatus = "pending"   // submission not yet acknowledged
	LegStatusAcked     LegStatus = "acked"     // order accepted, awaiting fill
	LegStatusFilled    LegStatus = "filled"
	LegStatusCancelled LegStatus = "cancelled"
	LegStatusFailed    LegStatus = "failed"    // submission errored before ack
)

// TradeLeg is one of the two orders comprising a paired trade.
type TradeLeg struct {
	MarketLabel string
	ConditionID string
	Token       Token
	PriceTicks  Ticks
	SizeUnits   int64 // fixed-point quantity, 1e6 units per token
	OrderID     string
	Status      LegStatus
	FilledAt    *time.Time
}

// Trade is a paired-order attempt. It is owned exclusively by the execution
// coordinator while in flight and becomes an immutable record once resolved.
type Trade struct {
	ID               string
	OpportunityID    string
	SnapshotVersions [2]uint64
	Legs             [2]TradeLeg
	Status           TradeStatus
	CommittedTicks   Ticks // total capital committed across both legs
	ExpectedProfit   Ticks // per the opportunity, scaled by size
	Simulated        bool
	CreatedAt        time.Time
	ResolvedAt       *time.Time
}

// FilledLegs returns the number of legs that reported fill.
func (t Trade) FilledLegs() int {
	n := 0
	for _, l := range t.Legs {
		if l.Status == LegStatusFilled {
			n++
		}
	}
	return n
}
