package domain

import "time"

// Leg identifies one side of a cross-market pairing.
type Leg struct {
	MarketLabel string
	ConditionID string
	Token       Token
	AskTicks    Ticks
}

// Opportunity is a qualifying cross-market pairing: two complementary outcome
// tokens, one from each market, whose combined ask is below the $1.00
// settlement value by at least the profit threshold. Opportunities are
// ephemeral; they are recomputed on every evaluation cycle and only persisted
// when acted on.
type Opportunity struct {
	ID               string
	Legs             [2]Leg
	CombinedCost     Ticks
	Profit           Ticks // Dollar - CombinedCost
	DetectedAt       time.Time
	SnapshotVersions [2]uint64 // versions of the two snapshots it was computed from
}
