package domain

import "time"

// Quote is the latest observed pricing for one outcome token. A newer Seq
// supersedes any older Quote for the same token; writers must never regress.
type Quote struct {
	TokenID    string
	AskTicks   Ticks // best ask: what we pay to buy
	BidTicks   Ticks // best bid: what we receive to sell (0 when unknown)
	Seq        uint64
	ObservedAt time.Time
}

// Valid reports whether the quote carries a usable ask.
func (q Quote) Valid() bool {
	return q.TokenID != "" && q.AskTicks > 0
}

// Snapshot is the immutable per-market pair of quotes published by the
// snapshot cache. Both quotes must be present before the market is ready,
// and both must be fresher than the staleness bound to be usable.
type Snapshot struct {
	MarketLabel string
	ConditionID string
	Up          Quote
	Down        Quote
	Version     uint64
}

// QuoteFor returns the quote for the given side.
func (s Snapshot) QuoteFor(side Side) Quote {
	if side == SideUp {
		return s.Up
	}
	return s.Down
}

// Ready reports whether both sides of the pair have been quoted.
func (s Snapshot) Ready() bool {
	return s.Up.Valid() && s.Down.Valid()
}

// Fresh reports whether both quotes are no older than maxAge at now.
func (s Snapshot) Fresh(maxAge time.Duration, now time.Time) bool {
	if !s.Ready() {
		return false
	}
	return now.Sub(s.Up.ObservedAt) <= maxAge && now.Sub(s.Down.ObservedAt) <= maxAge
}
