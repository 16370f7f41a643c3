package domain

import (
	"context"
	"time"
)

// MarketResult is the venue's post-close view of a market: whether it has
// resolved and which outcome tokens won.
type MarketResult struct {
	Closed  bool
	Winners map[string]bool // token ID -> won
}

// ResultSource reports market resolution. Implemented by the CLOB client.
type ResultSource interface {
	MarketResult(ctx context.Context, conditionID string) (MarketResult, error)
}

// LegOutcome records how one filled leg resolved at market close.
type LegOutcome struct {
	MarketLabel string
	TokenID     string
	Won         bool
}

// Settlement is the realized outcome of a filled trade, recorded once every
// market a filled leg touches has closed. It is a separate immutable record;
// the resolved Trade is never mutated.
type Settlement struct {
	TradeID        string
	Outcomes       []LegOutcome
	PayoutTicks    Ticks // winning tokens redeem at one dollar each
	RealizedProfit Ticks // payout minus the capital spent on filled legs
	SettledAt      time.Time
}
