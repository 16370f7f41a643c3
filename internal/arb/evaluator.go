// Package arb detects paired-outcome arbitrage between two up/down markets.
//
// A pair of complementary tokens from different markets (asset A up plus
// asset B down, or the reverse) settles at exactly one dollar combined. When
// the two asks sum to less than a dollar the difference is locked-in profit,
// minus whatever the fills slip.
package arb

import (
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/updownbot/internal/domain"
	"github.com/quantfold/updownbot/internal/marketdata"
)

// Evaluator reads both market snapshots and scores the two cross combos.
type Evaluator struct {
	cache      *marketdata.SnapshotCache
	labelA     string
	labelB     string
	minProfit  domain.Ticks
	minAsk     domain.Ticks // rug filter floor; 0 disables
	staleBound time.Duration

	now func() time.Time
}

// NewEvaluator creates an evaluator over the two watched markets.
func NewEvaluator(cache *marketdata.SnapshotCache, labelA, labelB string, minProfit, minAsk domain.Ticks, staleBound time.Duration) *Evaluator {
	return &Evaluator{
		cache:      cache,
		labelA:     labelA,
		labelB:     labelB,
		minProfit:  minProfit,
		minAsk:     minAsk,
		staleBound: staleBound,
		now:        time.Now,
	}
}

// Evaluate scores both cross combos against the current snapshots and returns
// the best qualifying opportunity, or nil when none qualifies. Returns an
// error only when quotes are missing or stale; a priced-out pair is a nil
// opportunity, not an error.
func (e *Evaluator) Evaluate() (*domain.Opportunity, error) {
	snapA, err := e.cache.Read(e.labelA)
	if err != nil {
		return nil, err
	}
	snapB, err := e.cache.Read(e.labelB)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	if !snapA.Fresh(e.staleBound, now) || !snapB.Fresh(e.staleBound, now) {
		return nil, domain.ErrStaleQuote
	}

	// Combo order matters: on equal profit the first combo wins.
	best := e.score(snapA, domain.SideUp, snapB, domain.SideDown, now)
	if alt := e.score(snapA, domain.SideDown, snapB, domain.SideUp, now); alt != nil {
		if best == nil || alt.Profit > best.Profit {
			best = alt
		}
	}
	return best, nil
}

func (e *Evaluator) score(snapA domain.Snapshot, sideA domain.Side, snapB domain.Snapshot, sideB domain.Side, now time.Time) *domain.Opportunity {
	askA := snapA.QuoteFor(sideA).AskTicks
	askB := snapB.QuoteFor(sideB).AskTicks
	if askA <= 0 || askB <= 0 {
		return nil
	}

	combined := askA + askB
	if combined >= domain.Dollar {
		return nil
	}
	profit := domain.Dollar - combined
	if profit < e.minProfit {
		return nil
	}

	// Both sides trading deep under fair value usually means the market has
	// already resolved off-chain and one leg will never fill. Skip it.
	if e.minAsk > 0 && askA < e.minAsk && askB < e.minAsk {
		return nil
	}

	return &domain.Opportunity{
		ID: uuid.NewString(),
		Legs: [2]domain.Leg{
			{
				MarketLabel: snapA.MarketLabel,
				ConditionID: snapA.ConditionID,
				Token:       domain.Token{ID: snapA.QuoteFor(sideA).TokenID, Side: sideA},
				AskTicks:    askA,
			},
			{
				MarketLabel: snapB.MarketLabel,
				ConditionID: snapB.ConditionID,
				Token:       domain.Token{ID: snapB.QuoteFor(sideB).TokenID, Side: sideB},
				AskTicks:    askB,
			},
		},
		CombinedCost:     combined,
		Profit:           profit,
		DetectedAt:       now,
		SnapshotVersions: [2]uint64{snapA.Version, snapB.Version},
	}
}
