package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/updownbot/internal/domain"
)

func resolvedTrade(id string, status domain.TradeStatus, committed, profit domain.Ticks) domain.Trade {
	now := time.Now().UTC()
	return domain.Trade{
		ID:             id,
		OpportunityID:  "opp-" + id,
		Status:         status,
		CommittedTicks: committed,
		ExpectedProfit: profit,
		CreatedAt:      now,
		ResolvedAt:     &now,
	}
}

func newTestLedger() *Ledger {
	return New(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLedger_RejectsInFlightTrade(t *testing.T) {
	l := newTestLedger()

	trade := resolvedTrade("t1", domain.TradeStatusAwaitingFills, 0, 0)
	err := l.Append(context.Background(), trade)

	assert.ErrorIs(t, err, domain.ErrTradeInFlight)
	assert.Empty(t, l.Resolved(0))
}

func TestLedger_AggregatesByStatus(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, resolvedTrade("t1", domain.TradeStatusFilled, 870_000, 130_000)))
	require.NoError(t, l.Append(ctx, resolvedTrade("t2", domain.TradeStatusFilled, 910_000, 90_000)))
	require.NoError(t, l.Append(ctx, resolvedTrade("t3", domain.TradeStatusPartiallyFilled, 800_000, 200_000)))
	require.NoError(t, l.Append(ctx, resolvedTrade("t4", domain.TradeStatusRejected, 0, 0)))
	require.NoError(t, l.Append(ctx, resolvedTrade("t5", domain.TradeStatusCancelled, 0, 0)))

	agg := l.Aggregate()
	assert.Equal(t, int64(5), agg.Trades)
	assert.Equal(t, int64(2), agg.Filled)
	assert.Equal(t, int64(1), agg.PartialFills)
	assert.Equal(t, int64(1), agg.Rejected)
	assert.Equal(t, int64(1), agg.Cancelled)
	// Filled trades commit in full, a partial commits one leg of two.
	assert.Equal(t, domain.Ticks(870_000+910_000+400_000), agg.Committed)
	// Expected profit only accrues on full fills.
	assert.Equal(t, domain.Ticks(130_000+90_000), agg.ExpectedProfit)
}

func TestLedger_ResolvedNewestFirst(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	require.NoError(t, l.Append(ctx, resolvedTrade("t1", domain.TradeStatusFilled, 0, 0)))
	require.NoError(t, l.Append(ctx, resolvedTrade("t2", domain.TradeStatusRejected, 0, 0)))
	require.NoError(t, l.Append(ctx, resolvedTrade("t3", domain.TradeStatusFilled, 0, 0)))

	recent := l.Resolved(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "t3", recent[0].ID)
	assert.Equal(t, "t2", recent[1].ID)

	all := l.Resolved(0)
	assert.Len(t, all, 3)
}

func TestLedger_ResolvedBeyondLength(t *testing.T) {
	l := newTestLedger()
	require.NoError(t, l.Append(context.Background(), resolvedTrade("t1", domain.TradeStatusFilled, 0, 0)))

	assert.Len(t, l.Resolved(50), 1)
}

func TestLedger_RecordSettlementUpdatesAggregates(t *testing.T) {
	l := newTestLedger()
	require.NoError(t, l.Append(context.Background(), resolvedTrade("t1", domain.TradeStatusFilled, 870_000, 130_000)))

	l.RecordSettlement(domain.Settlement{
		TradeID:        "t1",
		PayoutTicks:    domain.Ticks(2_000_000),
		RealizedProfit: domain.Ticks(1_130_000),
		SettledAt:      time.Now().UTC(),
	})

	agg := l.Aggregate()
	assert.Equal(t, int64(1), agg.Settled)
	assert.Equal(t, domain.Ticks(1_130_000), agg.RealizedProfit)

	// A second record for the same trade must be a no-op.
	l.RecordSettlement(domain.Settlement{TradeID: "t1", RealizedProfit: domain.Ticks(1_130_000)})
	agg = l.Aggregate()
	assert.Equal(t, int64(1), agg.Settled)
	assert.Equal(t, domain.Ticks(1_130_000), agg.RealizedProfit)
}

func TestLedger_UnsettledFiltersStatusAgeAndRecord(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	old := time.Now().UTC().Add(-20 * time.Minute)
	fresh := time.Now().UTC()

	aged := resolvedTrade("t1", domain.TradeStatusFilled, 870_000, 130_000)
	aged.ResolvedAt = &old
	recent := resolvedTrade("t2", domain.TradeStatusFilled, 900_000, 100_000)
	recent.ResolvedAt = &fresh
	partial := resolvedTrade("t3", domain.TradeStatusPartiallyFilled, 400_000, 0)
	partial.ResolvedAt = &old
	rejected := resolvedTrade("t4", domain.TradeStatusRejected, 0, 0)
	rejected.ResolvedAt = &old

	require.NoError(t, l.Append(ctx, aged))
	require.NoError(t, l.Append(ctx, recent))
	require.NoError(t, l.Append(ctx, partial))
	require.NoError(t, l.Append(ctx, rejected))

	cutoff := time.Now().UTC().Add(-14 * time.Minute)
	unsettled := l.Unsettled(cutoff)
	require.Len(t, unsettled, 2, "only aged filled/partial trades qualify")
	assert.Equal(t, "t1", unsettled[0].ID)
	assert.Equal(t, "t3", unsettled[1].ID)

	l.RecordSettlement(domain.Settlement{TradeID: "t1"})
	unsettled = l.Unsettled(cutoff)
	require.Len(t, unsettled, 1)
	assert.Equal(t, "t3", unsettled[0].ID)
}

func TestLedger_SettlementsNewestFirst(t *testing.T) {
	l := newTestLedger()
	l.RecordSettlement(domain.Settlement{TradeID: "t1"})
	l.RecordSettlement(domain.Settlement{TradeID: "t2"})
	l.RecordSettlement(domain.Settlement{TradeID: "t3"})

	recent := l.Settlements(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "t3", recent[0].TradeID)
	assert.Equal(t, "t2", recent[1].TradeID)
	assert.Len(t, l.Settlements(0), 3)
}
