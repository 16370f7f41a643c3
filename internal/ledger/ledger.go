// Package ledger keeps the append-only record of resolved trades and the
// running aggregates served by the status endpoints.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quantfold/updownbot/internal/domain"
)

// Ledger is the in-memory append-only trade log. When a TradeStore is wired
// in, every append is also written through for durability; a store failure is
// logged but never blocks resolution.
type Ledger struct {
	store  domain.TradeStore // optional
	logger *slog.Logger

	mu          sync.RWMutex
	trades      []domain.Trade
	settlements []domain.Settlement
	settled     map[string]bool // trade ID -> settlement recorded
	aggregate   domain.LedgerAggregate
}

// New creates a ledger. store may be nil for purely in-memory operation.
func New(store domain.TradeStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:   store,
		settled: make(map[string]bool),
		logger:  logger.With(slog.String("component", "ledger")),
	}
}

// Warm seeds the aggregates from the persistent store so restarts do not
// reset the session totals. In-memory history starts empty either way.
func (l *Ledger) Warm(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	agg, err := l.store.LoadAggregate(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.aggregate = agg
	l.mu.Unlock()
	l.logger.Info("ledger warmed from store",
		slog.Int64("trades", agg.Trades),
		slog.String("committed", agg.Committed.String()))
	return nil
}

// Append records a resolved trade. Only terminal trades are accepted.
func (l *Ledger) Append(ctx context.Context, trade domain.Trade) error {
	if !trade.Status.Terminal() {
		return domain.ErrTradeInFlight
	}

	l.mu.Lock()
	l.trades = append(l.trades, trade)
	l.aggregate.Trades++
	switch trade.Status {
	case domain.TradeStatusFilled:
		l.aggregate.Filled++
		l.aggregate.Committed += trade.CommittedTicks
		l.aggregate.ExpectedProfit += trade.ExpectedProfit
	case domain.TradeStatusPartiallyFilled:
		l.aggregate.PartialFills++
		l.aggregate.Committed += trade.CommittedTicks / 2
	case domain.TradeStatusRejected:
		l.aggregate.Rejected++
	case domain.TradeStatusCancelled:
		l.aggregate.Cancelled++
	}
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.InsertTrade(ctx, trade); err != nil {
			l.logger.Error("trade write-through failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// RecordSettlement appends the realized outcome of a trade. Recording twice
// for the same trade is a no-op so the settlement sweep can safely retry.
func (l *Ledger) RecordSettlement(s domain.Settlement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.settled[s.TradeID] {
		return
	}
	l.settled[s.TradeID] = true
	l.settlements = append(l.settlements, s)
	l.aggregate.Settled++
	l.aggregate.RealizedProfit += s.RealizedProfit
	l.logger.Info("trade settled",
		slog.String("trade_id", s.TradeID),
		slog.String("payout", s.PayoutTicks.String()),
		slog.String("realized_profit", s.RealizedProfit.String()))
}

// Unsettled returns trades with at least one filled leg, resolved before the
// cutoff, that have no settlement record yet.
func (l *Ledger) Unsettled(cutoff time.Time) []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Trade
	for _, t := range l.trades {
		switch t.Status {
		case domain.TradeStatusFilled, domain.TradeStatusPartiallyFilled:
		default:
			continue
		}
		if l.settled[t.ID] {
			continue
		}
		if t.ResolvedAt == nil || !t.ResolvedAt.Before(cutoff) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Settlements returns up to n most recent settlements, newest first.
func (l *Ledger) Settlements(n int) []domain.Settlement {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.settlements) {
		n = len(l.settlements)
	}
	out := make([]domain.Settlement, 0, n)
	for i := len(l.settlements) - 1; i >= len(l.settlements)-n; i-- {
		out = append(out, l.settlements[i])
	}
	return out
}

// Resolved returns up to n most recent resolved trades, newest first.
func (l *Ledger) Resolved(n int) []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.trades) {
		n = len(l.trades)
	}
	out := make([]domain.Trade, 0, n)
	for i := len(l.trades) - 1; i >= len(l.trades)-n; i-- {
		out = append(out, l.trades[i])
	}
	return out
}

// Aggregate returns a copy of the running totals.
func (l *Ledger) Aggregate() domain.LedgerAggregate {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.aggregate
}
