package exec

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/updownbot/internal/domain"
)

// SettlementBook is the ledger surface the settlement sweep works against.
// Implemented by ledger.Ledger.
type SettlementBook interface {
	Unsettled(cutoff time.Time) []domain.Trade
	RecordSettlement(s domain.Settlement)
}

// SettlerOptions bound the settlement sweep.
type SettlerOptions struct {
	MinAge        time.Duration // trade age before its markets can have closed
	CheckInterval time.Duration
	SellWinners   bool // exit winning tokens at one dollar, production only
}

// resultCacheTTL bounds how often the same market is re-queried while the
// sweep waits for it to close.
const resultCacheTTL = time.Minute

type cachedResult struct {
	result   domain.MarketResult
	cachedAt time.Time
}

// Settler revisits filled trades once their markets close, records the
// realized outcome and, when configured, sells winning tokens back at one
// dollar. Every settlement is a new immutable record; the resolved Trade is
// never mutated.
type Settler struct {
	results domain.ResultSource
	venue   Venue           // optional, used only when SellWinners is set
	book    SettlementBook
	bus     domain.EventBus // optional
	opts    SettlerOptions
	logger  *slog.Logger
	now     func() time.Time

	cache map[string]cachedResult
}

// NewSettler wires the settlement sweep. venue and bus may be nil.
func NewSettler(results domain.ResultSource, venue Venue, book SettlementBook, bus domain.EventBus, opts SettlerOptions, logger *slog.Logger) *Settler {
	return &Settler{
		results: results,
		venue:   venue,
		book:    book,
		bus:     bus,
		opts:    opts,
		logger:  logger.With(slog.String("component", "settler")),
		now:     time.Now,
		cache:   make(map[string]cachedResult),
	}
}

// Run sweeps unsettled trades on a fixed cadence until the context ends.
func (s *Settler) Run(ctx context.Context) error {
	s.logger.Info("settler started",
		slog.Duration("min_age", s.opts.MinAge),
		slog.Duration("check_interval", s.opts.CheckInterval),
		slog.Bool("sell_winners", s.opts.SellWinners))

	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep settles every trade old enough for its markets to have closed.
func (s *Settler) sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.opts.MinAge)
	for _, trade := range s.book.Unsettled(cutoff) {
		s.settle(ctx, trade)
	}
}

// settle checks each market a filled leg touches. If any is still open, or a
// result check fails, the trade is left for the next sweep. A winning token
// redeems at one dollar per unit; realized profit is the payout minus the
// capital spent on filled legs.
func (s *Settler) settle(ctx context.Context, trade domain.Trade) {
	var (
		outcomes []domain.LegOutcome
		payout   domain.Ticks
		cost     domain.Ticks
	)
	for _, leg := range trade.Legs {
		if leg.Status != domain.LegStatusFilled {
			continue
		}
		result, err := s.marketResult(ctx, leg.ConditionID)
		if err != nil {
			s.logger.Warn("market result check failed",
				slog.String("trade_id", trade.ID),
				slog.String("condition_id", leg.ConditionID),
				slog.String("error", err.Error()))
			return
		}
		if !result.Closed {
			return
		}
		won := result.Winners[leg.Token.ID]
		outcomes = append(outcomes, domain.LegOutcome{
			MarketLabel: leg.MarketLabel,
			TokenID:     leg.Token.ID,
			Won:         won,
		})
		cost += domain.Ticks(int64(leg.PriceTicks) * leg.SizeUnits / 1_000_000)
		if won {
			payout += domain.Ticks(leg.SizeUnits)
			if s.opts.SellWinners && s.venue != nil {
				s.sellWinner(ctx, trade.ID, leg)
			}
		}
	}
	if len(outcomes) == 0 {
		return
	}

	settlement := domain.Settlement{
		TradeID:        trade.ID,
		Outcomes:       outcomes,
		PayoutTicks:    payout,
		RealizedProfit: payout - cost,
		SettledAt:      s.now().UTC(),
	}
	s.book.RecordSettlement(settlement)

	if settlement.RealizedProfit < 0 {
		s.logger.Warn("trade settled at a loss",
			slog.String("trade_id", trade.ID),
			slog.String("realized_profit", settlement.RealizedProfit.String()))
	} else {
		s.logger.Info("trade settled",
			slog.String("trade_id", trade.ID),
			slog.String("payout", settlement.PayoutTicks.String()),
			slog.String("realized_profit", settlement.RealizedProfit.String()))
	}
	s.publish(ctx, settlement)
}

// marketResult queries the venue for a market's resolution, caching answers
// so waiting trades do not hammer the API between sweeps.
func (s *Settler) marketResult(ctx context.Context, conditionID string) (domain.MarketResult, error) {
	if cached, ok := s.cache[conditionID]; ok {
		if s.now().Sub(cached.cachedAt) < resultCacheTTL {
			return cached.result, nil
		}
		delete(s.cache, conditionID)
	}
	result, err := s.results.MarketResult(ctx, conditionID)
	if err != nil {
		return domain.MarketResult{}, err
	}
	s.cache[conditionID] = cachedResult{result: result, cachedAt: s.now()}
	return result, nil
}

// sellWinner exits a winning token at one dollar. A failed sell leaves the
// tokens to redeem on chain; settlement proceeds either way.
func (s *Settler) sellWinner(ctx context.Context, tradeID string, leg domain.TradeLeg) {
	orderID, err := s.venue.SubmitOrder(ctx, OrderRequest{
		TokenID:    leg.Token.ID,
		Action:     ActionSell,
		PriceTicks: domain.Dollar,
		SizeUnits:  leg.SizeUnits,
	})
	if err != nil {
		s.logger.Warn("winning leg sell failed, holding for redemption",
			slog.String("trade_id", tradeID),
			slog.String("token_id", leg.Token.ID),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Info("winning leg sold",
		slog.String("trade_id", tradeID),
		slog.String("token_id", leg.Token.ID),
		slog.String("sell_order_id", orderID))
}

func (s *Settler) publish(ctx context.Context, settlement domain.Settlement) {
	if s.bus == nil {
		return
	}
	severity := domain.SeverityInfo
	if settlement.RealizedProfit < 0 {
		severity = domain.SeverityWarning
	}
	results := make([]string, 0, len(settlement.Outcomes))
	for _, o := range settlement.Outcomes {
		verdict := "lost"
		if o.Won {
			verdict = "won"
		}
		results = append(results, o.MarketLabel+":"+verdict)
	}
	event := domain.Event{
		ID:       uuid.NewString(),
		Type:     domain.EventTradeSettled,
		Severity: severity,
		At:       s.now().UTC(),
		TradeID:  settlement.TradeID,
		Fields: map[string]string{
			"payout":          settlement.PayoutTicks.String(),
			"realized_profit": settlement.RealizedProfit.String(),
			"outcomes":        strings.Join(results, ","),
		},
	}
	if err := s.bus.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("event publish failed", slog.String("error", err.Error()))
	}
}
