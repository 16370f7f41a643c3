package exec

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quantfold/updownbot/internal/domain"
)

// Options bound the coordinator's timing and sizing.
type Options struct {
	MaxPositionTicks domain.Ticks  // capital ceiling per trade, both legs combined
	SubmitTimeout    time.Duration // per-leg submission deadline
	FillTimeout      time.Duration // wall clock from ack to fill before giving up
	FillPoll         time.Duration // venue status poll cadence
	SettleGrace      time.Duration // extra time granted on shutdown to reach a terminal state
	FlattenPartial   bool          // market-sell a naked filled leg instead of holding it
	Simulated        bool
}

// Coordinator owns the single in-flight trade slot and runs the paired-order
// state machine: Submitting, AwaitingFills, then exactly one of Filled,
// PartiallyFilled or Rejected. Every trade reaches a terminal state; a
// partial fill emits exactly one naked leg exposure event.
type Coordinator struct {
	venue    Venue
	recorder Recorder
	bus      domain.EventBus // optional
	opts     Options
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight *domain.Trade
	wg       sync.WaitGroup

	now func() time.Time
}

// NewCoordinator wires the execution state machine.
func NewCoordinator(venue Venue, recorder Recorder, bus domain.EventBus, opts Options, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		venue:    venue,
		recorder: recorder,
		bus:      bus,
		opts:     opts,
		logger:   logger.With(slog.String("component", "coordinator")),
		now:      time.Now,
	}
}

// TrySubmit claims the in-flight slot for the opportunity and starts
// execution. Returns false without blocking when a trade is already in
// flight. Execution itself proceeds on a detached context so that shutdown
// never abandons an order in an unknown state.
func (c *Coordinator) TrySubmit(ctx context.Context, opp domain.Opportunity) bool {
	trade := c.buildTrade(opp)
	if trade.Legs[0].SizeUnits <= 0 {
		c.logger.Warn("opportunity too expensive for position ceiling, skipped",
			slog.String("opportunity_id", opp.ID))
		return false
	}

	c.mu.Lock()
	if c.inFlight != nil {
		c.mu.Unlock()
		return false
	}
	c.inFlight = &trade
	c.mu.Unlock()

	c.logger.Info("trade submitting",
		slog.String("trade_id", trade.ID),
		slog.String("opportunity_id", opp.ID),
		slog.Int64("size_units", trade.Legs[0].SizeUnits),
		slog.String("committed", trade.CommittedTicks.String()),
		slog.String("expected_profit", trade.ExpectedProfit.String()),
		slog.Bool("simulated", trade.Simulated))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// Detached from the caller: the trade must settle even if the
		// evaluation loop is torn down mid-flight.
		budget := c.opts.SubmitTimeout + c.opts.FillTimeout + c.opts.SettleGrace
		execCtx, cancel := context.WithTimeout(context.Background(), budget)
		defer cancel()
		c.execute(execCtx, trade)
	}()
	return true
}

// InFlight returns a copy of the current in-flight trade, if any.
func (c *Coordinator) InFlight() (domain.Trade, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight == nil {
		return domain.Trade{}, false
	}
	return *c.inFlight, true
}

// Wait blocks until any in-flight trade has settled, up to the settle grace
// period. Called during shutdown after the detection loop has stopped.
func (c *Coordinator) Wait() {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.opts.FillTimeout + c.opts.SettleGrace):
		c.logger.Error("in-flight trade did not settle within grace period")
	}
}

func (c *Coordinator) buildTrade(opp domain.Opportunity) domain.Trade {
	// Position sizing: spend at most the ceiling across both legs, equal
	// token quantity on each so the pair settles flat.
	sizeUnits := int64(0)
	if opp.CombinedCost > 0 {
		sizeUnits = int64(c.opts.MaxPositionTicks) * 1_000_000 / int64(opp.CombinedCost)
	}
	committed := domain.Ticks(int64(opp.CombinedCost) * sizeUnits / 1_000_000)
	expected := domain.Ticks(int64(opp.Profit) * sizeUnits / 1_000_000)

	legs := [2]domain.TradeLeg{}
	for i, l := range opp.Legs {
		legs[i] = domain.TradeLeg{
			MarketLabel: l.MarketLabel,
			ConditionID: l.ConditionID,
			Token:       l.Token,
			PriceTicks:  l.AskTicks,
			SizeUnits:   sizeUnits,
			Status:      domain.LegStatusPending,
		}
	}

	return domain.Trade{
		ID:               uuid.NewString(),
		OpportunityID:    opp.ID,
		SnapshotVersions: opp.SnapshotVersions,
		Legs:             legs,
		Status:           domain.TradeStatusSubmitting,
		CommittedTicks:   committed,
		ExpectedProfit:   expected,
		Simulated:        c.opts.Simulated,
		CreatedAt:        c.now().UTC(),
	}
}

func (c *Coordinator) execute(ctx context.Context, trade domain.Trade) {
	c.publish(ctx, domain.EventTradeSubmitted, domain.SeverityInfo, trade, nil)

	if ok := c.submitLegs(ctx, &trade); !ok {
		c.cancelAckedLegs(ctx, &trade)
		c.finish(ctx, trade, domain.TradeStatusRejected)
		return
	}

	c.transition(&trade, domain.TradeStatusAwaitingFills)

	c.awaitFills(ctx, &trade)

	switch trade.FilledLegs() {
	case 2:
		c.finish(ctx, trade, domain.TradeStatusFilled)
	case 1:
		c.cancelAckedLegs(ctx, &trade)
		c.nakedLeg(ctx, &trade)
		c.finish(ctx, trade, domain.TradeStatusPartiallyFilled)
	default:
		// Fill timeout with nothing filled resolves Rejected. Cancelled is
		// reserved for trades explicitly aborted before fills confirmed.
		c.cancelAckedLegs(ctx, &trade)
		c.finish(ctx, trade, domain.TradeStatusRejected)
	}
}

// submitLegs places both orders concurrently. Returns false when any
// submission fails; legs that were acked remain acked for the caller to
// cancel.
func (c *Coordinator) submitLegs(ctx context.Context, trade *domain.Trade) bool {
	submitCtx, cancel := context.WithTimeout(ctx, c.opts.SubmitTimeout)
	defer cancel()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(submitCtx)
	for i := range trade.Legs {
		g.Go(func() error {
			leg := &trade.Legs[i]
			orderID, err := c.venue.SubmitOrder(gctx, OrderRequest{
				TokenID:    leg.Token.ID,
				Action:     ActionBuy,
				PriceTicks: leg.PriceTicks,
				SizeUnits:  leg.SizeUnits,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				leg.Status = domain.LegStatusFailed
				c.logger.Error("leg submission failed",
					slog.String("trade_id", trade.ID),
					slog.String("market", leg.MarketLabel),
					slog.String("error", err.Error()))
				return err
			}
			leg.OrderID = orderID
			leg.Status = domain.LegStatusAcked
			return nil
		})
	}
	return g.Wait() == nil
}

// awaitFills polls the venue until both legs fill or the fill timeout lapses.
func (c *Coordinator) awaitFills(ctx context.Context, trade *domain.Trade) {
	deadline := c.now().Add(c.opts.FillTimeout)
	ticker := time.NewTicker(c.opts.FillPoll)
	defer ticker.Stop()

	for {
		filled := 0
		for i := range trade.Legs {
			leg := &trade.Legs[i]
			switch leg.Status {
			case domain.LegStatusFilled:
				filled++
				continue
			case domain.LegStatusAcked:
			default:
				continue
			}
			state, err := c.venue.OrderStatus(ctx, leg.OrderID)
			if err != nil {
				c.logger.Warn("order status check failed",
					slog.String("trade_id", trade.ID),
					slog.String("order_id", leg.OrderID),
					slog.String("error", err.Error()))
				continue
			}
			switch state {
			case OrderStateFilled:
				now := c.now().UTC()
				leg.Status = domain.LegStatusFilled
				leg.FilledAt = &now
				filled++
			case OrderStateCancelled, OrderStateRejected:
				leg.Status = domain.LegStatusCancelled
			}
		}
		if filled == len(trade.Legs) {
			return
		}
		if c.now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cancelAckedLegs best-effort cancels every leg still resting on the book.
func (c *Coordinator) cancelAckedLegs(ctx context.Context, trade *domain.Trade) {
	for i := range trade.Legs {
		leg := &trade.Legs[i]
		if leg.Status != domain.LegStatusAcked {
			continue
		}
		if err := c.venue.CancelOrder(ctx, leg.OrderID); err != nil {
			c.logger.Error("leg cancel failed, order may still rest",
				slog.String("trade_id", trade.ID),
				slog.String("order_id", leg.OrderID),
				slog.String("error", err.Error()))
			continue
		}
		leg.Status = domain.LegStatusCancelled
	}
}

// nakedLeg handles a single-leg fill: one critical event, then optionally a
// flattening market sell of the filled leg.
func (c *Coordinator) nakedLeg(ctx context.Context, trade *domain.Trade) {
	var filled *domain.TradeLeg
	for i := range trade.Legs {
		if trade.Legs[i].Status == domain.LegStatusFilled {
			filled = &trade.Legs[i]
		}
	}
	if filled == nil {
		return
	}

	c.logger.Error("naked leg exposure, one side filled without its hedge",
		slog.String("trade_id", trade.ID),
		slog.String("market", filled.MarketLabel),
		slog.String("token_id", filled.Token.ID),
		slog.Int64("size_units", filled.SizeUnits))
	c.publish(ctx, domain.EventNakedLegExposure, domain.SeverityCritical, *trade, map[string]string{
		"market":   filled.MarketLabel,
		"token_id": filled.Token.ID,
	})

	if !c.opts.FlattenPartial {
		return
	}
	orderID, err := c.venue.SubmitOrder(ctx, OrderRequest{
		TokenID:    filled.Token.ID,
		Action:     ActionSell,
		PriceTicks: filled.PriceTicks,
		SizeUnits:  filled.SizeUnits,
	})
	if err != nil {
		c.logger.Error("flatten order failed, position held",
			slog.String("trade_id", trade.ID),
			slog.String("error", err.Error()))
		return
	}
	c.logger.Warn("naked leg flattened",
		slog.String("trade_id", trade.ID),
		slog.String("flatten_order_id", orderID))
}

func (c *Coordinator) transition(trade *domain.Trade, status domain.TradeStatus) {
	trade.Status = status
	c.storeInFlight(*trade)
	c.logger.Info("trade transition",
		slog.String("trade_id", trade.ID),
		slog.String("status", string(status)))
}

// storeInFlight refreshes the observable copy of the in-flight trade.
func (c *Coordinator) storeInFlight(trade domain.Trade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight != nil && c.inFlight.ID == trade.ID {
		c.inFlight = &trade
	}
}

// finish moves the trade to its terminal state, records it and releases the
// in-flight slot. Recording happens on a short detached context so a
// cancelled execution context cannot lose the ledger entry.
func (c *Coordinator) finish(ctx context.Context, trade domain.Trade, status domain.TradeStatus) {
	now := c.now().UTC()
	trade.Status = status
	trade.ResolvedAt = &now

	c.logger.Info("trade resolved",
		slog.String("trade_id", trade.ID),
		slog.String("status", string(status)),
		slog.Int("filled_legs", trade.FilledLegs()))

	recordCtx, cancel := context.WithTimeout(context.Background(), c.opts.SettleGrace)
	defer cancel()
	if err := c.recorder.Append(recordCtx, trade); err != nil {
		c.logger.Error("ledger append failed",
			slog.String("trade_id", trade.ID),
			slog.String("error", err.Error()))
	}

	eventType := domain.EventTradeFilled
	severity := domain.SeverityInfo
	switch status {
	case domain.TradeStatusPartiallyFilled:
		eventType, severity = domain.EventTradePartial, domain.SeverityWarning
	case domain.TradeStatusRejected:
		eventType, severity = domain.EventTradeRejected, domain.SeverityWarning
	case domain.TradeStatusCancelled:
		eventType, severity = domain.EventTradeRejected, domain.SeverityInfo
	}
	c.publish(recordCtx, eventType, severity, trade, nil)

	c.mu.Lock()
	c.inFlight = nil
	c.mu.Unlock()
}

func (c *Coordinator) publish(ctx context.Context, eventType domain.EventType, severity domain.EventSeverity, trade domain.Trade, extra map[string]string) {
	if c.bus == nil {
		return
	}
	fields := map[string]string{
		"status":          string(trade.Status),
		"committed":       trade.CommittedTicks.String(),
		"expected_profit": trade.ExpectedProfit.String(),
	}
	for k, v := range extra {
		fields[k] = v
	}
	event := domain.Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		Severity: severity,
		At:       c.now().UTC(),
		TradeID:  trade.ID,
		Fields:   fields,
	}
	if err := c.bus.PublishEvent(ctx, event); err != nil {
		c.logger.Warn("event publish failed", slog.String("error", err.Error()))
	}
}
