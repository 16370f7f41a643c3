package arb

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/updownbot/internal/domain"
)

// Submitter accepts a detected opportunity for execution. Returns false when
// an execution is already in flight; the opportunity is dropped, never queued.
type Submitter interface {
	TrySubmit(ctx context.Context, opp domain.Opportunity) bool
}

// Monitor consumes evaluation triggers from the pollers, runs the evaluator
// and hands qualifying opportunities to the submitter. In monitor mode the
// submitter is nil and detections are only logged and published.
type Monitor struct {
	evaluator *Evaluator
	submitter Submitter
	bus       domain.EventBus // optional
	trigger   <-chan struct{}
	logger    *slog.Logger
}

// NewMonitor wires the detection loop.
func NewMonitor(evaluator *Evaluator, submitter Submitter, bus domain.EventBus, trigger <-chan struct{}, logger *slog.Logger) *Monitor {
	return &Monitor{
		evaluator: evaluator,
		submitter: submitter,
		bus:       bus,
		trigger:   trigger,
		logger:    logger.With(slog.String("component", "monitor")),
	}
}

// Run evaluates on every trigger until the context is cancelled. Evaluation
// is strictly sequential; triggers arriving mid-evaluation coalesce into the
// single buffered slot of the trigger channel.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started")
	defer m.logger.Info("monitor stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.trigger:
			m.evaluate(ctx)
		}
	}
}

func (m *Monitor) evaluate(ctx context.Context) {
	opp, err := m.evaluator.Evaluate()
	if err != nil {
		if errors.Is(err, domain.ErrNotReady) || errors.Is(err, domain.ErrStaleQuote) {
			m.logger.Debug("evaluation skipped", slog.String("reason", err.Error()))
			return
		}
		m.logger.Warn("evaluation failed", slog.String("error", err.Error()))
		return
	}
	if opp == nil {
		return
	}

	m.logger.Info("opportunity detected",
		slog.String("opportunity_id", opp.ID),
		slog.String("combined_cost", opp.CombinedCost.String()),
		slog.String("profit", opp.Profit.String()),
		slog.String("leg_a", opp.Legs[0].MarketLabel+"/"+string(opp.Legs[0].Token.Side)),
		slog.String("leg_b", opp.Legs[1].MarketLabel+"/"+string(opp.Legs[1].Token.Side)))

	m.publish(ctx, opp)

	if m.submitter == nil {
		return
	}
	if !m.submitter.TrySubmit(ctx, *opp) {
		m.logger.Debug("execution busy, opportunity dropped",
			slog.String("opportunity_id", opp.ID))
	}
}

func (m *Monitor) publish(ctx context.Context, opp *domain.Opportunity) {
	if m.bus == nil {
		return
	}
	event := domain.Event{
		ID:       uuid.NewString(),
		Type:     domain.EventOpportunityDetected,
		Severity: domain.SeverityInfo,
		At:       time.Now().UTC(),
		Fields: map[string]string{
			"opportunity_id": opp.ID,
			"combo":          opp.Legs[0].MarketLabel + ":" + string(opp.Legs[0].Token.Side) + "+" + opp.Legs[1].MarketLabel + ":" + string(opp.Legs[1].Token.Side),
			"combined_cost":  opp.CombinedCost.String(),
			"profit":         opp.Profit.String(),
		},
	}
	if err := m.bus.PublishEvent(ctx, event); err != nil {
		m.logger.Warn("event publish failed", slog.String("error", err.Error()))
	}
}
